package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Extract asks the model for a document matching req.Schema and decodes
// it into T. It returns either a fully validated value or an error,
// never a partial value.
func Extract[T any](ctx context.Context, model Model, req ExtractRequest, logger *slog.Logger) (*T, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if model == nil {
		return nil, &ModelError{Purpose: req.Purpose, Err: errors.New("no model configured")}
	}
	start := time.Now()

	raw, err := model.Complete(ctx, Request{
		Purpose: req.Purpose,
		System:  ComposeInstructions(req.Instructions, req.Extra),
		User:    req.User,
		Image:   req.Image,
		Schema:  req.Schema,
		Tools:   req.Tools,
	})
	if err != nil {
		logger.Error("llm.extract.model_error",
			"purpose", req.Purpose, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, &ModelError{Purpose: req.Purpose, Err: err}
	}

	doc := []byte(raw)
	if vErr := ValidateJSONAgainstSchema(req.Schema.Definition, doc); vErr != nil {
		cleaned, changes, sErr := SanitizeLenient(req.Schema.Definition, doc, req.Synonyms)
		if sErr != nil {
			logger.Warn("llm.extract.schema_invalid",
				"purpose", req.Purpose, "error", vErr, "sanitize_error", sErr,
			)
			return nil, &SchemaValidationError{Purpose: req.Purpose, Raw: doc, Err: vErr}
		}
		if vErr2 := ValidateJSONAgainstSchema(req.Schema.Definition, cleaned); vErr2 != nil {
			logger.Warn("llm.extract.schema_invalid",
				"purpose", req.Purpose, "error", vErr2, "changes", changes,
			)
			return nil, &SchemaValidationError{Purpose: req.Purpose, Raw: doc, Err: vErr2}
		}
		logger.Warn("llm.extract.lenient_sanitize_applied", "purpose", req.Purpose, "changes", changes)
		doc = cleaned
	}

	out := new(T)
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return nil, &SchemaValidationError{Purpose: req.Purpose, Raw: doc, Err: fmt.Errorf("decode: %w", err)}
	}

	logger.Info("llm.extract.validated",
		"purpose", req.Purpose,
		"bytes", len(doc),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
