// Package documents extracts the non-invoice forms handled by the
// payroll and scholarship bots.
package documents

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fiscalops/apbots/constants"
	"github.com/fiscalops/apbots/internal/common"
	"github.com/fiscalops/apbots/internal/entity"
	"github.com/fiscalops/apbots/internal/llm"
	"github.com/fiscalops/apbots/internal/ocr"
)

type Ingestor interface {
	Ingest(ctx context.Context, path string, opts ocr.Options) ocr.Result
}

type Extractor struct {
	ingestor Ingestor
	model    llm.Model
	opts     ocr.Options
	logger   *slog.Logger
}

func NewExtractor(ingestor Ingestor, model llm.Model, opts ocr.Options, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{ingestor: ingestor, model: model, opts: opts, logger: logger}
}

// Extract reads path as a document of the given kind and returns the
// defaulted, validated value: *DirectDeposit, *PaylineBatch,
// *ScholarshipAuthorization, *JournalRequest or *entity.ExtractedInvoice.
func (e *Extractor) Extract(ctx context.Context, kind constants.DocumentType, path string) (any, error) {
	switch kind {
	case constants.DocPayline:
		return asAny(e.Payline(ctx, path))
	case constants.DocDirectDeposit:
		return asAny(extractForm[DirectDeposit](ctx, e, path, string(kind), directDepositInstructions, DirectDepositSchema(),
			func(d *DirectDeposit) error { d.ApplyDefaults(); return d.Validate() }))
	case constants.DocScholarship:
		return asAny(extractForm[ScholarshipAuthorization](ctx, e, path, string(kind), scholarshipInstructions, ScholarshipSchema(),
			func(s *ScholarshipAuthorization) error { s.ApplyDefaults(); return s.Validate() }))
	case constants.DocJournal:
		return asAny(extractForm[JournalRequest](ctx, e, path, string(kind), journalInstructions, JournalSchema(),
			func(j *JournalRequest) error { j.ApplyDefaults(); return j.Validate() }))
	case constants.DocInvoice:
		return asAny(extractForm[entity.ExtractedInvoice](ctx, e, path, string(kind), llm.InvoiceExtractionInstructions, llm.InvoiceSchema(),
			func(inv *entity.ExtractedInvoice) error { inv.EnsureLines(); return nil }))
	default:
		return nil, fmt.Errorf("%w: unknown document kind %q", common.ErrInvalidInput, kind)
	}
}

// asAny keeps a nil *T from becoming a non-nil interface.
func asAny[T any](v *T, err error) (any, error) {
	if v == nil {
		return nil, err
	}
	return v, err
}

func extractForm[T any](ctx context.Context, e *Extractor, path, purpose, instructions string, schema llm.Schema, finish func(*T) error) (*T, error) {
	res := e.ingestor.Ingest(ctx, path, e.opts)
	if !res.Success && len(res.Preview) == 0 {
		return nil, fmt.Errorf("ingest %s: %s", filepath.Base(path), res.Description)
	}
	var user []string
	if res.Text != "" {
		user = append(user, "Document text:\n"+res.Text)
	}
	out, err := llm.Extract[T](ctx, e.model, llm.ExtractRequest{
		Purpose:      purpose,
		Instructions: instructions,
		User:         user,
		Image:        res.Preview,
		Schema:       schema,
	}, e.logger)
	if err != nil {
		return nil, err
	}
	if err := finish(out); err != nil {
		return out, err
	}
	e.logger.Info("documents.extract.ok", "kind", purpose, "file", filepath.Base(path))
	return out, nil
}

// Payline extracts a payline workbook, keeps only the first payroll
// period and moves rows with invalid emplids to Errors.
func (e *Extractor) Payline(ctx context.Context, path string) (*PaylineBatch, error) {
	wb, err := ReadWorkbook(path)
	if err != nil {
		return nil, err
	}
	if len(wb.Sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook %s has no data", common.ErrInvalidInput, filepath.Base(path))
	}
	batch, err := llm.Extract[PaylineBatch](ctx, e.model, llm.ExtractRequest{
		Purpose:      string(constants.DocPayline),
		Instructions: paylineInstructions,
		User:         []string{wb.Text()},
		Schema:       PaylineSchema(),
	}, e.logger)
	if err != nil {
		return nil, err
	}
	dropped := batch.TrimToFirstPeriod()
	batch.MoveInvalid()
	e.logger.Info("documents.payline.ok",
		"file", filepath.Base(path),
		"items", len(batch.Items),
		"errors", len(batch.Errors),
		"dropped_other_period", dropped,
	)
	return batch, nil
}
