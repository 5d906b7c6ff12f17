package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fiscalops/apbots/internal/common"
	"github.com/fiscalops/apbots/internal/entity"
)

const maxResultBytes = 1 << 20

// HTTPActuator posts plans to a form-filling service.
type HTTPActuator struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewHTTPActuator(url string, timeout time.Duration, logger *slog.Logger) *HTTPActuator {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPActuator{url: url, client: &http.Client{Timeout: timeout}, logger: logger}
}

// New returns an HTTPActuator for url, or DryRun when url is empty.
func New(url string, timeout time.Duration, logger *slog.Logger) Actuator {
	if url == "" {
		return NewDryRun()
	}
	return NewHTTPActuator(url, timeout, logger)
}

func (a *HTTPActuator) Submit(ctx context.Context, plan entity.VoucherEntryPlan) (entity.ActuatorResult, error) {
	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	body, err := json.Marshal(plan)
	if err != nil {
		return entity.ActuatorResult{}, fmt.Errorf("encode plan: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return entity.ActuatorResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", reqID)

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Error("actuator.submit.send_error", "req_id", reqID, "error", err)
		return entity.ActuatorResult{}, fmt.Errorf("submit plan: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		return entity.ActuatorResult{}, fmt.Errorf("read result: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return entity.ActuatorResult{}, fmt.Errorf("actuator status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var res entity.ActuatorResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return entity.ActuatorResult{}, fmt.Errorf("decode result: %w", err)
	}
	a.logger.Info("actuator.submit.done",
		"req_id", reqID,
		"po_id", plan.PO.POID,
		"identifier", res.Identifier,
		"duplicate", res.Duplicate,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
