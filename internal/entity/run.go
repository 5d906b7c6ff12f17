package entity

import (
	"encoding/json"
	"time"

	"github.com/fiscalops/apbots/constants"
)

// BotRun mirrors a bot_runs row.
type BotRun struct {
	ID              int64               `json:"id"`
	RunID           string              `json:"runid"`
	BotName         string              `json:"bot_name"`
	Status          constants.RunStatus `json:"status"`
	CancelRequested bool                `json:"cancel_requested"`
	TestMode        bool                `json:"test_mode"`
	Context         json.RawMessage     `json:"context,omitempty"`
	Message         *string             `json:"message,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// RunCounters are the aggregate outcome counts of a run.
type RunCounters struct {
	Processed  int `json:"processed"`
	Successes  int `json:"successes"`
	Duplicates int `json:"duplicates"`
	Failures   int `json:"failures"`
}

// Record increments Processed and the bucket for outcome.
func (c *RunCounters) Record(outcome constants.Outcome) {
	c.Processed++
	switch outcome {
	case constants.OutcomeSuccess:
		c.Successes++
	case constants.OutcomeDuplicate:
		c.Duplicates++
	default:
		c.Failures++
	}
}

// AsContext renders counters for merging into the run context.
func (c RunCounters) AsContext() map[string]any {
	return map[string]any{
		"processed":  c.Processed,
		"successes":  c.Successes,
		"duplicates": c.Duplicates,
		"failures":   c.Failures,
	}
}

// RunLog is the in-memory summary a run loop returns.
type RunLog struct {
	RunID  string              `json:"runid"`
	Vendor string              `json:"vendor"`
	Status constants.RunStatus `json:"status"`
	RunCounters
}

// ProcessLog mirrors a bot_process_log row; append-only.
type ProcessLog struct {
	ID         int64             `json:"id"`
	RunID      string            `json:"runid"`
	Filename   string            `json:"filename"`
	Identifier string            `json:"voucher_id"`
	Amount     float64           `json:"amount"`
	Invoice    string            `json:"invoice"`
	Status     constants.Outcome `json:"status"`
	Message    string            `json:"message,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
