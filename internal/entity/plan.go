package entity

import "github.com/fiscalops/apbots/constants"

// LineMappingEntry is the amount proposed against one PO line.
type LineMappingEntry struct {
	POLine int     `json:"po_line"`
	Amount float64 `json:"amount"`
}

// LineMapping is the allocation of an invoice across PO lines.
type LineMapping struct {
	Strategy string             `json:"strategy"`
	Lines    []LineMappingEntry `json:"lines"`
}

// VoucherEntryPlan aggregates everything the actuator needs for one invoice.
type VoucherEntryPlan struct {
	PO             PurchaseOrder    `json:"po"`
	Invoice        ExtractedInvoice `json:"invoice"`
	Mapping        LineMapping      `json:"mapping"`
	AttachmentPath string           `json:"attachment_path"`
	POLines        []POLine         `json:"po_lines,omitempty"`
	TestMode       bool             `json:"test_mode"`
}

// ExecutionDecision is the output of the review gate.
type ExecutionDecision struct {
	Execute     bool   `json:"execute"`
	Reason      string `json:"reason"`
	ShortReason string `json:"short_reason,omitempty"`
}

// ActuatorResult is what the form-filling actuator reports back.
type ActuatorResult struct {
	Identifier   string  `json:"identifier"`
	Duplicate    bool    `json:"duplicate"`
	OutOfBalance bool    `json:"out_of_balance"`
	Alert        *string `json:"alert"`
}

// DocumentReport summarizes one processed document for bookkeeping.
type DocumentReport struct {
	File          string
	Outcome       constants.Outcome
	Identifier    string
	InvoiceNumber string
	Amount        float64
	Message       string
	Vendor        string
	Decision      *ExecutionDecision
}
