package entity

// InvoiceLine is one itemized charge printed on an invoice.
type InvoiceLine struct {
	Description string   `json:"description"`
	Quantity    *float64 `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price"`
	LineAmount  float64  `json:"line_amount"`
}

// ExtractedInvoice is the schema-validated result of invoice extraction.
type ExtractedInvoice struct {
	InvoiceNumber     string        `json:"invoice_number"`
	VendorName        string        `json:"vendor_name"`
	InvoiceDate       string        `json:"invoice_date"`
	TotalAmount       float64       `json:"total_amount"`
	PurchaseOrderRaw  *string       `json:"purchase_order_raw"`
	FuzzyPOCandidates []string      `json:"fuzzy_po_candidates"`
	Lines             []InvoiceLine `json:"lines"`
}

// TotalLineDescription labels the synthetic line used when an invoice
// carries only a grand total.
const TotalLineDescription = "Invoice total"

// EnsureLines adds a single grand-total line when none were extracted.
func (inv *ExtractedInvoice) EnsureLines() {
	if len(inv.Lines) == 0 {
		inv.Lines = []InvoiceLine{{Description: TotalLineDescription, LineAmount: inv.TotalAmount}}
	}
}

// TotalOnly reports whether the invoice has no itemization beyond its total.
func (inv *ExtractedInvoice) TotalOnly() bool {
	if len(inv.Lines) == 0 {
		return true
	}
	if len(inv.Lines) > 1 {
		return false
	}
	l := inv.Lines[0]
	return l.Description == TotalLineDescription && l.Quantity == nil && l.UnitPrice == nil
}

// RawPO returns the printed purchase order text or "".
func (inv *ExtractedInvoice) RawPO() string {
	if inv.PurchaseOrderRaw == nil {
		return ""
	}
	return *inv.PurchaseOrderRaw
}
