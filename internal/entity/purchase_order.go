package entity

// PurchaseOrder is the PO selected for an invoice. A zero POID is the
// "no match" sentinel and always carries Confidence 0.
type PurchaseOrder struct {
	POID       string  `json:"po_id"`
	VendorID   string  `json:"vendor_id"`
	VendorName string  `json:"vendor_name"`
	Confidence float64 `json:"confidence"`
}

// Found reports whether a PO was identified.
func (p PurchaseOrder) Found() bool {
	return p.POID != ""
}

// POCandidate is a row returned by the PO registry wildcard search.
type POCandidate struct {
	POID         string `json:"po_id"`
	VendorID     string `json:"vendor_id"`
	VendorName   string `json:"vendor_name"`
	Status       string `json:"status"`
	BusinessUnit string `json:"business_unit"`
}

// POLine is one line/schedule/distribution row of a purchase order.
// Read-only reference data.
type POLine struct {
	POID        string  `json:"po_id"`
	Line        int     `json:"po_line"`
	Sched       int     `json:"sched"`
	Distrib     int     `json:"distrib"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Account     string  `json:"account"`
	Fund        *string `json:"fund,omitempty"`
	Program     *string `json:"program,omitempty"`
}
