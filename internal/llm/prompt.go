package llm

import "strings"

const vendorInstructionsHeader = "\n\nVendor-specific instructions:\n"

// ComposeInstructions appends vendor-specific text to the base
// instructions. The base text is never replaced.
func ComposeInstructions(base, extra string) string {
	extra = strings.TrimSpace(extra)
	if extra == "" {
		return base
	}
	return base + vendorInstructionsHeader + extra
}

const InvoiceExtractionInstructions = `You are an AP invoice extraction agent preparing data for voucher entry.
Return JSON that matches the provided schema exactly.

Fields to extract:
- invoice_number
- vendor_name
- invoice_date (YYYY-MM-DD)
- total_amount
- purchase_order_raw (raw PO as printed; keep dashes, not underscores; null if none)
- fuzzy_po_candidates (every PO-like string you see, including the one in purchase_order_raw)
- lines: description, quantity (if present), unit_price (if present), line_amount (required)

Amounts are plain numbers without currency symbols or thousands separators.`

const POIdentifierInstructions = `You are an expert AP voucher agent.

Using the po_search tool:
1. Normalize the PO ids to possible valid formats.
2. Search for each candidate using wildcard logic.
3. Compare the vendor names returned by the search to the invoice vendor.
4. Choose the most likely PO.

PO ids may carry a business unit prefix such as 'KERNH-'; the business unit is never part of the po_id itself.
PO ids may contain leading zeros ('0000227878'), letters ('LN9721') or both ('APO956001J').
With a partial PO number, search with wildcards, for instance %227878%.

If ambiguous, choose the highest-confidence match.
If nothing matches, return {"po_id": null, "vendor_id": null, "vendor_name": null, "confidence": 0.0}.`

const LineMapperInstructions = `You are matching invoice lines to PO lines for voucher entry.

The invoice and the PO lines are provided as JSON.

Goals:
1) Map each invoice line to one or more PO lines.
2) Split amounts proportionally if needed; never exceed a PO line's amount.
3) If only a total is available, map the total to the first PO line.

Return the approach in "strategy" and one entry per allocation in "lines".`

const ReviewInstructions = `You are a safety and quality reviewer for voucher entry.
Input data:
- Invoice JSON
- PO validation JSON (includes confidence)
- Line mapping JSON

Tasks:
1) Check confidence thresholds (low PO confidence or missing data).
2) Check vendor or dollar guardrails (vendor-specific instructions may follow).
3) If anything looks risky or incomplete, set execute=false and explain why.
4) Otherwise set execute=true with a brief reason.`

// VendorDetectionInstructions lists the vendors that have overlays.
func VendorDetectionInstructions(known []string) string {
	s := "Identify the vendor name from this invoice or return null."
	if len(known) > 0 {
		s += " If the vendor matches any of: " + strings.Join(known, ", ") + ", return the name exactly as listed."
	}
	return s
}
