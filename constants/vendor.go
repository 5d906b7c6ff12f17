package constants

import (
	"strings"
	"unicode"
)

// CanonicalVendorKey lowercases a vendor name and collapses punctuation
// and whitespace runs into single spaces, so "Grainger, Inc." and
// "GRAINGER INC" share a key.
func CanonicalVendorKey(input string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(input)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
			continue
		}
		if r == '\'' {
			continue
		}
		space = true
	}
	return b.String()
}

// DocumentType names the extraction contracts the bots understand.
type DocumentType string

const (
	DocInvoice       DocumentType = "invoice"
	DocDirectDeposit DocumentType = "direct_deposit"
	DocPayline       DocumentType = "payline"
	DocScholarship   DocumentType = "scholarship"
	DocJournal       DocumentType = "journal"
)

var allDocumentTypes = []DocumentType{
	DocInvoice,
	DocDirectDeposit,
	DocPayline,
	DocScholarship,
	DocJournal,
}

// AsStringSlice lists the document types.
func AsStringSlice() []string {
	result := make([]string, len(allDocumentTypes))
	for i, dt := range allDocumentTypes {
		result[i] = string(dt)
	}
	return result
}

// ParseDocumentType accepts a few spellings per type.
func ParseDocumentType(input string) (DocumentType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))

	synonyms := map[string]DocumentType{
		"voucher":        DocInvoice,
		"ap":             DocInvoice,
		"direct deposit": DocDirectDeposit,
		"directdeposit":  DocDirectDeposit,
		"dd":             DocDirectDeposit,
		"payroll":        DocPayline,
		"check":          DocScholarship,
		"je":             DocJournal,
	}
	if dt, ok := synonyms[normalized]; ok {
		return dt, true
	}
	for _, dt := range allDocumentTypes {
		if normalized == string(dt) {
			return dt, true
		}
	}
	return "", false
}
