package documents

import (
	"strings"

	"github.com/fiscalops/apbots/internal/common"
)

// ScholarshipAuthorization is a check request for a scholarship award.
type ScholarshipAuthorization struct {
	Name          string  `json:"name"`
	Amount        float64 `json:"amount"`
	InvoiceNumber string  `json:"invoice_number"`
}

func (s *ScholarshipAuthorization) ApplyDefaults() {
	s.Name = strings.TrimSpace(s.Name)
	s.InvoiceNumber = strings.ToUpper(strings.TrimSpace(s.InvoiceNumber))
}

func (s *ScholarshipAuthorization) Validate() error {
	v := common.NewValidator()
	v.Field("name", s.Name, common.Required)
	v.Field("invoice_number", s.InvoiceNumber, common.Required, common.MaxLength(30))
	v.Check(s.Amount > 0, "amount", s.Amount, "must be positive")
	return v.Error()
}

// Journal types accepted by the ledger.
var JournalTypes = []string{"PBEST", "YWEL", "PODER", "Bidart"}

// JournalRequest is a fund transfer between two accounts.
type JournalRequest struct {
	Name               string  `json:"name"`
	Amount             float64 `json:"amount"`
	JournalType        string  `json:"journal_type"`
	Description        string  `json:"description"`
	SourceAccount      string  `json:"source_account"`
	DestinationAccount string  `json:"destination_account"`
}

// ApplyDefaults snaps the journal type to its canonical spelling.
func (j *JournalRequest) ApplyDefaults() {
	j.Name = strings.TrimSpace(j.Name)
	for _, t := range JournalTypes {
		if strings.EqualFold(strings.TrimSpace(j.JournalType), t) {
			j.JournalType = t
			break
		}
	}
}

func (j *JournalRequest) Validate() error {
	v := common.NewValidator()
	v.Field("name", j.Name, common.Required)
	v.Field("journal_type", j.JournalType, common.OneOf(JournalTypes...))
	v.Field("source_account", j.SourceAccount, common.Required)
	v.Field("destination_account", j.DestinationAccount, common.Required)
	v.Check(j.Amount > 0, "amount", j.Amount, "must be positive")
	return v.Error()
}
