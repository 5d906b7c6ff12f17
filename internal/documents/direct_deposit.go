package documents

import (
	"strings"

	"github.com/fiscalops/apbots/internal/common"
)

// DirectDeposit is one employee direct deposit authorization.
type DirectDeposit struct {
	EmplID           string  `json:"emplid"`
	Name             string  `json:"name"`
	Date             string  `json:"date"`
	SSNLast4         string  `json:"ssn"`
	BankName         string  `json:"bank_name"`
	RoutingNumber    string  `json:"routing_number"`
	BankAccount      string  `json:"bank_account"`
	Checking         bool    `json:"checking_account"`
	Savings          bool    `json:"savings_account"`
	AmountDollars    float64 `json:"amount_dollars"`
	AmountPercentage float64 `json:"amount_percentage"`
}

// ApplyDefaults resolves ambiguous forms: exactly one account type is
// set (checking wins), a form with no amounts deposits 100 percent, and
// the SSN keeps only its last four digits.
func (d *DirectDeposit) ApplyDefaults() {
	switch {
	case d.Checking && d.Savings:
		d.Savings = false
	case !d.Checking && !d.Savings:
		d.Checking = true
	}
	if d.AmountDollars == 0 && d.AmountPercentage == 0 {
		d.AmountPercentage = 100
	}
	d.SSNLast4 = lastDigits(d.SSNLast4, 4)
	d.EmplID = strings.TrimSpace(d.EmplID)
	d.RoutingNumber = digitsOnly(d.RoutingNumber)
}

func (d *DirectDeposit) Validate() error {
	v := common.NewValidator()
	v.Field("emplid", d.EmplID, common.Required, common.Digits(6))
	v.Field("routing_number", d.RoutingNumber, common.Required, common.Digits(9))
	v.Field("bank_account", d.BankAccount, common.Required)
	v.Field("amount_percentage", d.AmountPercentage, common.Between(0, 100))
	v.Check(d.AmountDollars >= 0, "amount_dollars", d.AmountDollars, "must not be negative")
	return v.Error()
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func lastDigits(s string, n int) string {
	d := digitsOnly(s)
	if len(d) <= n {
		return d
	}
	return d[len(d)-n:]
}
