package documents

import "github.com/fiscalops/apbots/internal/llm"

func str() map[string]any    { return map[string]any{"type": "string"} }
func number() map[string]any { return map[string]any{"type": "number"} }

func DirectDepositSchema() llm.Schema {
	return llm.Schema{Name: "direct_deposit", Definition: llm.Object(map[string]any{
		"emplid":            str(),
		"name":              str(),
		"date":              str(),
		"ssn":               str(),
		"bank_name":         str(),
		"routing_number":    str(),
		"bank_account":      str(),
		"checking_account":  map[string]any{"type": "boolean"},
		"savings_account":   map[string]any{"type": "boolean"},
		"amount_dollars":    number(),
		"amount_percentage": number(),
	})}
}

func PaylineSchema() llm.Schema {
	item := llm.Object(map[string]any{
		"tab_name":          str(),
		"hr_requestor":      str(),
		"month_requested":   str(),
		"site":              str(),
		"emplid":            str(),
		"empl_rcd":          map[string]any{"type": "integer"},
		"ern_ded_code":      str(),
		"amount":            number(),
		"earnings_begin_dt": str(),
		"earnings_end_dt":   str(),
		"notes":             llm.Nullable("string"),
	})
	rowErr := llm.Object(map[string]any{
		"row_number": map[string]any{"type": "integer"},
		"tab_name":   str(),
		"error":      str(),
	})
	return llm.Schema{Name: "payline_batch", Definition: llm.Object(map[string]any{
		"items":  map[string]any{"type": "array", "items": item},
		"errors": map[string]any{"type": "array", "items": rowErr},
	})}
}

func ScholarshipSchema() llm.Schema {
	return llm.Schema{Name: "scholarship_authorization", Definition: llm.Object(map[string]any{
		"name":           str(),
		"amount":         number(),
		"invoice_number": str(),
	})}
}

func JournalSchema() llm.Schema {
	types := make([]any, 0, len(JournalTypes))
	for _, t := range JournalTypes {
		types = append(types, t)
	}
	return llm.Schema{Name: "journal_request", Definition: llm.Object(map[string]any{
		"name":                str(),
		"amount":              number(),
		"journal_type":        map[string]any{"type": "string", "enum": types},
		"description":         str(),
		"source_account":      str(),
		"destination_account": str(),
	})}
}
