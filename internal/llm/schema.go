package llm

func str() map[string]any { return map[string]any{"type": "string"} }
func nullable(t string) map[string]any { return map[string]any{"type": []any{t, "null"}} }

// object builds a closed object schema where every property is required,
// the shape accepted by strict structured-output providers.
func object(props map[string]any) map[string]any {
	required := make([]any, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

// Object is exported for document schemas defined outside this package.
func Object(props map[string]any) map[string]any { return object(props) }

// Nullable is exported for document schemas defined outside this package.
func Nullable(t string) map[string]any { return nullable(t) }

func InvoiceSchema() Schema {
	line := object(map[string]any{
		"description": str(),
		"quantity":    nullable("number"),
		"unit_price":  nullable("number"),
		"line_amount": map[string]any{"type": "number"},
	})
	return Schema{Name: "extracted_invoice", Definition: object(map[string]any{
		"invoice_number":      map[string]any{"type": "string", "minLength": 1},
		"vendor_name":         str(),
		"invoice_date":        str(),
		"total_amount":        map[string]any{"type": "number"},
		"purchase_order_raw":  nullable("string"),
		"fuzzy_po_candidates": map[string]any{"type": "array", "items": str()},
		"lines":               map[string]any{"type": "array", "items": line},
	})}
}

// InvoiceSynonyms are renames seen in practice from less obedient models.
var InvoiceSynonyms = map[string]string{
	"po_number":      "purchase_order_raw",
	"purchase_order": "purchase_order_raw",
	"total":          "total_amount",
	"amount":         "line_amount",
	"date":           "invoice_date",
	"vendor":         "vendor_name",
	"line_items":     "lines",
}

func POIdentificationSchema() Schema {
	conf := nullable("number")
	conf["minimum"] = 0
	conf["maximum"] = 1
	return Schema{Name: "validated_po", Definition: object(map[string]any{
		"po_id":       nullable("string"),
		"vendor_id":   nullable("string"),
		"vendor_name": nullable("string"),
		"confidence":  conf,
	})}
}

func LineMappingSchema() Schema {
	entry := object(map[string]any{
		"po_line": map[string]any{"type": "integer", "minimum": 0},
		"amount":  map[string]any{"type": "number"},
	})
	return Schema{Name: "line_mapping", Definition: object(map[string]any{
		"strategy": str(),
		"lines":    map[string]any{"type": "array", "items": entry},
	})}
}

func ReviewSchema() Schema {
	return Schema{Name: "execution_decision", Definition: object(map[string]any{
		"execute": map[string]any{"type": "boolean"},
		"reason":  str(),
	})}
}

func VendorDetectionSchema() Schema {
	return Schema{Name: "vendor_detection", Definition: object(map[string]any{
		"vendor_name": nullable("string"),
	})}
}

// POSearchParameters is the argument schema of the po_search tool.
func POSearchParameters() map[string]any {
	return object(map[string]any{
		"pattern": map[string]any{
			"type":        "string",
			"description": "PO id or SQL LIKE pattern, e.g. %227878%",
		},
	})
}
