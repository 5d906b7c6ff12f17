package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeLenient_POIdentification(t *testing.T) {
	raw := []byte(`{"po_id": "null", "vendor_id": "", "vendor_name": null, "confidence": "0.4", "explanation": "none"}`)
	out, changes, err := SanitizeLenient(POIdentificationSchema().Definition, raw, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, changes)

	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Nil(t, m["po_id"])
	assert.Nil(t, m["vendor_id"])
	assert.Equal(t, 0.4, m["confidence"])
	assert.NotContains(t, m, "explanation")
	assert.NoError(t, ValidateJSONAgainstSchema(POIdentificationSchema().Definition, out))
}

func TestSanitizeLenient_IntegersAndBooleans(t *testing.T) {
	raw := []byte(`{"strategy": "split", "lines": [{"po_line": "2", "amount": "(10.50)"}]}`)
	out, _, err := SanitizeLenient(LineMappingSchema().Definition, raw, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"strategy": "split", "lines": [{"po_line": 2, "amount": -10.5}]}`, string(out))

	out, _, err = SanitizeLenient(ReviewSchema().Definition, []byte(`{"execute": "TRUE", "reason": "ok"}`), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"execute": true, "reason": "ok"}`, string(out))
}

func TestSanitizeLenient_NumberToString(t *testing.T) {
	out, _, err := SanitizeLenient(InvoiceSchema().Definition, []byte(`{"invoice_number": 12345}`), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"invoice_number": "12345"}`, string(out))
}

func TestSanitizeLenient_BadJSON(t *testing.T) {
	_, _, err := SanitizeLenient(ReviewSchema().Definition, []byte(`{nope`), nil)
	assert.Error(t, err)
}

func TestParseMoney(t *testing.T) {
	cases := map[string]float64{
		"$1,200.50":  1200.5,
		"1200.5 USD": 1200.5,
		"(25.00)":    -25,
		"€ 3":        3,
		"0000012345": 12345,
	}
	for in, want := range cases {
		got, ok := parseMoney(in)
		require.True(t, ok, in)
		assert.InDelta(t, want, got, 1e-9, in)
	}
	_, ok := parseMoney("n/a")
	assert.False(t, ok)
}
