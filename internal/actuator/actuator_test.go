package actuator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalops/apbots/constants"
	"github.com/fiscalops/apbots/internal/entity"
)

func TestClassify(t *testing.T) {
	alert := "Invalid PO"
	cases := []struct {
		name string
		res  entity.ActuatorResult
		want constants.Outcome
	}{
		{"numeric", entity.ActuatorResult{Identifier: "00123456"}, constants.OutcomeSuccess},
		{"duplicate flag", entity.ActuatorResult{Identifier: "00123456", Duplicate: true}, constants.OutcomeDuplicate},
		{"duplicate id", entity.ActuatorResult{Identifier: "Duplicate"}, constants.OutcomeDuplicate},
		{"invalid po", entity.ActuatorResult{Identifier: "Invalid PO", Alert: &alert}, constants.OutcomeFailure},
		{"out of balance", entity.ActuatorResult{Identifier: "Out of Balance", OutOfBalance: true}, constants.OutcomeFailure},
		{"dry run", entity.ActuatorResult{Identifier: constants.IdentifierDryRun}, constants.OutcomeFailure},
		{"empty", entity.ActuatorResult{}, constants.OutcomeFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.res))
		})
	}
}

func TestIsNumericIdentifier(t *testing.T) {
	assert.True(t, IsNumericIdentifier("42"))
	assert.True(t, IsNumericIdentifier(" 0001 "))
	assert.False(t, IsNumericIdentifier(""))
	assert.False(t, IsNumericIdentifier("12a"))
	assert.False(t, IsNumericIdentifier("-12"))
}

func TestDryRun_RecordsPlans(t *testing.T) {
	d := NewDryRun()
	res, err := d.Submit(context.Background(), entity.VoucherEntryPlan{AttachmentPath: "a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, constants.IdentifierDryRun, res.Identifier)
	require.Len(t, d.Plans(), 1)
	assert.Equal(t, "a.pdf", d.Plans()[0].AttachmentPath)
}

func TestNew_EmptyURLIsDryRun(t *testing.T) {
	_, ok := New("", 0, nil).(*DryRun)
	assert.True(t, ok)
}

func TestHTTPActuator_Submit(t *testing.T) {
	var got entity.VoucherEntryPlan
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"identifier":"00098765","duplicate":false,"out_of_balance":false,"alert":null}`))
	}))
	defer srv.Close()

	a := NewHTTPActuator(srv.URL, time.Second, nil)
	res, err := a.Submit(context.Background(), entity.VoucherEntryPlan{
		PO:       entity.PurchaseOrder{POID: "227878"},
		TestMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "00098765", res.Identifier)
	assert.Equal(t, constants.OutcomeSuccess, Classify(res))
	assert.Equal(t, "227878", got.PO.POID)
	assert.True(t, got.TestMode)
}

func TestHTTPActuator_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "form crashed", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPActuator(srv.URL, time.Second, nil).Submit(context.Background(), entity.VoucherEntryPlan{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
