package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestHandlerExposesCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))

	Documents.WithLabelValues("voucher", "duplicate").Inc()
	ObserveStage("ocr", time.Now().Add(-time.Second))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `apbots_documents_total{bot="voucher",outcome="duplicate"}`)
	assert.Contains(t, rec.Body.String(), `apbots_stage_duration_seconds_count{stage="ocr"}`)
}
