package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()

	m.UpstreamCall("plaid", "transactions_sync", nil)
	m.UpstreamCall("plaid", "transactions_sync", errors.New("x"))
	m.SyncApplied(3, 1, 2)
	m.HTTPRequest("GET", "/api/v1/accounts", 200)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamRequests.WithLabelValues("plaid", "transactions_sync", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamRequests.WithLabelValues("plaid", "transactions_sync", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.syncTransactions.WithLabelValues("added")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.syncTransactions.WithLabelValues("removed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/accounts", "200")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.UpstreamCall("plaid", "x", nil)
		m.SyncApplied(1, 1, 1)
		m.LLMTokens(1, 1)
		m.HTTPRequest("GET", "/", 200)
	})
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	m.LLMTokens(10, 5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "finboard_llm_tokens_total")
}
