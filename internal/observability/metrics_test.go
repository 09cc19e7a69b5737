package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	for _, ns := range []string{"custom", ""} {
		m := NewMetrics(ns)
		assert.NotNil(t, m.requestsTotal)
		assert.NotNil(t, m.requestDuration)
		assert.NotNil(t, m.Registry())
	}
}

func TestMetrics_RecordRequest(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test")
	m.RecordRequest(http.MethodGet, "social", http.StatusOK, 20*time.Millisecond)
	m.RecordRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "social", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", UnmatchedService, "404")))
}

func TestMetrics_ActiveRequests(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test")
	m.IncActiveRequests()
	m.IncActiveRequests()
	m.DecActiveRequests()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeRequests))
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test")
	m.SetBuildInfo("1.0.0", "abc", "now")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_build_info")
}
