package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestMetrics(t *testing.T) *PrometheusMetrics {
	t.Helper()
	pm, err := NewPrometheusMetrics(nil, nil)
	require.NoError(t, err)
	return pm
}

func TestRecordForecastMetrics(t *testing.T) {
	pm := createTestMetrics(t)

	pm.RecordRequest("baseline", "success", 120*time.Millisecond)
	pm.RecordRequest("baseline", "success", 80*time.Millisecond)
	pm.RecordRequest("auto", "error", time.Millisecond)
	pm.RecordDegradation("statistical", "diverged")
	pm.RecordSelection("boosted")

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.requestsTotal.WithLabelValues("baseline", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.requestsTotal.WithLabelValues("auto", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.degradationsTotal.WithLabelValues("statistical", "diverged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.selectionsTotal.WithLabelValues("boosted")))
}

func TestCacheMetrics(t *testing.T) {
	pm := createTestMetrics(t)

	pm.ObserveCacheLookup(true)
	pm.ObserveCacheLookup(false)
	pm.ObserveCacheLookup(false)
	pm.RecordCacheSweep(3)
	pm.RecordCacheSweep(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.cacheLookupsTotal.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.cacheLookupsTotal.WithLabelValues("miss")))
	assert.Equal(t, 3.0, testutil.ToFloat64(pm.cacheEvictedTotal))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var pm *PrometheusMetrics

	assert.NotPanics(t, func() {
		pm.RecordHTTPRequest("GET", "/health", "200", time.Millisecond)
		pm.RecordRequest("baseline", "success", time.Second)
		pm.RecordDegradation("boosted", "too_few_rows")
		pm.RecordSelection("baseline")
		pm.ObserveCacheLookup(true)
		pm.RecordCacheSweep(1)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	pm := createTestMetrics(t)
	pm.RecordRequest("boosted", "success", time.Second)
	pm.RecordHTTPRequest("POST", "/forecast", "200", time.Second)

	rec := httptest.NewRecorder()
	pm.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `forecast_requests_total{status="success",strategy="boosted"} 1`))
	assert.Contains(t, body, "forecast_duration_seconds")
	assert.Contains(t, body, "http_requests_total")
}
