package metrics_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusHandler(t *testing.T) {
	c := newCollector(t)
	c.RecordRequest("GET", "/api/jobs", 200, 10*time.Millisecond)
	c.RecordRequest("GET", "/api/jobs", 500, 20*time.Millisecond)
	c.RecordCustom("jobs_scraped", 12, nil)

	rec := httptest.NewRecorder()
	c.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, `telemetry_requests_total{path="/api/jobs"} 2`)
	assert.Contains(t, body, `telemetry_request_errors_total{path="/api/jobs"} 1`)
	assert.Contains(t, body, `telemetry_custom_metric{name="jobs_scraped"} 12`)
}

func TestPrometheusHandlerEmptyCollector(t *testing.T) {
	c := newCollector(t)

	rec := httptest.NewRecorder()
	c.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
}
