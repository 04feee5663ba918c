package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.RequestsTotal.WithLabelValues("GET", "/api/clients", "200").Inc()
	m.SchedulerRuns.WithLabelValues("ok").Add(2)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.SchedulerRuns.WithLabelValues("ok")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `liftsuite_http_requests_total{method="GET",route="/api/clients",status="200"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewIsIndependent(t *testing.T) {
	a := New()
	b := New()
	a.LoginAttempts.WithLabelValues("ok").Inc()
	assert.Equal(t, float64(0), testutil.ToFloat64(b.LoginAttempts.WithLabelValues("ok")))
}
