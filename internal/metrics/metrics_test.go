package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.HTTPRequest("/x", 200, time.Millisecond)
		m.Ingest("meter", OutcomeAccepted)
		m.DualWrite("meter", time.Millisecond)
		m.Summary(SummaryOK)
		m.NotifyError("redis")
		m.HealthTransition("faulted")
	})
	assert.NotNil(t, m.Handler())
}

func TestCounters(t *testing.T) {
	m := New()

	m.Ingest("meter", OutcomeAccepted)
	m.Ingest("meter", OutcomeAccepted)
	m.Ingest("vehicle", OutcomeRejected)
	m.Summary(SummaryNotFound)
	m.NotifyError("ws")
	m.HealthTransition("faulted")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ingestTotal.WithLabelValues("meter", OutcomeAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestTotal.WithLabelValues("vehicle", OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.summariesTotal.WithLabelValues(SummaryNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifyErrors.WithLabelValues("ws")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.faultTransitions.WithLabelValues("faulted")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/v1/status/meter/:meterId", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/status/meter/M1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/v1/status/meter/:meterId", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("unmatched", "404")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "http_requests_total"))
}
