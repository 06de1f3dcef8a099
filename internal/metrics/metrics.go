package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 遥测处理结果
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// 分析结果
const (
	SummaryOK       = "ok"
	SummaryNotFound = "not_found"
	SummaryError    = "error"
)

// Metrics Prometheus 指标，nil 接收者上的方法均为空操作
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	ingestTotal       *prometheus.CounterVec
	dualWriteDuration *prometheus.HistogramVec
	summariesTotal    *prometheus.CounterVec
	notifyErrors      *prometheus.CounterVec
	faultTransitions  *prometheus.CounterVec
}

// New 创建并注册指标到独立的 registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_ingested_total",
			Help: "Telemetry readings received by kind and outcome.",
		}, []string{"kind", "outcome"}),
		dualWriteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "telemetry_dual_write_duration_seconds",
			Help:    "Duration of the history insert plus status upsert transaction.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		summariesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_summaries_total",
			Help: "Performance summaries computed by outcome.",
		}, []string{"outcome"}),
		notifyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "status_notify_errors_total",
			Help: "Failed post-commit status notifications by notifier.",
		}, []string{"notifier"}),
		faultTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vehicle_health_transitions_total",
			Help: "Vehicle efficiency health state transitions by target state.",
		}, []string{"state"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.ingestTotal,
		m.dualWriteDuration,
		m.summariesTotal,
		m.notifyErrors,
		m.faultTransitions,
	)

	return m
}

// Middleware 记录请求数与耗时，未匹配路由统一记为 "unmatched"
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequest(route, c.Writer.Status(), time.Since(start))
	}
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) Ingest(kind, outcome string) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) DualWrite(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.dualWriteDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) Summary(outcome string) {
	if m == nil {
		return
	}
	m.summariesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NotifyError(notifier string) {
	if m == nil {
		return
	}
	m.notifyErrors.WithLabelValues(notifier).Inc()
}

func (m *Metrics) HealthTransition(state string) {
	if m == nil {
		return
	}
	m.faultTransitions.WithLabelValues(state).Inc()
}
