package http

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the process registry so tests can build isolated servers
// without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	decisions       *prometheus.CounterVec
	refreshTotal    *prometheus.CounterVec
	ledgerAppends   prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_decisions_total",
			Help: "Verification decisions by status and not-verified reason.",
		}, []string{"status", "reason"}),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revocation_refreshes_total",
			Help: "Revocation refresh runs by outcome.",
		}, []string{"outcome"}),
		ledgerAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_appends_total",
			Help: "Ledger entries accepted through the admin surface.",
		}),
	}
	registry.MustRegister(m.requestDuration, m.decisions, m.refreshTotal, m.ledgerAppends)
	return m
}

func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestDuration.
			WithLabelValues(route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ObserveDecision(status, reason string) {
	if reason == "" {
		reason = "none"
	}
	m.decisions.WithLabelValues(status, reason).Inc()
}

func (m *Metrics) ObserveRefresh(failed bool) {
	outcome := "ok"
	if failed {
		outcome = "partial"
	}
	m.refreshTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLedgerAppend() {
	m.ledgerAppends.Inc()
}
