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

// Loan lifecycle events counted by LoanEvent.
const (
	LoanCreated = "created"
	LoanClosed  = "closed"
	LoanDeleted = "deleted"
)

// Metrics owns a private registry so tests can build as many as they like.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	loanEvents      *prometheus.CounterVec
	reconcileRepair prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lending_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"method", "route", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lending_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		loanEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lending_loan_events_total",
				Help: "Loan lifecycle transitions",
			},
			[]string{"event"},
		),
		reconcileRepair: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lending_reconcile_repairs_total",
			Help: "Equipment rows whose status was repaired by reconciliation",
		}),
	}
	registry.MustRegister(m.requests, m.latency, m.loanEvents, m.reconcileRepair)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) LoanEvent(event string) {
	if m == nil {
		return
	}
	m.loanEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ReconcileRepaired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reconcileRepair.Add(float64(n))
}
