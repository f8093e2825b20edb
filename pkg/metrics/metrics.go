// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gin-gonic/gin"
)

// Metrics holds the service collectors
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	PaymentEventsTotal         *prometheus.CounterVec
	ValuationRunsTotal         prometheus.Counter
	ValuationPositionsAdvanced prometheus.Counter
	PositionsMaturedTotal      prometheus.Counter
	WSClientsConnected         prometheus.Gauge
}

// New creates and registers the service collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, path and status",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and path",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		PaymentEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_events_total",
			Help: "Payment events processed by channel and outcome",
		}, []string{"channel", "outcome"}),
		ValuationRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "valuation_runs_total",
			Help: "Completed valuation scheduler runs",
		}),
		ValuationPositionsAdvanced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "valuation_positions_advanced_total",
			Help: "Positions whose value was advanced by the scheduler",
		}),
		PositionsMaturedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "positions_matured_total",
			Help: "Positions settled at maturity",
		}),
		WSClientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_clients_connected",
			Help: "Currently connected realtime clients",
		}),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PaymentEventsTotal,
		m.ValuationRunsTotal,
		m.ValuationPositionsAdvanced,
		m.PositionsMaturedTotal,
		m.WSClientsConnected,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware records request counts and latency per route
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
