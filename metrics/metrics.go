// Package metrics holds the Prometheus collectors for the store and the HTTP
// API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a set of collectors registered on one registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	// OperationsTotal counts store operations by name and outcome.
	OperationsTotal *prometheus.CounterVec
	// OperationDuration is store operation latency.
	OperationDuration *prometheus.HistogramVec
	// CommitsTotal counts commits by trigger (manual or auto).
	CommitsTotal *prometheus.CounterVec
	// RequestTotal counts HTTP requests.
	RequestTotal *prometheus.CounterVec
	// RequestDuration is HTTP request latency.
	RequestDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		OperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dblite_operations_total",
				Help: "Total number of store operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dblite_operation_duration_seconds",
				Help:    "Store operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CommitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dblite_commits_total",
				Help: "Total number of commits",
			},
			[]string{"trigger"},
		),
		RequestTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dblite_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dblite_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// ObserveOp records one store operation that started at start.
func (m *Metrics) ObserveOp(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.OperationsTotal.WithLabelValues(op, status).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Commit records a commit. auto is true when the autocommit policy fired.
func (m *Metrics) Commit(auto bool) {
	if m == nil {
		return
	}
	trigger := "manual"
	if auto {
		trigger = "auto"
	}
	m.CommitsTotal.WithLabelValues(trigger).Inc()
}

// ObserveRequest records one HTTP request. path should be the route pattern,
// not the request path.
func (m *Metrics) ObserveRequest(method, path string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.RequestTotal.WithLabelValues(method, path, http.StatusText(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
}

// Registry exposes the underlying registry, for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
