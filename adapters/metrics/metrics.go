// Package metrics provides Prometheus metrics collection for the
// proxy pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for browsegate.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Quota metrics
	QuotaDenials *prometheus.CounterVec

	// Transfer metrics
	BytesProxied *prometheus.CounterVec

	// Upstream metrics
	UpstreamDuration *prometheus.HistogramVec
	UpstreamErrors   prometheus.Counter

	// Rewriter metrics
	RewriteDuration prometheus.Histogram

	// Audit metrics
	AuditDrops prometheus.Counter
}

// New creates a collector registered on the default registry.
func New() *Collector {
	return newCollector(promauto.With(prometheus.DefaultRegisterer))
}

// NewWithRegistry creates a collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	return newCollector(promauto.With(reg))
}

func newCollector(factory promauto.Factory) *Collector {
	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "browsegate",
				Name:      "requests_total",
				Help:      "Total proxy requests processed",
			},
			[]string{"mode", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "browsegate",
				Name:      "request_duration_seconds",
				Help:      "Proxy request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"mode", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "browsegate",
				Name:      "requests_in_flight",
				Help:      "Requests currently being processed",
			},
		),
		QuotaDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "browsegate",
				Name:      "quota_denials_total",
				Help:      "Requests denied by the quota guard",
			},
			[]string{"reason"},
		),
		BytesProxied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "browsegate",
				Name:      "bytes_proxied_total",
				Help:      "Bytes transmitted to callers",
			},
			[]string{"mode", "content"},
		),
		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "browsegate",
				Name:      "upstream_duration_seconds",
				Help:      "Upstream fetch duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"status"},
		),
		UpstreamErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "browsegate",
				Name:      "upstream_errors_total",
				Help:      "Upstream fetch failures",
			},
		),
		RewriteDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "browsegate",
				Name:      "rewrite_duration_seconds",
				Help:      "HTML rewrite duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		AuditDrops: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "browsegate",
				Name:      "audit_log_drops_total",
				Help:      "Usage log entries dropped after write failure",
			},
		),
	}
}

// StatusLabel returns a coarse label for a status code.
func StatusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
