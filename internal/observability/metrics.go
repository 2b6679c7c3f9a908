package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for depot.
// Uses a custom registry — no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Artifact metrics.
	ArtifactWritesTotal   *prometheus.CounterVec
	ArtifactSearchesTotal *prometheus.CounterVec

	// Secret disclosure metrics.
	RevealsTotal       *prometheus.CounterVec
	RateLimitRejects   *prometheus.CounterVec
	AccessLogAppends   prometheus.Counter
	RevealDurationSecs prometheus.Histogram

	// Workspace metrics.
	WorkspaceOpsTotal *prometheus.CounterVec

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		ArtifactWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depot",
			Subsystem: "artifact",
			Name:      "writes_total",
			Help:      "Total artifact create/update/delete operations.",
		}, []string{"kind", "operation", "status"}),

		ArtifactSearchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depot",
			Subsystem: "artifact",
			Name:      "searches_total",
			Help:      "Total artifact search requests.",
		}, []string{"scope", "status"}),

		RevealsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depot",
			Subsystem: "secret",
			Name:      "reveals_total",
			Help:      "Total secret reveal attempts.",
		}, []string{"status"}),

		RateLimitRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depot",
			Subsystem: "ratelimit",
			Name:      "rejects_total",
			Help:      "Total requests rejected by a rate limiter.",
		}, []string{"limiter"}),

		AccessLogAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "depot",
			Subsystem: "secret",
			Name:      "access_log_appends_total",
			Help:      "Total access-log rows written.",
		}),

		RevealDurationSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "depot",
			Subsystem: "secret",
			Name:      "reveal_duration_seconds",
			Help:      "Secret reveal duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		WorkspaceOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depot",
			Subsystem: "workspace",
			Name:      "operations_total",
			Help:      "Total workspace lifecycle operations.",
		}, []string{"operation", "status"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depot",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "depot",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "depot",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),
	}

	// Register all collectors.
	reg.MustRegister(
		m.ArtifactWritesTotal,
		m.ArtifactSearchesTotal,
		m.RevealsTotal,
		m.RateLimitRejects,
		m.AccessLogAppends,
		m.RevealDurationSecs,
		m.WorkspaceOpsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}
