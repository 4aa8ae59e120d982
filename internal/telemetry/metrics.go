// Package telemetry wires Prometheus metrics alongside the slog-based
// structured logging every component already emits.
package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics tracks per-provider call count, duration, and retry
// rate for C2's integration client.
type ProviderMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	retries  *prometheus.CounterVec
}

// NewProviderMetrics registers the metric vectors on reg. Pass
// prometheus.NewRegistry() in tests to avoid polluting the default
// registry.
func NewProviderMetrics(reg prometheus.Registerer) *ProviderMetrics {
	m := &ProviderMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contentforge_integration_calls_total",
			Help: "Total outbound integration attempts by provider, method, endpoint, and HTTP status code (\"error\" when no response arrived).",
		}, []string{"provider", "method", "endpoint", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "contentforge_integration_call_duration_ms",
			Help:    "Outbound integration call duration in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}, []string{"provider", "method", "endpoint"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contentforge_integration_retries_total",
			Help: "Outbound integration attempts with a retriable outcome (429, 5xx, transport error or timeout), including a final attempt that is not retried.",
		}, []string{"provider", "method", "endpoint"}),
	}
	reg.MustRegister(m.calls, m.duration, m.retries)
	return m
}

// Observe records one physical HTTP attempt.
func (m *ProviderMetrics) Observe(provider, method, endpoint string, status int, durationMs int64, retried bool) {
	statusLabel := "error"
	if status != 0 {
		statusLabel = strconv.Itoa(status)
	}
	m.calls.WithLabelValues(provider, method, endpoint, statusLabel).Inc()
	m.duration.WithLabelValues(provider, method, endpoint).Observe(float64(durationMs))
	if retried {
		m.retries.WithLabelValues(provider, method, endpoint).Inc()
	}
}
