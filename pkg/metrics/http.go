package metrics

import "time"

// HTTPMetrics observes API requests. Pass nil to disable collection.
type HTTPMetrics interface {
	// ObserveRequest records one completed request. route is the chi route
	// pattern, not the raw path, to keep cardinality bounded.
	ObserveRequest(method, route string, status int, duration time.Duration, bytes int64)
}

// NewHTTPMetrics creates a Prometheus-backed HTTPMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// callers should pass through so collection costs nothing.
func NewHTTPMetrics() HTTPMetrics {
	if !IsEnabled() || newPrometheusHTTPMetrics == nil {
		return nil
	}
	return newPrometheusHTTPMetrics()
}

// newPrometheusHTTPMetrics is implemented in pkg/metrics/prometheus.
// The indirection avoids an import cycle while keeping the API clean.
var newPrometheusHTTPMetrics func() HTTPMetrics

// RegisterHTTPMetricsConstructor registers the Prometheus constructor.
// Called by pkg/metrics/prometheus during package initialization.
func RegisterHTTPMetricsConstructor(constructor func() HTTPMetrics) {
	newPrometheusHTTPMetrics = constructor
}

// ObserveRequest records a request if m is non-nil.
func ObserveRequest(m HTTPMetrics, method, route string, status int, duration time.Duration, bytes int64) {
	if m != nil {
		m.ObserveRequest(method, route, status, duration, bytes)
	}
}
