package metrics

import "time"

// ProxyMetrics observes wire-protocol proxy traffic. Pass nil to disable
// collection.
type ProxyMetrics interface {
	// ConnectionOpened increments the active-connection gauge for protocol.
	ConnectionOpened(protocol string)
	// ConnectionClosed decrements the active-connection gauge and records
	// the session duration.
	ConnectionClosed(protocol string, duration time.Duration)
	// ConnectionError counts a failed backend dial or stream error.
	ConnectionError(protocol string)
	// ObserveOperation records one client operation relayed through the
	// proxy, labeled by protocol and operation kind.
	ObserveOperation(protocol, operation string, duration time.Duration)
	// OperationBlocked counts a statement rejected by the deny policy.
	OperationBlocked(protocol, pattern string)
}

// NewProxyMetrics creates a Prometheus-backed ProxyMetrics instance, or nil
// if metrics are not enabled.
func NewProxyMetrics() ProxyMetrics {
	if !IsEnabled() || newPrometheusProxyMetrics == nil {
		return nil
	}
	return newPrometheusProxyMetrics()
}

var newPrometheusProxyMetrics func() ProxyMetrics

// RegisterProxyMetricsConstructor registers the Prometheus constructor.
// Called by pkg/metrics/prometheus during package initialization.
func RegisterProxyMetricsConstructor(constructor func() ProxyMetrics) {
	newPrometheusProxyMetrics = constructor
}
