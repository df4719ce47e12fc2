package prometheus

import (
	"time"

	"github.com/famgate/famgate/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterProxyMetricsConstructor(NewProxyMetrics)
}

// proxyMetrics is the Prometheus implementation of metrics.ProxyMetrics.
type proxyMetrics struct {
	activeConnections *prometheus.GaugeVec
	connectionsTotal  *prometheus.CounterVec
	connectionErrors  *prometheus.CounterVec
	sessionDuration   *prometheus.HistogramVec
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	blockedTotal      *prometheus.CounterVec
}

// NewProxyMetrics creates a new Prometheus-backed ProxyMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewProxyMetrics() metrics.ProxyMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &proxyMetrics{
		activeConnections: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "famgate_proxy_active_connections",
				Help: "Current number of proxied client connections by protocol",
			},
			[]string{"protocol"},
		),
		connectionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "famgate_proxy_connections_total",
				Help: "Total number of proxied client connections by protocol",
			},
			[]string{"protocol"},
		),
		connectionErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "famgate_proxy_connection_errors_total",
				Help: "Total number of failed backend dials and stream errors by protocol",
			},
			[]string{"protocol"},
		),
		sessionDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "famgate_proxy_session_duration_seconds",
				Help: "Duration of proxied sessions in seconds",
				Buckets: []float64{
					1,    // 1s - short-lived scripts
					10,   // 10s
					60,   // 1m
					300,  // 5m
					1800, // 30m - pooled connections
					3600, // 1h
				},
			},
			[]string{"protocol"},
		),
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "famgate_proxy_operations_total",
				Help: "Total number of client operations relayed by protocol and operation kind",
			},
			[]string{"protocol", "operation"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "famgate_proxy_operation_duration_milliseconds",
				Help: "Duration of relayed operations in milliseconds",
				Buckets: []float64{
					1,    // 1ms - cached lookups
					5,    // 5ms
					10,   // 10ms
					50,   // 50ms
					100,  // 100ms
					500,  // 500ms
					1000, // 1s - slow queries
					5000, // 5s
				},
			},
			[]string{"protocol"},
		),
		blockedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "famgate_proxy_operations_blocked_total",
				Help: "Total number of statements rejected by the deny policy",
			},
			[]string{"protocol", "pattern"},
		),
	}
}

func (m *proxyMetrics) ConnectionOpened(protocol string) {
	if m == nil {
		return
	}
	m.connectionsTotal.WithLabelValues(protocol).Inc()
	m.activeConnections.WithLabelValues(protocol).Inc()
}

func (m *proxyMetrics) ConnectionClosed(protocol string, duration time.Duration) {
	if m == nil {
		return
	}
	m.activeConnections.WithLabelValues(protocol).Dec()
	m.sessionDuration.WithLabelValues(protocol).Observe(duration.Seconds())
}

func (m *proxyMetrics) ConnectionError(protocol string) {
	if m == nil {
		return
	}
	m.connectionErrors.WithLabelValues(protocol).Inc()
}

func (m *proxyMetrics) ObserveOperation(protocol, operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(protocol, operation).Inc()
	m.operationDuration.WithLabelValues(protocol).Observe(duration.Seconds() * 1000)
}

func (m *proxyMetrics) OperationBlocked(protocol, pattern string) {
	if m == nil {
		return
	}
	m.blockedTotal.WithLabelValues(protocol, pattern).Inc()
}
