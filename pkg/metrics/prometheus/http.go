package prometheus

import (
	"strconv"
	"time"

	"github.com/famgate/famgate/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterHTTPMetricsConstructor(NewHTTPMetrics)
}

// httpMetrics is the Prometheus implementation of metrics.HTTPMetrics.
type httpMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseBytes   *prometheus.HistogramVec
}

// NewHTTPMetrics creates a new Prometheus-backed HTTPMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewHTTPMetrics() metrics.HTTPMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &httpMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "famgate_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "famgate_http_request_duration_milliseconds",
				Help: "Duration of HTTP requests in milliseconds",
				Buckets: []float64{
					5,     // 5ms - health checks
					10,    // 10ms
					50,    // 50ms - metadata lookups
					100,   // 100ms
					500,   // 500ms - validation plus storage round trip
					1000,  // 1s
					5000,  // 5s - large uploads
					30000, // 30s
				},
			},
			[]string{"method", "route"},
		),
		responseBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "famgate_http_response_bytes",
				Help: "Distribution of HTTP response sizes in bytes",
				Buckets: []float64{
					512,       // 512B - error envelopes
					4096,      // 4KB - metadata responses
					65536,     // 64KB
					1048576,   // 1MB
					10485760,  // 10MB - file downloads
					104857600, // 100MB
				},
			},
			[]string{"method", "route"},
		),
	}
}

func (m *httpMetrics) ObserveRequest(method, route string, status int, duration time.Duration, bytes int64) {
	if m == nil {
		return
	}

	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds() * 1000)

	if bytes > 0 {
		m.responseBytes.WithLabelValues(method, route).Observe(float64(bytes))
	}
}
