// Package metrics defines the observability interfaces for the gateway and
// the registry gate. Interfaces are optional everywhere: a nil metrics
// value disables collection with zero overhead. The Prometheus
// implementations live in pkg/metrics/prometheus and register themselves
// via the constructor hooks below.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registryMu sync.RWMutex
	registry   *prometheus.Registry
)

// InitRegistry enables metrics collection. Safe to call once at startup
// before any New*Metrics constructor runs.
func InitRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	if registry != nil {
		return
	}
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry != nil
}

// GetRegistry returns the process registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

// Handler returns the exporter endpoint handler. When metrics are disabled
// it serves an empty exposition rather than 404 so probes stay green.
func Handler() http.Handler {
	registryMu.RLock()
	reg := registry
	registryMu.RUnlock()

	if reg == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
