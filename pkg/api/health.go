package api

import (
	"net/http"

	"github.com/famgate/famgate/pkg/metadata"
	"github.com/famgate/famgate/pkg/storage"
)

// HealthHandler serves the liveness/readiness probes and the detailed
// backend health report.
type HealthHandler struct {
	store    metadata.Store
	adapters *storage.Registry
}

// NewHealthHandler creates a health handler. store and adapters may be nil
// for basic liveness only (e.g. in tests).
func NewHealthHandler(store metadata.Store, adapters *storage.Registry) *HealthHandler {
	return &HealthHandler{store: store, adapters: adapters}
}

// backendHealth is one entry in the detailed health report.
type backendHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Liveness handles GET /health. It reports that the process is up; it never
// touches backends so a broken store cannot get the pod restarted.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "famgate",
	}))
}

// Readiness handles GET /health/ready. Ready means the metadata store and
// the active storage adapter both answer.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	report := h.collect(r)
	for _, b := range report {
		if !b.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse(report))
			return
		}
	}
	writeJSON(w, http.StatusOK, healthyResponse(report))
}

// Stores handles GET /health/stores: the same report as readiness but always
// with a 200 so dashboards can read partial failures.
func (h *HealthHandler) Stores(w http.ResponseWriter, r *http.Request) {
	report := h.collect(r)
	healthy := true
	for _, b := range report {
		if !b.Healthy {
			healthy = false
			break
		}
	}
	if healthy {
		writeJSON(w, http.StatusOK, healthyResponse(report))
		return
	}
	writeJSON(w, http.StatusOK, unhealthyResponse(report))
}

// collect probes the metadata store and every registered adapter.
func (h *HealthHandler) collect(r *http.Request) []backendHealth {
	ctx := r.Context()
	var report []backendHealth

	if h.store != nil {
		entry := backendHealth{Name: "metadata", Healthy: true}
		if err := h.store.Healthy(ctx); err != nil {
			entry.Healthy = false
			entry.Error = err.Error()
		}
		report = append(report, entry)
	}

	if h.adapters != nil {
		for _, a := range h.adapters.All() {
			entry := backendHealth{Name: "storage:" + a.Type(), Healthy: true}
			if err := a.Healthy(ctx); err != nil {
				entry.Healthy = false
				entry.Error = err.Error()
			}
			report = append(report, entry)
		}
	}

	return report
}
