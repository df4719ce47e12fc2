// Package api provides the famgate REST surface: file storage endpoints,
// health probes and the metrics exporter.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/famgate/famgate/internal/logger"
	"github.com/famgate/famgate/pkg/api/auth"
	"github.com/famgate/famgate/pkg/metadata"
	"github.com/famgate/famgate/pkg/metrics"
	"github.com/famgate/famgate/pkg/service"
	"github.com/famgate/famgate/pkg/storage"
)

// Deps bundles what the router needs. Store and Adapters feed the health
// report; Service serves every file endpoint.
type Deps struct {
	Service  *service.Service
	JWT      *auth.JWTService
	Store    metadata.Store
	Adapters *storage.Registry
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Trace id echo/minting with the X-Trace-Id response header
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - GET /health/stores - Detailed backend health
//   - GET /metrics - Prometheus exporter
//   - POST /api/v1/storage/files/upload - Multipart upload
//   - GET /api/v1/storage/files - Folder listing
//   - GET /api/v1/storage/files/search - Keyword search
//   - GET /api/v1/storage/files/download/{fileId} - Payload stream
//   - GET /api/v1/storage/files/access-url/{fileId} - Time-bounded URL
//   - GET /api/v1/storage/files/{fileId} - Metadata row
//   - PUT /api/v1/storage/files/{fileId} - Payload overwrite (owner only)
//   - DELETE /api/v1/storage/files/{fileId} - Soft delete (owner only)
//   - GET /api/v1/storage/stats/{familyId} - Family counters
//   - POST /api/v1/storage/stats/{familyId}/recompute - Forced recount
//   - GET /api/v1/storage/admin/orphans - Stale pending rows
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TraceID)
	r.Use(requestLogger)
	r.Use(requestMetrics(metrics.NewHTTPMetrics()))
	r.Use(middleware.Recoverer)

	// Health and metrics - unauthenticated, no request timeout needed
	healthHandler := NewHealthHandler(deps.Store, deps.Adapters)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
		r.Get("/stores", healthHandler.Stores)
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	fileHandler := NewFileHandler(deps.Service)

	// API v1 routes - authenticated. Downloads and uploads stream within the
	// server's read/write timeouts; the 30s chi timeout only guards the
	// metadata-bound endpoints.
	r.Route("/api/v1/storage", func(r chi.Router) {
		r.Use(JWTAuth(deps.JWT))

		r.Route("/files", func(r chi.Router) {
			// Streaming endpoints - no per-request timeout
			r.Post("/upload", fileHandler.Upload)
			r.Get("/download/{fileId}", fileHandler.Download)
			r.Put("/{fileId}", fileHandler.Modify)

			// Metadata-bound endpoints
			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(30 * time.Second))

				r.Get("/", fileHandler.List)
				r.Get("/search", fileHandler.Search)
				r.Get("/access-url/{fileId}", fileHandler.AccessURL)
				r.Get("/{fileId}", fileHandler.Metadata)
				r.Delete("/{fileId}", fileHandler.Delete)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Route("/stats", func(r chi.Router) {
				r.Get("/{familyId}", fileHandler.Stats)
				r.Post("/{familyId}/recompute", fileHandler.RecomputeStats)
			})

			r.Get("/admin/orphans", fileHandler.Orphans)
		})
	})

	return r
}

// requestMetrics records one observation per request, labeled with the chi
// route pattern so path parameters do not explode metric cardinality. With
// nil metrics the middleware is a passthrough.
func requestMetrics(m metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(r.Method, route, ww.Status(), time.Since(start), int64(ww.BytesWritten()))
		})
	}
}

// isHealthPath returns true if the request path is a healthcheck endpoint.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/") || path == "/metrics"
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
//   - Healthcheck and metrics requests are logged at DEBUG level to reduce noise
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"trace_id", TraceIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logArgs := []any{
			"request_id", requestID,
			"trace_id", TraceIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}

		// Log healthcheck requests at DEBUG to avoid polluting logs in k8s
		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
