package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/famgate/famgate/internal/logger"
	"github.com/famgate/famgate/pkg/gateway"
)

// Response represents a standard API response wrapper.
//
// All JSON API responses follow this structure for consistency:
//   - Status indicates the overall result ("ok", "error", "healthy", "unhealthy")
//   - Timestamp provides response time for debugging and caching
//   - Data contains the response payload (optional)
//   - Error contains error details when Status indicates failure (optional)
type Response struct {
	Status    string       `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Data      interface{}  `json:"data,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail carries the gateway error taxonomy to the client: the kind
// (maps 1:1 to the HTTP status), the rule id for validation failures, and
// the trace id for correlating with server logs.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
	TraceID string `json:"traceId,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
//
// The response is written with Content-Type: application/json header.
// Encoding is done to a buffer first to ensure we can return an error
// response if encoding fails (before headers are sent).
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
		http.Error(w, `{"status":"error","error":{"kind":"INTERNAL","message":"failed to encode response"}}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// okResponse creates a successful response wrapping the payload.
func okResponse(data interface{}) Response {
	return Response{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// healthyResponse creates a successful health check response.
func healthyResponse(data interface{}) Response {
	return Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// unhealthyResponse creates a failed health check response with data payload.
func unhealthyResponse(data interface{}) Response {
	return Response{
		Status:    "unhealthy",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// writeError maps a gateway error onto its HTTP status and writes the
// standard envelope. Foreign errors surface as INTERNAL without leaking
// their message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ge := gateway.AsError(err)
	if ge.TraceID == "" {
		ge.TraceID = TraceIDFromContext(r.Context())
	}

	status := ge.Kind.HTTPStatus()
	detail := &ErrorDetail{
		Kind:    ge.Kind.String(),
		Rule:    ge.Rule,
		Message: ge.Message,
		TraceID: ge.TraceID,
	}
	if ge.Kind == gateway.KindInternal {
		// Internal causes stay in the logs.
		detail.Message = "internal error"
		logger.Error("API request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"trace_id", ge.TraceID,
			"error", err,
		)
	} else {
		logger.Warn("API request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"kind", detail.Kind,
			"rule", detail.Rule,
			"trace_id", ge.TraceID,
		)
	}

	writeJSON(w, status, Response{
		Status:    "error",
		Timestamp: time.Now().UTC(),
		Error:     detail,
	})
}
