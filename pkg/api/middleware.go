package api

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/famgate/famgate/internal/traceid"
	"github.com/famgate/famgate/pkg/api/auth"
	"github.com/famgate/famgate/pkg/gateway"
)

// TraceHeader is the request/response header carrying the trace id.
const TraceHeader = "X-Trace-Id"

// Context key types for request-scoped values.
type contextKey string

const (
	traceIDContextKey        contextKey = "trace_id"
	requestContextContextKey contextKey = "request_context"
)

// TraceIDFromContext retrieves the trace id assigned by TraceID middleware.
// Returns empty string if the middleware did not run.
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceIDContextKey).(string)
	return id
}

// RequestContextFrom retrieves the authenticated request identity.
// Returns nil on routes without the JWTAuth middleware.
func RequestContextFrom(ctx context.Context) *gateway.RequestContext {
	rc, _ := ctx.Value(requestContextContextKey).(*gateway.RequestContext)
	return rc
}

// TraceID echoes a valid incoming X-Trace-Id header or mints a fresh one,
// stores it in the request context, and stamps it on the response so every
// reply is correlatable even when the handler fails early.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(TraceHeader)
		if !traceid.Valid(id) {
			id = traceid.New()
		}

		w.Header().Set(TraceHeader, id)
		ctx := context.WithValue(r.Context(), traceIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken extracts the token from a Bearer Authorization header.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	return parts[1], true
}

// clientIP returns the remote address with the port stripped. RealIP
// middleware has already rewritten RemoteAddr from X-Forwarded-For when
// present, in which case there is no port to strip.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// JWTAuth validates Bearer tokens in the Authorization header and resolves
// the claims into a gateway.RequestContext stored on the request context.
// Missing or invalid tokens are rejected with 401.
func JWTAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractBearerToken(r)
			if !ok {
				writeError(w, r, gateway.E(gateway.KindAuth, "AUTH_REQUIRED", "authorization header required"))
				return
			}

			claims, err := jwtService.ValidateAccessToken(tokenString)
			if err != nil {
				writeError(w, r, gateway.Wrap(gateway.KindAuth, "AUTH_REQUIRED", "invalid or expired token", err))
				return
			}

			rc := &gateway.RequestContext{
				UserID:    claims.UserID,
				FamilyIDs: claims.FamilyIDs,
				TraceID:   TraceIDFromContext(r.Context()),
				ClientIP:  clientIP(r),
			}

			ctx := context.WithValue(r.Context(), requestContextContextKey, rc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
