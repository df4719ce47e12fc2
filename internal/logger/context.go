package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging context
type LogContext struct {
	TraceID   string    // gateway trace id (tr-...)
	Operation string    // file operation name (UPLOAD, DOWNLOAD, ...)
	FamilyID  string    // tenant family id
	UserID    string    // authenticated user id
	ClientIP  string    // client IP address (without port)
	StartTime time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// appendContextFields appends set LogContext fields to the given args slice
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	if lc.TraceID != "" {
		args = append(args, KeyTraceID, lc.TraceID)
	}
	if lc.Operation != "" {
		args = append(args, KeyOperation, lc.Operation)
	}
	if lc.FamilyID != "" {
		args = append(args, KeyFamilyID, lc.FamilyID)
	}
	if lc.UserID != "" {
		args = append(args, KeyUserID, lc.UserID)
	}
	if lc.ClientIP != "" {
		args = append(args, KeyClientIP, lc.ClientIP)
	}
	if !lc.StartTime.IsZero() {
		args = append(args, KeyDuration, time.Since(lc.StartTime).String())
	}

	return args
}
