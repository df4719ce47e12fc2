// Package audit defines the proxy audit trail: one record per recognized
// wire operation or connection event, emitted through the structured logger.
package audit

import (
	"log/slog"
	"time"
)

// Event classifies what happened.
type Event string

const (
	// EventOperation is a recognized wire operation that was forwarded.
	EventOperation Event = "OPERATION"
	// EventDangerousOperationBlocked is a denied operation: not forwarded,
	// the client received a protocol-native error and was disconnected.
	EventDangerousOperationBlocked Event = "DANGEROUS_OPERATION_BLOCKED"
	// EventConnectionOpened marks a paired client/backend session start.
	EventConnectionOpened Event = "CONNECTION_OPENED"
	// EventConnectionClosed marks a session end.
	EventConnectionClosed Event = "CONNECTION_CLOSED"
	// EventConnectionError is a backend failure at open time or mid-stream.
	EventConnectionError Event = "CONNECTION_ERROR"
)

// Risk grades the severity of a record.
type Risk string

const (
	RiskLow    Risk = "LOW"
	RiskMedium Risk = "MEDIUM"
	RiskHigh   Risk = "HIGH"
)

// Result is the outcome of the audited operation.
type Result string

const (
	ResultOK      Result = "OK"
	ResultBlocked Result = "BLOCKED"
	ResultError   Result = "ERROR"
)

// Record is one audit entry. Zero-valued fields are omitted from the log
// line; Duration is filled on completion for operations that span a
// request/response cycle.
type Record struct {
	Time     time.Time
	Event    Event
	Risk     Risk
	Protocol string

	FamilyID string
	ClientIP string
	User     string
	Database string

	// Operation is the protocol-level operation kind (QUERY, PARSE,
	// TERMINATE, the redis command name, ...).
	Operation string
	// Target is the object the operation acts on when the inspector can
	// name one (table, database, key).
	Target string
	// Statement is a bounded snippet of the inspected statement.
	Statement string

	Duration time.Duration
	Result   Result
	Detail   string
}

// maxStatementLen bounds the SQL snippet carried in records and logs.
const maxStatementLen = 256

// Snippet truncates a statement for inclusion in a record.
func Snippet(stmt string) string {
	if len(stmt) <= maxStatementLen {
		return stmt
	}
	return stmt[:maxStatementLen] + "..."
}

// Recorder consumes audit records. Implementations must be safe for
// concurrent use from every proxy connection goroutine.
type Recorder interface {
	Emit(rec *Record)
}

// LogRecorder writes records to a structured logger. Blocked operations and
// connection errors log at WARN; the rest at INFO.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder creates a recorder writing to the given logger.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Emit(rec *Record) {
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}

	args := []any{
		"event", string(rec.Event),
		"risk", string(rec.Risk),
		"protocol", rec.Protocol,
		"client_ip", rec.ClientIP,
	}
	if rec.FamilyID != "" {
		args = append(args, "family_id", rec.FamilyID)
	}
	if rec.User != "" {
		args = append(args, "user", rec.User)
	}
	if rec.Database != "" {
		args = append(args, "database", rec.Database)
	}
	if rec.Operation != "" {
		args = append(args, "operation", rec.Operation)
	}
	if rec.Target != "" {
		args = append(args, "target", rec.Target)
	}
	if rec.Statement != "" {
		args = append(args, "statement", Snippet(rec.Statement))
	}
	if rec.Duration > 0 {
		args = append(args, "duration", rec.Duration.String())
	}
	if rec.Result != "" {
		args = append(args, "result", string(rec.Result))
	}
	if rec.Detail != "" {
		args = append(args, "detail", rec.Detail)
	}

	switch rec.Event {
	case EventDangerousOperationBlocked, EventConnectionError:
		r.logger.Warn("proxy audit", args...)
	default:
		r.logger.Info("proxy audit", args...)
	}
}

// NopRecorder discards every record. Used in tests and when audit is
// disabled by configuration.
type NopRecorder struct{}

func (NopRecorder) Emit(*Record) {}
