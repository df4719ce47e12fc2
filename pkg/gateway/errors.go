// Package gateway defines the error model and request identity shared by the
// validator, the processing pipeline, the storage service, and the HTTP layer.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes an error surfaced by the gateway. Each kind maps to a
// fixed HTTP status.
type Kind int

const (
	KindValidation Kind = iota
	KindAuth
	KindNotFound
	KindPermissionDenied
	KindConflict
	KindAdapterIO
	KindTimeout
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindAuth:
		return "AUTH"
	case KindNotFound:
		return "NOT_FOUND"
	case KindPermissionDenied:
		return "PERMISSION_DENIED"
	case KindConflict:
		return "CONFLICT"
	case KindAdapterIO:
		return "ADAPTER_IO"
	case KindTimeout:
		return "TIMEOUT"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus returns the response status for this error kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindAdapterIO:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is the gateway's surfaced error. Rule carries the validation rule id
// (AUTH_REQUIRED, FILE_TOO_LARGE, ...) or a coarse operation failure code
// such as UPLOAD_FAILED. TraceID is filled in by the orchestrator before the
// error leaves the service layer.
type Error struct {
	Kind    Kind
	Rule    string
	Message string
	TraceID string
	Err     error
}

func (e *Error) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Rule, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs a gateway error.
func E(kind Kind, rule, message string) *Error {
	return &Error{Kind: kind, Rule: rule, Message: message}
}

// Wrap constructs a gateway error wrapping an underlying cause.
func Wrap(kind Kind, rule, message string, err error) *Error {
	return &Error{Kind: kind, Rule: rule, Message: message, Err: err}
}

// KindOf extracts the kind from err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}

// AsError converts err to a *Error, wrapping foreign errors as INTERNAL.
func AsError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return &Error{Kind: KindInternal, Message: err.Error(), Err: err}
}
