package metadata

import "errors"

// StoreError represents a domain error from metadata store operations.
//
// These are business errors (row not found, duplicate id) as opposed to
// infrastructure errors (connection refused). The service layer translates
// StoreError codes to gateway error kinds.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// FileID is the file id related to the error, if applicable
	FileID string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.FileID != "" {
		return e.Message + ": " + e.FileID
	}
	return e.Message
}

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// ErrNotFound indicates no matching row exists
	ErrNotFound ErrorCode = iota

	// ErrAlreadyExists indicates a row with the same file id already exists
	ErrAlreadyExists

	// ErrInvalidArgument indicates invalid parameters were provided
	ErrInvalidArgument

	// ErrConflict indicates a concurrent modification was observed
	ErrConflict

	// ErrIOError indicates an I/O or connectivity error against the backend
	ErrIOError
)

// NewNotFoundError creates a StoreError for a missing row.
func NewNotFoundError(fileID string) *StoreError {
	return &StoreError{Code: ErrNotFound, Message: "metadata not found", FileID: fileID}
}

// NewAlreadyExistsError creates a StoreError for a duplicate file id.
func NewAlreadyExistsError(fileID string) *StoreError {
	return &StoreError{Code: ErrAlreadyExists, Message: "metadata already exists", FileID: fileID}
}

// IsNotFound reports whether err is a StoreError with ErrNotFound.
func IsNotFound(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Code == ErrNotFound
}

// IsConflict reports whether err is a StoreError with ErrConflict.
func IsConflict(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Code == ErrConflict
}
