package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/famgate/famgate/pkg/metadata"
)

// mapPgError maps PostgreSQL errors to metadata store errors.
func mapPgError(err error, operation, fileID string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return &metadata.StoreError{
			Code:    metadata.ErrNotFound,
			Message: fmt.Sprintf("%s: not found", operation),
			FileID:  fileID,
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgErrorCode(pgErr, operation, fileID)
	}

	return &metadata.StoreError{
		Code:    metadata.ErrIOError,
		Message: fmt.Sprintf("%s: %v", operation, err),
		FileID:  fileID,
	}
}

// mapPgErrorCode maps PostgreSQL error codes to metadata store errors.
// See https://www.postgresql.org/docs/current/errcodes-appendix.html
func mapPgErrorCode(pgErr *pgconn.PgError, operation, fileID string) error {
	switch pgErr.Code {
	// 23505: unique_violation
	case "23505":
		return &metadata.StoreError{
			Code:    metadata.ErrAlreadyExists,
			Message: fmt.Sprintf("%s: already exists", operation),
			FileID:  fileID,
		}

	// 40001: serialization_failure, 40P01: deadlock_detected
	case "40001", "40P01":
		return &metadata.StoreError{
			Code:    metadata.ErrConflict,
			Message: fmt.Sprintf("%s: concurrent modification", operation),
			FileID:  fileID,
		}

	// 23514: check_violation (stats counters bounded at zero)
	case "23514":
		return &metadata.StoreError{
			Code:    metadata.ErrInvalidArgument,
			Message: fmt.Sprintf("%s: constraint violated: %s", operation, pgErr.ConstraintName),
			FileID:  fileID,
		}

	default:
		return &metadata.StoreError{
			Code:    metadata.ErrIOError,
			Message: fmt.Sprintf("%s: %s (%s)", operation, pgErr.Message, pgErr.Code),
			FileID:  fileID,
		}
	}
}
