package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/famgate/famgate/pkg/metadata"
)

// WithTx runs fn inside a single database transaction. Any error from fn
// rolls back every write issued through the Tx, including stats upserts.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx metadata.Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapPgError(err, "WithTx", "")
	}
	defer func() {
		if rbErr := pgtx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("transaction rollback failed", "error", rbErr)
		}
	}()

	if err := fn(&queries{db: pgtx}); err != nil {
		return err
	}

	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", mapPgError(err, "WithTx", ""))
	}
	return nil
}
