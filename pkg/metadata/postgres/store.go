package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/famgate/famgate/pkg/metadata"
)

// PostgresStore is the authoritative metadata.Store backed by PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	config PostgresStoreConfig
	logger *slog.Logger

	queries
}

var _ metadata.Store = (*PostgresStore)(nil)

// NewPostgresStore connects to PostgreSQL and, when AutoMigrate is set, brings
// the schema up to date before returning.
func NewPostgresStore(ctx context.Context, cfg PostgresStoreConfig, logger *slog.Logger) (*PostgresStore, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}

	if cfg.AutoMigrate {
		if err := RunMigrations(ctx, cfg.ConnectionString(), logger); err != nil {
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	pool, err := createConnectionPool(ctx, &cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("postgres metadata store ready",
		"host", cfg.Host,
		"database", cfg.Database,
		"max_conns", cfg.MaxConns)

	return &PostgresStore{
		pool:    pool,
		config:  cfg,
		logger:  logger,
		queries: queries{db: pool},
	}, nil
}

// Long-running statements are bounded server-side by the statement_timeout
// runtime parameter set at pool creation, so the read methods pass contexts
// through unchanged.

func (s *PostgresStore) FindActive(ctx context.Context, fileID, familyID string) (*metadata.FileMetadata, error) {
	return s.findActive(ctx, fileID, familyID)
}

func (s *PostgresStore) FindByID(ctx context.Context, fileID string) (*metadata.FileMetadata, error) {
	return s.findByID(ctx, fileID)
}

func (s *PostgresStore) IncrementAccessCount(ctx context.Context, fileID string, ts time.Time) error {
	return s.incrementAccessCount(ctx, fileID, ts)
}

func (s *PostgresStore) SearchActive(ctx context.Context, familyID, keyword string, paging metadata.Paging) ([]*metadata.FileMetadata, error) {
	return s.searchActive(ctx, familyID, keyword, paging)
}

func (s *PostgresStore) ListActiveByFamily(ctx context.Context, familyID string) ([]*metadata.FileMetadata, error) {
	return s.listActiveByFamily(ctx, familyID)
}

func (s *PostgresStore) ListActiveByPrefix(ctx context.Context, familyID, folderPath string) ([]*metadata.FileMetadata, error) {
	return s.listActiveByPrefix(ctx, familyID, folderPath)
}

func (s *PostgresStore) CountActiveByFamily(ctx context.Context, familyID string) (int64, error) {
	return s.countActiveByFamily(ctx, familyID)
}

func (s *PostgresStore) SumSizeByFamily(ctx context.Context, familyID string) (int64, error) {
	return s.sumSizeByFamily(ctx, familyID)
}

func (s *PostgresStore) CountByCategory(ctx context.Context, familyID string) (map[metadata.Category]int64, error) {
	return s.countByCategory(ctx, familyID)
}

func (s *PostgresStore) ListStalePending(ctx context.Context, cutoff time.Time) ([]*metadata.FileMetadata, error) {
	return s.listStalePending(ctx, cutoff)
}

// Healthy pings the database.
func (s *PostgresStore) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Close drains and closes the connection pool.
func (s *PostgresStore) Close() error {
	closeConnectionPool(s.pool, s.logger)
	return nil
}
