package metadata

import (
	"context"
	"time"
)

// Paging bounds a search result set.
type Paging struct {
	Limit  int
	Offset int
}

// DefaultPaging is applied when a caller passes a zero Paging.
var DefaultPaging = Paging{Limit: 100}

// Writer holds the mutation and stats operations that are valid both directly
// on a Store and inside a transaction. Statistics writes ride in the same
// transaction as the metadata write they belong to.
type Writer interface {
	// Save inserts a new row, setting CreateTime and UpdateTime.
	// Returns ErrAlreadyExists if the file id is taken.
	Save(ctx context.Context, m *FileMetadata) error

	// Update rewrites an existing row and touches UpdateTime.
	// Returns ErrNotFound if the file id does not exist.
	Update(ctx context.Context, m *FileMetadata) error

	// SoftDelete marks a row deleted and sets UpdateTime to ts.
	// The row is retained for audit; it disappears from user-facing queries.
	SoftDelete(ctx context.Context, fileID string, ts time.Time) error

	// Remove hard-deletes a row. Only used during upload rollback to clear
	// reserved pending rows; the core never hard-deletes finalized rows.
	Remove(ctx context.Context, fileID string) error

	// GetStats returns the stats row for a family, or ErrNotFound.
	GetStats(ctx context.Context, familyID string) (*FamilyStorageStats, error)

	// PutStats upserts the stats row for a family.
	PutStats(ctx context.Context, s *FamilyStorageStats) error

	// Aggregate re-aggregates counters over active rows of a family.
	// This is the authoritative source for stats recompute.
	Aggregate(ctx context.Context, familyID string) (*FamilyAggregate, error)
}

// Tx is the view of a store inside a transaction. If the closure passed to
// WithTx returns an error, every Tx write is rolled back.
type Tx interface {
	Writer
}

// Store is the durable metadata backend. PostgreSQL is the authoritative
// implementation; the memory implementation serves tests and single-node
// development.
type Store interface {
	Writer

	// FindActive returns the row for fileID only if it is finalized, not
	// soft-deleted, and belongs to familyID. Returns ErrNotFound otherwise.
	FindActive(ctx context.Context, fileID, familyID string) (*FileMetadata, error)

	// FindByID returns the row regardless of family, deletion or status.
	// Used for ownership checks and orphan detection.
	FindByID(ctx context.Context, fileID string) (*FileMetadata, error)

	// IncrementAccessCount atomically bumps AccessCount and sets
	// LastAccessTime to ts.
	IncrementAccessCount(ctx context.Context, fileID string, ts time.Time) error

	// SearchActive matches keyword case-insensitively against original name,
	// description and tags of active rows, sorted by UploadTime descending.
	SearchActive(ctx context.Context, familyID, keyword string, paging Paging) ([]*FileMetadata, error)

	// ListActiveByFamily returns all active rows of a family, sorted by
	// UploadTime descending.
	ListActiveByFamily(ctx context.Context, familyID string) ([]*FileMetadata, error)

	// ListActiveByPrefix returns active rows whose FolderPath equals
	// folderPath or is a strict extension of it.
	ListActiveByPrefix(ctx context.Context, familyID, folderPath string) ([]*FileMetadata, error)

	// CountActiveByFamily returns the number of active rows for a family.
	CountActiveByFamily(ctx context.Context, familyID string) (int64, error)

	// SumSizeByFamily returns the total size of active rows for a family.
	SumSizeByFamily(ctx context.Context, familyID string) (int64, error)

	// CountByCategory returns live file counts grouped by category.
	CountByCategory(ctx context.Context, familyID string) (map[Category]int64, error)

	// ListStalePending returns pending rows created before cutoff. These are
	// uploads that never finalized; their reserved rows and any stored
	// objects are orphans.
	ListStalePending(ctx context.Context, cutoff time.Time) ([]*FileMetadata, error)

	// WithTx runs fn inside a transaction. Metadata and statistics writes for
	// one operation share a single WithTx call.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Healthy probes the backend.
	Healthy(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
