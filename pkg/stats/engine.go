// Package stats maintains the per-family storage counters. Delta updates
// ride in the same transaction as the metadata write they account for; a
// family can also be recomputed from its live rows, which is the
// authoritative answer whenever the counters are in doubt.
package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/famgate/famgate/pkg/metadata"
)

// Engine applies stats deltas and serves reads with lazy recompute. The
// first read of a family after process start re-aggregates from metadata,
// as does any read after a family was marked dirty.
type Engine struct {
	store  metadata.Store
	logger *slog.Logger

	mu    sync.Mutex
	fresh map[string]bool
	dirty map[string]bool
}

func NewEngine(store metadata.Store, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger,
		fresh:  make(map[string]bool),
		dirty:  make(map[string]bool),
	}
}

// OnFileUploaded folds a newly finalized file into its family's counters.
// Must run on the same transaction that finalized the metadata row.
func (e *Engine) OnFileUploaded(ctx context.Context, tx metadata.Tx, m *metadata.FileMetadata) error {
	s, err := e.loadOrInit(ctx, tx, m.FamilyID)
	if err != nil {
		return err
	}

	s.TotalFiles++
	s.TotalSize += m.FileSize
	s.CategoryCounts[m.Category]++
	if m.FileSize > s.LargestFileSize {
		s.LargestFileSize = m.FileSize
		s.LargestFileName = m.OriginalName
	}
	if m.UploadTime.After(s.MostRecentFileTime) {
		s.MostRecentFileTime = m.UploadTime
	}

	return tx.PutStats(ctx, s)
}

// OnFileDeleted removes a file from its family's counters. Decrements are
// bounded at zero. Deleting the largest file falls back to a full
// re-aggregation since the runner-up is not tracked.
func (e *Engine) OnFileDeleted(ctx context.Context, tx metadata.Tx, m *metadata.FileMetadata) error {
	s, err := e.loadOrInit(ctx, tx, m.FamilyID)
	if err != nil {
		return err
	}

	if s.LargestFileSize > 0 && m.FileSize >= s.LargestFileSize {
		return e.RecomputeTx(ctx, tx, m.FamilyID)
	}

	if s.TotalFiles > 0 {
		s.TotalFiles--
	}
	s.TotalSize -= m.FileSize
	if s.TotalSize < 0 {
		s.TotalSize = 0
	}
	if s.CategoryCounts[m.Category] > 0 {
		s.CategoryCounts[m.Category]--
	}

	return tx.PutStats(ctx, s)
}

// OnFileModified adjusts the size counters after an in-place overwrite.
func (e *Engine) OnFileModified(ctx context.Context, tx metadata.Tx, m *metadata.FileMetadata, sizeDelta int64) error {
	s, err := e.loadOrInit(ctx, tx, m.FamilyID)
	if err != nil {
		return err
	}

	// A shrink of the largest file invalidates the tracked maximum.
	if sizeDelta < 0 && s.LargestFileName == m.OriginalName {
		return e.RecomputeTx(ctx, tx, m.FamilyID)
	}

	s.TotalSize += sizeDelta
	if s.TotalSize < 0 {
		s.TotalSize = 0
	}
	if m.FileSize > s.LargestFileSize {
		s.LargestFileSize = m.FileSize
		s.LargestFileName = m.OriginalName
	}
	if m.UploadTime.After(s.MostRecentFileTime) {
		s.MostRecentFileTime = m.UploadTime
	}

	return tx.PutStats(ctx, s)
}

// RecomputeTx re-aggregates a family's counters from its live metadata rows
// inside an existing transaction. Idempotent.
func (e *Engine) RecomputeTx(ctx context.Context, tx metadata.Tx, familyID string) error {
	agg, err := tx.Aggregate(ctx, familyID)
	if err != nil {
		return err
	}

	s := metadata.NewFamilyStorageStats(familyID)
	s.TotalFiles = agg.TotalFiles
	s.TotalSize = agg.TotalSize
	for k, v := range agg.CategoryCounts {
		s.CategoryCounts[k] = v
	}
	s.LargestFileSize = agg.LargestFileSize
	s.LargestFileName = agg.LargestFileName
	s.MostRecentFileTime = agg.MostRecentFileTime
	s.LastUpdated = time.Now().UTC()

	return tx.PutStats(ctx, s)
}

// Recompute re-aggregates a family in its own transaction and clears its
// dirty mark.
func (e *Engine) Recompute(ctx context.Context, familyID string) error {
	err := e.store.WithTx(ctx, func(tx metadata.Tx) error {
		return e.RecomputeTx(ctx, tx, familyID)
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.fresh[familyID] = true
	delete(e.dirty, familyID)
	e.mu.Unlock()
	return nil
}

// MarkDirty flags a family whose counters may have drifted, forcing a
// recompute on the next read. Called when a stats delta had to be skipped.
func (e *Engine) MarkDirty(familyID string) {
	e.mu.Lock()
	e.dirty[familyID] = true
	e.mu.Unlock()

	e.logger.Warn("family stats marked dirty", "family_id", familyID)
}

// Get returns the family's counters, recomputing first when the family is
// dirty, has never been read since process start, or has no stats row yet.
func (e *Engine) Get(ctx context.Context, familyID string) (*metadata.FamilyStorageStats, error) {
	e.mu.Lock()
	stale := e.dirty[familyID] || !e.fresh[familyID]
	e.mu.Unlock()

	if !stale {
		s, err := e.store.GetStats(ctx, familyID)
		if err == nil {
			return s, nil
		}
		if !metadata.IsNotFound(err) {
			return nil, err
		}
		// Row vanished underneath us; fall through to recompute.
	}

	if err := e.Recompute(ctx, familyID); err != nil {
		return nil, err
	}
	return e.store.GetStats(ctx, familyID)
}

func (e *Engine) loadOrInit(ctx context.Context, tx metadata.Tx, familyID string) (*metadata.FamilyStorageStats, error) {
	s, err := tx.GetStats(ctx, familyID)
	if err != nil {
		if metadata.IsNotFound(err) {
			return metadata.NewFamilyStorageStats(familyID), nil
		}
		return nil, err
	}
	if s.CategoryCounts == nil {
		s.CategoryCounts = make(map[metadata.Category]int64)
	}
	return s, nil
}
