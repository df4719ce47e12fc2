// Package memory implements an in-memory metadata store.
//
// The memory store exists for tests and single-node development. It applies
// the same semantics as the PostgreSQL store, including transactional
// rollback, which it emulates by snapshotting state at transaction start.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/famgate/famgate/pkg/metadata"
)

// MemoryStore implements metadata.Store with maps guarded by one RWMutex.
//
// Thread safety: all operations are safe for concurrent use. WithTx holds the
// write lock for the duration of the closure, which also serializes stats
// writes per family.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]*metadata.FileMetadata
	stats map[string]*metadata.FamilyStorageStats
}

// NewMemoryStore creates an empty in-memory metadata store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files: make(map[string]*metadata.FileMetadata),
		stats: make(map[string]*metadata.FamilyStorageStats),
	}
}

func cloneFile(m *metadata.FileMetadata) *metadata.FileMetadata {
	c := *m
	c.Tags = append([]string(nil), m.Tags...)
	return &c
}

func cloneStats(s *metadata.FamilyStorageStats) *metadata.FamilyStorageStats {
	c := *s
	c.CategoryCounts = make(map[metadata.Category]int64, len(s.CategoryCounts))
	for k, v := range s.CategoryCounts {
		c.CategoryCounts[k] = v
	}
	return &c
}

// active reports whether a row is visible to user-facing queries.
func active(m *metadata.FileMetadata) bool {
	return !m.Deleted && m.Status == metadata.StatusActive
}

func (s *MemoryStore) saveLocked(m *metadata.FileMetadata) error {
	if _, ok := s.files[m.FileID]; ok {
		return metadata.NewAlreadyExistsError(m.FileID)
	}
	now := time.Now()
	c := cloneFile(m)
	c.CreateTime = now
	c.UpdateTime = now
	s.files[m.FileID] = c
	m.CreateTime = now
	m.UpdateTime = now
	return nil
}

func (s *MemoryStore) updateLocked(m *metadata.FileMetadata) error {
	if _, ok := s.files[m.FileID]; !ok {
		return metadata.NewNotFoundError(m.FileID)
	}
	c := cloneFile(m)
	c.UpdateTime = time.Now()
	s.files[m.FileID] = c
	m.UpdateTime = c.UpdateTime
	return nil
}

// Save inserts a new row.
func (s *MemoryStore) Save(ctx context.Context, m *metadata.FileMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(m)
}

// Update rewrites an existing row.
func (s *MemoryStore) Update(ctx context.Context, m *metadata.FileMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(m)
}

// SoftDelete marks a row deleted.
func (s *MemoryStore) SoftDelete(ctx context.Context, fileID string, ts time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.softDeleteLocked(fileID, ts)
}

func (s *MemoryStore) softDeleteLocked(fileID string, ts time.Time) error {
	m, ok := s.files[fileID]
	if !ok {
		return metadata.NewNotFoundError(fileID)
	}
	m.Deleted = true
	m.UpdateTime = ts
	return nil
}

// Remove hard-deletes a row (upload rollback only).
func (s *MemoryStore) Remove(ctx context.Context, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[fileID]; !ok {
		return metadata.NewNotFoundError(fileID)
	}
	delete(s.files, fileID)
	return nil
}

// FindActive returns an active row scoped to its family.
func (s *MemoryStore) FindActive(ctx context.Context, fileID, familyID string) (*metadata.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.files[fileID]
	if !ok || !active(m) || m.FamilyID != familyID {
		return nil, metadata.NewNotFoundError(fileID)
	}
	return cloneFile(m), nil
}

// FindByID returns a row regardless of family, deletion or status.
func (s *MemoryStore) FindByID(ctx context.Context, fileID string) (*metadata.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.files[fileID]
	if !ok {
		return nil, metadata.NewNotFoundError(fileID)
	}
	return cloneFile(m), nil
}

// IncrementAccessCount atomically bumps the access counter.
func (s *MemoryStore) IncrementAccessCount(ctx context.Context, fileID string, ts time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.files[fileID]
	if !ok {
		return metadata.NewNotFoundError(fileID)
	}
	m.AccessCount++
	m.LastAccessTime = ts
	return nil
}

// SearchActive matches keyword against name, description and tags.
func (s *MemoryStore) SearchActive(ctx context.Context, familyID, keyword string, paging metadata.Paging) ([]*metadata.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if paging.Limit <= 0 {
		paging = metadata.DefaultPaging
	}
	kw := strings.ToLower(keyword)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*metadata.FileMetadata
	for _, m := range s.files {
		if !active(m) || m.FamilyID != familyID {
			continue
		}
		if matchesKeyword(m, kw) {
			out = append(out, cloneFile(m))
		}
	}
	sortByUploadTimeDesc(out)

	if paging.Offset >= len(out) {
		return nil, nil
	}
	out = out[paging.Offset:]
	if len(out) > paging.Limit {
		out = out[:paging.Limit]
	}
	return out, nil
}

func matchesKeyword(m *metadata.FileMetadata, kw string) bool {
	if kw == "" {
		return true
	}
	if strings.Contains(strings.ToLower(m.OriginalName), kw) {
		return true
	}
	if strings.Contains(strings.ToLower(m.Description), kw) {
		return true
	}
	for _, tag := range m.Tags {
		if strings.Contains(strings.ToLower(tag), kw) {
			return true
		}
	}
	return false
}

func sortByUploadTimeDesc(files []*metadata.FileMetadata) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].UploadTime.Equal(files[j].UploadTime) {
			return files[i].FileID < files[j].FileID
		}
		return files[i].UploadTime.After(files[j].UploadTime)
	})
}

// ListActiveByFamily returns all active rows of a family.
func (s *MemoryStore) ListActiveByFamily(ctx context.Context, familyID string) ([]*metadata.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*metadata.FileMetadata
	for _, m := range s.files {
		if active(m) && m.FamilyID == familyID {
			out = append(out, cloneFile(m))
		}
	}
	sortByUploadTimeDesc(out)
	return out, nil
}

// ListActiveByPrefix returns active rows at or below folderPath.
func (s *MemoryStore) ListActiveByPrefix(ctx context.Context, familyID, folderPath string) ([]*metadata.FileMetadata, error) {
	all, err := s.ListActiveByFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}

	var out []*metadata.FileMetadata
	for _, m := range all {
		if metadata.UnderFolder(m.FolderPath, folderPath) {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListStalePending returns pending rows created before cutoff.
func (s *MemoryStore) ListStalePending(ctx context.Context, cutoff time.Time) ([]*metadata.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*metadata.FileMetadata
	for _, m := range s.files {
		if m.Status == metadata.StatusPending && m.CreateTime.Before(cutoff) {
			out = append(out, cloneFile(m))
		}
	}
	sortByUploadTimeDesc(out)
	return out, nil
}

// CountActiveByFamily returns the active row count.
func (s *MemoryStore) CountActiveByFamily(ctx context.Context, familyID string) (int64, error) {
	all, err := s.ListActiveByFamily(ctx, familyID)
	if err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

// SumSizeByFamily returns the total active size.
func (s *MemoryStore) SumSizeByFamily(ctx context.Context, familyID string) (int64, error) {
	all, err := s.ListActiveByFamily(ctx, familyID)
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, m := range all {
		sum += m.FileSize
	}
	return sum, nil
}

// CountByCategory returns active counts grouped by category.
func (s *MemoryStore) CountByCategory(ctx context.Context, familyID string) (map[metadata.Category]int64, error) {
	all, err := s.ListActiveByFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	out := make(map[metadata.Category]int64)
	for _, m := range all {
		out[m.Category]++
	}
	return out, nil
}

// GetStats returns the stats row for a family.
func (s *MemoryStore) GetStats(ctx context.Context, familyID string) (*metadata.FamilyStorageStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getStatsLocked(familyID)
}

func (s *MemoryStore) getStatsLocked(familyID string) (*metadata.FamilyStorageStats, error) {
	st, ok := s.stats[familyID]
	if !ok {
		return nil, &metadata.StoreError{Code: metadata.ErrNotFound, Message: "stats not found"}
	}
	return cloneStats(st), nil
}

// PutStats upserts the stats row for a family.
func (s *MemoryStore) PutStats(ctx context.Context, st *metadata.FamilyStorageStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putStatsLocked(st)
	return nil
}

func (s *MemoryStore) putStatsLocked(st *metadata.FamilyStorageStats) {
	c := cloneStats(st)
	c.LastUpdated = time.Now()
	s.stats[st.FamilyID] = c
}

// Aggregate re-aggregates counters over active rows of a family.
func (s *MemoryStore) Aggregate(ctx context.Context, familyID string) (*metadata.FamilyAggregate, error) {
	all, err := s.ListActiveByFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}

	agg := &metadata.FamilyAggregate{
		CategoryCounts: make(map[metadata.Category]int64),
	}
	for _, m := range all {
		agg.TotalFiles++
		agg.TotalSize += m.FileSize
		agg.CategoryCounts[m.Category]++
		if m.FileSize > agg.LargestFileSize {
			agg.LargestFileSize = m.FileSize
			agg.LargestFileName = m.OriginalName
		}
		if m.UploadTime.After(agg.MostRecentFileTime) {
			agg.MostRecentFileTime = m.UploadTime
		}
	}
	return agg, nil
}

// memoryTx exposes Writer operations over the locked store. Rollback is
// emulated by restoring the snapshot taken at WithTx start.
type memoryTx struct {
	store *MemoryStore
}

func (t *memoryTx) Save(ctx context.Context, m *metadata.FileMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.store.saveLocked(m)
}

func (t *memoryTx) Update(ctx context.Context, m *metadata.FileMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.store.updateLocked(m)
}

func (t *memoryTx) SoftDelete(ctx context.Context, fileID string, ts time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.store.softDeleteLocked(fileID, ts)
}

func (t *memoryTx) Remove(ctx context.Context, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.store.files[fileID]; !ok {
		return metadata.NewNotFoundError(fileID)
	}
	delete(t.store.files, fileID)
	return nil
}

func (t *memoryTx) GetStats(ctx context.Context, familyID string) (*metadata.FamilyStorageStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.store.getStatsLocked(familyID)
}

func (t *memoryTx) PutStats(ctx context.Context, st *metadata.FamilyStorageStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.store.putStatsLocked(st)
	return nil
}

func (t *memoryTx) Aggregate(ctx context.Context, familyID string) (*metadata.FamilyAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agg := &metadata.FamilyAggregate{
		CategoryCounts: make(map[metadata.Category]int64),
	}
	for _, m := range t.store.files {
		if !active(m) || m.FamilyID != familyID {
			continue
		}
		agg.TotalFiles++
		agg.TotalSize += m.FileSize
		agg.CategoryCounts[m.Category]++
		if m.FileSize > agg.LargestFileSize {
			agg.LargestFileSize = m.FileSize
			agg.LargestFileName = m.OriginalName
		}
		if m.UploadTime.After(agg.MostRecentFileTime) {
			agg.MostRecentFileTime = m.UploadTime
		}
	}
	return agg, nil
}

// WithTx runs fn under the write lock, restoring the pre-transaction snapshot
// if fn returns an error.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx metadata.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filesSnap := make(map[string]*metadata.FileMetadata, len(s.files))
	for k, v := range s.files {
		filesSnap[k] = cloneFile(v)
	}
	statsSnap := make(map[string]*metadata.FamilyStorageStats, len(s.stats))
	for k, v := range s.stats {
		statsSnap[k] = cloneStats(v)
	}

	if err := fn(&memoryTx{store: s}); err != nil {
		s.files = filesSnap
		s.stats = statsSnap
		return err
	}
	return nil
}

// Healthy always succeeds for the memory store.
func (s *MemoryStore) Healthy(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
