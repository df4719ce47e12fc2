package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famgate/famgate/pkg/metadata"
)

func newFile(id, familyID, name string, size int64) *metadata.FileMetadata {
	return &metadata.FileMetadata{
		FileID:       id,
		FamilyID:     familyID,
		OwnerID:      "user-1",
		OriginalName: name,
		FolderPath:   "/",
		FileType:     "image/jpeg",
		Category:     metadata.Classify(name, ""),
		FileSize:     size,
		StorageType:  "local",
		Visibility:   metadata.VisibilityPrivate,
		Status:       metadata.StatusActive,
		UploadTime:   time.Now(),
	}
}

func TestSaveAndFindActive(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()

	m := newFile("f1", "fam-001", "photo.jpg", 1024)
	require.NoError(t, s.Save(ctx, m))
	assert.False(t, m.CreateTime.IsZero())

	got, err := s.FindActive(ctx, "f1", "fam-001")
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", got.OriginalName)

	// wrong family is invisible
	_, err = s.FindActive(ctx, "f1", "fam-002")
	assert.True(t, metadata.IsNotFound(err))
}

func TestSaveDuplicate(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()

	require.NoError(t, s.Save(ctx, newFile("f1", "fam-001", "a.jpg", 1)))
	err := s.Save(ctx, newFile("f1", "fam-001", "b.jpg", 2))

	var se *metadata.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, metadata.ErrAlreadyExists, se.Code)
}

func TestPendingRowsAreInvisible(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()

	m := newFile("f1", "fam-001", "a.jpg", 1)
	m.Status = metadata.StatusPending
	require.NoError(t, s.Save(ctx, m))

	_, err := s.FindActive(ctx, "f1", "fam-001")
	assert.True(t, metadata.IsNotFound(err))

	// but FindByID sees it
	got, err := s.FindByID(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, metadata.StatusPending, got.Status)
}

func TestSoftDeleteHidesRow(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()

	require.NoError(t, s.Save(ctx, newFile("f1", "fam-001", "a.jpg", 1)))
	require.NoError(t, s.SoftDelete(ctx, "f1", time.Now()))

	_, err := s.FindActive(ctx, "f1", "fam-001")
	assert.True(t, metadata.IsNotFound(err))

	got, err := s.FindByID(ctx, "f1")
	require.NoError(t, err)
	assert.True(t, got.Deleted)

	// second soft delete of a deleted row still succeeds (row exists)
	require.NoError(t, s.SoftDelete(ctx, "f1", time.Now()))
	// soft delete of a missing row is NotFound
	assert.True(t, metadata.IsNotFound(s.SoftDelete(ctx, "nope", time.Now())))
}

func TestIncrementAccessCount(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()

	require.NoError(t, s.Save(ctx, newFile("f1", "fam-001", "a.jpg", 1)))

	ts := time.Now()
	require.NoError(t, s.IncrementAccessCount(ctx, "f1", ts))
	require.NoError(t, s.IncrementAccessCount(ctx, "f1", ts))

	got, err := s.FindByID(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AccessCount)
	assert.WithinDuration(t, ts, got.LastAccessTime, time.Second)
}

func TestSearchActive(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()

	m1 := newFile("f1", "fam-001", "holiday-beach.jpg", 1)
	m1.UploadTime = time.Now().Add(-time.Hour)
	m2 := newFile("f2", "fam-001", "winter.png", 2)
	m2.Description = "beach house plans"
	m2.UploadTime = time.Now()
	m3 := newFile("f3", "fam-001", "doc.pdf", 3)
	m3.Tags = []string{"Beach", "2026"}
	m4 := newFile("f4", "fam-002", "beach.jpg", 4) // other family

	for _, m := range []*metadata.FileMetadata{m1, m2, m3, m4} {
		require.NoError(t, s.Save(ctx, m))
	}

	got, err := s.SearchActive(ctx, "fam-001", "BEACH", metadata.Paging{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	// sorted by upload time descending: f2 (or f3) before f1
	assert.True(t, !got[0].UploadTime.Before(got[len(got)-1].UploadTime))
}

func TestListActiveByPrefix(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()

	m1 := newFile("f1", "fam-001", "a.jpg", 1)
	m1.FolderPath = "/pics"
	m2 := newFile("f2", "fam-001", "b.jpg", 1)
	m2.FolderPath = "/pics/2026"
	m3 := newFile("f3", "fam-001", "c.jpg", 1)
	m3.FolderPath = "/picstore" // not under /pics

	for _, m := range []*metadata.FileMetadata{m1, m2, m3} {
		require.NoError(t, s.Save(ctx, m))
	}

	got, err := s.ListActiveByPrefix(ctx, "fam-001", "/pics")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	root, err := s.ListActiveByPrefix(ctx, "fam-001", "/")
	require.NoError(t, err)
	assert.Len(t, root, 3)
}

func TestAggregate(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()

	require.NoError(t, s.Save(ctx, newFile("f1", "fam-001", "a.jpg", 100)))
	require.NoError(t, s.Save(ctx, newFile("f2", "fam-001", "b.pdf", 500)))
	require.NoError(t, s.Save(ctx, newFile("f3", "fam-002", "c.jpg", 900)))
	require.NoError(t, s.SoftDelete(ctx, "f1", time.Now()))

	agg, err := s.Aggregate(ctx, "fam-001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), agg.TotalFiles)
	assert.Equal(t, int64(500), agg.TotalSize)
	assert.Equal(t, "b.pdf", agg.LargestFileName)
	assert.Equal(t, int64(1), agg.CategoryCounts[metadata.CategoryDocument])
}

func TestWithTxRollback(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()

	require.NoError(t, s.Save(ctx, newFile("f1", "fam-001", "a.jpg", 1)))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx metadata.Tx) error {
		if err := tx.Save(ctx, newFile("f2", "fam-001", "b.jpg", 2)); err != nil {
			return err
		}
		if err := tx.SoftDelete(ctx, "f1", time.Now()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// everything rolled back
	_, err = s.FindByID(ctx, "f2")
	assert.True(t, metadata.IsNotFound(err))
	got, err := s.FindActive(ctx, "f1", "fam-001")
	require.NoError(t, err)
	assert.False(t, got.Deleted)
}

func TestWithTxCommit(t *testing.T) {
	s := NewMemoryStore()
	ctx := t.Context()

	err := s.WithTx(ctx, func(tx metadata.Tx) error {
		if err := tx.Save(ctx, newFile("f1", "fam-001", "a.jpg", 42)); err != nil {
			return err
		}
		st := metadata.NewFamilyStorageStats("fam-001")
		st.TotalFiles = 1
		st.TotalSize = 42
		return tx.PutStats(ctx, st)
	})
	require.NoError(t, err)

	st, err := s.GetStats(ctx, "fam-001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.TotalFiles)
	assert.Equal(t, int64(42), st.TotalSize)
}
