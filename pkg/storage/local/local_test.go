package local

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famgate/famgate/pkg/metadata"
	"github.com/famgate/famgate/pkg/storage"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(Config{BasePath: t.TempDir(), AutoCreate: true}, logger)
	require.NoError(t, err)
	return a
}

func testMeta(familyID, folderPath, name string) *metadata.FileMetadata {
	return &metadata.FileMetadata{
		FileID:       uuid.New().String(),
		FamilyID:     familyID,
		OriginalName: name,
		FolderPath:   folderPath,
		FileSize:     4,
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	m := testMeta("fam-001", "/pics", "photo.jpg")
	path, err := a.Upload(ctx, m, bytes.NewReader([]byte("data")))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.Contains(t, path, filepath.Join("families", "fam-001", "pics"))
	assert.Equal(t, m.FileID+".jpg", filepath.Base(path))

	rc, err := a.Download(ctx, m.FileID, "fam-001")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
}

func TestDownloadMissing(t *testing.T) {
	a := newTestAdapter(t)
	_, err := a.Download(context.Background(), uuid.New().String(), "fam-001")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCrossFamilyIsolation(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	m := testMeta("fam-001", "/pics", "photo.jpg")
	_, err := a.Upload(ctx, m, bytes.NewReader([]byte("data")))
	require.NoError(t, err)

	_, err = a.Download(ctx, m.FileID, "fam-002")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteIdempotent(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	m := testMeta("fam-001", "/docs", "a.txt")
	_, err := a.Upload(ctx, m, bytes.NewReader([]byte("data")))
	require.NoError(t, err)

	removed, err := a.Delete(ctx, m.FileID, "fam-001")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = a.Delete(ctx, m.FileID, "fam-001")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestTraversalGuard(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	// Even a hostile folder path must resolve inside the family root.
	m := testMeta("fam-001", "/a/../../../../tmp", "evil.txt")
	path, err := a.Upload(ctx, m, bytes.NewReader([]byte("data")))
	require.NoError(t, err)
	assert.Contains(t, path, filepath.Join("families", "fam-001"))
}

func TestList(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	m1 := testMeta("fam-001", "/pics", "a.jpg")
	m2 := testMeta("fam-001", "/pics/2026", "b.jpg")
	for _, m := range []*metadata.FileMetadata{m1, m2} {
		_, err := a.Upload(ctx, m, bytes.NewReader([]byte("data")))
		require.NoError(t, err)
	}

	names, err := a.List(ctx, "fam-001", "/pics")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{m1.FileID + ".jpg", "2026"}, names)

	empty, err := a.List(ctx, "fam-001", "/nope")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestHealthy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	base := filepath.Join(t.TempDir(), "not-yet-created")
	a, err := New(Config{BasePath: base, AutoCreate: true}, logger)
	require.NoError(t, err)
	require.NoError(t, a.Healthy(context.Background()))

	info, err := os.Stat(base)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	noCreate, err := New(Config{BasePath: filepath.Join(t.TempDir(), "missing")}, logger)
	require.NoError(t, err)
	assert.Error(t, noCreate.Healthy(context.Background()))
}

func TestAccessURL(t *testing.T) {
	a := newTestAdapter(t)
	u, err := a.AccessURL(context.Background(), "file-1", "fam-001", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/storage/files/download/file-1?familyId=fam-001", u)
}
