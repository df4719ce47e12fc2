//go:build integration

package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/famgate/famgate/pkg/metadata"
	"github.com/famgate/famgate/pkg/storage"
)

// newLocalstackAdapter starts a Localstack container and wires an adapter
// against it.
func newLocalstackAdapter(t *testing.T) *Adapter {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "localstack/localstack:3.0",
		ExposedPorts: []string{"4566/tcp"},
		Env: map[string]string{
			"SERVICES":              "s3",
			"DEFAULT_REGION":        "us-east-1",
			"EAGER_SERVICE_LOADING": "1",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4566/tcp"),
			wait.ForHTTP("/_localstack/health").
				WithPort("4566/tcp").
				WithStartupTimeout(60*time.Second),
		),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4566")
	require.NoError(t, err)

	cfg := Config{
		Endpoint:         fmt.Sprintf("http://%s:%s", host, port.Port()),
		Region:           "us-east-1",
		AccessKey:        "test",
		SecretKey:        "test",
		BucketPrefix:     "famgate",
		AutoCreateBucket: true,
		ForcePathStyle:   true,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapter, err := NewFromConfig(ctx, cfg, logger)
	require.NoError(t, err)
	return adapter
}

func testMeta(familyID, folderPath, name string, size int64) *metadata.FileMetadata {
	return &metadata.FileMetadata{
		FileID:       uuid.New().String(),
		FamilyID:     familyID,
		OwnerID:      "user-1",
		OriginalName: name,
		FolderPath:   folderPath,
		FileType:     "image/jpeg",
		FileSize:     size,
		UploadTime:   time.Now().UTC(),
	}
}

func TestObjectRoundTrip(t *testing.T) {
	a := newLocalstackAdapter(t)
	ctx := context.Background()

	payload := []byte("object-data")
	m := testMeta("Fam-001", "/pics", "photo.jpg", int64(len(payload)))

	path, err := a.Upload(ctx, m, bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "famgate-fam-001/pics/"+m.FileID+".jpg", path, "bucket name is lowercased")

	rc, err := a.Download(ctx, m.FileID, "Fam-001")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	removed, err := a.Delete(ctx, m.FileID, "Fam-001")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = a.Delete(ctx, m.FileID, "Fam-001")
	require.NoError(t, err)
	assert.False(t, removed, "delete is idempotent")
}

func TestDownloadMissingBucket(t *testing.T) {
	a := newLocalstackAdapter(t)
	_, err := a.Download(context.Background(), uuid.New().String(), "fam-never-seen")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListImmediateChildren(t *testing.T) {
	a := newLocalstackAdapter(t)
	ctx := context.Background()

	inPics := testMeta("fam-002", "/pics", "a.jpg", 4)
	nested := testMeta("fam-002", "/pics/2026", "b.jpg", 4)
	for _, m := range []*metadata.FileMetadata{inPics, nested} {
		_, err := a.Upload(ctx, m, bytes.NewReader([]byte("data")))
		require.NoError(t, err)
	}

	names, err := a.List(ctx, "fam-002", "/pics")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{inPics.FileID + ".jpg", "2026"}, names)
}

func TestPresignedAccessURL(t *testing.T) {
	a := newLocalstackAdapter(t)
	ctx := context.Background()

	payload := []byte("presigned")
	m := testMeta("fam-003", "/", "doc.pdf", int64(len(payload)))
	_, err := a.Upload(ctx, m, bytes.NewReader(payload))
	require.NoError(t, err)

	u, err := a.AccessURL(ctx, m.FileID, "fam-003", 15*time.Minute)
	require.NoError(t, err)

	resp, err := http.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestHealthy(t *testing.T) {
	a := newLocalstackAdapter(t)
	assert.NoError(t, a.Healthy(context.Background()))
}
