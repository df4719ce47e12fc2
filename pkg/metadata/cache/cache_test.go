package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famgate/famgate/pkg/metadata"
)

func testMeta(id, familyID string) *metadata.FileMetadata {
	return &metadata.FileMetadata{
		FileID:       id,
		FamilyID:     familyID,
		OriginalName: "photo.jpg",
		Status:       metadata.StatusActive,
	}
}

func TestFileRoundTrip(t *testing.T) {
	c := New(Config{})
	defer c.Close()

	c.PutFile(testMeta("f1", "fam-001"))

	got, ok := c.GetFile("f1")
	require.True(t, ok)
	assert.Equal(t, "photo.jpg", got.OriginalName)

	_, ok = c.GetFile("missing")
	assert.False(t, ok)
}

func TestFileTTLExpiry(t *testing.T) {
	c := New(Config{FileTTL: 20 * time.Millisecond})
	defer c.Close()

	c.PutFile(testMeta("f1", "fam-001"))
	time.Sleep(60 * time.Millisecond)

	_, ok := c.GetFile("f1")
	assert.False(t, ok, "entry must expire after its TTL")
}

func TestEvictFileAlsoEvictsFamilyQueries(t *testing.T) {
	c := New(Config{})
	defer c.Close()

	c.PutFile(testMeta("f1", "fam-001"))
	c.PutSearch("fam-001", "photo", []*metadata.FileMetadata{testMeta("f1", "fam-001")})
	c.PutList("fam-001", "/pics", []*metadata.FileMetadata{testMeta("f1", "fam-001")})
	c.PutSearch("fam-002", "photo", []*metadata.FileMetadata{testMeta("f9", "fam-002")})

	c.EvictFile("f1", "fam-001")

	_, ok := c.GetFile("f1")
	assert.False(t, ok)
	_, ok = c.GetSearch("fam-001", "photo")
	assert.False(t, ok)
	_, ok = c.GetList("fam-001", "/pics")
	assert.False(t, ok)

	// other families keep their entries
	_, ok = c.GetSearch("fam-002", "photo")
	assert.True(t, ok)
}

func TestSearchKeyIsCaseInsensitive(t *testing.T) {
	c := New(Config{})
	defer c.Close()

	c.PutSearch("fam-001", "Beach", []*metadata.FileMetadata{testMeta("f1", "fam-001")})

	got, ok := c.GetSearch("fam-001", "beach")
	require.True(t, ok)
	assert.Len(t, got, 1)
}
