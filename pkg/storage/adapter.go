// Package storage defines the physical storage adapter contract. Two
// implementations exist: a local filesystem adapter and an S3-compatible
// object store adapter. Which one is active is decided at startup by
// configuration; the rest of the system only sees this interface.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/famgate/famgate/pkg/metadata"
)

const (
	TypeLocal  = "local"
	TypeObject = "object"
)

// ErrNotFound is returned when no object exists for the requested file.
var ErrNotFound = errors.New("storage object not found")

// Adapter stores and retrieves file payloads in a family-scoped namespace.
// Adapters do not retry internally; transient I/O errors are reported as-is
// and compensation is the caller's concern.
type Adapter interface {
	// Type identifies the adapter ("local" or "object").
	Type() string

	// Upload writes the payload and returns the backend-specific storage
	// path. The object's leaf name is <fileId>.<ext> under the family
	// namespace.
	Upload(ctx context.Context, m *metadata.FileMetadata, payload io.Reader) (string, error)

	// Download resolves the object by scanning the family namespace for a
	// leaf name starting with "<fileId>.". Returns ErrNotFound if absent.
	Download(ctx context.Context, fileID, familyID string) (io.ReadCloser, error)

	// Delete removes the object if present. Idempotent; reports whether an
	// object was actually removed.
	Delete(ctx context.Context, fileID, familyID string) (bool, error)

	// List returns the immediate children (files and folders) of a family
	// folder.
	List(ctx context.Context, familyID, folderPath string) ([]string, error)

	// Healthy probes the backend.
	Healthy(ctx context.Context) error

	// AccessURL returns a direct URL for the object: a relative API path for
	// the local adapter, a time-bounded presigned URL for the object store.
	AccessURL(ctx context.Context, fileID, familyID string, expire time.Duration) (string, error)
}
