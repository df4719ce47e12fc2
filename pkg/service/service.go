// Package service implements the file storage orchestrator: the user-facing
// operations consumed by the HTTP layer. Each operation runs as a pipeline
// chain with compensation on failure; metadata and statistics writes for one
// operation share a single store transaction.
package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/famgate/famgate/pkg/gateway"
	"github.com/famgate/famgate/pkg/metadata"
	"github.com/famgate/famgate/pkg/metadata/cache"
	"github.com/famgate/famgate/pkg/pipeline"
	"github.com/famgate/famgate/pkg/stats"
	"github.com/famgate/famgate/pkg/storage"
	"github.com/famgate/famgate/pkg/validate"
)

// Service orchestrates uploads, downloads, deletes and queries across the
// storage adapter, the metadata store, the cache and the stats engine.
type Service struct {
	validator *validate.Validator
	store     metadata.Store
	cache     *cache.MetadataCache
	adapters  *storage.Registry
	stats     *stats.Engine
	locks     *pipeline.KeyedMutex
	logger    *slog.Logger

	now func() time.Time
}

func New(
	validator *validate.Validator,
	store metadata.Store,
	mc *cache.MetadataCache,
	adapters *storage.Registry,
	engine *stats.Engine,
	logger *slog.Logger,
) *Service {
	return &Service{
		validator: validator,
		store:     store,
		cache:     mc,
		adapters:  adapters,
		stats:     engine,
		locks:     pipeline.NewKeyedMutex(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// adapter returns the active storage backend.
func (s *Service) adapter() storage.Adapter {
	return s.adapters.Active()
}

// MaxUploadBytes reports the validator's file size cap, used by the HTTP
// layer to bound multipart request bodies.
func (s *Service) MaxUploadBytes() int64 {
	return s.validator.MaxFileSize()
}

// UploadRequest is the orchestrator-level upload input.
type UploadRequest struct {
	FamilyID       string
	UploaderUserID string
	OriginalName   string
	FolderPath     string
	Description    string
	Tags           []string
	Visibility     metadata.Visibility
	ContentType    string
	Size           int64
	Payload        io.Reader
}

// FolderListing is the result of List.
type FolderListing struct {
	CurrentPath string                   `json:"currentPath"`
	Files       []*metadata.FileMetadata `json:"files"`
	SubFolders  []string                 `json:"subFolders"`
	TotalFiles  int                      `json:"totalFiles"`
	TotalSize   int64                    `json:"totalSize"`
}

// SearchResult is the result of Search.
type SearchResult struct {
	Keyword      string                   `json:"keyword"`
	MatchedFiles []*metadata.FileMetadata `json:"matchedFiles"`
	TotalMatches int                      `json:"totalMatches"`
}

// StatsResult decorates the family counters with the state of the active
// storage backend.
type StatsResult struct {
	*metadata.FamilyStorageStats
	StorageType    string `json:"storageType"`
	StorageHealthy bool   `json:"storageHealthy"`
}

// OrphanObject is a stored object with no live metadata row.
type OrphanObject struct {
	FamilyID   string `json:"familyId"`
	FolderPath string `json:"folderPath"`
	Name       string `json:"name"`
}

// OrphanReport lists cleanup candidates found in the requester's families.
// Detection only; removal stays a manual decision.
type OrphanReport struct {
	StaleRows        []*metadata.FileMetadata `json:"staleRows"`
	UnmatchedObjects []OrphanObject           `json:"unmatchedObjects"`
}

// DownloadResult hands the payload stream plus the row it belongs to back to
// the HTTP layer. The caller owns Stream and must close it.
type DownloadResult struct {
	Stream   io.ReadCloser
	Metadata *metadata.FileMetadata
}

// finish stamps the request's trace id onto outgoing errors.
func (s *Service) finish(rc *gateway.RequestContext, err error) error {
	if err == nil {
		return nil
	}
	ge := gateway.AsError(err)
	if ge.TraceID == "" && rc != nil {
		ge.TraceID = rc.TraceID
	}
	return ge
}

// requireMember checks family membership for operations that act on a whole
// family namespace.
func (s *Service) requireMember(rc *gateway.RequestContext, familyID string) error {
	if !rc.MemberOf(familyID) {
		return gateway.E(gateway.KindPermissionDenied, "NOT_FAMILY_MEMBER",
			"requester is not a member of this family")
	}
	return nil
}

// authorizeRead applies the per-file read rules. For FAMILY-visible files a
// non-member is told NOT_FOUND rather than PERMISSION_DENIED, so file ids
// do not leak across family boundaries.
func authorizeRead(rc *gateway.RequestContext, m *metadata.FileMetadata) error {
	member := rc.MemberOf(m.FamilyID)
	owner := rc != nil && rc.UserID == m.OwnerID

	if member {
		if m.Visibility == metadata.VisibilityPublic || owner || m.Visibility == metadata.VisibilityFamily {
			return nil
		}
		return gateway.E(gateway.KindPermissionDenied, "PRIVATE_FILE",
			"file is private to its owner")
	}

	if owner {
		return nil
	}
	if m.Visibility == metadata.VisibilityPublic {
		return gateway.E(gateway.KindPermissionDenied, "NOT_FAMILY_MEMBER",
			"requester is not a member of this family")
	}
	return gateway.E(gateway.KindNotFound, "FILE_NOT_FOUND", "file not found")
}

// findActive resolves a row through the cache, falling back to the store.
func (s *Service) findActive(ctx context.Context, fileID, familyID string) (*metadata.FileMetadata, error) {
	if m, ok := s.cache.GetFile(fileID); ok && m.FamilyID == familyID {
		return m, nil
	}

	m, err := s.store.FindActive(ctx, fileID, familyID)
	if err != nil {
		if metadata.IsNotFound(err) {
			return nil, gateway.E(gateway.KindNotFound, "FILE_NOT_FOUND", "file not found")
		}
		return nil, gateway.Wrap(gateway.KindInternal, "", "metadata lookup failed", err)
	}
	s.cache.PutFile(m)
	return m, nil
}
