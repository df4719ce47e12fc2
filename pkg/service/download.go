package service

import (
	"context"
	"errors"
	"time"

	"github.com/famgate/famgate/internal/traceid"
	"github.com/famgate/famgate/pkg/gateway"
	"github.com/famgate/famgate/pkg/storage"
)

const (
	defaultAccessURLExpiry = 15 * time.Minute
	maxAccessURLExpiry     = 7 * 24 * time.Hour
)

// Download streams a file's payload. Authorization: the requester must be
// allowed to read the row per its visibility; a FAMILY-visible file requested
// by a non-member reads as NOT_FOUND. The access counter is bumped
// asynchronously so a slow metadata store never delays the stream.
func (s *Service) Download(ctx context.Context, rc *gateway.RequestContext, fileID, familyID string) (*DownloadResult, error) {
	if rc != nil && rc.TraceID == "" {
		rc.TraceID = traceid.New()
	}

	if err := s.validator.ValidateAccess(rc, familyID); err != nil {
		return nil, s.finish(rc, err)
	}
	if fileID == "" {
		return nil, s.finish(rc, gateway.E(gateway.KindValidation, "EMPTY_FILE_ID", "file id is required"))
	}

	m, err := s.findActive(ctx, fileID, familyID)
	if err != nil {
		return nil, s.finish(rc, err)
	}
	if err := authorizeRead(rc, m); err != nil {
		return nil, s.finish(rc, err)
	}

	stream, err := s.adapter().Download(ctx, fileID, familyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Row exists but the object is gone; surface as not found and
			// leave reconciliation to the orphan scan.
			s.logger.Error("object missing for active metadata row",
				"file_id", fileID, "family_id", familyID, "trace_id", rc.TraceID)
			return nil, s.finish(rc, gateway.E(gateway.KindNotFound, "FILE_NOT_FOUND", "file not found"))
		}
		return nil, s.finish(rc, gateway.Wrap(gateway.KindAdapterIO, "DOWNLOAD_FAILED",
			"reading payload failed", err))
	}

	s.bumpAccessCount(fileID, familyID)

	return &DownloadResult{Stream: stream, Metadata: m}, nil
}

// View returns the metadata row without touching the payload.
func (s *Service) View(ctx context.Context, rc *gateway.RequestContext, fileID, familyID string) (*DownloadResult, error) {
	if err := s.validator.ValidateAccess(rc, familyID); err != nil {
		return nil, s.finish(rc, err)
	}
	m, err := s.findActive(ctx, fileID, familyID)
	if err != nil {
		return nil, s.finish(rc, err)
	}
	if err := authorizeRead(rc, m); err != nil {
		return nil, s.finish(rc, err)
	}
	return &DownloadResult{Metadata: m}, nil
}

// AccessURL returns a direct URL for the object, presigned for the object
// store and an API path for local storage. Same authorization as Download.
func (s *Service) AccessURL(ctx context.Context, rc *gateway.RequestContext, fileID, familyID string, expireMinutes int) (string, error) {
	if err := s.validator.ValidateAccess(rc, familyID); err != nil {
		return "", s.finish(rc, err)
	}

	m, err := s.findActive(ctx, fileID, familyID)
	if err != nil {
		return "", s.finish(rc, err)
	}
	if err := authorizeRead(rc, m); err != nil {
		return "", s.finish(rc, err)
	}

	expire := time.Duration(expireMinutes) * time.Minute
	if expire <= 0 {
		expire = defaultAccessURLExpiry
	}
	if expire > maxAccessURLExpiry {
		expire = maxAccessURLExpiry
	}

	u, err := s.adapter().AccessURL(ctx, fileID, familyID, expire)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", s.finish(rc, gateway.E(gateway.KindNotFound, "FILE_NOT_FOUND", "file not found"))
		}
		return "", s.finish(rc, gateway.Wrap(gateway.KindAdapterIO, "ACCESS_URL_FAILED",
			"building access url failed", err))
	}

	s.bumpAccessCount(fileID, familyID)
	return u, nil
}

// bumpAccessCount increments the access counter off the request path.
func (s *Service) bumpAccessCount(fileID, familyID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.IncrementAccessCount(ctx, fileID, s.now()); err != nil {
			s.logger.Warn("access count increment failed", "file_id", fileID, "error", err)
		}
		s.cache.EvictFile(fileID, familyID)
	}()
}
