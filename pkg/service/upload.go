package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/famgate/famgate/internal/traceid"
	"github.com/famgate/famgate/pkg/gateway"
	"github.com/famgate/famgate/pkg/metadata"
	"github.com/famgate/famgate/pkg/pipeline"
	"github.com/famgate/famgate/pkg/validate"
)

// Upload runs the UPLOAD chain: validate, reserve a pending metadata row,
// store the payload, then finalize row and stats in one transaction. Any
// failure after the object is stored deletes it again and removes the
// reserved row, so no active row ever points at a missing object and no
// object survives without a row.
func (s *Service) Upload(ctx context.Context, rc *gateway.RequestContext, req *UploadRequest) (*metadata.FileMetadata, error) {
	if rc != nil && rc.TraceID == "" {
		rc.TraceID = traceid.New()
	}

	var m *metadata.FileMetadata

	chain := pipeline.NewChain(pipeline.OpUpload, s.logger,
		pipeline.Step{
			Name:      "validate",
			Completes: pipeline.StageValidated,
			Run: func(_ context.Context, _ *pipeline.Context) error {
				vreq := &validate.UploadRequest{
					FamilyID:       req.FamilyID,
					UploaderUserID: req.UploaderUserID,
					OriginalName:   req.OriginalName,
					FolderPath:     req.FolderPath,
					Visibility:     req.Visibility,
					ContentType:    req.ContentType,
					FileSize:       req.Size,
					HasFile:        req.Payload != nil && req.Size > 0,
				}
				if err := s.validator.ValidateUpload(rc, vreq); err != nil {
					return err
				}
				req.Visibility = vreq.Visibility
				return s.requireMember(rc, req.FamilyID)
			},
		},
		pipeline.Step{
			Name:      "admit",
			Completes: pipeline.StageValidated,
			Run: func(stepCtx context.Context, pc *pipeline.Context) error {
				now := s.now()
				m = &metadata.FileMetadata{
					FileID:       uuid.New().String(),
					FamilyID:     req.FamilyID,
					OwnerID:      rc.UserID,
					OriginalName: req.OriginalName,
					FolderPath:   folderOrRoot(req.FolderPath),
					FileType:     req.ContentType,
					Category:     metadata.Classify(req.OriginalName, req.ContentType),
					Description:  req.Description,
					Tags:         req.Tags,
					FileSize:     req.Size,
					StorageType:  s.adapter().Type(),
					Visibility:   req.Visibility,
					Status:       metadata.StatusPending,
					UploadTime:   now,
				}
				pc.Meta = m
				if err := s.store.Save(stepCtx, m); err != nil {
					return gateway.Wrap(gateway.KindInternal, "UPLOAD_FAILED",
						"reserving metadata row failed", err)
				}
				return nil
			},
			Rollback: func(stepCtx context.Context, _ *pipeline.Context) error {
				return s.store.Remove(context.WithoutCancel(stepCtx), m.FileID)
			},
		},
		pipeline.Step{
			Name:      "store",
			Completes: pipeline.StageFileStored,
			Run: func(stepCtx context.Context, pc *pipeline.Context) error {
				path, err := s.adapter().Upload(stepCtx, m, req.Payload)
				if err != nil {
					return gateway.Wrap(gateway.KindAdapterIO, "UPLOAD_FAILED",
						"storing payload failed", err)
				}
				pc.StoragePath = path
				m.StoragePath = path
				return nil
			},
			Rollback: func(stepCtx context.Context, _ *pipeline.Context) error {
				_, err := s.adapter().Delete(context.WithoutCancel(stepCtx), m.FileID, m.FamilyID)
				return err
			},
		},
		pipeline.Step{
			Name:      "finalize",
			Completes: pipeline.StageStatsUpdated,
			Run: func(stepCtx context.Context, _ *pipeline.Context) error {
				// Past this point the operation runs to completion even if
				// the client goes away.
				txCtx := context.WithoutCancel(stepCtx)
				m.Status = metadata.StatusActive
				err := s.applyWithStats(txCtx, m.FamilyID,
					func(tx metadata.Tx) error { return tx.Update(txCtx, m) },
					func(tx metadata.Tx) error { return s.stats.OnFileUploaded(txCtx, tx, m) },
				)
				if err != nil {
					return gateway.Wrap(gateway.KindInternal, "UPLOAD_FAILED",
						"finalizing metadata failed", err)
				}
				return nil
			},
		},
		pipeline.Step{
			Name:      "complete",
			Completes: pipeline.StageStatsUpdated,
			Run: func(_ context.Context, _ *pipeline.Context) error {
				s.cache.EvictFile(m.FileID, m.FamilyID)
				return nil
			},
		},
	)

	pc := &pipeline.Context{TraceID: rc.TraceID, Requester: rc, Payload: req.Payload}
	if err := chain.Run(ctx, pc); err != nil {
		return nil, s.finish(rc, err)
	}

	s.logger.Info("file uploaded",
		"trace_id", rc.TraceID,
		"file_id", m.FileID,
		"family_id", m.FamilyID,
		"size", m.FileSize,
		"storage_type", m.StorageType)
	return m, nil
}

// Modify overwrites the payload of an existing file in place. The file id is
// stable; size counters move by the delta. Only the owner may modify.
func (s *Service) Modify(ctx context.Context, rc *gateway.RequestContext, fileID string, req *UploadRequest) (*metadata.FileMetadata, error) {
	if rc != nil && rc.TraceID == "" {
		rc.TraceID = traceid.New()
	}

	if err := s.validator.ValidateAccess(rc, req.FamilyID); err != nil {
		return nil, s.finish(rc, err)
	}

	unlock := s.locks.Lock(fileID)
	defer unlock()

	m, err := s.findActive(ctx, fileID, req.FamilyID)
	if err != nil {
		return nil, s.finish(rc, err)
	}
	if m.OwnerID != rc.UserID {
		return nil, s.finish(rc, gateway.E(gateway.KindPermissionDenied, "NOT_OWNER",
			"only the owner may modify a file"))
	}
	if req.Size <= 0 || req.Payload == nil {
		return nil, s.finish(rc, gateway.E(gateway.KindValidation, "EMPTY_FILE",
			"file is missing or empty"))
	}
	if req.Size > s.validator.MaxFileSize() {
		return nil, s.finish(rc, gateway.E(gateway.KindValidation, "FILE_TOO_LARGE",
			"file size exceeds limit"))
	}

	sizeDelta := req.Size - m.FileSize
	updated := m.Clone()
	updated.FileSize = req.Size
	updated.UploadTime = s.now()
	if req.Description != "" {
		updated.Description = req.Description
	}
	if req.Tags != nil {
		updated.Tags = req.Tags
	}

	chain := pipeline.NewChain(pipeline.OpModify, s.logger,
		pipeline.Step{
			Name:      "store",
			Completes: pipeline.StageFileStored,
			Run: func(stepCtx context.Context, pc *pipeline.Context) error {
				path, err := s.adapter().Upload(stepCtx, updated, req.Payload)
				if err != nil {
					return gateway.Wrap(gateway.KindAdapterIO, "MODIFY_FAILED",
						"overwriting payload failed", err)
				}
				pc.StoragePath = path
				updated.StoragePath = path
				return nil
			},
		},
		pipeline.Step{
			Name:      "finalize",
			Completes: pipeline.StageStatsUpdated,
			Run: func(stepCtx context.Context, _ *pipeline.Context) error {
				txCtx := context.WithoutCancel(stepCtx)
				err := s.applyWithStats(txCtx, updated.FamilyID,
					func(tx metadata.Tx) error { return tx.Update(txCtx, updated) },
					func(tx metadata.Tx) error {
						return s.stats.OnFileModified(txCtx, tx, updated, sizeDelta)
					},
				)
				if err != nil {
					// The object is already overwritten in place, so there is
					// no payload left to restore. The row keeps the old size;
					// mark the family for recompute and evict the stale entry.
					s.stats.MarkDirty(updated.FamilyID)
					s.cache.EvictFile(updated.FileID, updated.FamilyID)
					return gateway.Wrap(gateway.KindInternal, "MODIFY_FAILED",
						"updating metadata failed", err)
				}
				return nil
			},
		},
		pipeline.Step{
			Name:      "complete",
			Completes: pipeline.StageStatsUpdated,
			Run: func(_ context.Context, _ *pipeline.Context) error {
				s.cache.EvictFile(updated.FileID, updated.FamilyID)
				return nil
			},
		},
	)

	pc := &pipeline.Context{TraceID: rc.TraceID, Requester: rc, Meta: updated, SizeDelta: sizeDelta}
	if err := chain.Run(ctx, pc); err != nil {
		return nil, s.finish(rc, err)
	}
	return updated, nil
}

// applyWithStats runs the metadata mutation and its stats delta in one
// transaction. If that transaction fails, the mutation is retried on its own;
// when the retry succeeds the family is marked dirty so the counters are
// recomputed on the next stats read.
func (s *Service) applyWithStats(ctx context.Context, familyID string, mutate, delta func(tx metadata.Tx) error) error {
	err := s.store.WithTx(ctx, func(tx metadata.Tx) error {
		if err := mutate(tx); err != nil {
			return err
		}
		return delta(tx)
	})
	if err == nil {
		return nil
	}

	if retryErr := s.store.WithTx(ctx, mutate); retryErr != nil {
		return err
	}

	s.logger.Warn("stats delta skipped, family queued for recompute",
		"family_id", familyID, "error", err)
	s.stats.MarkDirty(familyID)
	return nil
}

func folderOrRoot(folderPath string) string {
	if folderPath == "" {
		return "/"
	}
	return folderPath
}
