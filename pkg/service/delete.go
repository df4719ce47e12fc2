package service

import (
	"context"

	"github.com/famgate/famgate/internal/traceid"
	"github.com/famgate/famgate/pkg/gateway"
	"github.com/famgate/famgate/pkg/metadata"
	"github.com/famgate/famgate/pkg/pipeline"
)

// Delete removes a file: the object first, then the soft-delete of the row
// together with the stats decrement in one transaction. Only the owner may
// delete; family members cannot delete each other's files. A second delete
// of the same file reads as NOT_FOUND.
func (s *Service) Delete(ctx context.Context, rc *gateway.RequestContext, fileID, familyID string) (string, error) {
	if rc != nil && rc.TraceID == "" {
		rc.TraceID = traceid.New()
	}

	if err := s.validator.ValidateAccess(rc, familyID); err != nil {
		return "", s.finish(rc, err)
	}

	unlock := s.locks.Lock(fileID)
	defer unlock()

	m, err := s.findActive(ctx, fileID, familyID)
	if err != nil {
		return "", s.finish(rc, err)
	}
	if m.OwnerID != rc.UserID {
		return "", s.finish(rc, gateway.E(gateway.KindPermissionDenied, "NOT_OWNER",
			"only the owner may delete a file"))
	}

	chain := pipeline.NewChain(pipeline.OpDelete, s.logger,
		pipeline.Step{
			Name:      "remove-object",
			Completes: pipeline.StageFileStored,
			Run: func(stepCtx context.Context, _ *pipeline.Context) error {
				// Idempotent: a missing object is fine, the row is what
				// decides visibility.
				if _, err := s.adapter().Delete(stepCtx, fileID, familyID); err != nil {
					return gateway.Wrap(gateway.KindAdapterIO, "DELETE_FAILED",
						"removing object failed", err)
				}
				return nil
			},
		},
		pipeline.Step{
			Name:      "soft-delete",
			Completes: pipeline.StageStatsUpdated,
			Run: func(stepCtx context.Context, _ *pipeline.Context) error {
				txCtx := context.WithoutCancel(stepCtx)
				ts := s.now()
				err := s.applyWithStats(txCtx, familyID,
					func(tx metadata.Tx) error { return tx.SoftDelete(txCtx, fileID, ts) },
					func(tx metadata.Tx) error { return s.stats.OnFileDeleted(txCtx, tx, m) },
				)
				if err != nil {
					return gateway.Wrap(gateway.KindInternal, "DELETE_FAILED",
						"soft-deleting metadata failed", err)
				}
				return nil
			},
		},
		pipeline.Step{
			Name:      "complete",
			Completes: pipeline.StageStatsUpdated,
			Run: func(_ context.Context, _ *pipeline.Context) error {
				s.cache.EvictFile(fileID, familyID)
				return nil
			},
		},
	)

	pc := &pipeline.Context{TraceID: rc.TraceID, Requester: rc, Meta: m}
	if err := chain.Run(ctx, pc); err != nil {
		return "", s.finish(rc, err)
	}

	s.logger.Info("file deleted",
		"trace_id", rc.TraceID,
		"file_id", fileID,
		"family_id", familyID,
		"name", m.OriginalName)
	return m.OriginalName, nil
}
