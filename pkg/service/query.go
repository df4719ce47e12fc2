package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/famgate/famgate/pkg/gateway"
	"github.com/famgate/famgate/pkg/metadata"
	"github.com/famgate/famgate/pkg/storage"
)

// List returns the files directly in folderPath plus the immediate
// sub-folders below it, with totals over the listed files.
func (s *Service) List(ctx context.Context, rc *gateway.RequestContext, familyID, folderPath string) (*FolderListing, error) {
	if err := s.validator.ValidateAccess(rc, familyID); err != nil {
		return nil, s.finish(rc, err)
	}
	if err := s.requireMember(rc, familyID); err != nil {
		return nil, s.finish(rc, err)
	}
	folderPath = folderOrRoot(folderPath)

	under, ok := s.cache.GetList(familyID, folderPath)
	if !ok {
		var err error
		under, err = s.store.ListActiveByPrefix(ctx, familyID, folderPath)
		if err != nil {
			return nil, s.finish(rc, gateway.Wrap(gateway.KindInternal, "LIST_FAILED",
				"listing folder failed", err))
		}
		s.cache.PutList(familyID, folderPath, under)
	}

	listing := &FolderListing{
		CurrentPath: folderPath,
		Files:       []*metadata.FileMetadata{},
		SubFolders:  []string{},
	}

	seen := map[string]bool{}
	for _, m := range under {
		if m.FolderPath == folderPath {
			listing.Files = append(listing.Files, m)
			listing.TotalFiles++
			listing.TotalSize += m.FileSize
			continue
		}
		if sub := firstSegmentBelow(m.FolderPath, folderPath); sub != "" && !seen[sub] {
			seen[sub] = true
			listing.SubFolders = append(listing.SubFolders, sub)
		}
	}
	sort.Strings(listing.SubFolders)

	return listing, nil
}

// firstSegmentBelow returns the first path segment of path below folder, or
// "" when path is not a strict extension of folder.
func firstSegmentBelow(path, folder string) string {
	if !metadata.UnderFolder(path, folder) || path == folder {
		return ""
	}
	rest := strings.TrimPrefix(path, strings.TrimSuffix(folder, "/")+"/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// Search matches keyword case-insensitively over names, descriptions and
// tags of the family's live files, newest uploads first.
func (s *Service) Search(ctx context.Context, rc *gateway.RequestContext, familyID, keyword string, paging metadata.Paging) (*SearchResult, error) {
	if err := s.validator.ValidateAccess(rc, familyID); err != nil {
		return nil, s.finish(rc, err)
	}
	if err := s.requireMember(rc, familyID); err != nil {
		return nil, s.finish(rc, err)
	}

	matches, ok := s.cache.GetSearch(familyID, keyword)
	if !ok {
		var err error
		matches, err = s.store.SearchActive(ctx, familyID, keyword, paging)
		if err != nil {
			return nil, s.finish(rc, gateway.Wrap(gateway.KindInternal, "SEARCH_FAILED",
				"search failed", err))
		}
		s.cache.PutSearch(familyID, keyword, matches)
	}

	if matches == nil {
		matches = []*metadata.FileMetadata{}
	}
	return &SearchResult{
		Keyword:      keyword,
		MatchedFiles: matches,
		TotalMatches: len(matches),
	}, nil
}

// Stats returns the family counters plus the state of the active adapter.
func (s *Service) Stats(ctx context.Context, rc *gateway.RequestContext, familyID string) (*StatsResult, error) {
	if err := s.validator.ValidateAccess(rc, familyID); err != nil {
		return nil, s.finish(rc, err)
	}
	if err := s.requireMember(rc, familyID); err != nil {
		return nil, s.finish(rc, err)
	}

	fs, err := s.stats.Get(ctx, familyID)
	if err != nil {
		return nil, s.finish(rc, gateway.Wrap(gateway.KindInternal, "STATS_FAILED",
			"reading family stats failed", err))
	}

	adapter := s.adapter()
	return &StatsResult{
		FamilyStorageStats: fs,
		StorageType:        adapter.Type(),
		StorageHealthy:     adapter.Healthy(ctx) == nil,
	}, nil
}

// RecomputeStats forces an authoritative re-aggregation for a family.
func (s *Service) RecomputeStats(ctx context.Context, rc *gateway.RequestContext, familyID string) error {
	if err := s.validator.ValidateAccess(rc, familyID); err != nil {
		return s.finish(rc, err)
	}
	if err := s.requireMember(rc, familyID); err != nil {
		return s.finish(rc, err)
	}
	if err := s.stats.Recompute(ctx, familyID); err != nil {
		return s.finish(rc, gateway.Wrap(gateway.KindInternal, "STATS_FAILED",
			"recomputing family stats failed", err))
	}
	return nil
}

// Orphans scans the requester's families for cleanup candidates: pending
// metadata rows older than maxAge whose upload never finalized, and stored
// objects whose row is gone or soft-deleted. Rows and objects of families
// the requester does not belong to are never reported.
func (s *Service) Orphans(ctx context.Context, rc *gateway.RequestContext, maxAge time.Duration) (*OrphanReport, error) {
	if !rc.Authenticated() {
		return nil, s.finish(rc, gateway.E(gateway.KindAuth, "AUTH_REQUIRED", "authentication required"))
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}

	report := &OrphanReport{
		StaleRows:        []*metadata.FileMetadata{},
		UnmatchedObjects: []OrphanObject{},
	}

	rows, err := s.store.ListStalePending(ctx, s.now().Add(-maxAge))
	if err != nil {
		return nil, s.finish(rc, gateway.Wrap(gateway.KindInternal, "ORPHAN_SCAN_FAILED",
			"scanning for orphans failed", err))
	}
	for _, m := range rows {
		if rc.MemberOf(m.FamilyID) {
			report.StaleRows = append(report.StaleRows, m)
		}
	}

	adapter := s.adapter()
	for _, familyID := range rc.FamilyIDs {
		if err := s.scanObjects(ctx, adapter, familyID, "/", report); err != nil {
			return nil, s.finish(rc, gateway.Wrap(gateway.KindAdapterIO, "ORPHAN_SCAN_FAILED",
				"scanning stored objects failed", err))
		}
	}
	return report, nil
}

// scanObjects walks a family namespace. Object leaves are named
// <fileId>.<ext>, so entries with a dot are checked against the metadata
// store and the rest are descended into as folders.
func (s *Service) scanObjects(ctx context.Context, adapter storage.Adapter, familyID, folder string, report *OrphanReport) error {
	names, err := adapter.List(ctx, familyID, folder)
	if err != nil {
		return err
	}
	for _, name := range names {
		dot := strings.IndexByte(name, '.')
		if dot <= 0 {
			sub := strings.TrimSuffix(folder, "/") + "/" + name
			if err := s.scanObjects(ctx, adapter, familyID, sub, report); err != nil {
				return err
			}
			continue
		}

		m, err := s.store.FindByID(ctx, name[:dot])
		switch {
		case err != nil && metadata.IsNotFound(err):
			report.UnmatchedObjects = append(report.UnmatchedObjects, OrphanObject{
				FamilyID: familyID, FolderPath: folder, Name: name,
			})
		case err != nil:
			return err
		case m.Deleted:
			report.UnmatchedObjects = append(report.UnmatchedObjects, OrphanObject{
				FamilyID: familyID, FolderPath: folder, Name: name,
			})
		}
	}
	return nil
}
