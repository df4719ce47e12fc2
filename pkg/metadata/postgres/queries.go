package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/famgate/famgate/pkg/metadata"
)

// executor abstracts over *pgxpool.Pool and pgx.Tx so the same query code
// serves both direct store calls and transactional calls.
type executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries implements metadata.Writer plus the read operations over an executor.
type queries struct {
	db executor
}

const fileColumns = `
	file_id, family_id, owner_id,
	original_name, folder_path, file_type, category, description, tags,
	file_size, storage_type, storage_path,
	visibility, status,
	create_time, update_time, upload_time, last_access_time,
	access_count, deleted`

// activeFilter restricts queries to finalized, not soft-deleted rows.
const activeFilter = `deleted = FALSE AND status = 'active'`

func scanFile(row pgx.Row) (*metadata.FileMetadata, error) {
	var m metadata.FileMetadata
	err := row.Scan(
		&m.FileID, &m.FamilyID, &m.OwnerID,
		&m.OriginalName, &m.FolderPath, &m.FileType, &m.Category, &m.Description, &m.Tags,
		&m.FileSize, &m.StorageType, &m.StoragePath,
		&m.Visibility, &m.Status,
		&m.CreateTime, &m.UpdateTime, &m.UploadTime, &m.LastAccessTime,
		&m.AccessCount, &m.Deleted,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectFiles(rows pgx.Rows) ([]*metadata.FileMetadata, error) {
	defer rows.Close()

	var out []*metadata.FileMetadata
	for rows.Next() {
		m, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (q *queries) Save(ctx context.Context, m *metadata.FileMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO file_metadata (
			file_id, family_id, owner_id,
			original_name, folder_path, file_type, category, description, tags,
			file_size, storage_type, storage_path,
			visibility, status,
			create_time, update_time, upload_time, last_access_time,
			access_count, deleted
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
	`

	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err := q.db.Exec(ctx, query,
		m.FileID, m.FamilyID, m.OwnerID,
		m.OriginalName, m.FolderPath, m.FileType, string(m.Category), m.Description, tags,
		m.FileSize, m.StorageType, m.StoragePath,
		string(m.Visibility), string(m.Status),
		now, now, m.UploadTime, m.LastAccessTime,
		m.AccessCount, m.Deleted,
	)
	if err != nil {
		return mapPgError(err, "Save", m.FileID)
	}

	m.CreateTime = now
	m.UpdateTime = now
	return nil
}

func (q *queries) Update(ctx context.Context, m *metadata.FileMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		UPDATE file_metadata SET
			family_id = $2, owner_id = $3,
			original_name = $4, folder_path = $5, file_type = $6, category = $7,
			description = $8, tags = $9,
			file_size = $10, storage_type = $11, storage_path = $12,
			visibility = $13, status = $14,
			update_time = $15, upload_time = $16, last_access_time = $17,
			access_count = $18, deleted = $19
		WHERE file_id = $1
	`

	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}

	tag, err := q.db.Exec(ctx, query,
		m.FileID, m.FamilyID, m.OwnerID,
		m.OriginalName, m.FolderPath, m.FileType, string(m.Category),
		m.Description, tags,
		m.FileSize, m.StorageType, m.StoragePath,
		string(m.Visibility), string(m.Status),
		now, m.UploadTime, m.LastAccessTime,
		m.AccessCount, m.Deleted,
	)
	if err != nil {
		return mapPgError(err, "Update", m.FileID)
	}
	if tag.RowsAffected() == 0 {
		return metadata.NewNotFoundError(m.FileID)
	}

	m.UpdateTime = now
	return nil
}

func (q *queries) SoftDelete(ctx context.Context, fileID string, ts time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tag, err := q.db.Exec(ctx,
		`UPDATE file_metadata SET deleted = TRUE, update_time = $2 WHERE file_id = $1`,
		fileID, ts,
	)
	if err != nil {
		return mapPgError(err, "SoftDelete", fileID)
	}
	if tag.RowsAffected() == 0 {
		return metadata.NewNotFoundError(fileID)
	}
	return nil
}

func (q *queries) Remove(ctx context.Context, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tag, err := q.db.Exec(ctx, `DELETE FROM file_metadata WHERE file_id = $1`, fileID)
	if err != nil {
		return mapPgError(err, "Remove", fileID)
	}
	if tag.RowsAffected() == 0 {
		return metadata.NewNotFoundError(fileID)
	}
	return nil
}

func (q *queries) findActive(ctx context.Context, fileID, familyID string) (*metadata.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	row := q.db.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM file_metadata
		 WHERE file_id = $1 AND family_id = $2 AND `+activeFilter,
		fileID, familyID,
	)
	m, err := scanFile(row)
	if err != nil {
		return nil, mapPgError(err, "FindActive", fileID)
	}
	return m, nil
}

func (q *queries) findByID(ctx context.Context, fileID string) (*metadata.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	row := q.db.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM file_metadata WHERE file_id = $1`,
		fileID,
	)
	m, err := scanFile(row)
	if err != nil {
		return nil, mapPgError(err, "FindByID", fileID)
	}
	return m, nil
}

func (q *queries) incrementAccessCount(ctx context.Context, fileID string, ts time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tag, err := q.db.Exec(ctx,
		`UPDATE file_metadata
		 SET access_count = access_count + 1, last_access_time = $2
		 WHERE file_id = $1`,
		fileID, ts,
	)
	if err != nil {
		return mapPgError(err, "IncrementAccessCount", fileID)
	}
	if tag.RowsAffected() == 0 {
		return metadata.NewNotFoundError(fileID)
	}
	return nil
}

func (q *queries) searchActive(ctx context.Context, familyID, keyword string, paging metadata.Paging) ([]*metadata.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if paging.Limit <= 0 {
		paging = metadata.DefaultPaging
	}

	rows, err := q.db.Query(ctx,
		`SELECT `+fileColumns+` FROM file_metadata
		 WHERE family_id = $1 AND `+activeFilter+`
		   AND (original_name ILIKE '%' || $2 || '%'
		        OR description ILIKE '%' || $2 || '%'
		        OR EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE t ILIKE '%' || $2 || '%'))
		 ORDER BY upload_time DESC, file_id
		 LIMIT $3 OFFSET $4`,
		familyID, keyword, paging.Limit, paging.Offset,
	)
	if err != nil {
		return nil, mapPgError(err, "SearchActive", "")
	}

	out, err := collectFiles(rows)
	if err != nil {
		return nil, mapPgError(err, "SearchActive", "")
	}
	return out, nil
}

func (q *queries) listActiveByFamily(ctx context.Context, familyID string) ([]*metadata.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := q.db.Query(ctx,
		`SELECT `+fileColumns+` FROM file_metadata
		 WHERE family_id = $1 AND `+activeFilter+`
		 ORDER BY upload_time DESC, file_id`,
		familyID,
	)
	if err != nil {
		return nil, mapPgError(err, "ListActiveByFamily", "")
	}

	out, err := collectFiles(rows)
	if err != nil {
		return nil, mapPgError(err, "ListActiveByFamily", "")
	}
	return out, nil
}

func (q *queries) listActiveByPrefix(ctx context.Context, familyID, folderPath string) ([]*metadata.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pattern := folderPath + "/%"
	if folderPath == "/" {
		pattern = "/%"
	}

	rows, err := q.db.Query(ctx,
		`SELECT `+fileColumns+` FROM file_metadata
		 WHERE family_id = $1 AND `+activeFilter+`
		   AND (folder_path = $2 OR folder_path LIKE $3)
		 ORDER BY upload_time DESC, file_id`,
		familyID, folderPath, pattern,
	)
	if err != nil {
		return nil, mapPgError(err, "ListActiveByPrefix", "")
	}

	out, err := collectFiles(rows)
	if err != nil {
		return nil, mapPgError(err, "ListActiveByPrefix", "")
	}
	return out, nil
}

func (q *queries) listStalePending(ctx context.Context, cutoff time.Time) ([]*metadata.FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := q.db.Query(ctx,
		`SELECT `+fileColumns+` FROM file_metadata
		 WHERE status = 'pending' AND create_time < $1
		 ORDER BY create_time`,
		cutoff,
	)
	if err != nil {
		return nil, mapPgError(err, "ListStalePending", "")
	}

	out, err := collectFiles(rows)
	if err != nil {
		return nil, mapPgError(err, "ListStalePending", "")
	}
	return out, nil
}

func (q *queries) countActiveByFamily(ctx context.Context, familyID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int64
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM file_metadata WHERE family_id = $1 AND `+activeFilter,
		familyID,
	).Scan(&count)
	if err != nil {
		return 0, mapPgError(err, "CountActiveByFamily", "")
	}
	return count, nil
}

func (q *queries) sumSizeByFamily(ctx context.Context, familyID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var sum int64
	err := q.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(file_size), 0) FROM file_metadata
		 WHERE family_id = $1 AND `+activeFilter,
		familyID,
	).Scan(&sum)
	if err != nil {
		return 0, mapPgError(err, "SumSizeByFamily", "")
	}
	return sum, nil
}

func (q *queries) countByCategory(ctx context.Context, familyID string) (map[metadata.Category]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := q.db.Query(ctx,
		`SELECT category, COUNT(*) FROM file_metadata
		 WHERE family_id = $1 AND `+activeFilter+`
		 GROUP BY category`,
		familyID,
	)
	if err != nil {
		return nil, mapPgError(err, "CountByCategory", "")
	}
	defer rows.Close()

	out := make(map[metadata.Category]int64)
	for rows.Next() {
		var cat string
		var count int64
		if err := rows.Scan(&cat, &count); err != nil {
			return nil, mapPgError(err, "CountByCategory", "")
		}
		out[metadata.Category(cat)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err, "CountByCategory", "")
	}
	return out, nil
}

func (q *queries) GetStats(ctx context.Context, familyID string) (*metadata.FamilyStorageStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := metadata.NewFamilyStorageStats(familyID)
	err := q.db.QueryRow(ctx,
		`SELECT total_files, total_size, category_counts,
		        largest_file_size, largest_file_name, most_recent_file_time, last_updated
		 FROM family_storage_stats WHERE family_id = $1`,
		familyID,
	).Scan(
		&s.TotalFiles, &s.TotalSize, &s.CategoryCounts,
		&s.LargestFileSize, &s.LargestFileName, &s.MostRecentFileTime, &s.LastUpdated,
	)
	if err != nil {
		return nil, mapPgError(err, "GetStats", "")
	}
	return s, nil
}

func (q *queries) PutStats(ctx context.Context, s *metadata.FamilyStorageStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	counts := s.CategoryCounts
	if counts == nil {
		counts = map[metadata.Category]int64{}
	}

	_, err := q.db.Exec(ctx,
		`INSERT INTO family_storage_stats (
			family_id, total_files, total_size, category_counts,
			largest_file_size, largest_file_name, most_recent_file_time, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (family_id) DO UPDATE SET
			total_files = EXCLUDED.total_files,
			total_size = EXCLUDED.total_size,
			category_counts = EXCLUDED.category_counts,
			largest_file_size = EXCLUDED.largest_file_size,
			largest_file_name = EXCLUDED.largest_file_name,
			most_recent_file_time = EXCLUDED.most_recent_file_time,
			last_updated = now()`,
		s.FamilyID, s.TotalFiles, s.TotalSize, counts,
		s.LargestFileSize, s.LargestFileName, s.MostRecentFileTime,
	)
	if err != nil {
		return mapPgError(err, "PutStats", "")
	}
	return nil
}

func (q *queries) Aggregate(ctx context.Context, familyID string) (*metadata.FamilyAggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agg := &metadata.FamilyAggregate{
		CategoryCounts: make(map[metadata.Category]int64),
	}

	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(file_size), 0),
		        COALESCE(MAX(file_size), 0), COALESCE(MAX(upload_time), 'epoch')
		 FROM file_metadata WHERE family_id = $1 AND `+activeFilter,
		familyID,
	).Scan(&agg.TotalFiles, &agg.TotalSize, &agg.LargestFileSize, &agg.MostRecentFileTime)
	if err != nil {
		return nil, mapPgError(err, "Aggregate", "")
	}

	if agg.TotalFiles > 0 {
		err = q.db.QueryRow(ctx,
			`SELECT original_name FROM file_metadata
			 WHERE family_id = $1 AND `+activeFilter+`
			 ORDER BY file_size DESC, file_id LIMIT 1`,
			familyID,
		).Scan(&agg.LargestFileName)
		if err != nil {
			return nil, mapPgError(err, "Aggregate", "")
		}
	}

	counts, err := q.countByCategory(ctx, familyID)
	if err != nil {
		return nil, err
	}
	agg.CategoryCounts = counts

	return agg, nil
}
