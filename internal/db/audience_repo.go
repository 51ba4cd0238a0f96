package db

import (
	"context"

	"recaps/internal/types"
)

// AudienceRepository stores the write-once audience snapshot of a report.
type AudienceRepository struct {
	db DBTX
}

func NewAudienceRepository(db DBTX) *AudienceRepository {
	return &AudienceRepository{db: db}
}

// InsertBatch writes members in one statement. Rows already present for the
// report are left untouched, so repeating a partially failed snapshot
// converges on the same set. It returns the number of rows inserted.
func (r *AudienceRepository) InsertBatch(ctx context.Context, reportID int64, members []types.AudienceMember) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	userIDs := make([]int64, len(members))
	uuids := make([]string, len(members))
	names := make([]string, len(members))
	sets := make([]int32, len(members))
	for i, m := range members {
		userIDs[i] = m.UserID
		uuids[i] = m.UserUUID
		names[i] = m.UserName
		sets[i] = int32(m.TotalSets)
	}

	tag, err := r.db.Exec(ctx,
		`INSERT INTO recap_audience (report_id, user_id, user_uuid, user_name, total_sets)
		 SELECT $1, t.user_id, t.user_uuid, t.user_name, t.total_sets
		 FROM unnest($2::bigint[], $3::uuid[], $4::text[], $5::int[])
		   AS t(user_id, user_uuid, user_name, total_sets)
		 ON CONFLICT (report_id, user_id) DO NOTHING`,
		reportID, userIDs, uuids, names, sets,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to insert audience batch", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the snapshot size of a report.
func (r *AudienceRepository) Count(ctx context.Context, reportID int64) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM recap_audience WHERE report_id = $1`, reportID,
	).Scan(&n); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count audience", err)
	}
	return n, nil
}

// Page returns the snapshot slice [offset, offset+limit) ordered by user id.
func (r *AudienceRepository) Page(ctx context.Context, reportID int64, offset, limit int) ([]types.AudienceMember, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, user_uuid::text, user_name, total_sets
		 FROM recap_audience
		 WHERE report_id = $1
		 ORDER BY user_id ASC
		 OFFSET $2 LIMIT $3`,
		reportID, offset, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read audience page", err)
	}
	defer rows.Close()

	var out []types.AudienceMember
	for rows.Next() {
		m := types.AudienceMember{ReportID: reportID}
		if err := rows.Scan(&m.UserID, &m.UserUUID, &m.UserName, &m.TotalSets); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan audience row", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate audience page", err)
	}
	return out, nil
}
