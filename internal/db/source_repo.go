package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"recaps/internal/types"
)

// audienceSelect qualifies users with at least one real (non-testing)
// collection item added inside the window.
const audienceSelect = `SELECT u.id, u.uuid::text, u.user_name, COUNT(i.id)::int AS total_sets
	FROM users u
	JOIN user_collection_items i ON i.user_id = u.id
	JOIN user_collections c ON c.id = i.collection_id AND NOT c.is_testing_collection
	WHERE i.created_at BETWEEN $1 AND $2`

const audienceGroup = ` GROUP BY u.id, u.uuid, u.user_name ORDER BY u.id ASC`

// realSetItems restricts items to a user's real, non-wishlist set collections.
const realSetItems = `FROM user_collection_items i
	JOIN user_collections c ON c.id = i.collection_id
	WHERE i.user_id = $1 AND NOT c.is_testing_collection AND NOT c.is_wish_list
	  AND c.collection_type = 'SETS'`

// SourceRepository runs the read-only queries over the collection tables
// that decide who gets a recap and what goes in it.
type SourceRepository struct {
	db DBTX
}

func NewSourceRepository(db DBTX) *SourceRepository {
	return &SourceRepository{db: db}
}

// Audience returns every qualifying member for the period ordered by user id.
func (r *SourceRepository) Audience(ctx context.Context, p types.Period) ([]types.AudienceMember, error) {
	return r.audience(ctx, audienceSelect+audienceGroup, p.Start, p.End)
}

// AudienceWindow is Audience sliced to [offset, offset+limit).
func (r *SourceRepository) AudienceWindow(ctx context.Context, p types.Period, offset, limit int) ([]types.AudienceMember, error) {
	return r.audience(ctx, audienceSelect+audienceGroup+` OFFSET $3 LIMIT $4`, p.Start, p.End, offset, limit)
}

// AudienceMember returns one user's audience row, or not_found_user when the
// user does not qualify for the period.
func (r *SourceRepository) AudienceMember(ctx context.Context, p types.Period, userID int64) (*types.AudienceMember, error) {
	var m types.AudienceMember
	err := r.db.QueryRow(ctx,
		audienceSelect+` AND u.id = $3`+audienceGroup,
		p.Start, p.End, userID,
	).Scan(&m.UserID, &m.UserUUID, &m.UserName, &m.TotalSets)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeNotFoundUser,
			"user does not qualify for this period", nil, map[string]any{"user_id": userID})
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get audience member", err)
	}
	return &m, nil
}

func (r *SourceRepository) audience(ctx context.Context, sql string, args ...any) ([]types.AudienceMember, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query audience", err)
	}
	defer rows.Close()

	var out []types.AudienceMember
	for rows.Next() {
		var m types.AudienceMember
		if err := rows.Scan(&m.UserID, &m.UserUUID, &m.UserName, &m.TotalSets); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan audience row", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate audience", err)
	}
	return out, nil
}

// GlobalStats aggregates the sets built across the platform in the window.
// A window with no builds is reported as internal_empty_global_stats.
func (r *SourceRepository) GlobalStats(ctx context.Context, start, end time.Time) (*types.GlobalStats, error) {
	var g types.GlobalStats
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(DISTINCT i.user_id), COUNT(DISTINCT i.set_id), COALESCE(SUM(s.number_of_parts), 0)::bigint, COUNT(*)
		 FROM user_collection_items i
		 JOIN user_collections c ON c.id = i.collection_id AND NOT c.is_testing_collection
		 JOIN sets s ON s.id = i.set_id
		 WHERE i.build_status = 'BUILT' AND i.built_date BETWEEN $1 AND $2
		 HAVING COUNT(*) > 0`,
		start, end,
	).Scan(&g.TotalUsers, &g.TotalDistinctSets, &g.TotalPieces, &g.TotalSets)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeInternalEmptyGlobal, "no global build stats for period", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load global stats", err)
	}
	return &g, nil
}

// GlobalMediaCount counts media uploaded platform-wide in the window.
func (r *SourceRepository) GlobalMediaCount(ctx context.Context, start, end time.Time) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_media WHERE created_at BETWEEN $1 AND $2`,
		start, end,
	).Scan(&n); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count global media", err)
	}
	return n, nil
}

// UserProfile returns the public profile and time zone of a user.
func (r *SourceRepository) UserProfile(ctx context.Context, userID int64) (*types.UserProfile, error) {
	var u types.UserProfile
	err := r.db.QueryRow(ctx,
		`SELECT uuid::text, name, user_name, avatar, is_builder, COALESCE(time_zone, ''), created_at
		 FROM users WHERE id = $1`,
		userID,
	).Scan(&u.UUID, &u.Name, &u.UserName, &u.Avatar, &u.IsBuilder, &u.TimeZone, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeNotFoundUser, "user not found", nil,
			map[string]any{"user_id": userID})
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get user", err)
	}
	return &u, nil
}

// UserStats loads the per-user aggregates for a recap in the user's window.
func (r *SourceRepository) UserStats(ctx context.Context, userID int64, start, end time.Time) (*types.UserStats, error) {
	var s types.UserStats
	err := r.db.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) `+realSetItems+` AND i.created_at BETWEEN $2 AND $3),
		   (SELECT COUNT(*) `+realSetItems+` AND i.build_status = 'BUILT' AND i.built_date BETWEEN $2 AND $3),
		   (SELECT COALESCE(SUM(st.number_of_parts), 0)::bigint FROM user_collection_items i
		      JOIN user_collections c ON c.id = i.collection_id
		      JOIN sets st ON st.id = i.set_id
		      WHERE i.user_id = $1 AND NOT c.is_testing_collection AND NOT c.is_wish_list
		        AND c.collection_type = 'SETS' AND i.build_status = 'BUILT' AND i.built_date BETWEEN $2 AND $3),
		   (SELECT COUNT(*) FROM user_collection_minifig_items m
		      JOIN user_collections c ON c.id = m.collection_id
		      WHERE m.user_id = $1 AND NOT c.is_testing_collection AND NOT c.is_wish_list
		        AND c.collection_type = 'MINIFIG' AND m.created_at BETWEEN $2 AND $3),
		   (SELECT COALESCE(SUM(m.quantity), 0)::int FROM user_collection_minifig_items m WHERE m.user_id = $1),
		   (SELECT COUNT(*) FROM user_collections c
		      WHERE c.user_id = $1 AND NOT c.is_testing_collection AND c.created_at BETWEEN $2 AND $3),
		   (SELECT COUNT(*) FROM user_collection_items i
		      JOIN user_collections c ON c.id = i.collection_id
		      WHERE i.user_id = $1 AND NOT c.is_testing_collection AND c.is_wish_list
		        AND i.created_at BETWEEN $2 AND $3),
		   (SELECT COUNT(*) FROM user_media WHERE user_id = $1 AND created_at BETWEEN $2 AND $3)`,
		userID, start, end,
	).Scan(&s.SetsAdded, &s.SetsBuilt, &s.PieceCount, &s.MinifigsAdded, &s.MinifigQuantity,
		&s.CollectionsCreated, &s.WishlistAdded, &s.MediaUploaded)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load user stats", err)
	}

	if s.CollectionTypes, err = r.namedCounts(ctx,
		`SELECT collection_type, COUNT(*)::int FROM user_collections
		 WHERE user_id = $1 AND NOT is_testing_collection AND created_at BETWEEN $2 AND $3
		 GROUP BY collection_type ORDER BY 2 DESC, 1`,
		userID, start, end); err != nil {
		return nil, err
	}

	if s.TopThemes, err = r.namedCounts(ctx,
		`SELECT t.name, COUNT(*)::int FROM user_collection_items i
		 JOIN user_collections c ON c.id = i.collection_id AND NOT c.is_testing_collection
		 JOIN sets st ON st.id = i.set_id
		 JOIN themes t ON t.id = st.theme_id
		 WHERE i.user_id = $1 AND i.created_at BETWEEN $2 AND $3
		 GROUP BY t.name ORDER BY 2 DESC, 1`,
		userID, start, end); err != nil {
		return nil, err
	}
	s.TotalThemes = len(s.TopThemes)
	if len(s.TopThemes) > 5 {
		s.TopThemes = s.TopThemes[:5]
	}
	return &s, nil
}

func (r *SourceRepository) namedCounts(ctx context.Context, sql string, args ...any) ([]types.NamedCount, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query user breakdown", err)
	}
	defer rows.Close()

	out := []types.NamedCount{}
	for rows.Next() {
		var c types.NamedCount
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user breakdown", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate user breakdown", err)
	}
	return out, nil
}
