package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"recaps/internal/types"
)

// upsertByReport and upsertByPeriod share one statement shape and differ in
// the conflict target. An ERROR outcome never clears an earlier data_url, and
// email columns are left to the email phase.
const (
	upsertArtifactPrefix = `INSERT INTO user_recaps
		(uuid, user_id, report_id, period_key, status, data_url, time_taken_ms, error)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''))`

	upsertArtifactSuffix = ` DO UPDATE SET
		report_id     = EXCLUDED.report_id,
		status        = EXCLUDED.status,
		data_url      = COALESCE(EXCLUDED.data_url, user_recaps.data_url),
		time_taken_ms = EXCLUDED.time_taken_ms,
		error         = EXCLUDED.error,
		updated_at    = NOW()
		RETURNING id, (xmax = 0) AS inserted`

	upsertByReport = upsertArtifactPrefix + ` ON CONFLICT (user_id, report_id)` + upsertArtifactSuffix
	upsertByPeriod = upsertArtifactPrefix + ` ON CONFLICT (user_id, period_key)` + upsertArtifactSuffix
)

// An artifact left RUNNING by an email send that never finished is pending
// again once it is older than the longest possible invocation.
const pendingEmailQuery = `SELECT r.id, r.uuid::text, r.user_id, u.uuid::text, COALESCE(r.data_url, '')
	FROM user_recaps r
	JOIN users u ON u.id = r.user_id
	WHERE r.report_id = $1
	  AND (r.status = 'COMPLETE'
	       OR (r.status = 'RUNNING' AND r.data_url IS NOT NULL
	           AND r.updated_at < NOW() - INTERVAL '15 minutes'))
	  AND r.email_sent_at IS NULL
	  AND r.email_response IS NULL
	  AND u.enable_communication_emails`

// ArtifactRepository persists user_recaps rows.
type ArtifactRepository struct {
	db    DBTX
	scope types.ArtifactScope
}

// NewArtifactRepository returns a repository keyed by scope. The zero scope
// means one artifact per (user, report).
func NewArtifactRepository(db DBTX, scope types.ArtifactScope) *ArtifactRepository {
	if scope == "" {
		scope = types.ArtifactScopeReport
	}
	return &ArtifactRepository{db: db, scope: scope}
}

// Upsert writes a generation outcome. A retried page updates the existing
// row in place; inserted reports whether a new row was created.
func (r *ArtifactRepository) Upsert(ctx context.Context, o types.ArtifactOutcome) (id int64, inserted bool, err error) {
	sql := upsertByReport
	if r.scope == types.ArtifactScopePeriod {
		sql = upsertByPeriod
	}
	if err := r.db.QueryRow(ctx, sql,
		uuid.NewString(), o.UserID, o.ReportID, o.PeriodKey, string(o.Status),
		o.DataURL, o.TimeTakenMs, o.Error,
	).Scan(&id, &inserted); err != nil {
		return 0, false, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert user artifact", err)
	}
	return id, inserted, nil
}

// ListPendingEmail returns COMPLETE artifacts of the report whose email was
// never attempted, plus stale RUNNING ones whose send was interrupted, for
// users who accept communication emails.
func (r *ArtifactRepository) ListPendingEmail(ctx context.Context, reportID int64) ([]types.PendingEmail, error) {
	rows, err := r.db.Query(ctx, pendingEmailQuery+` ORDER BY r.user_id ASC`, reportID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list pending emails", err)
	}
	defer rows.Close()

	var out []types.PendingEmail
	for rows.Next() {
		var p types.PendingEmail
		if err := rows.Scan(&p.ArtifactID, &p.ArtifactUUID, &p.UserID, &p.UserUUID, &p.DataURL); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan pending email", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate pending emails", err)
	}
	return out, nil
}

// PendingEmailForUser is ListPendingEmail narrowed to one user.
func (r *ArtifactRepository) PendingEmailForUser(ctx context.Context, reportID, userID int64) (*types.PendingEmail, error) {
	var p types.PendingEmail
	err := r.db.QueryRow(ctx, pendingEmailQuery+` AND r.user_id = $2`, reportID, userID).
		Scan(&p.ArtifactID, &p.ArtifactUUID, &p.UserID, &p.UserUUID, &p.DataURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "no pending recap email for user", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get pending email", err)
	}
	return &p, nil
}

// MarkEmailRunning flags an artifact as being emailed.
func (r *ArtifactRepository) MarkEmailRunning(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_recaps SET status = 'RUNNING', updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark artifact email running", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user artifact not found", nil)
	}
	return nil
}

// RecordEmail stores the outcome of an email send.
func (r *ArtifactRepository) RecordEmail(ctx context.Context, id int64, o types.EmailOutcome) error {
	var response any
	if len(o.Response) > 0 {
		response = []byte(o.Response)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE user_recaps
		 SET status = $2, email_response = $3, email_time_taken_ms = $4, email_sent_at = $5,
		     error = NULLIF($6, ''), updated_at = NOW()
		 WHERE id = $1`,
		id, string(o.Status), response, o.TimeTakenMs, o.SentAt, o.Error,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record email outcome", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user artifact not found", nil)
	}
	return nil
}

// CountByStatus returns a status histogram of the report's artifacts.
func (r *ArtifactRepository) CountByStatus(ctx context.Context, reportID int64) ([]types.StatusCount, error) {
	return countByStatus(ctx, r.db, "artifact",
		`SELECT status, COUNT(*) FROM user_recaps WHERE report_id = $1 GROUP BY status ORDER BY status`,
		reportID)
}
