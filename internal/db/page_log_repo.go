package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"recaps/internal/types"
)

const pageLogColumns = `id, report_id, "offset", page_size, status, total_users, current_offset,
	time_taken_ms, queue_message_id, error, start_time, end_time, created_at, updated_at`

// PageLogRepository persists recap_page_logs rows, one per (report, offset).
type PageLogRepository struct {
	db DBTX
}

func NewPageLogRepository(db DBTX) *PageLogRepository {
	return &PageLogRepository{db: db}
}

// Ensure finds or creates the page log for (reportID, offset). New rows start
// QUEUED; existing rows are returned with their current status.
func (r *PageLogRepository) Ensure(ctx context.Context, reportID int64, offset, pageSize int) (*types.PageLog, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO recap_page_logs (report_id, "offset", page_size, status)
		 VALUES ($1, $2, $3, 'QUEUED')
		 ON CONFLICT (report_id, "offset") DO UPDATE SET page_size = EXCLUDED.page_size
		 RETURNING `+pageLogColumns,
		reportID, offset, pageSize,
	)
	pl, err := scanPageLog(row)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create page log", err)
	}
	return pl, nil
}

// GetByID returns the page log or not_found_page_log.
func (r *PageLogRepository) GetByID(ctx context.Context, id int64) (*types.PageLog, error) {
	pl, err := scanPageLog(r.db.QueryRow(ctx, `SELECT `+pageLogColumns+` FROM recap_page_logs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundPageLog, "page log not found", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get page log", err)
	}
	return pl, nil
}

// NextQueued returns the lowest-offset QUEUED page of a report.
func (r *PageLogRepository) NextQueued(ctx context.Context, reportID int64) (*types.PageLog, error) {
	pl, err := scanPageLog(r.db.QueryRow(ctx,
		`SELECT `+pageLogColumns+` FROM recap_page_logs
		 WHERE report_id = $1 AND status = 'QUEUED'
		 ORDER BY "offset" ASC LIMIT 1`, reportID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundPageLog, "no queued pages remain", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get next queued page", err)
	}
	return pl, nil
}

// ListByReport returns every page log of a report ordered by offset.
func (r *PageLogRepository) ListByReport(ctx context.Context, reportID int64) ([]types.PageLog, error) {
	return r.list(ctx,
		`SELECT `+pageLogColumns+` FROM recap_page_logs WHERE report_id = $1 ORDER BY "offset" ASC`,
		reportID)
}

// ListStale returns pages that look abandoned: QUEUED without a message id,
// or QUEUED/RUNNING with no update since before.
func (r *PageLogRepository) ListStale(ctx context.Context, reportID int64, before time.Time) ([]types.PageLog, error) {
	return r.list(ctx,
		`SELECT `+pageLogColumns+` FROM recap_page_logs
		 WHERE report_id = $1
		   AND ((status = 'QUEUED' AND queue_message_id IS NULL)
		     OR (status IN ('QUEUED', 'RUNNING') AND updated_at < $2))
		 ORDER BY "offset" ASC`,
		reportID, before)
}

func (r *PageLogRepository) list(ctx context.Context, sql string, args ...any) ([]types.PageLog, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list page logs", err)
	}
	defer rows.Close()

	var out []types.PageLog
	for rows.Next() {
		pl, err := scanPageLog(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan page log row", err)
		}
		out = append(out, *pl)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate page logs", err)
	}
	return out, nil
}

// SetMessageID records the queue message id of the last publish.
func (r *PageLogRepository) SetMessageID(ctx context.Context, id int64, messageID string) error {
	return r.exec(ctx, "failed to record queue message id",
		`UPDATE recap_page_logs SET queue_message_id = $2, updated_at = NOW() WHERE id = $1`,
		id, messageID)
}

// MarkRunning moves the page to RUNNING and resets its progress marker.
func (r *PageLogRepository) MarkRunning(ctx context.Context, id int64) error {
	return r.exec(ctx, "failed to mark page running",
		`UPDATE recap_page_logs
		 SET status = 'RUNNING', current_offset = "offset", start_time = NOW(), end_time = NULL,
		     error = NULL, updated_at = NOW()
		 WHERE id = $1`,
		id)
}

// SetTotal records how many members the page holds.
func (r *PageLogRepository) SetTotal(ctx context.Context, id int64, total int) error {
	return r.exec(ctx, "failed to set page total",
		`UPDATE recap_page_logs SET total_users = $2, updated_at = NOW() WHERE id = $1`,
		id, total)
}

// Heartbeat records progress within the page.
func (r *PageLogRepository) Heartbeat(ctx context.Context, id int64, currentOffset int) error {
	return r.exec(ctx, "failed to record page progress",
		`UPDATE recap_page_logs SET current_offset = $2, updated_at = NOW() WHERE id = $1`,
		id, currentOffset)
}

// MarkComplete moves the page to JOBCOMPLETE.
func (r *PageLogRepository) MarkComplete(ctx context.Context, id int64, timeTaken time.Duration) error {
	return r.exec(ctx, "failed to mark page complete",
		`UPDATE recap_page_logs
		 SET status = 'JOBCOMPLETE', time_taken_ms = $2, end_time = NOW(), updated_at = NOW()
		 WHERE id = $1`,
		id, timeTaken.Milliseconds())
}

// Requeue resets a page to QUEUED ahead of a fresh publish.
func (r *PageLogRepository) Requeue(ctx context.Context, id int64) error {
	return r.exec(ctx, "failed to requeue page",
		`UPDATE recap_page_logs
		 SET status = 'QUEUED', queue_message_id = NULL, updated_at = NOW()
		 WHERE id = $1`,
		id)
}

// Counts returns the number of pages of a report and how many of them have
// not reached JOBCOMPLETE.
func (r *PageLogRepository) Counts(ctx context.Context, reportID int64) (total, outstanding int, err error) {
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE status <> 'JOBCOMPLETE')
		 FROM recap_page_logs WHERE report_id = $1`,
		reportID,
	).Scan(&total, &outstanding); err != nil {
		return 0, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count page logs", err)
	}
	return total, outstanding, nil
}

// CountByStatus returns a status histogram of the report's pages.
func (r *PageLogRepository) CountByStatus(ctx context.Context, reportID int64) ([]types.StatusCount, error) {
	return countByStatus(ctx, r.db, "page log",
		`SELECT status, COUNT(*) FROM recap_page_logs WHERE report_id = $1 GROUP BY status ORDER BY status`,
		reportID)
}

func (r *PageLogRepository) exec(ctx context.Context, failMsg, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, failMsg, err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPageLog, "page log not found", nil)
	}
	return nil
}

func scanPageLog(row pgx.Row) (*types.PageLog, error) {
	var (
		pl     types.PageLog
		status string
	)
	if err := row.Scan(&pl.ID, &pl.ReportID, &pl.Offset, &pl.PageSize, &status, &pl.TotalUsers,
		&pl.CurrentOffset, &pl.TimeTakenMs, &pl.QueueMessageID, &pl.Error,
		&pl.StartTime, &pl.EndTime, &pl.CreatedAt, &pl.UpdatedAt); err != nil {
		return nil, err
	}
	pl.Status = types.PageStatus(status)
	return &pl, nil
}

func countByStatus(ctx context.Context, db DBTX, what, sql string, args ...any) ([]types.StatusCount, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count "+what+" statuses", err)
	}
	defer rows.Close()

	var out []types.StatusCount
	for rows.Next() {
		var c types.StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan "+what+" status count", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate "+what+" status counts", err)
	}
	return out, nil
}
