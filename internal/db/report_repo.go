package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"recaps/internal/types"
)

const reportColumns = `id, report_date, kind, status, total_users, start_time, end_time, error, created_at, updated_at`

// ReportRepository persists recap_reports rows.
type ReportRepository struct {
	db DBTX
}

func NewReportRepository(db DBTX) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a QUEUED report. The (report_date, kind) unique constraint
// turns a second report for the same period into DuplicateReport.
func (r *ReportRepository) Create(ctx context.Context, reportDate time.Time, kind types.ReportKind) (*types.Report, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO recap_reports (report_date, kind, status)
		 VALUES ($1, $2, 'QUEUED')
		 ON CONFLICT (report_date, kind) DO NOTHING
		 RETURNING `+reportColumns,
		reportDate, string(kind),
	)
	rep, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConflictDuplicateReport,
			"a report already exists for this period", nil,
			map[string]any{"report_date": reportDate.Format("2006-01-02"), "kind": string(kind)})
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create report", err)
	}
	return rep, nil
}

// GetByID returns the report or not_found_report.
func (r *ReportRepository) GetByID(ctx context.Context, id int64) (*types.Report, error) {
	row := r.db.QueryRow(ctx, `SELECT `+reportColumns+` FROM recap_reports WHERE id = $1`, id)
	rep, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundReport, "report not found", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get report", err)
	}
	return rep, nil
}

// MostRecent returns the newest report by creation time.
func (r *ReportRepository) MostRecent(ctx context.Context) (*types.Report, error) {
	row := r.db.QueryRow(ctx, `SELECT `+reportColumns+` FROM recap_reports ORDER BY created_at DESC, id DESC LIMIT 1`)
	rep, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundReport, "no reports exist", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get most recent report", err)
	}
	return rep, nil
}

// ListRecent returns up to limit reports, newest first.
func (r *ReportRepository) ListRecent(ctx context.Context, limit int) ([]types.Report, error) {
	rows, err := r.db.Query(ctx, `SELECT `+reportColumns+` FROM recap_reports ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list reports", err)
	}
	defer rows.Close()

	var out []types.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan report row", err)
		}
		out = append(out, *rep)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate reports", err)
	}
	return out, nil
}

// MarkRunning moves QUEUED, RUNNING or ERROR reports to RUNNING and stamps
// the first start_time. Re-arming an ERROR report clears its error and
// end_time. It returns false when the current status does not allow it.
func (r *ReportRepository) MarkRunning(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE recap_reports
		 SET status = 'RUNNING', start_time = COALESCE(start_time, NOW()),
		     error = CASE WHEN status = 'ERROR' THEN NULL ELSE error END,
		     end_time = CASE WHEN status = 'ERROR' THEN NULL ELSE end_time END,
		     updated_at = NOW()
		 WHERE id = $1 AND status IN ('QUEUED', 'RUNNING', 'ERROR')`,
		id,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark report running", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkComplete moves a report to COMPLETE. end_time keeps its first value so
// a repeated call is a no-op in effect. A report whose pages all finished
// after it was marked ERROR completes too, with a fresh end_time.
func (r *ReportRepository) MarkComplete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE recap_reports
		 SET status = 'COMPLETE',
		     end_time = CASE WHEN status = 'ERROR' THEN NOW() ELSE COALESCE(end_time, NOW()) END,
		     error = CASE WHEN status = 'ERROR' THEN NULL ELSE error END,
		     updated_at = NOW()
		 WHERE id = $1 AND status IN ('RUNNING', 'JOBCOMPLETE', 'COMPLETE', 'ERROR')`,
		id,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark report complete", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkError records message and moves the report to ERROR from any state.
func (r *ReportRepository) MarkError(ctx context.Context, id int64, message string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE recap_reports
		 SET status = 'ERROR', error = $2, end_time = COALESCE(end_time, NOW()), updated_at = NOW()
		 WHERE id = $1`,
		id, message,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark report error", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetTotalUsers records the audience snapshot size.
func (r *ReportRepository) SetTotalUsers(ctx context.Context, id int64, total int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE recap_reports SET total_users = $2, updated_at = NOW() WHERE id = $1`,
		id, total,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set report total users", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundReport, "report not found", nil)
	}
	return nil
}

func scanReport(row pgx.Row) (*types.Report, error) {
	var (
		rep    types.Report
		kind   string
		status string
	)
	if err := row.Scan(&rep.ID, &rep.ReportDate, &kind, &status, &rep.TotalUsers,
		&rep.StartTime, &rep.EndTime, &rep.Error, &rep.CreatedAt, &rep.UpdatedAt); err != nil {
		return nil, err
	}
	rep.Kind = types.ReportKind(kind)
	rep.Status = types.ReportStatus(status)
	return &rep, nil
}
