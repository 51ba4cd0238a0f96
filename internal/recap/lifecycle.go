package recap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"recaps/internal/types"
)

// Lifecycle owns Report creation and status transitions. Statuses only move
// forward, except that an ERROR report can be re-armed to RUNNING or
// completed once its pages finish. A transition the current status does not
// allow is reported as conflict_report_state.
type Lifecycle struct {
	Reports ReportStore
	Log     *slog.Logger
}

// NewLifecycle wires a Lifecycle over the given store.
func NewLifecycle(reports ReportStore, log *slog.Logger) *Lifecycle {
	return &Lifecycle{Reports: reports, Log: log}
}

// Create inserts a QUEUED report for the period containing reportDate. A
// second report for the same period and kind fails with
// conflict_duplicate_report.
func (l *Lifecycle) Create(ctx context.Context, reportDate time.Time, kind types.ReportKind) (*types.Report, error) {
	if reportDate.IsZero() {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidDate, "report date is required", nil)
	}
	date := types.NormalizeReportDate(reportDate, kind)
	report, err := l.Reports.Create(ctx, date, kind)
	if err != nil {
		return nil, err
	}
	l.Log.InfoContext(ctx, "report created",
		"report_id", report.ID,
		"report_date", date.Format(time.DateOnly),
		"kind", string(kind),
	)
	return report, nil
}

// Get loads a report. A missing report is not_found_report, which every
// caller treats as fatal.
func (l *Lifecycle) Get(ctx context.Context, id int64) (*types.Report, error) {
	return l.Reports.GetByID(ctx, id)
}

// MostRecent returns the newest report by report date.
func (l *Lifecycle) MostRecent(ctx context.Context) (*types.Report, error) {
	return l.Reports.MostRecent(ctx)
}

// MarkRunning moves a QUEUED or ERROR report to RUNNING. Repeating it on a
// RUNNING report is a no-op that keeps the original start time.
func (l *Lifecycle) MarkRunning(ctx context.Context, id int64) error {
	ok, err := l.Reports.MarkRunning(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return l.transitionRefused(ctx, id, types.ReportStatusRunning)
	}
	return nil
}

// MarkError records a failure on the report. ERROR is reachable from any
// status.
func (l *Lifecycle) MarkError(ctx context.Context, id int64, message string) error {
	ok, err := l.Reports.MarkError(ctx, id, message)
	if err != nil {
		return err
	}
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundReport, fmt.Sprintf("report %d not found", id), nil)
	}
	l.Log.WarnContext(ctx, "report marked as error", "report_id", id, "error", message)
	return nil
}

// SetTotalUsers records the audience snapshot size.
func (l *Lifecycle) SetTotalUsers(ctx context.Context, id int64, total int) error {
	return l.Reports.SetTotalUsers(ctx, id, total)
}

// markComplete is reserved for the CompletionTracker. Setting COMPLETE on an
// already COMPLETE report succeeds and keeps the first end time.
func (l *Lifecycle) markComplete(ctx context.Context, id int64) error {
	ok, err := l.Reports.MarkComplete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return l.transitionRefused(ctx, id, types.ReportStatusComplete)
	}
	return nil
}

// transitionRefused distinguishes a missing report from one whose status
// does not allow the requested transition.
func (l *Lifecycle) transitionRefused(ctx context.Context, id int64, to types.ReportStatus) error {
	report, err := l.Reports.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return types.NewAppErrorWithDetails(types.ErrCodeConflictReportState,
		fmt.Sprintf("report %d cannot move from %s to %s", id, report.Status, to), nil,
		map[string]any{"report_id": id, "status": string(report.Status), "target": string(to)},
	)
}
