package recap

import (
	"context"
	"log/slog"

	"recaps/internal/types"
)

// CompletionTracker decides when a report is done. Every page worker calls
// Check after finishing its page; there is no coordinator and no lock.
// Concurrent finishers may both observe zero outstanding pages and both
// complete the report, which is harmless because the COMPLETE transition is
// idempotent.
type CompletionTracker struct {
	Pages     PageLogStore
	Lifecycle *Lifecycle
	Metrics   Metrics
	Log       *slog.Logger
}

// Check completes the report when no PageLog is outstanding and reports
// whether the report is now COMPLETE. A report without pages completes only
// when its snapshot is empty.
func (t *CompletionTracker) Check(ctx context.Context, reportID int64) (bool, error) {
	total, outstanding, err := t.Pages.Counts(ctx, reportID)
	if err != nil {
		return false, err
	}
	if outstanding > 0 {
		t.Log.DebugContext(ctx, "report still has outstanding pages",
			"report_id", reportID, "outstanding", outstanding, "total_pages", total)
		return false, nil
	}

	report, err := t.Lifecycle.Get(ctx, reportID)
	if err != nil {
		return false, err
	}
	if total == 0 && report.TotalUsers > 0 {
		// Snapshot exists but nothing was dispatched yet.
		return false, nil
	}
	switch report.Status {
	case types.ReportStatusComplete:
		return true, nil
	case types.ReportStatusError:
		t.Log.InfoContext(ctx, "all pages finished on a failed report, recovering it",
			"report_id", reportID)
	}

	if err := t.Lifecycle.markComplete(ctx, reportID); err != nil {
		return false, err
	}
	if t.Metrics != nil {
		t.Metrics.ReportCompleted(ctx, report.Kind)
	}
	t.Log.InfoContext(ctx, "report complete",
		"report_id", reportID, "total_pages", total, "total_users", report.TotalUsers)
	return true, nil
}
