package recap

import (
	"context"
	"log/slog"
	"time"
)

// DefaultStaleAfter is how long a page may sit QUEUED or RUNNING without an
// update before the sweep republishes it.
const DefaultStaleAfter = 30 * time.Minute

// Sweeper republishes stuck pages: pages whose publish failed during
// dispatch and pages whose worker died mid-run.
type Sweeper struct {
	Lifecycle  *Lifecycle
	Pages      PageLogStore
	Publisher  PagePublisher
	StaleAfter time.Duration
	Metrics    Metrics
	Log        *slog.Logger
	Now        func() time.Time
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	ReportID int64 `json:"reportId"`
	Stale    int   `json:"stale"`
	Requeued int   `json:"requeued"`
	Failed   int   `json:"failed"`
}

// Sweep requeues and republishes every page of the report that has not been
// touched within staleAfter. A zero staleAfter uses the sweeper default.
func (s *Sweeper) Sweep(ctx context.Context, reportID int64, staleAfter time.Duration) (*SweepResult, error) {
	report, err := s.Lifecycle.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if staleAfter <= 0 {
		staleAfter = s.StaleAfter
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	stale, err := s.Pages.ListStale(ctx, reportID, now().Add(-staleAfter))
	if err != nil {
		return nil, err
	}

	res := &SweepResult{ReportID: reportID, Stale: len(stale)}
	for i := range stale {
		pl := &stale[i]
		if err := s.Pages.Requeue(ctx, pl.ID); err != nil {
			return res, err
		}
		if err := publishPage(ctx, s.Publisher, s.Pages, s.Log, report, pl, false); err != nil {
			s.Log.ErrorContext(ctx, "failed to republish stale page",
				"report_id", reportID, "log_id", pl.ID, "offset", pl.Offset, "error", err)
			if s.Metrics != nil {
				s.Metrics.PagePublishFailed(ctx, report.Kind)
			}
			res.Failed++
			continue
		}
		res.Requeued++
	}

	s.Log.InfoContext(ctx, "stale page sweep finished",
		"report_id", reportID,
		"stale_after", staleAfter.String(),
		"stale", res.Stale,
		"requeued", res.Requeued,
		"failed", res.Failed,
	)
	return res, nil
}
