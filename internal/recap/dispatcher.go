package recap

import (
	"context"
	"log/slog"

	"recaps/internal/types"
)

// DefaultPageSize is the number of audience members per page. It keeps one
// page's work inside a single invocation's execution limit.
const DefaultPageSize = 100

// Dispatcher partitions a report's snapshot into pages and publishes one
// queue message per page.
type Dispatcher struct {
	Pages     PageLogStore
	Publisher PagePublisher
	Tracker   *CompletionTracker
	PageSize  int
	Metrics   Metrics
	Log       *slog.Logger
}

// DispatchResult summarizes a Dispatch call.
type DispatchResult struct {
	ReportID   int64 `json:"reportId"`
	TotalPages int   `json:"totalPages"`
	Published  int   `json:"published"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	Completed  bool  `json:"completed,omitempty"`
}

// Dispatch creates every PageLog for the report before publishing any
// message, so an early finisher can never observe a partial page set and
// complete the report prematurely. Pages already published or finished are
// skipped unless rebuild is set, in which case finished pages are requeued.
//
// A publish failure is logged and counted; the remaining pages are still
// published and the failed PageLog stays QUEUED for the sweep.
func (d *Dispatcher) Dispatch(ctx context.Context, report *types.Report, rebuild bool) (*DispatchResult, error) {
	size := d.pageSize()
	total := types.PageCount(report.TotalUsers, size)
	res := &DispatchResult{ReportID: report.ID, TotalPages: total}

	logs := make([]*types.PageLog, 0, total)
	for i := range total {
		offset := i * size
		pl, err := d.Pages.Ensure(ctx, report.ID, offset, min(size, report.TotalUsers-offset))
		if err != nil {
			return nil, err
		}
		logs = append(logs, pl)
	}

	if total == 0 {
		done, err := d.Tracker.Check(ctx, report.ID)
		if err != nil {
			return nil, err
		}
		res.Completed = done
		d.Log.InfoContext(ctx, "report has no audience, nothing to dispatch",
			"report_id", report.ID, "completed", done)
		return res, nil
	}

	for _, pl := range logs {
		if !rebuild && (pl.Status == types.PageStatusJobComplete || pl.QueueMessageID != nil) {
			res.Skipped++
			continue
		}
		if rebuild && pl.Status == types.PageStatusJobComplete {
			if err := d.Pages.Requeue(ctx, pl.ID); err != nil {
				return nil, err
			}
		}
		if err := publishPage(ctx, d.Publisher, d.Pages, d.Log, report, pl, rebuild); err != nil {
			d.Log.ErrorContext(ctx, "failed to publish page",
				"report_id", report.ID,
				"log_id", pl.ID,
				"offset", pl.Offset,
				"error", err,
			)
			d.metrics().PagePublishFailed(ctx, report.Kind)
			res.Failed++
			continue
		}
		res.Published++
	}

	d.metrics().PagesDispatched(ctx, report.Kind, res.Published)
	d.Log.InfoContext(ctx, "pages dispatched",
		"report_id", report.ID,
		"total_pages", res.TotalPages,
		"published", res.Published,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"rebuild", rebuild,
	)
	return res, nil
}

func (d *Dispatcher) pageSize() int {
	if d.PageSize > 0 {
		return d.PageSize
	}
	return DefaultPageSize
}

func (d *Dispatcher) metrics() Metrics {
	if d.Metrics == nil {
		return NopMetrics{}
	}
	return d.Metrics
}

// NewPageMessage builds the queue payload for a page of the report.
func NewPageMessage(report *types.Report, pl *types.PageLog, rebuild bool) types.PageMessage {
	msg := types.PageMessage{
		ReportID: report.ID,
		Offset:   pl.Offset,
		PageSize: pl.PageSize,
		LogID:    pl.ID,
		Rebuild:  rebuild,
		Kind:     report.Kind,
	}
	if report.Kind == types.ReportKindYearInReview {
		msg.PeriodYear = report.Period().Year()
	}
	return msg
}

// publishPage sends the page message and records the queue message id. A
// failure to record the id only loses traceability and is logged.
func publishPage(ctx context.Context, pub PagePublisher, pages PageLogStore, log *slog.Logger,
	report *types.Report, pl *types.PageLog, rebuild bool,
) error {
	id, err := pub.PublishPage(ctx, NewPageMessage(report, pl, rebuild))
	if err != nil {
		return err
	}
	if err := pages.SetMessageID(ctx, pl.ID, id); err != nil {
		log.WarnContext(ctx, "failed to record queue message id",
			"log_id", pl.ID, "message_id", id, "error", err)
	}
	return nil
}
