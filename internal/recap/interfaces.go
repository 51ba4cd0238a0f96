// Package recap orchestrates recap report generation: report lifecycle,
// audience snapshots, page fan-out, page processing, completion tracking,
// the email phase and the stuck-page sweep.
//
// Page work is delivered at least once. Correctness rests on idempotent
// upserts keyed by (report, offset) for pages and (user, report) for
// artifacts, and on a Report COMPLETE transition that is safe to repeat.
// There is no distributed lock.
package recap

import (
	"context"
	"time"

	"recaps/internal/types"
)

// ReportStore persists reports. Mark* methods return false when the current
// status does not allow the transition.
type ReportStore interface {
	Create(ctx context.Context, reportDate time.Time, kind types.ReportKind) (*types.Report, error)
	GetByID(ctx context.Context, id int64) (*types.Report, error)
	MostRecent(ctx context.Context) (*types.Report, error)
	MarkRunning(ctx context.Context, id int64) (bool, error)
	MarkComplete(ctx context.Context, id int64) (bool, error)
	MarkError(ctx context.Context, id int64, message string) (bool, error)
	SetTotalUsers(ctx context.Context, id int64, total int) error
}

// AudienceStore holds the frozen audience snapshot of each report.
type AudienceStore interface {
	InsertBatch(ctx context.Context, reportID int64, members []types.AudienceMember) (int64, error)
	Count(ctx context.Context, reportID int64) (int, error)
	Page(ctx context.Context, reportID int64, offset, limit int) ([]types.AudienceMember, error)
}

// AudienceSource runs the live audience query. Results are ordered by user id.
type AudienceSource interface {
	Audience(ctx context.Context, p types.Period) ([]types.AudienceMember, error)
	AudienceWindow(ctx context.Context, p types.Period, offset, limit int) ([]types.AudienceMember, error)
	AudienceMember(ctx context.Context, p types.Period, userID int64) (*types.AudienceMember, error)
}

// PageLogStore persists one PageLog per (report, offset).
type PageLogStore interface {
	Ensure(ctx context.Context, reportID int64, offset, pageSize int) (*types.PageLog, error)
	GetByID(ctx context.Context, id int64) (*types.PageLog, error)
	NextQueued(ctx context.Context, reportID int64) (*types.PageLog, error)
	ListStale(ctx context.Context, reportID int64, before time.Time) ([]types.PageLog, error)
	SetMessageID(ctx context.Context, id int64, messageID string) error
	MarkRunning(ctx context.Context, id int64) error
	SetTotal(ctx context.Context, id int64, total int) error
	Heartbeat(ctx context.Context, id int64, currentOffset int) error
	MarkComplete(ctx context.Context, id int64, timeTaken time.Duration) error
	Requeue(ctx context.Context, id int64) error
	Counts(ctx context.Context, reportID int64) (total, outstanding int, err error)
}

// ArtifactStore persists user artifacts. Upsert is idempotent per artifact key.
type ArtifactStore interface {
	Upsert(ctx context.Context, o types.ArtifactOutcome) (id int64, inserted bool, err error)
	ListPendingEmail(ctx context.Context, reportID int64) ([]types.PendingEmail, error)
	PendingEmailForUser(ctx context.Context, reportID, userID int64) (*types.PendingEmail, error)
	MarkEmailRunning(ctx context.Context, id int64) error
	RecordEmail(ctx context.Context, id int64, o types.EmailOutcome) error
}

// BlobStore stores recap documents. Put returns the reference recorded as
// the artifact's data URL; Get accepts that reference.
type BlobStore interface {
	Put(ctx context.Context, key string, body []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// PagePublisher enqueues page messages and returns the queue message id.
type PagePublisher interface {
	PublishPage(ctx context.Context, msg types.PageMessage) (string, error)
}

// Computer builds recap documents. LoadPeriod runs once per page; Compute
// runs once per member.
type Computer interface {
	LoadPeriod(ctx context.Context, p types.Period) (*PeriodContext, error)
	Compute(ctx context.Context, m types.AudienceMember, pc *PeriodContext) (*types.RecapDocument, error)
}

// Notifier delivers transactional email events.
type Notifier interface {
	SendEvent(ctx context.Context, ev types.EmailEvent) (*types.EmailReceipt, error)
}

// Metrics receives orchestration telemetry. Implementations must not block
// on or fail the caller.
type Metrics interface {
	PagesDispatched(ctx context.Context, kind types.ReportKind, count int)
	PagePublishFailed(ctx context.Context, kind types.ReportKind)
	PageProcessed(ctx context.Context, kind types.ReportKind, elapsed time.Duration, succeeded, failed int)
	ReportCompleted(ctx context.Context, kind types.ReportKind)
	EmailsProcessed(ctx context.Context, sent, failed int)
}

// PeriodContext is the per-page data shared by every member's computation.
type PeriodContext struct {
	Period  types.Period
	Globals types.GlobalStats
}

// NopMetrics discards all telemetry.
type NopMetrics struct{}

func (NopMetrics) PagesDispatched(context.Context, types.ReportKind, int)                     {}
func (NopMetrics) PagePublishFailed(context.Context, types.ReportKind)                        {}
func (NopMetrics) PageProcessed(context.Context, types.ReportKind, time.Duration, int, int) {}
func (NopMetrics) ReportCompleted(context.Context, types.ReportKind)                          {}
func (NopMetrics) EmailsProcessed(context.Context, int, int)                                  {}
