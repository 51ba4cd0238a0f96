package recap

import (
	"context"
	"log/slog"
	"time"

	"recaps/internal/types"
)

// Deps are the collaborators a Service is built from.
type Deps struct {
	Reports   ReportStore
	Audience  AudienceStore
	Source    AudienceSource
	Pages     PageLogStore
	Artifacts ArtifactStore
	Blobs     BlobStore
	Publisher PagePublisher
	Computer  Computer
	Notifier  Notifier
	Metrics   Metrics
	Log       *slog.Logger
}

// Options are the tunables of a Service. Zero values use package defaults.
type Options struct {
	PageSize          int
	SnapshotBatchSize int
	StaleAfter        time.Duration
	PublicURL         string
	EventStandard     string
	EventYearInReview string
}

// Service exposes every recap operation over one set of wired components.
type Service struct {
	Lifecycle  *Lifecycle
	Snapshot   *Snapshot
	Dispatcher *Dispatcher
	Worker     *Worker
	Tracker    *CompletionTracker
	Emails     *Emails
	Sweeper    *Sweeper

	pages    PageLogStore
	source   AudienceSource
	computer Computer
	log      *slog.Logger
}

// NewService wires the components over shared collaborators.
func NewService(d Deps, o Options) *Service {
	if d.Metrics == nil {
		d.Metrics = NopMetrics{}
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	lc := NewLifecycle(d.Reports, d.Log)
	tracker := &CompletionTracker{Pages: d.Pages, Lifecycle: lc, Metrics: d.Metrics, Log: d.Log}
	return &Service{
		Lifecycle: lc,
		Snapshot: &Snapshot{
			Source: d.Source, Audience: d.Audience, Lifecycle: lc,
			BatchSize: o.SnapshotBatchSize, Log: d.Log,
		},
		Dispatcher: &Dispatcher{
			Pages: d.Pages, Publisher: d.Publisher, Tracker: tracker,
			PageSize: o.PageSize, Metrics: d.Metrics, Log: d.Log,
		},
		Worker: &Worker{
			Lifecycle: lc, Pages: d.Pages, Audience: d.Audience, Source: d.Source,
			Artifacts: d.Artifacts, Blobs: d.Blobs, Computer: d.Computer,
			Tracker: tracker, Metrics: d.Metrics, Log: d.Log,
		},
		Tracker: tracker,
		Emails: &Emails{
			Lifecycle: lc, Artifacts: d.Artifacts, Blobs: d.Blobs, Notifier: d.Notifier,
			PublicURL: o.PublicURL, EventStandard: o.EventStandard, EventYearInReview: o.EventYearInReview,
			Metrics: d.Metrics, Log: d.Log,
		},
		Sweeper: &Sweeper{
			Lifecycle: lc, Pages: d.Pages, Publisher: d.Publisher,
			StaleAfter: o.StaleAfter, Metrics: d.Metrics, Log: d.Log,
		},
		pages:    d.Pages,
		source:   d.Source,
		computer: d.Computer,
		log:      d.Log,
	}
}

// CreateReport inserts a new QUEUED report.
func (s *Service) CreateReport(ctx context.Context, reportDate time.Time, kind types.ReportKind) (*types.Report, error) {
	return s.Lifecycle.Create(ctx, reportDate, kind)
}

// KickOffResult is the outcome of starting a report.
type KickOffResult struct {
	ReportID int64           `json:"reportId"`
	Snapshot *SnapshotResult `json:"snapshot"`
	Dispatch *DispatchResult `json:"dispatch"`
}

// KickOff marks the report RUNNING, snapshots its audience and dispatches
// its pages. Repeating it on a RUNNING report reuses the snapshot and only
// publishes pages that were never published.
func (s *Service) KickOff(ctx context.Context, reportID int64, rebuild bool) (*KickOffResult, error) {
	report, err := s.Lifecycle.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if err := s.Lifecycle.MarkRunning(ctx, reportID); err != nil {
		return nil, err
	}
	snap, err := s.Snapshot.Compute(ctx, report)
	if err != nil {
		return nil, err
	}
	dispatch, err := s.Dispatcher.Dispatch(ctx, report, rebuild)
	if err != nil {
		return nil, err
	}
	return &KickOffResult{ReportID: reportID, Snapshot: snap, Dispatch: dispatch}, nil
}

// ProcessPage runs one page.
func (s *Service) ProcessPage(ctx context.Context, msg types.PageMessage) (*PageResult, error) {
	return s.Worker.ProcessPage(ctx, msg)
}

// IncrementalResult is the outcome of resuming a report by one page.
type IncrementalResult struct {
	ReportID       int64       `json:"reportId"`
	Page           *PageResult `json:"page,omitempty"`
	ReportComplete bool        `json:"reportComplete"`
}

// Incremental runs the lowest-offset QUEUED page of the report in-process.
// With nothing left queued it only re-checks completion.
func (s *Service) Incremental(ctx context.Context, reportID int64) (*IncrementalResult, error) {
	if _, err := s.Lifecycle.Get(ctx, reportID); err != nil {
		return nil, err
	}
	pl, err := s.pages.NextQueued(ctx, reportID)
	if types.HasCode(err, types.ErrCodeNotFoundPageLog) {
		done, err := s.Tracker.Check(ctx, reportID)
		if err != nil {
			return nil, err
		}
		s.log.InfoContext(ctx, "no queued page left", "report_id", reportID, "completed", done)
		return &IncrementalResult{ReportID: reportID, ReportComplete: done}, nil
	}
	if err != nil {
		return nil, err
	}

	page, err := s.Worker.ProcessPage(ctx, types.PageMessage{
		ReportID: reportID,
		Offset:   pl.Offset,
		PageSize: pl.PageSize,
		LogID:    pl.ID,
	})
	if err != nil {
		return nil, err
	}
	return &IncrementalResult{ReportID: reportID, Page: page, ReportComplete: page.ReportComplete}, nil
}

// UserTestResult is the outcome of a single-user run.
type UserTestResult struct {
	ReportID int64         `json:"reportId"`
	Member   MemberResult  `json:"member"`
	Email    *EmailSummary `json:"email,omitempty"`
}

// RunUser generates one user's recap synchronously against the given report,
// or the most recent one when reportID is zero, and optionally emails it.
// It touches neither PageLogs nor report status.
func (s *Service) RunUser(ctx context.Context, userID, reportID int64, sendEmail bool) (*UserTestResult, error) {
	var (
		report *types.Report
		err    error
	)
	if reportID == 0 {
		report, err = s.Lifecycle.MostRecent(ctx)
	} else {
		report, err = s.Lifecycle.Get(ctx, reportID)
	}
	if err != nil {
		return nil, err
	}

	period := report.Period()
	member, err := s.source.AudienceMember(ctx, period, userID)
	if err != nil {
		return nil, err
	}
	member.ReportID = report.ID

	pc, err := s.computer.LoadPeriod(ctx, period)
	if err != nil {
		return nil, err
	}
	mr := s.Worker.ProcessMember(ctx, report, pc, *member)
	if mr.Outcome == OutcomeFatal {
		return nil, mr.Err
	}
	res := &UserTestResult{ReportID: report.ID, Member: mr}

	if sendEmail && mr.Outcome == OutcomeSuccess {
		if res.Email, err = s.Emails.SendOne(ctx, report.ID, userID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// SendEmails runs the email phase for the report.
func (s *Service) SendEmails(ctx context.Context, reportID int64) (*EmailSummary, error) {
	return s.Emails.SendAll(ctx, reportID)
}

// Sweep republishes the report's stale pages.
func (s *Service) Sweep(ctx context.Context, reportID int64, staleAfter time.Duration) (*SweepResult, error) {
	return s.Sweeper.Sweep(ctx, reportID, staleAfter)
}

// MarkError records a failure on the report.
func (s *Service) MarkError(ctx context.Context, reportID int64, message string) error {
	return s.Lifecycle.MarkError(ctx, reportID, message)
}
