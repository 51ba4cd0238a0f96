package recap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"recaps/internal/types"
)

// Outcome classifies how one member was handled.
type Outcome string

const (
	// OutcomeSuccess means the recap was stored and the artifact is COMPLETE.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailed means the member's error was recorded on an ERROR
	// artifact and the page moved on.
	OutcomeFailed Outcome = "failed"
	// OutcomeFatal means the artifact itself could not be written; the page
	// is aborted and left for redelivery.
	OutcomeFatal Outcome = "fatal"
)

// MemberResult is the typed result of processing one audience member.
type MemberResult struct {
	UserID     int64   `json:"userId"`
	Outcome    Outcome `json:"outcome"`
	ArtifactID int64   `json:"artifactId,omitempty"`
	DataURL    string  `json:"dataUrl,omitempty"`
	Error      string  `json:"error,omitempty"`
	Err        error   `json:"-"`
}

// PageResult summarizes one processed page.
type PageResult struct {
	ReportID       int64          `json:"reportId"`
	LogID          int64          `json:"logId"`
	Offset         int            `json:"offset"`
	Members        int            `json:"members"`
	Succeeded      int            `json:"succeeded"`
	Failed         int            `json:"failed"`
	ElapsedMs      int64          `json:"elapsedMs"`
	ReportComplete bool           `json:"reportComplete"`
	Results        []MemberResult `json:"-"`
}

// Worker processes one page: every member of the slice is computed, stored
// and recorded as an artifact, strictly in user id order, one at a time.
type Worker struct {
	Lifecycle *Lifecycle
	Pages     PageLogStore
	Audience  AudienceStore
	Source    AudienceSource
	Artifacts ArtifactStore
	Blobs     BlobStore
	Computer  Computer
	Tracker   *CompletionTracker
	Metrics   Metrics
	Log       *slog.Logger
}

// ProcessPage handles one page message. Member failures are isolated and
// recorded; any other failure aborts the page and is returned so the queue
// redelivers it. Redelivery is safe because every write is keyed.
func (w *Worker) ProcessPage(ctx context.Context, msg types.PageMessage) (*PageResult, error) {
	start := time.Now()

	report, err := w.Lifecycle.Get(ctx, msg.ReportID)
	if err != nil {
		return nil, err
	}
	pl, err := w.resolvePage(ctx, report, msg)
	if err != nil {
		return nil, err
	}
	size := msg.PageSize
	if size <= 0 {
		size = pl.PageSize
	}

	log := w.Log.With("report_id", report.ID, "log_id", pl.ID, "offset", pl.Offset)

	if err := w.Pages.MarkRunning(ctx, pl.ID); err != nil {
		return nil, err
	}

	period := report.Period()
	var members []types.AudienceMember
	if msg.Rebuild {
		members, err = w.Source.AudienceWindow(ctx, period, pl.Offset, size)
	} else {
		members, err = w.Audience.Page(ctx, report.ID, pl.Offset, size)
	}
	if err != nil {
		return nil, fmt.Errorf("worker: load members: %w", err)
	}
	if err := w.Pages.SetTotal(ctx, pl.ID, len(members)); err != nil {
		return nil, err
	}

	pc, err := w.Computer.LoadPeriod(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("worker: load period context: %w", err)
	}

	res := &PageResult{
		ReportID: report.ID,
		LogID:    pl.ID,
		Offset:   pl.Offset,
		Members:  len(members),
		Results:  make([]MemberResult, 0, len(members)),
	}
	for i, m := range members {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("worker: page interrupted after %d members: %w", i, err)
		}
		mr := w.ProcessMember(ctx, report, pc, m)
		res.Results = append(res.Results, mr)
		switch mr.Outcome {
		case OutcomeFatal:
			return nil, mr.Err
		case OutcomeFailed:
			res.Failed++
			log.WarnContext(ctx, "member failed", "user_id", m.UserID, "error", mr.Error)
		default:
			res.Succeeded++
		}
		if err := w.Pages.Heartbeat(ctx, pl.ID, pl.Offset+i+1); err != nil {
			return nil, err
		}
	}

	elapsed := time.Since(start)
	if err := w.Pages.MarkComplete(ctx, pl.ID, elapsed); err != nil {
		return nil, err
	}
	res.ElapsedMs = elapsed.Milliseconds()
	w.metrics().PageProcessed(ctx, report.Kind, elapsed, res.Succeeded, res.Failed)
	log.InfoContext(ctx, "page complete",
		"members", res.Members,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"duration_ms", res.ElapsedMs,
	)

	done, err := w.Tracker.Check(ctx, report.ID)
	if err != nil {
		return nil, err
	}
	res.ReportComplete = done
	return res, nil
}

// ProcessMember computes, stores and records one member's recap. Compute,
// encode and blob failures produce an ERROR artifact; only a failed artifact
// write is fatal.
func (w *Worker) ProcessMember(ctx context.Context, report *types.Report, pc *PeriodContext, m types.AudienceMember) MemberResult {
	start := time.Now()
	url, err := w.render(ctx, pc, m)

	outcome := types.ArtifactOutcome{
		UserID:      m.UserID,
		ReportID:    report.ID,
		PeriodKey:   pc.Period.Key(),
		Status:      types.ArtifactStatusComplete,
		DataURL:     url,
		TimeTakenMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		outcome.Status = types.ArtifactStatusError
		outcome.DataURL = ""
		outcome.Error = err.Error()
	}

	id, _, uerr := w.Artifacts.Upsert(ctx, outcome)
	if uerr != nil {
		return MemberResult{
			UserID:  m.UserID,
			Outcome: OutcomeFatal,
			Error:   uerr.Error(),
			Err:     fmt.Errorf("worker: record artifact for user %d: %w", m.UserID, uerr),
		}
	}
	if err != nil {
		return MemberResult{UserID: m.UserID, Outcome: OutcomeFailed, ArtifactID: id, Error: err.Error(), Err: err}
	}
	return MemberResult{UserID: m.UserID, Outcome: OutcomeSuccess, ArtifactID: id, DataURL: url}
}

func (w *Worker) render(ctx context.Context, pc *PeriodContext, m types.AudienceMember) (string, error) {
	doc, err := w.Computer.Compute(ctx, m, pc)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalEncoding, "failed to encode recap", err)
	}
	return w.Blobs.Put(ctx, pc.Period.BlobKey(m.UserUUID), body)
}

// resolvePage loads the PageLog named by the message, or finds-or-creates
// it by offset for manual invocations that carry no log id.
func (w *Worker) resolvePage(ctx context.Context, report *types.Report, msg types.PageMessage) (*types.PageLog, error) {
	if msg.LogID == 0 {
		size := msg.PageSize
		if size <= 0 {
			size = DefaultPageSize
		}
		return w.Pages.Ensure(ctx, report.ID, msg.Offset, size)
	}
	pl, err := w.Pages.GetByID(ctx, msg.LogID)
	if err != nil {
		return nil, err
	}
	if pl.ReportID != report.ID || pl.Offset != msg.Offset {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPayload,
			"page log does not match message", nil,
			map[string]any{"log_id": pl.ID, "report_id": pl.ReportID, "offset": pl.Offset},
		)
	}
	return pl, nil
}

func (w *Worker) metrics() Metrics {
	if w.Metrics == nil {
		return NopMetrics{}
	}
	return w.Metrics
}
