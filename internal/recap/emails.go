package recap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"recaps/internal/types"
)

// Default provider event names per report kind.
const (
	DefaultEventStandard     = "monthly-recaps"
	DefaultEventYearInReview = "year-in-review"
)

// Emails is the notification phase: every COMPLETE artifact with no email
// attempt gets one provider event carrying headline numbers and a link to
// the recap. One user's failure is recorded on that artifact and never stops
// the others.
type Emails struct {
	Lifecycle         *Lifecycle
	Artifacts         ArtifactStore
	Blobs             BlobStore
	Notifier          Notifier
	PublicURL         string
	EventStandard     string
	EventYearInReview string
	Metrics           Metrics
	Log               *slog.Logger
	Now               func() time.Time
}

// EmailSummary counts the outcome of an email run.
type EmailSummary struct {
	ReportID int64 `json:"reportId"`
	Sent     int   `json:"sent"`
	Failed   int   `json:"failed"`
}

// SendAll emails every pending artifact of the report in user id order.
func (e *Emails) SendAll(ctx context.Context, reportID int64) (*EmailSummary, error) {
	report, err := e.Lifecycle.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	pending, err := e.Artifacts.ListPendingEmail(ctx, reportID)
	if err != nil {
		return nil, err
	}
	e.Log.InfoContext(ctx, "email phase started", "report_id", reportID, "pending", len(pending))
	return e.run(ctx, report, pending)
}

// SendOne emails a single user's pending artifact.
func (e *Emails) SendOne(ctx context.Context, reportID, userID int64) (*EmailSummary, error) {
	report, err := e.Lifecycle.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	pe, err := e.Artifacts.PendingEmailForUser(ctx, reportID, userID)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, report, []types.PendingEmail{*pe})
}

func (e *Emails) run(ctx context.Context, report *types.Report, pending []types.PendingEmail) (*EmailSummary, error) {
	sum := &EmailSummary{ReportID: report.ID}
	for _, pe := range pending {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sent, err := e.send(ctx, report, pe)
		if err != nil {
			return sum, err
		}
		if sent {
			sum.Sent++
		} else {
			sum.Failed++
		}
	}
	if e.Metrics != nil {
		e.Metrics.EmailsProcessed(ctx, sum.Sent, sum.Failed)
	}
	e.Log.InfoContext(ctx, "email phase finished",
		"report_id", report.ID, "sent", sum.Sent, "failed", sum.Failed)
	return sum, nil
}

// send delivers one email and records its outcome. The returned error is
// reserved for store failures, which abort the run.
func (e *Emails) send(ctx context.Context, report *types.Report, pe types.PendingEmail) (bool, error) {
	if err := e.Artifacts.MarkEmailRunning(ctx, pe.ArtifactID); err != nil {
		return false, err
	}

	start := time.Now()
	outcome := e.deliver(ctx, report, pe)
	outcome.TimeTakenMs = time.Since(start).Milliseconds()

	if err := e.Artifacts.RecordEmail(ctx, pe.ArtifactID, outcome); err != nil {
		return false, err
	}
	if outcome.Status != types.ArtifactStatusComplete {
		e.Log.WarnContext(ctx, "recap email failed",
			"report_id", report.ID, "user_id", pe.UserID, "error", outcome.Error)
		return false, nil
	}
	return true, nil
}

func (e *Emails) deliver(ctx context.Context, report *types.Report, pe types.PendingEmail) types.EmailOutcome {
	props, err := e.properties(ctx, report, pe)
	if err != nil {
		return types.EmailOutcome{Status: types.ArtifactStatusError, Error: err.Error()}
	}

	receipt, err := e.Notifier.SendEvent(ctx, types.EmailEvent{
		UserID:     pe.UserUUID,
		EventName:  e.eventName(report.Kind),
		Properties: props,
	})
	out := types.EmailOutcome{Status: types.ArtifactStatusError}
	if receipt != nil {
		out.Response = receipt.Raw
	}
	switch {
	case err != nil:
		out.Error = err.Error()
	case !receipt.Success:
		out.Error = receipt.Message
		if out.Error == "" {
			out.Error = "email provider rejected the event"
		}
	default:
		now := e.now()
		out.Status = types.ArtifactStatusComplete
		out.SentAt = &now
	}
	return out
}

// properties loads the stored recap and extracts the email headline values.
func (e *Emails) properties(ctx context.Context, report *types.Report, pe types.PendingEmail) (map[string]any, error) {
	if pe.DataURL == "" {
		return nil, fmt.Errorf("artifact %d has no data url", pe.ArtifactID)
	}
	body, err := e.Blobs.Get(ctx, pe.DataURL)
	if err != nil {
		return nil, err
	}
	var doc types.RecapDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalEncoding, "failed to decode stored recap", err)
	}
	return map[string]any{
		"totalSets":        doc.Stories.Sets.TotalSetsAdded,
		"dateHeader":       report.Period().DateHeader(),
		"piecesBuilt":      doc.Stories.Sets.TotalPieceCount,
		"totalMinifigures": doc.Stories.Minifigs.TotalMinifigsAdded,
		"setsBuilt":        doc.Stories.Sets.TotalSetsBuilt,
		"recapUrl":         strings.TrimRight(e.PublicURL, "/") + "/" + pe.ArtifactUUID,
	}, nil
}

func (e *Emails) eventName(kind types.ReportKind) string {
	if kind == types.ReportKindYearInReview {
		if e.EventYearInReview != "" {
			return e.EventYearInReview
		}
		return DefaultEventYearInReview
	}
	if e.EventStandard != "" {
		return e.EventStandard
	}
	return DefaultEventStandard
}

func (e *Emails) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}
