package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"

	"recaps/internal/recap"
	"recaps/internal/types"
)

// Operations is the slice of recap.Service the handler drives.
type Operations interface {
	CreateReport(ctx context.Context, reportDate time.Time, kind types.ReportKind) (*types.Report, error)
	KickOff(ctx context.Context, reportID int64, rebuild bool) (*recap.KickOffResult, error)
	ProcessPage(ctx context.Context, msg types.PageMessage) (*recap.PageResult, error)
	Incremental(ctx context.Context, reportID int64) (*recap.IncrementalResult, error)
	RunUser(ctx context.Context, userID, reportID int64, sendEmail bool) (*recap.UserTestResult, error)
	SendEmails(ctx context.Context, reportID int64) (*recap.EmailSummary, error)
	Sweep(ctx context.Context, reportID int64, staleAfter time.Duration) (*recap.SweepResult, error)
	MarkError(ctx context.Context, reportID int64, message string) error
}

var _ Operations = (*recap.Service)(nil)

// Handler is the Lambda entrypoint. One function serves both the page queue
// and direct invocations.
type Handler struct {
	Ops Operations
	Log *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(ops Operations, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{Ops: ops, Log: log}
}

// Handle accepts either an SQS event or a direct invocation payload.
//
// SQS events return an SQSEventResponse listing only the messages that
// failed, so the queue redelivers those and deletes the rest. Direct
// invocations return the operation result; when a direct invocation fails
// for a known report and the failure is not a client error, the report is
// marked ERROR before the error is returned.
func (h *Handler) Handle(ctx context.Context, payload json.RawMessage) (any, error) {
	if lc, ok := lambdacontext.FromContext(ctx); ok && types.GetRequestID(ctx) == "" {
		ctx = types.WithRequestID(ctx, lc.AwsRequestID)
	}

	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err == nil && isSQSEvent(sqsEvent) {
		return h.HandleSQS(ctx, sqsEvent), nil
	}
	return h.Direct(ctx, payload)
}

func isSQSEvent(ev events.SQSEvent) bool {
	if len(ev.Records) == 0 {
		return false
	}
	for _, r := range ev.Records {
		if r.EventSource != "aws:sqs" {
			return false
		}
	}
	return true
}

// Direct decodes and runs a single direct invocation.
func (h *Handler) Direct(ctx context.Context, payload []byte) (any, error) {
	req, err := Decode(payload)
	if err != nil {
		h.logger(ctx).WarnContext(ctx, "rejected invocation payload", "error", err)
		return nil, err
	}

	res, err := h.Dispatch(ctx, req)
	if err != nil {
		h.failReport(ctx, req.Report(), err)
		return nil, err
	}
	return res, nil
}

// Dispatch runs req against the service.
func (h *Handler) Dispatch(ctx context.Context, req Request) (any, error) {
	log := h.logger(ctx)
	log.InfoContext(ctx, "handling invocation",
		"operation", operationName(req),
		"report_id", req.Report(),
	)

	switch r := req.(type) {
	case CreateReport:
		return h.Ops.CreateReport(ctx, r.ReportDate, r.Kind)
	case UserTest:
		return h.Ops.RunUser(ctx, r.UserID, r.ReportID, r.SendEmail)
	case RunPage:
		return h.Ops.ProcessPage(ctx, r.Message)
	case Incremental:
		return h.Ops.Incremental(ctx, r.ReportID)
	case SendEmails:
		return h.Ops.SendEmails(ctx, r.ReportID)
	case Sweep:
		return h.Ops.Sweep(ctx, r.ReportID, r.StaleAfter)
	case KickOff:
		return h.Ops.KickOff(ctx, r.ReportID, r.Rebuild)
	}
	return nil, types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("unhandled request %T", req), nil)
}

// HandleSQS processes every record independently and reports the failed
// ones. Records whose body can never decode are logged and dropped rather
// than redelivered.
func (h *Handler) HandleSQS(ctx context.Context, ev events.SQSEvent) events.SQSEventResponse {
	resp := events.SQSEventResponse{BatchItemFailures: []events.SQSBatchItemFailure{}}

	for _, record := range ev.Records {
		rctx := h.recordContext(ctx, record)
		log := h.logger(rctx)

		req, err := Decode([]byte(record.Body))
		if err != nil {
			log.ErrorContext(rctx, "discarding undecodable queue message",
				"message_id", record.MessageId,
				"error", err,
			)
			continue
		}

		if _, err := h.Dispatch(rctx, req); err != nil {
			log.ErrorContext(rctx, "queue message failed",
				"message_id", record.MessageId,
				"report_id", req.Report(),
				"error", err,
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}

	if n := len(resp.BatchItemFailures); n > 0 {
		h.Log.WarnContext(ctx, "queue batch finished with failures",
			"records", len(ev.Records),
			"failed", n,
		)
	}
	return resp
}

// recordContext scopes ctx to one record: the trace_id attribute set by the
// publisher wins, then the message id.
func (h *Handler) recordContext(ctx context.Context, record events.SQSMessage) context.Context {
	id := record.MessageId
	if attr, ok := record.MessageAttributes["trace_id"]; ok && attr.StringValue != nil && *attr.StringValue != "" {
		id = *attr.StringValue
	}
	if id == "" {
		id = uuid.NewString()
	}
	ctx = types.WithRequestID(ctx, id)
	return types.WithLogger(ctx, h.Log.With("request_id", id, "message_id", record.MessageId))
}

func (h *Handler) failReport(ctx context.Context, reportID int64, cause error) {
	if reportID <= 0 || types.IsClientError(cause) || errors.Is(cause, context.Canceled) {
		return
	}
	log := h.logger(ctx)
	if err := h.Ops.MarkError(ctx, reportID, cause.Error()); err != nil {
		log.ErrorContext(ctx, "failed to mark report as errored",
			"report_id", reportID,
			"error", err,
		)
		return
	}
	log.WarnContext(ctx, "report marked as errored", "report_id", reportID, "cause", cause)
}

func (h *Handler) logger(ctx context.Context) *slog.Logger {
	return types.LoggerFromContext(ctx, h.Log)
}

func operationName(req Request) string {
	switch req.(type) {
	case CreateReport:
		return "create_report"
	case UserTest:
		return "user_test"
	case RunPage:
		return "run_page"
	case Incremental:
		return "incremental"
	case SendEmails:
		return "send_emails"
	case Sweep:
		return "sweep"
	case KickOff:
		return "kick_off"
	}
	return "unknown"
}
