// Package ingress turns inbound invocations into recap operations. Direct
// invocations and queue messages share one JSON vocabulary; Decode resolves
// a payload into exactly one Request variant.
package ingress

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"recaps/internal/types"
)

// Request is the closed set of operations an invocation can ask for.
type Request interface {
	// Report returns the report the request targets, or 0 when it does not
	// name one.
	Report() int64
	isRequest()
}

// CreateReport creates a QUEUED report for the period containing ReportDate.
type CreateReport struct {
	ReportDate time.Time        `json:"reportDate" validate:"required"`
	Kind       types.ReportKind `json:"kind"`
}

// UserTest generates one user's recap synchronously. A zero ReportID means
// the most recent report.
type UserTest struct {
	UserID    int64 `json:"userId" validate:"gt=0"`
	ReportID  int64 `json:"reportId,omitempty" validate:"gte=0"`
	SendEmail bool  `json:"sendEmail,omitempty"`
}

// RunPage processes exactly one page.
type RunPage struct {
	Message types.PageMessage `json:"message"`
}

// Incremental runs the next QUEUED page of a report in-process.
type Incremental struct {
	ReportID int64 `json:"reportId" validate:"gt=0"`
}

// SendEmails runs the email phase of a report.
type SendEmails struct {
	ReportID int64 `json:"reportId" validate:"gt=0"`
}

// Sweep republishes stale pages of a report.
type Sweep struct {
	ReportID   int64         `json:"reportId" validate:"gt=0"`
	StaleAfter time.Duration `json:"staleAfter" validate:"gte=0"`
}

// KickOff snapshots the audience of an existing report and dispatches its
// pages.
type KickOff struct {
	ReportID int64 `json:"reportId" validate:"gt=0"`
	Rebuild  bool  `json:"rebuild,omitempty"`
}

func (r CreateReport) Report() int64 { return 0 }
func (r UserTest) Report() int64     { return r.ReportID }
func (r RunPage) Report() int64      { return r.Message.ReportID }
func (r Incremental) Report() int64  { return r.ReportID }
func (r SendEmails) Report() int64   { return r.ReportID }
func (r Sweep) Report() int64        { return r.ReportID }
func (r KickOff) Report() int64      { return r.ReportID }

func (CreateReport) isRequest() {}
func (UserTest) isRequest()     {}
func (RunPage) isRequest()      {}
func (Incremental) isRequest()  {}
func (SendEmails) isRequest()   {}
func (Sweep) isRequest()        {}
func (KickOff) isRequest()      {}

// payload is the union of every field an invocation may carry.
type payload struct {
	ReportDate        string  `json:"reportDate"`
	Kind              string  `json:"kind"`
	UserID            *int64  `json:"userId"`
	ReportID          *int64  `json:"reportId"`
	SendEmail         bool    `json:"sendEmail"`
	Batch             bool    `json:"batch"`
	Offset            int     `json:"offset"`
	PageSize          int     `json:"pageSize"`
	LogID             *int64  `json:"logId"`
	Rebuild           bool    `json:"rebuild"`
	PeriodYear        int     `json:"periodYear"`
	Incremental       bool    `json:"incremental"`
	Emails            bool    `json:"emails"`
	Sweep             bool    `json:"sweep"`
	StaleAfterMinutes float64 `json:"staleAfterMinutes"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// reportDateLayouts are tried in order when parsing reportDate.
var reportDateLayouts = []string{time.RFC3339, time.DateOnly, "2006-01"}

// Decode resolves body into a Request. Variants are matched by the fields
// present, in this order: reportDate, userId, batch or logId, incremental,
// emails, sweep, then a bare reportId.
func Decode(body []byte) (Request, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON, "invocation payload is not valid JSON", err)
	}
	reportID := int64(0)
	if p.ReportID != nil {
		reportID = *p.ReportID
	}

	var req Request
	switch {
	case p.ReportDate != "":
		date, err := parseReportDate(p.ReportDate)
		if err != nil {
			return nil, err
		}
		kind, err := types.ParseReportKind(p.Kind)
		if err != nil {
			return nil, err
		}
		req = CreateReport{ReportDate: date, Kind: kind}
	case p.UserID != nil:
		req = UserTest{UserID: *p.UserID, ReportID: reportID, SendEmail: p.SendEmail}
	case p.Batch || p.LogID != nil:
		msg := types.PageMessage{
			ReportID:   reportID,
			Offset:     p.Offset,
			PageSize:   p.PageSize,
			Rebuild:    p.Rebuild,
			PeriodYear: p.PeriodYear,
		}
		if p.LogID != nil {
			msg.LogID = *p.LogID
		}
		if p.Kind != "" {
			kind, err := types.ParseReportKind(p.Kind)
			if err != nil {
				return nil, err
			}
			msg.Kind = kind
		}
		if err := validatePage(msg); err != nil {
			return nil, err
		}
		req = RunPage{Message: msg}
	case p.Incremental:
		req = Incremental{ReportID: reportID}
	case p.Emails:
		req = SendEmails{ReportID: reportID}
	case p.Sweep:
		req = Sweep{ReportID: reportID, StaleAfter: time.Duration(p.StaleAfterMinutes * float64(time.Minute))}
	case p.ReportID != nil:
		req = KickOff{ReportID: reportID, Rebuild: p.Rebuild}
	default:
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPayload,
			"payload matches no operation: expected reportDate, userId, batch, incremental, emails, sweep or reportId", nil)
	}

	if err := validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	return req, nil
}

func validatePage(msg types.PageMessage) error {
	switch {
	case msg.ReportID <= 0:
		return types.NewAppError(types.ErrCodeValidationMissingField, "page request requires reportId", nil)
	case msg.Offset < 0 || msg.PageSize < 0:
		return types.NewAppError(types.ErrCodeValidationInvalidPayload, "offset and pageSize must not be negative", nil)
	}
	return nil
}

func parseReportDate(s string) (time.Time, error) {
	for _, layout := range reportDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidDate,
		"reportDate must be RFC3339, YYYY-MM-DD or YYYY-MM", nil, map[string]any{"reportDate": s})
}

func validationError(err error) error {
	var fields []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields = append(fields, fe.Field()+" "+fe.Tag())
		}
	}
	code := types.ErrCodeValidationInvalidPayload
	for _, f := range fields {
		if strings.HasSuffix(f, " required") || strings.HasSuffix(f, " gt") {
			code = types.ErrCodeValidationMissingField
		}
	}
	return types.NewAppErrorWithDetails(code, "invalid invocation payload", err,
		map[string]any{"fields": fields})
}
