package types

import "encoding/json"

// PageMessage is the queue payload published once per page. Field names are
// the wire contract shared with manual direct invocations.
type PageMessage struct {
	ReportID   int64      `json:"reportId"`
	Offset     int        `json:"offset"`
	PageSize   int        `json:"pageSize"`
	LogID      int64      `json:"logId"`
	Rebuild    bool       `json:"rebuild,omitempty"`
	Kind       ReportKind `json:"kind,omitempty"`
	PeriodYear int        `json:"periodYear,omitempty"`
}

// EmailEvent is a transactional email trigger sent to the email provider.
type EmailEvent struct {
	UserID     string         `json:"userId"`
	EventName  string         `json:"eventName"`
	Properties map[string]any `json:"eventProperties,omitempty"`
}

// EmailReceipt is the provider's answer to an EmailEvent. Raw is stored on
// the artifact verbatim.
type EmailReceipt struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Raw     json.RawMessage `json:"-"`
}
