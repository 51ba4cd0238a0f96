package types

import "fmt"

// ReportStatus tracks a Report through generation.
type ReportStatus string

const (
	ReportStatusQueued      ReportStatus = "QUEUED"
	ReportStatusRunning     ReportStatus = "RUNNING"
	ReportStatusJobComplete ReportStatus = "JOBCOMPLETE"
	ReportStatusComplete    ReportStatus = "COMPLETE"
	ReportStatusError       ReportStatus = "ERROR"
)

// Valid reports whether s is a known report status.
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportStatusQueued, ReportStatusRunning, ReportStatusJobComplete,
		ReportStatusComplete, ReportStatusError:
		return true
	}
	return false
}

// ReportKind selects the reporting period granularity.
type ReportKind string

const (
	ReportKindStandard     ReportKind = "STANDARD"
	ReportKindYearInReview ReportKind = "YEAR_IN_REVIEW"
)

// ParseReportKind parses a kind string. An empty string means STANDARD.
func ParseReportKind(s string) (ReportKind, error) {
	switch ReportKind(s) {
	case "", ReportKindStandard:
		return ReportKindStandard, nil
	case ReportKindYearInReview:
		return ReportKindYearInReview, nil
	}
	return "", NewAppError(ErrCodeValidationInvalidKind, fmt.Sprintf("unknown report kind %q", s), nil)
}

// PageStatus tracks one dispatched page.
type PageStatus string

const (
	PageStatusQueued      PageStatus = "QUEUED"
	PageStatusRunning     PageStatus = "RUNNING"
	PageStatusJobComplete PageStatus = "JOBCOMPLETE"
)

// ArtifactStatus tracks a per-user recap through generation and email delivery.
type ArtifactStatus string

const (
	ArtifactStatusQueued   ArtifactStatus = "QUEUED"
	ArtifactStatusRunning  ArtifactStatus = "RUNNING"
	ArtifactStatusComplete ArtifactStatus = "COMPLETE"
	ArtifactStatusError    ArtifactStatus = "ERROR"
)

// ArtifactScope selects the uniqueness key for user artifacts.
//   - report: one artifact per (user, report)
//   - period: one artifact per (user, report date), shared across reruns of a period
type ArtifactScope string

const (
	ArtifactScopeReport ArtifactScope = "report"
	ArtifactScopePeriod ArtifactScope = "period"
)
