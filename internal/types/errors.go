package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

const (
	// Validation (400)
	ErrCodeValidationInvalidPayload ErrorCode = "validation_invalid_payload"
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidKind    ErrorCode = "validation_invalid_report_kind"
	ErrCodeValidationInvalidDate    ErrorCode = "validation_invalid_report_date"
	ErrCodeValidationInvalidJSON    ErrorCode = "validation_invalid_json"

	// Auth (401)
	ErrCodeAuthTokenMissing ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid ErrorCode = "auth_token_invalid"

	// Not Found (404)
	ErrCodeNotFoundReport  ErrorCode = "not_found_report"
	ErrCodeNotFoundPageLog ErrorCode = "not_found_page_log"
	ErrCodeNotFoundUser    ErrorCode = "not_found_user"

	// Conflict (409)
	ErrCodeConflictDuplicateReport ErrorCode = "conflict_duplicate_report"
	ErrCodeConflictReportState     ErrorCode = "conflict_report_state"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB            ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected    ErrorCode = "internal_unexpected_error"
	ErrCodeInternalEmptyGlobal   ErrorCode = "internal_empty_global_stats"
	ErrCodeInternalEncoding      ErrorCode = "internal_encoding_error"
	ErrCodeUpstreamBlobStore     ErrorCode = "upstream_blob_store"
	ErrCodeUpstreamQueue         ErrorCode = "upstream_queue"
	ErrCodeUpstreamEmailProvider ErrorCode = "upstream_email_provider_unavailable"
	ErrCodeUpstreamUnavailable   ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited   ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its HTTP status by prefix.
// Unrecognized codes map to 500.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the error type shared by every layer. Repositories, the
// orchestration components and the HTTP layer all speak in AppErrors so that
// callers can branch on Code with errors.As.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates an AppError with an optional underlying cause.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates an AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or "" when
// the chain carries none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether err's chain contains an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsClientError reports whether err describes bad input or a missing or
// conflicting resource rather than a processing failure.
func IsClientError(err error) bool {
	code := string(CodeOf(err))
	return strings.HasPrefix(code, "validation_") ||
		strings.HasPrefix(code, "not_found_") ||
		strings.HasPrefix(code, "conflict_") ||
		strings.HasPrefix(code, "auth_")
}
