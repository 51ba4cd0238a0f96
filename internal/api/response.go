package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"recaps/internal/types"
)

// ErrorResponse is the error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the structured error returned to clients.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// JSON writes data with the given status. A marshal failure becomes a 500.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorDetail{
			Code:      string(types.ErrCodeInternalUnexpected),
			Message:   "failed to marshal response",
			RequestID: types.GetRequestID(r.Context()),
		}})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes err in the error envelope. Only AppError messages reach the
// client; anything else is reported as an unexpected error.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := types.GetRequestID(r.Context())

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		JSON(w, r, appErr.HTTPStatus(), ErrorResponse{Error: ErrorDetail{
			Code:      string(appErr.Code),
			Message:   appErr.Message,
			Details:   appErr.Details,
			RequestID: requestID,
		}})
		return
	}

	JSON(w, r, http.StatusInternalServerError, ErrorResponse{Error: ErrorDetail{
		Code:      string(types.ErrCodeInternalUnexpected),
		Message:   "an unexpected error occurred",
		RequestID: requestID,
	}})
}
