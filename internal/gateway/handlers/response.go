// Package handlers implements the gateway's HTTP endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"convwin/pkg/logger"
)

// RequestIDHeader carries the per-request correlation id. The logging
// middleware sets it on the response before any handler runs.
const RequestIDHeader = "X-Request-ID"

// Error codes returned in ErrorDetail.Code.
const (
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeInvalidState    = "INVALID_STATE"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeInternalError   = "INTERNAL_ERROR"
	ErrCodeJournalDisabled = "JOURNAL_DISABLED"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// SendJSON writes data as JSON. A nil data writes only the status.
func SendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Debug().Err(err).Int("status", status).Msg("Failed to write response body")
	}
}

// SendError writes an ErrorResponse, echoing the request id when one is set.
func SendError(w http.ResponseWriter, status int, code, message string) {
	SendJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			RequestID: w.Header().Get(RequestIDHeader),
		},
	})
}
