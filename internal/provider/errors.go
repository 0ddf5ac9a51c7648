package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotRegistered is returned when a provider name has no registration.
var ErrNotRegistered = errors.New("provider: not registered")

// ErrorCode defines Provider error codes
type ErrorCode string

const (
	ErrCodeAuthFailed            ErrorCode = "AUTH_FAILED"
	ErrCodeRateLimited           ErrorCode = "RATE_LIMITED"
	ErrCodeServiceUnavailable    ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeModelNotFound         ErrorCode = "MODEL_NOT_FOUND"
	ErrCodeNetworkError          ErrorCode = "NETWORK_ERROR"
	ErrCodeInvalidRequest        ErrorCode = "INVALID_REQUEST"
	ErrCodeInvalidResponse       ErrorCode = "INVALID_RESPONSE"
	ErrCodeTimeout               ErrorCode = "TIMEOUT"
	ErrCodeContextWindowExceeded ErrorCode = "CONTEXT_WINDOW_EXCEEDED" // Input exceeds model context window
	ErrCodeUnknown               ErrorCode = "UNKNOWN"
)

// ProviderError is a structured error for Provider operations
type ProviderError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Provider   string    `json:"provider"`
	Retryable  bool      `json:"retryable"`
	StatusCode int       `json:"status_code,omitempty"`
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Code, e.Message)
}

// NewProviderError creates a new ProviderError
func NewProviderError(code ErrorCode, message, provider string, retryable bool) *ProviderError {
	return &ProviderError{
		Code:      code,
		Message:   message,
		Provider:  provider,
		Retryable: retryable,
	}
}

// FromStatus classifies an HTTP status returned by a provider backend.
func FromStatus(provider string, status int, message string) *ProviderError {
	pe := &ProviderError{Provider: provider, Message: message, StatusCode: status}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		pe.Code = ErrCodeAuthFailed
	case status == http.StatusNotFound:
		pe.Code = ErrCodeModelNotFound
	case status == http.StatusTooManyRequests:
		pe.Code = ErrCodeRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		pe.Code = ErrCodeTimeout
		pe.Retryable = true
	case status >= 500:
		pe.Code = ErrCodeServiceUnavailable
		pe.Retryable = true
	case status >= 400:
		pe.Code = ErrCodeInvalidRequest
		if IsContextWindowExceeded(errors.New(message)) {
			pe.Code = ErrCodeContextWindowExceeded
		}
	default:
		pe.Code = ErrCodeUnknown
	}
	return pe
}

// IsContextWindowExceeded checks if the error indicates that the input
// exceeded the model's context window limit. Untyped errors fall back to
// keyword matching on the message.
func IsContextWindowExceeded(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeContextWindowExceeded
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context window") ||
		strings.Contains(msg, "context length exceeded") ||
		strings.Contains(msg, "maximum context length") ||
		strings.Contains(msg, "token limit exceeded") ||
		strings.Contains(msg, "too many tokens")
}

// IsRetryable checks if the error is a transient provider error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
