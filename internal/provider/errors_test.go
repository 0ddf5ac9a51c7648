package provider

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsContextWindowExceeded_TypedError(t *testing.T) {
	err := &ProviderError{
		Code:    ErrCodeContextWindowExceeded,
		Message: "some message",
	}
	assert.True(t, IsContextWindowExceeded(err))
	assert.True(t, IsContextWindowExceeded(fmt.Errorf("outer: %w", err)))
}

func TestIsContextWindowExceeded_KeywordFallback(t *testing.T) {
	keywords := []string{
		"context window exceeded",
		"context length exceeded",
		"maximum context length",
		"token limit exceeded",
		"too many tokens",
	}
	for _, kw := range keywords {
		err := errors.New("provider error: " + kw + " for this model")
		assert.True(t, IsContextWindowExceeded(err), kw)
	}
}

func TestIsContextWindowExceeded_NegativeCases(t *testing.T) {
	cases := []error{
		errors.New("invalid request"),
		errors.New("rate limit exceeded"),
		&ProviderError{Code: ErrCodeRateLimited, Message: "rate limited"},
		nil,
	}
	for _, err := range cases {
		assert.False(t, IsContextWindowExceeded(err), "%v", err)
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status    int
		message   string
		code      ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, "bad key", ErrCodeAuthFailed, false},
		{http.StatusForbidden, "denied", ErrCodeAuthFailed, false},
		{http.StatusNotFound, "no such model", ErrCodeModelNotFound, false},
		{http.StatusTooManyRequests, "slow down", ErrCodeRateLimited, false},
		{http.StatusGatewayTimeout, "timeout", ErrCodeTimeout, true},
		{http.StatusBadGateway, "upstream", ErrCodeServiceUnavailable, true},
		{http.StatusBadRequest, "maximum context length is 8192 tokens", ErrCodeContextWindowExceeded, false},
		{http.StatusBadRequest, "bad json", ErrCodeInvalidRequest, false},
		{http.StatusOK, "odd", ErrCodeUnknown, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%s", tt.status, tt.code), func(t *testing.T) {
			pe := FromStatus("test", tt.status, tt.message)
			assert.Equal(t, tt.code, pe.Code)
			assert.Equal(t, tt.retryable, pe.Retryable)
			assert.Equal(t, tt.retryable, IsRetryable(fmt.Errorf("wrapped: %w", pe)))
			assert.Equal(t, tt.status, pe.StatusCode)
		})
	}
}

func TestIsRetryable_Untyped(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestProviderError_Error(t *testing.T) {
	pe := NewProviderError(ErrCodeNetworkError, "connection refused", "ollama", true)
	assert.Equal(t, "[ollama] NETWORK_ERROR: connection refused", pe.Error())
}
