package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convwin/internal/provider"
)

func TestProvider_Chat(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		resp := map[string]any{
			"id":          "msg_test",
			"type":        "message",
			"role":        "assistant",
			"model":       body["model"],
			"stop_reason": "end_turn",
			"content": []map[string]any{
				{"type": "text", "text": "- 🟡 prefers short answers"},
			},
			"usage": map[string]any{
				"input_tokens":  15,
				"output_tokens": 8,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := New(Config{APIKey: "test-key", BaseURL: server.URL})
	resp, err := p.Chat(context.Background(), provider.ChatRequest{
		System:   "Extract observations.",
		Messages: []provider.Message{{Role: "user", Content: "Hello"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "- 🟡 prefers short answers", resp.Content)
	assert.Equal(t, DefaultModel, resp.Model)
	assert.Equal(t, provider.FinishReasonStop, resp.FinishReason)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 23, resp.Usage.TotalTokens)
	assert.EqualValues(t, DefaultMaxTokens, body["max_tokens"])

	system, ok := body["system"].([]any)
	require.True(t, ok)
	assert.Equal(t, "Extract observations.", system[0].(map[string]any)["text"])
}

func TestBuildParams(t *testing.T) {
	params := buildParams(provider.ChatRequest{
		Model:       "claude-test",
		System:      "sys",
		MaxTokens:   64,
		Temperature: 0.3,
		Messages: []provider.Message{
			{Role: "system", Content: "more sys"},
			{Role: "user", Content: "one"},
			{Role: "tool", Content: "two"},
			{Role: "assistant", Content: "three"},
		},
	}, DefaultModel)

	assert.Equal(t, "claude-test", string(params.Model))
	assert.EqualValues(t, 64, params.MaxTokens)
	require.Len(t, params.System, 2)
	require.Len(t, params.Messages, 2, "consecutive user turns are merged")
	assert.Len(t, params.Messages[0].Content, 2)
}

func TestProvider_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	p := New(Config{APIKey: "k", BaseURL: server.URL + "/v1/"})
	_, err := p.Chat(context.Background(), provider.ChatRequest{Messages: []provider.Message{{Role: "user", Content: "x"}}})

	var pe *provider.ProviderError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, provider.ErrCodeRateLimited, pe.Code)
	assert.Equal(t, "anthropic", pe.Provider)
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, normalizeBaseURL(""))
	assert.Equal(t, "https://proxy.local", normalizeBaseURL("https://proxy.local/v1/"))
	assert.Equal(t, "https://proxy.local", normalizeBaseURL(" https://proxy.local "))
}
