package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"convwin/internal/provider"
	"convwin/pkg/logger"
)

// Name is the registry name of the Ollama provider.
const Name = "ollama"

// Error definitions.
var (
	ErrConnectionFailed = errors.New("failed to connect to Ollama server")
	ErrModelNotFound    = errors.New("model not found")
	ErrInvalidResponse  = errors.New("invalid response from Ollama")
	ErrRequestTimeout   = errors.New("request timeout")
)

const modelsCacheTTL = 5 * time.Minute

// OllamaProvider implements the Provider interface for Ollama.
type OllamaProvider struct {
	endpoint   string
	model      string
	httpClient *http.Client
	keepAlive  string

	// Cached model list
	modelsCache []string
	modelsMu    sync.RWMutex
	modelsTime  time.Time
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(cfg Config) *OllamaProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.KeepAlive == "" {
		cfg.KeepAlive = DefaultKeepAlive
	}

	return &OllamaProvider{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		keepAlive: cfg.KeepAlive,
	}
}

// Name returns the provider name.
func (p *OllamaProvider) Name() string {
	return Name
}

// Models returns the list of locally pulled models.
func (p *OllamaProvider) Models() []string {
	p.modelsMu.RLock()
	if time.Since(p.modelsTime) < modelsCacheTTL && len(p.modelsCache) > 0 {
		models := p.modelsCache
		p.modelsMu.RUnlock()
		return models
	}
	p.modelsMu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	models, err := p.fetchModels(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to fetch Ollama models, returning cached")
		p.modelsMu.RLock()
		defer p.modelsMu.RUnlock()
		return p.modelsCache
	}

	p.modelsMu.Lock()
	p.modelsCache = models
	p.modelsTime = time.Now()
	p.modelsMu.Unlock()

	return models
}

// Chat sends a non-streaming chat request to /api/chat.
func (p *OllamaProvider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	ollamaReq := p.buildRequest(req)

	logger.Debug().
		Str("model", ollamaReq.Model).
		Str("thread_id", req.ThreadID).
		Int("messages", len(ollamaReq.Messages)).
		Msg("Ollama chat request")

	resp, err := p.doRequest(ctx, "/api/chat", ollamaReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Ollama error response")
		return nil, p.handleErrorResponse(resp.StatusCode, body)
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		logger.Error().Err(err).Str("body", string(body)).Msg("Failed to parse Ollama response")
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse,
			provider.NewProviderError(provider.ErrCodeInvalidResponse, err.Error(), Name, false))
	}

	return p.convertResponse(&ollamaResp), nil
}

// buildRequest converts a provider.ChatRequest to an Ollama request.
func (p *OllamaProvider) buildRequest(req provider.ChatRequest) *ollamaRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	model = strings.TrimPrefix(model, Name+":")

	ollamaReq := &ollamaRequest{
		Model:     model,
		Messages:  make([]ollamaMessage, 0, len(req.Messages)+1),
		Stream:    false,
		KeepAlive: p.keepAlive,
	}

	if req.System != "" {
		ollamaReq.Messages = append(ollamaReq.Messages, ollamaMessage{Role: provider.RoleSystem, Content: req.System})
	}
	for _, msg := range req.Messages {
		ollamaReq.Messages = append(ollamaReq.Messages, ollamaMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	if req.Temperature > 0 || req.MaxTokens > 0 {
		ollamaReq.Options = &ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		}
	}

	return ollamaReq
}

// doRequest sends a JSON POST to the Ollama API.
func (p *OllamaProvider) doRequest(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrRequestTimeout,
				provider.NewProviderError(provider.ErrCodeTimeout, err.Error(), Name, true))
		}
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed,
			provider.NewProviderError(provider.ErrCodeNetworkError, err.Error(), Name, true))
	}

	return resp, nil
}

// handleErrorResponse converts an error response to an error that matches
// both the package sentinels and *provider.ProviderError.
func (p *OllamaProvider) handleErrorResponse(statusCode int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var errResp ollamaErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		msg = errResp.Error
	}

	pe := provider.FromStatus(Name, statusCode, msg)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrModelNotFound, pe)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %w", ErrConnectionFailed, pe)
	default:
		return pe
	}
}

// convertResponse converts an Ollama response to a provider response.
func (p *OllamaProvider) convertResponse(resp *ollamaResponse) *provider.ChatResponse {
	result := &provider.ChatResponse{
		Content:      resp.Message.Content,
		Model:        resp.Model,
		FinishReason: provider.FinishReasonStop,
	}
	if resp.DoneReason == provider.FinishReasonLength {
		result.FinishReason = provider.FinishReasonLength
	}

	// Usage is approximated from eval counts.
	if resp.PromptEvalCount > 0 || resp.EvalCount > 0 {
		result.Usage = &provider.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		}
	}

	return result
}

// fetchModels fetches the list of available models from Ollama.
func (p *OllamaProvider) fetchModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch models: status %d", resp.StatusCode)
	}

	var modelsResp ollamaModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}

	models := make([]string, 0, len(modelsResp.Models))
	for _, m := range modelsResp.Models {
		models = append(models, m.Name)
	}

	return models, nil
}

// Ping checks if the Ollama server is reachable.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, p.endpoint+"/api/tags", nil)
	if err != nil {
		return provider.NewProviderError(provider.ErrCodeNetworkError, err.Error(), Name, true)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return provider.NewProviderError(provider.ErrCodeServiceUnavailable, "Ollama server is not running or unreachable", Name, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return provider.FromStatus(Name, resp.StatusCode, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	return nil
}
