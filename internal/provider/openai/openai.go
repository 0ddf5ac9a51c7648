// Package openai implements the Provider interface on top of the official
// OpenAI Go SDK. Any OpenAI-compatible chat completions endpoint works.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"convwin/internal/provider"
	"convwin/pkg/logger"
)

// Name is the registry name of the OpenAI provider.
const Name = "openai"

// Default configuration values.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 120 * time.Second
)

// Config holds OpenAI provider configuration.
type Config struct {
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	Model      string        `mapstructure:"model" yaml:"model"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// Provider talks to a chat completions endpoint.
type Provider struct {
	baseURL string
	model   string
	client  *openai.Client
}

// New creates a new OpenAI provider.
func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	p := &Provider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
	}

	reqOpts := []option.RequestOption{
		option.WithBaseURL(p.baseURL),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(cfg.APIKey))
	}
	client := openai.NewClient(reqOpts...)
	p.client = &client
	return p
}

// Register builds an OpenAI provider from cfg and adds it to the global registry.
func Register(cfg Config) *Provider {
	p := New(cfg)
	provider.Register(p)
	logger.Debug().Str("base_url", p.baseURL).Str("model", p.model).Msg("OpenAI provider registered")
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return Name
}

// Models returns the configured model.
func (p *Provider) Models() []string {
	return []string{p.model}
}

// Chat sends a chat completion request.
func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	params := buildParams(req, p.model)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, provider.NewProviderError(provider.ErrCodeInvalidResponse, "no choices returned", Name, true)
	}

	choice := resp.Choices[0]
	out := &provider.ChatResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: choice.FinishReason,
	}
	if resp.Usage.TotalTokens > 0 || resp.Usage.PromptTokens > 0 {
		out.Usage = &provider.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		}
	}
	return out, nil
}

func buildParams(req provider.ChatRequest, defaultModel string) openai.ChatCompletionNewParams {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = defaultModel
	}
	model = strings.TrimPrefix(model, Name+"/")

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case provider.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(msg.Content))
		case provider.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(msg.Content))
		default:
			msgs = append(msgs, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Opt(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Opt(req.Temperature)
	}
	return params
}

func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return provider.FromStatus(Name, apiErr.StatusCode, strings.TrimSpace(apiErr.Message))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("openai request: %w", provider.NewProviderError(provider.ErrCodeTimeout, err.Error(), Name, true))
	}
	return fmt.Errorf("openai request: %w", provider.NewProviderError(provider.ErrCodeNetworkError, err.Error(), Name, true))
}
