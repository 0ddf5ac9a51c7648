// Package anthropic implements the Provider interface on top of the official
// Anthropic Go SDK.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"convwin/internal/provider"
	"convwin/pkg/logger"
)

// Name is the registry name of the Anthropic provider.
const Name = "anthropic"

// Default configuration values.
const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-3-5-haiku-latest"
	DefaultMaxTokens = 1024
	DefaultTimeout   = 120 * time.Second
)

// Config holds Anthropic provider configuration.
type Config struct {
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	Model      string        `mapstructure:"model" yaml:"model"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// Provider talks to the Messages API.
type Provider struct {
	baseURL string
	model   string
	client  *anthropic.Client
}

// New creates a new Anthropic provider.
func New(cfg Config) *Provider {
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
		baseURL: normalizeBaseURL(cfg.BaseURL),
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
	client := anthropic.NewClient(reqOpts...)
	p.client = &client
	return p
}

// Register builds an Anthropic provider from cfg and adds it to the global registry.
func Register(cfg Config) *Provider {
	p := New(cfg)
	provider.Register(p)
	logger.Debug().Str("base_url", p.baseURL).Str("model", p.model).Msg("Anthropic provider registered")
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

// Chat sends a Messages API request.
func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	params := buildParams(req, p.model)

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.AsText().Text)
		}
	}

	finish := provider.FinishReasonStop
	if resp.StopReason == anthropic.StopReasonMaxTokens {
		finish = provider.FinishReasonLength
	}

	return &provider.ChatResponse{
		Content:      content.String(),
		Model:        string(resp.Model),
		FinishReason: finish,
		Usage: &provider.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// buildParams maps a chat request onto the Messages API. System prompts go
// out of band; consecutive same-role turns are merged since the API requires
// alternation.
func buildParams(req provider.ChatRequest, defaultModel string) anthropic.MessageNewParams {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = defaultModel
	}

	var system []anthropic.TextBlockParam
	if req.System != "" {
		system = append(system, anthropic.TextBlockParam{Text: req.System})
	}

	var (
		msgs     []anthropic.MessageParam
		lastRole string
	)
	for _, msg := range req.Messages {
		if msg.Role == provider.RoleSystem {
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
			continue
		}
		role := provider.RoleUser
		if msg.Role == provider.RoleAssistant {
			role = provider.RoleAssistant
		}
		block := anthropic.NewTextBlock(msg.Content)
		if role == lastRole && len(msgs) > 0 {
			last := &msgs[len(msgs)-1]
			last.Content = append(last.Content, block)
			continue
		}
		if role == provider.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
		lastRole = role
	}

	maxTokens := int64(DefaultMaxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	return params
}

func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return provider.FromStatus(Name, apiErr.StatusCode, strings.TrimSpace(apiErr.Error()))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("anthropic request: %w", provider.NewProviderError(provider.ErrCodeTimeout, err.Error(), Name, true))
	}
	return fmt.Errorf("anthropic request: %w", provider.NewProviderError(provider.ErrCodeNetworkError, err.Error(), Name, true))
}

func normalizeBaseURL(apiBase string) string {
	base := strings.TrimRight(strings.TrimSpace(apiBase), "/")
	base = strings.TrimSuffix(base, "/v1")
	if base == "" {
		return DefaultBaseURL
	}
	return base
}
