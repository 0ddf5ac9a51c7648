package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"convwin/pkg/logger"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "CONVWIN"

// ErrNoConfigFile 未设置配置文件路径
var ErrNoConfigFile = errors.New("config: no config file in use")

// Config 是应用配置的根结构体
type Config struct {
	Window     WindowConfig     `mapstructure:"window" yaml:"window"`
	Summarizer SummarizerConfig `mapstructure:"summarizer" yaml:"summarizer"`
	Ollama     OllamaConfig     `mapstructure:"ollama" yaml:"ollama"`
	OpenAI     OpenAIConfig     `mapstructure:"openai" yaml:"openai"`
	Anthropic  AnthropicConfig  `mapstructure:"anthropic" yaml:"anthropic"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Gateway    GatewayConfig    `mapstructure:"gateway" yaml:"gateway"`
}

// WindowConfig 窗口管理配置
type WindowConfig struct {
	MaxWindow        int           `mapstructure:"max_window" yaml:"max_window"`               // 窗口最大消息数
	MinimumBatch     int           `mapstructure:"minimum_batch" yaml:"minimum_batch"`         // 最小驱逐批次
	SummarizeTimeout time.Duration `mapstructure:"summarize_timeout" yaml:"summarize_timeout"` // 单次摘要超时
	Separator        string        `mapstructure:"separator" yaml:"separator"`
	Placeholder      string        `mapstructure:"placeholder" yaml:"placeholder"`
}

// SummarizerConfig 摘要器配置
type SummarizerConfig struct {
	Kind           string        `mapstructure:"kind" yaml:"kind"`     // llm, static
	Local          string        `mapstructure:"local" yaml:"local"`   // llmLocal=true 时使用的 Provider
	Remote         string        `mapstructure:"remote" yaml:"remote"` // 其余线程使用的 Provider: openai, anthropic
	MaxTokens      int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature    float64       `mapstructure:"temperature" yaml:"temperature"`
	ChunkMaxTokens int           `mapstructure:"chunk_max_tokens" yaml:"chunk_max_tokens"`
	Retries        int           `mapstructure:"retries" yaml:"retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"` // 首次重试等待，逐次翻倍
}

// OllamaConfig Ollama 本地 LLM 配置
type OllamaConfig struct {
	Endpoint  string        `mapstructure:"endpoint" yaml:"endpoint"`     // API 地址
	Model     string        `mapstructure:"model" yaml:"model"`           // 默认模型
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`       // 超时时间
	KeepAlive string        `mapstructure:"keep_alive" yaml:"keep_alive"` // 模型保持时间
}

// OpenAIConfig OpenAI 兼容接口配置
type OpenAIConfig struct {
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	Model      string        `mapstructure:"model" yaml:"model"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// AnthropicConfig Anthropic 接口配置
type AnthropicConfig struct {
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	Model      string        `mapstructure:"model" yaml:"model"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// StorageConfig 摘要日志存储配置
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// GatewayConfig 网关配置
type GatewayConfig struct {
	Port            int             `mapstructure:"port" yaml:"port"`
	Host            string          `mapstructure:"host" yaml:"host"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// Validate 检查配置取值
func (c *Config) Validate() error {
	if c.Window.MaxWindow < 1 {
		return fmt.Errorf("window.max_window must be >= 1, got %d", c.Window.MaxWindow)
	}
	if c.Window.MinimumBatch < 1 {
		return fmt.Errorf("window.minimum_batch must be >= 1, got %d", c.Window.MinimumBatch)
	}
	switch c.Summarizer.Kind {
	case "llm", "static":
	default:
		return fmt.Errorf("summarizer.kind must be llm or static, got %q", c.Summarizer.Kind)
	}
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port out of range: %d", c.Gateway.Port)
	}
	return nil
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load 加载配置文件
// 优先级: ENV > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// 兼容 SDK 惯用的环境变量
	_ = viper.BindEnv("openai.api_key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = viper.BindEnv("anthropic.api_key", EnvPrefix+"_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			// 忽略文件不存在错误，解析错误直接返回
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", expandedPath, err)
			}
		}
	}

	cfg, err := unmarshal()
	if err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

func unmarshal() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch 监听配置文件变化，每次重新解析成功后回调 onChange。
// 解析失败时保留旧配置。
func Watch(onChange func(*Config)) error {
	mu.RLock()
	path := configPath
	mu.RUnlock()
	if path == "" {
		return ErrNoConfigFile
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		mu.Lock()
		cfg, err := unmarshal()
		if err == nil {
			globalConfig = cfg
		}
		mu.Unlock()

		if err != nil {
			logger.Warn().Err(err).Str("file", e.Name).Msg("Ignoring invalid config change")
			return
		}
		logger.Info().Str("file", e.Name).Msg("Config reloaded")
		if onChange != nil {
			onChange(cfg)
		}
	})
	viper.WatchConfig()
	return nil
}

// GetConfig 获取当前配置
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Path 返回正在使用的配置文件路径
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// Set 设置配置值并持久化
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)

	if configPath != "" {
		return save()
	}
	return nil
}

// Save 保存配置到文件
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

// save 内部保存函数，调用者需要持有锁
func save() error {
	if configPath == "" {
		return ErrNoConfigFile
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}

	// 0600: 配置文件可能包含 API Key
	return os.WriteFile(configPath, data, 0600)
}

// SaveTo 保存配置到指定路径
func SaveTo(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Reset 重置配置（主要用于测试）
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}

// Get 获取任意配置值
func Get(key string) any {
	mu.RLock()
	defer mu.RUnlock()
	return viper.Get(key)
}

// GetString 获取字符串配置值
func GetString(key string) string {
	mu.RLock()
	defer mu.RUnlock()
	return viper.GetString(key)
}

// GetInt 获取整数配置值
func GetInt(key string) int {
	mu.RLock()
	defer mu.RUnlock()
	return viper.GetInt(key)
}

// GetBool 获取布尔配置值
func GetBool(key string) bool {
	mu.RLock()
	defer mu.RUnlock()
	return viper.GetBool(key)
}
