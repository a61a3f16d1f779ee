// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// 当前配置的单例实例
var (
	currentConfig *Config
	configMutex   sync.RWMutex
)

// Config 包含应用程序的所有配置
type Config struct {
	// 基础配置
	Port        string `envconfig:"PORT" default:"8080"`
	DebugMode   bool   `envconfig:"DEBUG_MODE" default:"false"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`
	LogOutput   string `envconfig:"LOG_OUTPUT" default:"stdout"`

	// LLM相关配置
	DefaultProvider   string        `envconfig:"DEFAULT_PROVIDER" default:"openai"`
	LLMRequestTimeout time.Duration `envconfig:"LLM_REQUEST_TIMEOUT" default:"90s"`

	// API
	StartRateLimit     int           `envconfig:"START_RATE_LIMIT" default:"10"`
	StartRateWindow    time.Duration `envconfig:"START_RATE_WINDOW" default:"1m"`
	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	SessionTTL         time.Duration `envconfig:"SESSION_TTL" default:"2h"`
	MaxSessions        int           `envconfig:"MAX_SESSIONS" default:"1000"`

	// 链路追踪，endpoint 为空时关闭
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `envconfig:"OTEL_SERVICE_NAME" default:"jade-compass"`

	// 供应商密钥，仅用于初始化新会话的内存密钥表
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey  string `envconfig:"ANTHROPIC_API_KEY"`
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	MistralAPIKey    string `envconfig:"MISTRAL_API_KEY"`
	OpenRouterAPIKey string `envconfig:"OPENROUTER_API_KEY"`
	GroqAPIKey       string `envconfig:"GROQ_API_KEY"`
}

// Load 从 .env（可选）和环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMutex.Lock()
	currentConfig = &cfg
	configMutex.Unlock()

	return cfg.clone(), nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT 不能为空")
	}
	if c.LLMRequestTimeout <= 0 {
		return fmt.Errorf("LLM_REQUEST_TIMEOUT 必须为正数")
	}
	if c.StartRateLimit <= 0 || c.StartRateWindow <= 0 {
		return fmt.Errorf("START_RATE_LIMIT 与 START_RATE_WINDOW 必须为正数")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL 必须为正数")
	}
	switch c.LogEncoding {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_ENCODING 只支持 json 或 console: %q", c.LogEncoding)
	}
	return nil
}

// Get 返回当前配置的副本，未加载时为 nil
func Get() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		return nil
	}
	return currentConfig.clone()
}

// ProviderKeys 环境变量中配置的密钥，按提供者ID索引
func (c *Config) ProviderKeys() map[string]string {
	keys := map[string]string{}
	add := func(key string, ids ...string) {
		key = strings.TrimSpace(key)
		if key == "" {
			return
		}
		for _, id := range ids {
			keys[id] = key
		}
	}

	add(c.OpenAIAPIKey, "openai", "openai-ai-sdk")
	add(c.AnthropicAPIKey, "anthropic", "anthropic-ai-sdk")
	add(c.GeminiAPIKey, "google", "google-ai-sdk")
	add(c.MistralAPIKey, "mistral", "mistral-ai-sdk")
	add(c.OpenRouterAPIKey, "openrouter", "openrouter-ai-sdk")
	add(c.GroqAPIKey, "groq-ai-sdk")
	return keys
}

func (c *Config) clone() *Config {
	out := *c
	out.CORSAllowedOrigins = append([]string(nil), c.CORSAllowedOrigins...)
	return &out
}
