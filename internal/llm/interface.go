// internal/llm/interface.go
package llm

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// 错误定义
var ErrUnknownProvider = errors.New("未知的AI提供者")

// Initialize 使用的配置键
const (
	ConfigProviderID   = "provider_id"
	ConfigAPIKey       = "api_key"
	ConfigBaseURL      = "base_url"
	ConfigModel        = "default_model"
	ConfigDisplayName  = "display_name"
	ConfigTimeout      = "timeout"
	ConfigHeaderPrefix = "header:"
)

// 请求参数标准化
type CompletionRequest struct {
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float32 `json:"temperature,omitempty"`
	Model        string  `json:"model,omitempty"`
	Seed         *int    `json:"seed,omitempty"`

	// Schema 非空时要求供应商直接返回符合该结构的对象
	Schema     *jsonschema.Definition `json:"-"`
	SchemaName string                 `json:"-"`
}

// 响应结构标准化
type CompletionResponse struct {
	Text         string `json:"text"`
	Structured   bool   `json:"structured"` // Text 为结构化输出的JSON，无需再做文本提取
	FinishReason string `json:"finish_reason,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

// Provider 单个供应商家族的传输层实现
type Provider interface {
	// 初始化提供者，传入配置；不得产生网络请求
	Initialize(config map[string]string) error

	// 获取提供者名称
	GetName() string

	// 文本生成
	CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// 轻量的连接检测，用于验证凭据
	CheckConnection(ctx context.Context) error
}

// ProviderFactory 创建未初始化的提供者
type ProviderFactory func() Provider

// Registry 提供者注册表，按后端类型索引
type Registry struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]ProviderFactory)}
}

// 全局注册表
var DefaultRegistry = NewRegistry()

// Register 注册一个新的LLM提供者
func (r *Registry) Register(name string, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = factory
}

// GetProvider 获取指定名称的提供者实例
func (r *Registry) GetProvider(name string, config map[string]string) (Provider, error) {
	r.mu.RLock()
	factory, exists := r.providers[name]
	r.mu.RUnlock()
	if !exists {
		return nil, ErrUnknownProvider
	}

	provider := factory()
	if err := provider.Initialize(config); err != nil {
		return nil, err
	}
	return provider, nil
}

// Has 是否注册了该后端
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// GetAvailableProviders 返回所有已注册的提供者名称
func (r *Registry) GetAvailableProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register 注册提供者工厂到全局注册表
func Register(name string, factory ProviderFactory) {
	DefaultRegistry.Register(name, factory)
}

// GetProvider 从全局注册表创建提供者实例
func GetProvider(name string, config map[string]string) (Provider, error) {
	return DefaultRegistry.GetProvider(name, config)
}

