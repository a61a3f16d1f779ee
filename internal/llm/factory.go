// internal/llm/factory.go
package llm

import (
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/Corphon/JadeCompass/internal/errors"
	"github.com/Corphon/JadeCompass/internal/models"
	"github.com/Corphon/JadeCompass/internal/utils"
)

// DefaultProviderID 未指定提供者时使用
const DefaultProviderID = "openai"

// DefaultMaxTokens 完整故事的输出上限
const DefaultMaxTokens = 8192

// Factory 根据配置选择并构建客户端，本身不做任何网络请求
type Factory struct {
	catalog         *Catalog
	registry        *Registry
	events          EventLogger
	metrics         *utils.MetricsCollector
	tracer          trace.Tracer
	timeout         time.Duration
	defaultProvider string
	maxTokens       int
	requestIDs      func() string
	now             func() time.Time
}

// FactoryOption 工厂选项
type FactoryOption func(*Factory)

// WithRegistry 使用指定的后端注册表
func WithRegistry(r *Registry) FactoryOption {
	return func(f *Factory) { f.registry = r }
}

// WithEventLogger 注入调用日志端口
func WithEventLogger(l EventLogger) FactoryOption {
	return func(f *Factory) {
		if l != nil {
			f.events = l
		}
	}
}

// WithMetrics 注入指标集合
func WithMetrics(m *utils.MetricsCollector) FactoryOption {
	return func(f *Factory) {
		if m != nil {
			f.metrics = m
		}
	}
}

// WithTracer 注入 tracer
func WithTracer(t trace.Tracer) FactoryOption {
	return func(f *Factory) { f.tracer = t }
}

// WithRequestTimeout 传输层请求超时
func WithRequestTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) { f.timeout = d }
}

// WithDefaultProvider 配置中未指定提供者时使用的ID
func WithDefaultProvider(id string) FactoryOption {
	return func(f *Factory) {
		if id != "" {
			f.defaultProvider = id
		}
	}
}

// WithRequestIDs 替换请求ID生成器
func WithRequestIDs(gen func() string) FactoryOption {
	return func(f *Factory) { f.requestIDs = gen }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) { f.now = now }
}

// NewFactory 创建工厂
func NewFactory(catalog *Catalog, opts ...FactoryOption) *Factory {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	f := &Factory{
		catalog:         catalog,
		registry:        DefaultRegistry,
		events:          NopEventLogger{},
		metrics:         utils.GetMetricsCollector(),
		tracer:          defaultTracer(),
		timeout:         DefaultRequestTimeout,
		defaultProvider: DefaultProviderID,
		maxTokens:       DefaultMaxTokens,
		requestIDs:      NewRequestID,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Catalog 工厂使用的目录
func (f *Factory) Catalog() *Catalog {
	return f.catalog
}

// Backends 已注册的后端类型
func (f *Factory) Backends() []string {
	return f.registry.GetAvailableProviders()
}

// Create 解析配置并构建客户端
func (f *Factory) Create(cfg models.ProviderConfig) (Client, error) {
	id := strings.TrimSpace(cfg.Provider)
	if id == "" {
		id = f.defaultProvider
	}

	info, ok := f.catalog.Lookup(id)
	if !ok || !f.registry.Has(info.Backend) {
		return nil, apperrors.NewUnsupportedProviderError(id)
	}

	apiKey := lookupKey(cfg.APIKeys, id, info.ID)
	if apiKey == "" && !info.Keyless {
		return nil, apperrors.NewMissingCredentialError(info.ID)
	}

	model := EffectiveModel(cfg, info)
	baseURL := info.APIBase
	if cfg.APIBase != "" {
		baseURL = strings.TrimRight(cfg.APIBase, "/")
	}

	config := map[string]string{
		ConfigProviderID:  info.ID,
		ConfigAPIKey:      apiKey,
		ConfigBaseURL:     baseURL,
		ConfigModel:       model,
		ConfigDisplayName: info.Name,
		ConfigTimeout:     f.timeout.String(),
	}
	for k, v := range info.Headers {
		config[ConfigHeaderPrefix+k] = v
	}

	backend, err := f.registry.GetProvider(info.Backend, config)
	if err != nil {
		if errors.Is(err, ErrUnknownProvider) {
			return nil, apperrors.NewUnsupportedProviderError(id)
		}
		return nil, apperrors.NewValidationError("invalid provider configuration for "+info.ID, err)
	}

	return &storyClient{
		backend:    backend,
		info:       info,
		model:      model,
		baseURL:    baseURL,
		maxTokens:  f.maxTokens,
		events:     f.events,
		metrics:    f.metrics,
		tracer:     f.tracer,
		now:        f.now,
		requestIDs: f.requestIDs,
	}, nil
}

// EffectiveModel 自定义标记且填写了自定义模型时用自定义模型，否则用配置的模型，最后回退到默认模型
func EffectiveModel(cfg models.ProviderConfig, info ProviderInfo) string {
	custom := strings.TrimSpace(cfg.CustomModel)
	if cfg.Model == models.CustomModelSentinel {
		if custom != "" {
			return custom
		}
		return info.DefaultModel
	}
	if m := strings.TrimSpace(cfg.Model); m != "" {
		return m
	}
	return info.DefaultModel
}

func lookupKey(keys map[string]string, ids ...string) string {
	for _, id := range ids {
		if k := strings.TrimSpace(keys[id]); k != "" {
			return k
		}
	}
	return ""
}
