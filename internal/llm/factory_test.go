package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/JadeCompass/internal/errors"
	"github.com/Corphon/JadeCompass/internal/models"
	"github.com/Corphon/JadeCompass/internal/utils"
)

var allBackends = []string{"openai", "anthropic", "google", "mistral", "ollama"}

func newTestFactory(r *Registry) *Factory {
	return NewFactory(DefaultCatalog(), WithRegistry(r), WithMetrics(utils.NewMetricsCollector()))
}

func TestFactoryCreateIsDeterministic(t *testing.T) {
	var created []*MockProvider
	f := newTestFactory(newFreshRegistry(&created, allBackends...))
	cfg := models.ProviderConfig{Provider: "openai", APIKeys: map[string]string{"openai": "k"}, Model: "gpt-4o"}

	a, err := f.Create(cfg)
	require.NoError(t, err)
	b, err := f.Create(cfg)
	require.NoError(t, err)

	require.Len(t, created, 2)
	assert.NotSame(t, created[0], created[1])
	assert.Equal(t, created[0].config, created[1].config)
	assert.Equal(t, "k", created[0].config[ConfigAPIKey])
	assert.Equal(t, "https://api.openai.com/v1", created[0].config[ConfigBaseURL])
	assert.Equal(t, "gpt-4o", created[0].config[ConfigModel])
	assert.Equal(t, a.Model(), b.Model())
	assert.Equal(t, a.ProviderID(), b.ProviderID())
}

func TestFactoryUnknownProvider(t *testing.T) {
	f := newTestFactory(newMockRegistry(&MockProvider{}, allBackends...))
	_, err := f.Create(models.ProviderConfig{Provider: "unknown"})
	assert.True(t, apperrors.IsUnsupportedProvider(err))
}

func TestFactoryUnregisteredBackendIsUnsupported(t *testing.T) {
	f := newTestFactory(newMockRegistry(&MockProvider{}, "openai"))
	assert.Equal(t, []string{"openai"}, f.Backends())
	_, err := f.Create(models.ProviderConfig{Provider: "anthropic", APIKeys: map[string]string{"anthropic": "k"}})
	assert.True(t, apperrors.IsUnsupportedProvider(err))
}

func TestFactoryMissingCredential(t *testing.T) {
	var created []*MockProvider
	f := newTestFactory(newFreshRegistry(&created, allBackends...))

	_, err := f.Create(models.ProviderConfig{Provider: "openai", APIKeys: map[string]string{}})
	assert.True(t, apperrors.IsMissingCredential(err))

	_, err = f.Create(models.ProviderConfig{Provider: "openai", APIKeys: map[string]string{"openai": "  "}})
	assert.True(t, apperrors.IsMissingCredential(err))

	// 密钥属于其他提供者
	_, err = f.Create(models.ProviderConfig{Provider: "mistral", APIKeys: map[string]string{"openai": "k"}})
	assert.True(t, apperrors.IsMissingCredential(err))

	assert.Empty(t, created, "no backend may be constructed without a credential")
}

func TestFactoryDefaultsProvider(t *testing.T) {
	var created []*MockProvider
	f := newTestFactory(newFreshRegistry(&created, allBackends...))

	c, err := f.Create(models.ProviderConfig{APIKeys: map[string]string{"openai": "k"}})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.ProviderID())
	assert.Equal(t, "gpt-4o", c.Model())

	f = NewFactory(DefaultCatalog(), WithRegistry(newFreshRegistry(&created, allBackends...)), WithDefaultProvider("google"))
	c, err = f.Create(models.ProviderConfig{APIKeys: map[string]string{"google": "g"}})
	require.NoError(t, err)
	assert.Equal(t, "google", c.ProviderID())
}

func TestFactoryAliasAndKeyless(t *testing.T) {
	var created []*MockProvider
	f := newTestFactory(newFreshRegistry(&created, allBackends...))

	c, err := f.Create(models.ProviderConfig{Provider: "gemini", APIKeys: map[string]string{"gemini": "g"}})
	require.NoError(t, err)
	assert.Equal(t, "google", c.ProviderID())
	assert.Equal(t, "gemini-2.5-flash", c.Model())

	c, err = f.Create(models.ProviderConfig{Provider: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "llama3.1", c.Model())
}

func TestFactoryPassesBaseOverrideAndHeaders(t *testing.T) {
	var created []*MockProvider
	f := newTestFactory(newFreshRegistry(&created, allBackends...))

	_, err := f.Create(models.ProviderConfig{
		Provider: "openrouter",
		APIKeys:  map[string]string{"openrouter": "or"},
		APIBase:  "http://127.0.0.1:9999/v1/",
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	cfg := created[0].config
	assert.Equal(t, "http://127.0.0.1:9999/v1", cfg[ConfigBaseURL])
	assert.Equal(t, "Jade Compass", cfg[ConfigHeaderPrefix+"X-Title"])
	assert.Equal(t, "deepseek/deepseek-chat-v3-0324:free", cfg[ConfigModel])
	assert.Equal(t, "OpenRouter", cfg[ConfigDisplayName])
}

func TestEffectiveModel(t *testing.T) {
	info := ProviderInfo{DefaultModel: "default-model"}
	cases := []struct {
		name string
		cfg  models.ProviderConfig
		want string
	}{
		{"custom sentinel with custom model", models.ProviderConfig{Model: models.CustomModelSentinel, CustomModel: "my-finetune"}, "my-finetune"},
		{"custom sentinel without custom model", models.ProviderConfig{Model: models.CustomModelSentinel}, "default-model"},
		{"custom model ignored without sentinel", models.ProviderConfig{Model: "gpt-4o-mini", CustomModel: "x"}, "gpt-4o-mini"},
		{"empty falls back", models.ProviderConfig{}, "default-model"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EffectiveModel(tc.cfg, info))
		})
	}
}
