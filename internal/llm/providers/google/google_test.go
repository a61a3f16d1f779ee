package google

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/Corphon/JadeCompass/internal/errors"
	"github.com/Corphon/JadeCompass/internal/llm"
)

func newProvider(t *testing.T) *Provider {
	t.Helper()
	p := &Provider{}
	require.NoError(t, p.Initialize(map[string]string{
		llm.ConfigProviderID: "google-ai-sdk",
		llm.ConfigAPIKey:     "AIza-test",
		llm.ConfigModel:      "gemini-2.5-flash",
		llm.ConfigTimeout:    "5s",
	}))
	return p
}

func TestInitialize(t *testing.T) {
	assert.Error(t, (&Provider{}).Initialize(map[string]string{}))

	p := newProvider(t)
	assert.Equal(t, "Google Gemini", p.GetName())
	assert.Equal(t, "5s", p.timeout.String())
	// 未创建客户端时关闭为空操作
	assert.NoError(t, p.Close())
}

func TestGRPCEndpoint(t *testing.T) {
	for base, want := range map[string]string{
		"":                                "",
		defaultBaseURL:                    "",
		"https://gemini.proxy.example/v1": "gemini.proxy.example:443",
		"http://localhost:8081":           "localhost:8081",
		"http://gateway.internal":         "gateway.internal:80",
		"gemini.proxy.example:9443":       "gemini.proxy.example:9443",
	} {
		assert.Equal(t, want, grpcEndpoint(base), base)
	}
}

func TestToGenaiSchemaStory(t *testing.T) {
	def, err := llm.StorySchema()
	require.NoError(t, err)

	schema := toGenaiSchema(def)
	require.NotNil(t, schema)
	assert.Equal(t, genai.TypeObject, schema.Type)
	assert.Contains(t, schema.Required, "rounds")

	rounds := schema.Properties["rounds"]
	require.NotNil(t, rounds)
	assert.Equal(t, genai.TypeArray, rounds.Type)
	require.NotNil(t, rounds.Items)

	choices := rounds.Items.Properties["choices"]
	require.NotNil(t, choices)
	choice := choices.Items
	require.NotNil(t, choice)
	assert.Equal(t, genai.TypeBoolean, choice.Properties["isCorrect"].Type)
	assert.Equal(t, genai.TypeString, choice.Properties["title"].Type)
	assert.Equal(t, genai.TypeArray, choice.Properties["finalItems"].Type)
	assert.Equal(t, genai.TypeInteger, rounds.Items.Properties["round"].Type)
}

func TestMapError(t *testing.T) {
	p := newProvider(t)

	restErr := p.mapError(fmt.Errorf("generate: %w", &googleapi.Error{Code: http.StatusForbidden, Message: "permission denied"}))
	assert.True(t, apperrors.IsAuthFailure(restErr))
	assert.Contains(t, restErr.Error(), "permission denied")

	keyErr := p.mapError(status.Error(codes.InvalidArgument, "API key not valid. Please pass a valid API key."))
	assert.True(t, apperrors.IsAuthFailure(keyErr))

	quotaErr := p.mapError(status.Error(codes.ResourceExhausted, "quota"))
	appErr, ok := apperrors.As(quotaErr)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, appErr.Status)
	assert.Equal(t, "google-ai-sdk", appErr.Provider)

	timeoutErr := p.mapError(context.DeadlineExceeded)
	appErr, ok = apperrors.As(timeoutErr)
	require.True(t, ok)
	assert.Equal(t, http.StatusGatewayTimeout, appErr.Status)
}
