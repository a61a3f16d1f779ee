package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/JadeCompass/internal/errors"
	"github.com/Corphon/JadeCompass/internal/models"
	"github.com/Corphon/JadeCompass/internal/utils"
)

const twoRoundStory = `{
  "intro": "A storm uncovers a buried gate.",
  "overall_theme": "Trust",
  "rounds": [
    {"id": "r1", "description": "The gate hums.", "narrativeState": {"location": "Gate", "status": "Eager", "items": ["map"]},
     "choices": [{"id": "r1_c1", "title": "Push", "is_correct": "true", "consequence": "It opens", "final_items": ["map"]},
                 {"id": "r1_c2", "title": "Wait", "is_correct": false, "consequence": "The sand swallows you"}]},
    {"id": "r2", "description": "A hall of mirrors.", "narrativeState": {"location": "Hall", "status": "Wary", "items": ["map"]},
     "choices": [{"id": "r2_c1", "title": "Smash", "isCorrect": false, "consequence": "Cursed"},
                 {"id": "r2_c2", "title": "Walk", "isCorrect": true, "consequence": "The compass glows"}]}
  ]
}`

type clientFixture struct {
	backend *MockProvider
	events  *recordingEvents
	factory *Factory
}

func newClientFixture(t *testing.T) *clientFixture {
	t.Helper()
	backend := &MockProvider{}
	events := &recordingEvents{}
	clock := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	f := NewFactory(DefaultCatalog(),
		WithRegistry(newMockRegistry(backend, allBackends...)),
		WithEventLogger(events),
		WithMetrics(utils.NewMetricsCollector()),
		WithRequestIDs(func() string { return "req-1" }),
		WithClock(func() time.Time {
			clock = clock.Add(250 * time.Millisecond)
			return clock
		}),
	)
	return &clientFixture{backend: backend, events: events, factory: f}
}

func (fx *clientFixture) client(t *testing.T, provider string) Client {
	t.Helper()
	c, err := fx.factory.Create(models.ProviderConfig{Provider: provider, APIKeys: map[string]string{provider: "secret"}})
	require.NoError(t, err)
	return c
}

func TestGenerateFullStoryFromFencedText(t *testing.T) {
	fx := newClientFixture(t)
	c := fx.client(t, "openai")

	fx.backend.On("CompleteText", mock.Anything, mock.MatchedBy(func(req CompletionRequest) bool {
		return req.Temperature == StoryTemperature &&
			req.Seed != nil && *req.Seed == 42 &&
			req.Schema == nil &&
			req.Model == "gpt-4o" &&
			strings.Contains(req.Prompt, "2-round") &&
			strings.Contains(req.Prompt, "exactly 2 choices") &&
			strings.Contains(req.Prompt, "Response format") &&
			strings.Contains(req.SystemPrompt, "ENTIRELY in Vietnamese")
	})).Return(&CompletionResponse{Text: "```json\n" + twoRoundStory + "\n```", PromptTokens: 10, OutputTokens: 20}, nil).Once()

	doc, err := c.GenerateFullStory(context.Background(), 2, 2, models.LanguageVietnamese, "42")
	require.NoError(t, err)
	fx.backend.AssertExpectations(t)

	require.Len(t, doc.Rounds, 2)
	assert.Equal(t, "Trust", doc.OverallTheme)
	assert.Equal(t, []int{1, 2}, []int{doc.Rounds[0].Round, doc.Rounds[1].Round})
	assert.True(t, doc.Rounds[0].Choices[0].IsCorrect)
	assert.Equal(t, "Gate", doc.Rounds[0].Location)

	require.Len(t, fx.events.requests, 1)
	require.Len(t, fx.events.responses, 1)
	assert.Equal(t, "req-1", fx.events.requests[0].RequestID)
	assert.Equal(t, "req-1", fx.events.responses[0].RequestID)
	assert.Equal(t, MethodGenerateFullStory, fx.events.responses[0].Method)
	assert.Equal(t, 250*time.Millisecond, fx.events.responses[0].Elapsed)
	assert.Equal(t, 30, fx.events.responses[0].Tokens)
	assert.Empty(t, fx.events.responses[0].Error)
}

func TestGenerateFullStoryStructuredMode(t *testing.T) {
	fx := newClientFixture(t)
	c := fx.client(t, "openai-ai-sdk")

	fx.backend.On("CompleteText", mock.Anything, mock.MatchedBy(func(req CompletionRequest) bool {
		return req.Schema != nil && req.SchemaName == StorySchemaName && !strings.Contains(req.Prompt, "Response format")
	})).Return(&CompletionResponse{Text: twoRoundStory, Structured: true}, nil).Once()

	doc, err := c.GenerateFullStory(context.Background(), 2, 2, models.LanguageEnglish, "not-a-number")
	require.NoError(t, err)
	assert.Len(t, doc.Rounds, 2)
	fx.backend.AssertExpectations(t)
}

func TestGenerateFullStoryWrapsTransportErrors(t *testing.T) {
	fx := newClientFixture(t)
	c := fx.client(t, "mistral")

	fx.backend.On("CompleteText", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()

	_, err := c.GenerateFullStory(context.Background(), 2, 2, models.LanguageEnglish, "1")
	require.Error(t, err)
	assert.True(t, apperrors.IsProviderRequestFailed(err))
	assert.False(t, apperrors.IsAuthFailure(err))
	assert.Contains(t, err.Error(), "connection reset")

	require.Len(t, fx.events.responses, 1)
	assert.NotEmpty(t, fx.events.responses[0].Error)
}

func TestGenerateFullStoryKeepsTypedBackendErrors(t *testing.T) {
	fx := newClientFixture(t)
	c := fx.client(t, "anthropic")

	backendErr := apperrors.NewProviderRequestError("anthropic", 401, "anthropic api error (401): invalid x-api-key", nil)
	fx.backend.On("CompleteText", mock.Anything, mock.Anything).Return(nil, backendErr).Once()

	_, err := c.GenerateFullStory(context.Background(), 3, 3, models.LanguageEnglish, "")
	assert.True(t, apperrors.IsAuthFailure(err))
}

func TestGenerateFullStoryMalformedOutput(t *testing.T) {
	cases := map[string]string{
		"prose":       "Once upon a time there was no JSON.",
		"zero rounds": `{"intro": "x", "rounds": []}`,
		"no rounds":   `{"intro": "x"}`,
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			fx := newClientFixture(t)
			c := fx.client(t, "openai")
			fx.backend.On("CompleteText", mock.Anything, mock.Anything).Return(&CompletionResponse{Text: text}, nil).Once()

			_, err := c.GenerateFullStory(context.Background(), 2, 2, models.LanguageEnglish, "")
			assert.True(t, apperrors.IsMalformedResponse(err))
			require.Len(t, fx.events.responses, 1)
			assert.NotEmpty(t, fx.events.responses[0].Error)
		})
	}
}

func TestGenerateFullStoryValidatesCounts(t *testing.T) {
	fx := newClientFixture(t)
	c := fx.client(t, "openai")

	_, err := c.GenerateFullStory(context.Background(), 1, 2, models.LanguageEnglish, "")
	assert.True(t, apperrors.IsValidationError(err))
	fx.backend.AssertNotCalled(t, "CompleteText", mock.Anything, mock.Anything)
	assert.Empty(t, fx.events.requests)
}

func TestTestConnection(t *testing.T) {
	fx := newClientFixture(t)
	c := fx.client(t, "google")

	fx.backend.On("CheckConnection", mock.Anything).Return(nil).Once()
	assert.NoError(t, c.TestConnection(context.Background()))

	fx.backend.On("CheckConnection", mock.Anything).Return(context.DeadlineExceeded).Once()
	err := c.TestConnection(context.Background())
	assert.True(t, apperrors.IsProviderRequestFailed(err))

	require.Len(t, fx.events.responses, 2)
	assert.Equal(t, MethodTestConnection, fx.events.responses[1].Method)
}
