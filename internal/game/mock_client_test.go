package game

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Corphon/JadeCompass/internal/llm"
	"github.com/Corphon/JadeCompass/internal/models"
)

// MockClient 可断言的故事客户端
type MockClient struct {
	mock.Mock
	closed int
}

var _ llm.Client = (*MockClient)(nil)

func (m *MockClient) GenerateFullStory(ctx context.Context, totalRounds, choicesPerRound int, language models.ContentLanguage, seed string) (*models.StoryDocument, error) {
	args := m.Called(ctx, totalRounds, choicesPerRound, language, seed)
	doc, _ := args.Get(0).(*models.StoryDocument)
	return doc, args.Error(1)
}

func (m *MockClient) TestConnection(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockClient) GenerateRequestID() string { return "req-1" }
func (m *MockClient) ProviderID() string        { return "openai" }
func (m *MockClient) Model() string             { return "gpt-4o" }

func (m *MockClient) Close() error {
	m.closed++
	return nil
}

// factoryFor 总是返回同一个客户端
func factoryFor(c llm.Client) ClientFactory {
	return func(models.ProviderConfig) (llm.Client, error) { return c, nil }
}

// buildStory 每回合的第 correct[i] 个选项（0开始）为正确选项，-1 表示没有正确选项
func buildStory(choices int, correct ...int) *models.StoryDocument {
	doc := &models.StoryDocument{Intro: "A jade compass hums.", OverallTheme: "greed"}
	for i, c := range correct {
		round := models.GameRound{
			Intro:    "round intro",
			Round:    i + 1,
			Location: "cave",
			NarrativeState: models.NarrativeState{
				Location:  locationName(i),
				Status:    "healthy",
				InitItems: []string{"map"},
			},
		}
		for j := 0; j < choices; j++ {
			round.Choices = append(round.Choices, models.Choice{
				ID:          string(rune('a' + j)),
				Title:       "option",
				IsCorrect:   j == c,
				Consequence: "consequence " + string(rune('a'+j)),
				FinalItems:  []string{"map"},
			})
		}
		doc.Rounds = append(doc.Rounds, round)
	}
	return doc
}

func locationName(i int) string {
	return []string{"jungle", "temple", "river", "cliff", "vault"}[i%5]
}
