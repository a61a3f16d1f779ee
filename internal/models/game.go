// internal/models/game.go
package models

// ContentLanguage 故事内容的语言
type ContentLanguage string

const (
	LanguageEnglish    ContentLanguage = "English"
	LanguageVietnamese ContentLanguage = "Vietnamese"
)

// 游戏配置边界
const (
	MinRounds          = 2
	MaxRounds          = 10
	MinChoicesPerRound = 2
	MaxChoicesPerRound = 5

	DefaultRounds          = 2
	DefaultChoicesPerRound = 2
)

// GameConfig 开局配置
type GameConfig struct {
	Rounds          int             `json:"rounds"`
	ChoicesPerRound int             `json:"choicesPerRound"`
	ContentLanguage ContentLanguage `json:"contentLanguage"`
}

// DefaultGameConfig 默认配置
func DefaultGameConfig() GameConfig {
	return GameConfig{
		Rounds:          DefaultRounds,
		ChoicesPerRound: DefaultChoicesPerRound,
		ContentLanguage: LanguageEnglish,
	}
}

// WithDefaults 用默认值填充零值字段
func (c GameConfig) WithDefaults() GameConfig {
	d := DefaultGameConfig()
	if c.Rounds == 0 {
		c.Rounds = d.Rounds
	}
	if c.ChoicesPerRound == 0 {
		c.ChoicesPerRound = d.ChoicesPerRound
	}
	if c.ContentLanguage == "" {
		c.ContentLanguage = d.ContentLanguage
	}
	return c
}

// GameStatus 状态机状态
type GameStatus string

const (
	StatusIdle    GameStatus = "idle"
	StatusPlaying GameStatus = "playing"
	StatusVictory GameStatus = "victory"
	StatusFailure GameStatus = "failure"
)

// IsTerminal 胜利或失败
func (s GameStatus) IsTerminal() bool {
	return s == StatusVictory || s == StatusFailure
}

// GameState 对外暴露的只读快照
type GameState struct {
	Status         GameStatus     `json:"status"`
	CurrentRound   int            `json:"currentRound"`
	NarrativeState NarrativeState `json:"narrativeState"`
	ChoiceHistory  []Choice       `json:"choiceHistory"`
	FailureReason  string         `json:"failureReason,omitempty"`
	Intro          string         `json:"intro"`
	OverallTheme   string         `json:"overallTheme"`
	Config         GameConfig     `json:"config"`
	TotalRounds    int            `json:"totalRounds"`
	Loading        bool           `json:"loading"`
}

// DefaultNarrativeState 空闲时的情境
func DefaultNarrativeState() NarrativeState {
	return NarrativeState{Location: "Unknown", Status: "Ready", InitItems: []string{}}
}

// Clone 深拷贝快照
func (s GameState) Clone() GameState {
	s.NarrativeState = s.NarrativeState.Clone()
	history := make([]Choice, len(s.ChoiceHistory))
	for i, c := range s.ChoiceHistory {
		history[i] = c.Clone()
	}
	s.ChoiceHistory = history
	return s
}
