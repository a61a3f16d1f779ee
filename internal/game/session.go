// internal/game/session.go
package game

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/Corphon/JadeCompass/internal/errors"
	"github.com/Corphon/JadeCompass/internal/llm"
	"github.com/Corphon/JadeCompass/internal/models"
	"github.com/Corphon/JadeCompass/internal/utils"
)

// ClientFactory 根据提供者配置创建故事客户端
type ClientFactory func(cfg models.ProviderConfig) (llm.Client, error)

// Observer 状态变化回调，参数为快照副本
type Observer func(state models.GameState)

// Session 单局游戏的状态机，独占当前故事文档
type Session struct {
	mu sync.Mutex

	id        string
	seed      string
	createdAt time.Time
	factory   ClientFactory
	metrics   *utils.MetricsCollector

	provider models.ProviderConfig
	state    models.GameState
	story    *models.StoryDocument

	starting bool
	epoch    uint64 // Reset 时递增，用于丢弃过期的开局结果

	observers    map[int]Observer
	nextObserver int
}

// Option 会话选项
type Option func(*Session)

// WithSeed 指定故事种子
func WithSeed(seed string) Option {
	return func(s *Session) { s.seed = seed }
}

// WithProviderConfig 初始提供者配置
func WithProviderConfig(cfg models.ProviderConfig) Option {
	return func(s *Session) { s.provider = cfg.Clone() }
}

// WithMetrics 记录对局结果
func WithMetrics(m *utils.MetricsCollector) Option {
	return func(s *Session) { s.metrics = m }
}

// NewSession 创建空闲状态的会话
func NewSession(id string, factory ClientFactory, opts ...Option) *Session {
	s := &Session{
		id:        id,
		seed:      NewSeed(),
		createdAt: time.Now(),
		factory:   factory,
		state:     IdleState(),
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSeed 随机数字种子，会话内固定
func NewSeed() string {
	return strconv.FormatUint(uint64(rand.Uint32()), 10)
}

// IdleState 默认空闲状态
func IdleState() models.GameState {
	return models.GameState{
		Status:         models.StatusIdle,
		CurrentRound:   0,
		NarrativeState: models.DefaultNarrativeState(),
		ChoiceHistory:  []models.Choice{},
		Config:         models.DefaultGameConfig(),
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Seed() string         { return s.seed }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// ValidateConfig 检查开局配置边界
func ValidateConfig(cfg models.GameConfig) error {
	if cfg.Rounds < models.MinRounds || cfg.Rounds > models.MaxRounds {
		return apperrors.NewValidationError(
			fmt.Sprintf("rounds must be between %d and %d", models.MinRounds, models.MaxRounds), nil)
	}
	if cfg.ChoicesPerRound < models.MinChoicesPerRound || cfg.ChoicesPerRound > models.MaxChoicesPerRound {
		return apperrors.NewValidationError(
			fmt.Sprintf("choicesPerRound must be between %d and %d", models.MinChoicesPerRound, models.MaxChoicesPerRound), nil)
	}
	return nil
}

// Start 生成完整故事并进入 playing；失败时保持 idle
func (s *Session) Start(ctx context.Context, cfg models.GameConfig) (models.GameState, error) {
	cfg = cfg.WithDefaults()
	if err := ValidateConfig(cfg); err != nil {
		return s.State(), err
	}

	s.mu.Lock()
	if s.starting {
		s.mu.Unlock()
		return s.State(), apperrors.NewConflictError("a game is already starting", nil)
	}
	if s.state.Status == models.StatusPlaying {
		s.mu.Unlock()
		return s.State(), apperrors.NewConflictError("a game is already in progress", nil)
	}
	if s.state.Status.IsTerminal() {
		s.resetLocked()
	}
	s.starting = true
	s.state.Loading = true
	epoch := s.epoch
	provider := s.provider.Clone()
	s.mu.Unlock()
	s.notify()

	doc, err := s.generate(ctx, provider, cfg)

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return s.State(), apperrors.NewConflictError("start cancelled by reset", err)
	}
	s.starting = false
	s.state.Loading = false

	if err != nil {
		s.mu.Unlock()
		s.notify()
		utils.GetLogger().Warn("game start failed", map[string]interface{}{
			"session_id": s.id,
			"provider":   provider.Provider,
			"error":      err,
		})
		return s.State(), err
	}

	// 故事与状态一次性替换
	s.story = doc
	s.state = models.GameState{
		Status:         models.StatusPlaying,
		CurrentRound:   1,
		NarrativeState: doc.Rounds[0].NarrativeState.Clone(),
		ChoiceHistory:  []models.Choice{},
		Intro:          doc.Intro,
		OverallTheme:   doc.OverallTheme,
		Config:         cfg,
		TotalRounds:    cfg.Rounds,
	}
	s.mu.Unlock()
	s.notify()

	utils.GetLogger().Info("game started", map[string]interface{}{
		"session_id":   s.id,
		"rounds":       cfg.Rounds,
		"story_rounds": len(doc.Rounds),
		"choices":      cfg.ChoicesPerRound,
		"language":     string(cfg.ContentLanguage),
		"provider":     provider.Provider,
	})
	return s.State(), nil
}

func (s *Session) generate(ctx context.Context, provider models.ProviderConfig, cfg models.GameConfig) (*models.StoryDocument, error) {
	client, err := s.factory(provider)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	doc, err := client.GenerateFullStory(ctx, cfg.Rounds, cfg.ChoicesPerRound, cfg.ContentLanguage, s.seed)
	if err != nil {
		return nil, err
	}
	if doc == nil || len(doc.Rounds) == 0 {
		return nil, apperrors.NewMalformedResponseError("story contains no rounds", "", nil)
	}
	return doc, nil
}

// Choose 应用玩家的选择；选项自身的 isCorrect 决定结果
func (s *Session) Choose(choice models.Choice) (models.GameState, error) {
	s.mu.Lock()
	if s.state.Status != models.StatusPlaying {
		s.mu.Unlock()
		return s.State(), apperrors.NewConflictError("no game in progress", nil)
	}
	outcome := s.applyLocked(choice)
	s.mu.Unlock()

	s.finishChoice(choice, outcome)
	return s.State(), nil
}

// ChooseByID 按当前回合中的选项ID选择
func (s *Session) ChooseByID(id string) (models.GameState, error) {
	s.mu.Lock()
	round, err := s.playingRoundLocked()
	if err != nil {
		s.mu.Unlock()
		return s.State(), err
	}

	for _, c := range round.Choices {
		if c.ID == id {
			outcome := s.applyLocked(c)
			s.mu.Unlock()
			s.finishChoice(c, outcome)
			return s.State(), nil
		}
	}
	s.mu.Unlock()
	return s.State(), apperrors.NewNotFoundError(fmt.Sprintf("choice %q not found in round %d", id, round.Round), nil)
}

// ChooseByIndex 按1开始的序号选择（对应数字按键）
func (s *Session) ChooseByIndex(n int) (models.GameState, error) {
	s.mu.Lock()
	round, err := s.playingRoundLocked()
	if err != nil {
		s.mu.Unlock()
		return s.State(), err
	}
	if n < 1 || n > len(round.Choices) {
		s.mu.Unlock()
		return s.State(), apperrors.NewValidationError(
			fmt.Sprintf("choice index must be between 1 and %d", len(round.Choices)), nil)
	}

	choice := round.Choices[n-1]
	outcome := s.applyLocked(choice)
	s.mu.Unlock()

	s.finishChoice(choice, outcome)
	return s.State(), nil
}

func (s *Session) playingRoundLocked() (*models.GameRound, error) {
	if s.state.Status != models.StatusPlaying {
		return nil, apperrors.NewConflictError("no game in progress", nil)
	}
	return s.roundLocked()
}

func (s *Session) roundLocked() (*models.GameRound, error) {
	if s.story == nil || s.state.CurrentRound < 1 || s.state.CurrentRound > len(s.story.Rounds) {
		return nil, apperrors.NewNotFoundError("no current round", nil)
	}
	return &s.story.Rounds[s.state.CurrentRound-1], nil
}

// applyLocked 状态转移，调用方持有锁
func (s *Session) applyLocked(choice models.Choice) models.GameStatus {
	s.state.ChoiceHistory = append(s.state.ChoiceHistory, choice.Clone())

	switch {
	case !choice.IsCorrect:
		s.state.Status = models.StatusFailure
		s.state.FailureReason = choice.Consequence
	case s.state.CurrentRound >= s.state.Config.Rounds:
		s.state.Status = models.StatusVictory
	case s.state.CurrentRound >= len(s.story.Rounds):
		// 故事比配置的回合少，内容用尽即胜利
		s.state.Status = models.StatusVictory
	default:
		s.state.CurrentRound++
		s.state.NarrativeState = s.story.Rounds[s.state.CurrentRound-1].NarrativeState.Clone()
	}
	return s.state.Status
}

func (s *Session) finishChoice(choice models.Choice, outcome models.GameStatus) {
	if outcome.IsTerminal() {
		if s.metrics != nil {
			s.metrics.RecordGameOutcome(string(outcome))
		}
		utils.GetLogger().Info("game finished", map[string]interface{}{
			"session_id": s.id,
			"status":     string(outcome),
			"choice_id":  choice.ID,
		})
	}
	s.notify()
}

// CurrentRound 当前回合的副本
func (s *Session) CurrentRound() (models.GameRound, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, err := s.roundLocked()
	if err != nil {
		return models.GameRound{}, false
	}
	return round.Clone(), true
}

// Story 当前故事文档的副本
func (s *Session) Story() (*models.StoryDocument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.story == nil {
		return nil, false
	}
	return s.story.Clone(), true
}

// Reset 任意状态回到 idle，丢弃故事文档；进行中的开局结果将被丢弃
func (s *Session) Reset() models.GameState {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()

	s.notify()
	return s.State()
}

func (s *Session) resetLocked() {
	s.epoch++
	s.starting = false
	s.story = nil
	s.state = IdleState()
}

// State 状态快照
func (s *Session) State() models.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe 注册观察者，返回取消函数
func (s *Session) Subscribe(fn Observer) func() {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// notify 在锁外通知观察者
func (s *Session) notify() {
	s.mu.Lock()
	state := s.state.Clone()
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(state.Clone())
	}
}

// SetProviderConfig 替换提供者配置，下次开局生效
func (s *Session) SetProviderConfig(cfg models.ProviderConfig) {
	s.mu.Lock()
	s.provider = cfg.Clone()
	s.mu.Unlock()
}

// ProviderConfig 提供者配置副本（含明文密钥，仅供内部使用）
func (s *Session) ProviderConfig() models.ProviderConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider.Clone()
}

// TestConnection 用当前配置验证凭据
func (s *Session) TestConnection(ctx context.Context) error {
	client, err := s.factory(s.ProviderConfig())
	if err != nil {
		return err
	}
	defer client.Close()

	return client.TestConnection(ctx)
}
