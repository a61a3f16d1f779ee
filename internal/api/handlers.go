// internal/api/handlers.go
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/Corphon/JadeCompass/internal/errors"
	"github.com/Corphon/JadeCompass/internal/game"
	"github.com/Corphon/JadeCompass/internal/llm"
	"github.com/Corphon/JadeCompass/internal/models"
	"github.com/Corphon/JadeCompass/internal/storage"
	"github.com/Corphon/JadeCompass/internal/utils"
)

// connectionTestTimeout 测试连接的上限
const connectionTestTimeout = 30 * time.Second

// Handler 处理API请求
type Handler struct {
	Factory         *llm.Factory                        // 故事客户端工厂
	Sessions        *storage.MemoryStore[*game.Session] // 会话存储
	WebSockets      *WebSocketManager                   // 状态推送
	Diagnostics     *llm.DiagnosticLog                  // 为 nil 时诊断接口返回404
	Metrics         *utils.MetricsCollector             // 可为 nil
	ProviderKeys    map[string]string                   // 新会话的初始密钥表
	DefaultProvider string                              // 新会话的默认提供者
	Response        *ResponseHelper                     // 响应助手
}

// SessionResponse 会话详情
type SessionResponse struct {
	ID        string                `json:"id"`
	Seed      string                `json:"seed"`
	CreatedAt time.Time             `json:"createdAt"`
	State     models.GameState      `json:"state"`
	Provider  models.ProviderConfig `json:"provider"`
}

// CreateSessionRequest 创建会话的可选参数
type CreateSessionRequest struct {
	Provider *models.ProviderConfig `json:"provider,omitempty"`
	Seed     string                 `json:"seed,omitempty"`
}

// ChooseRequest 选择请求，choiceId 与 index（1开始）二选一
type ChooseRequest struct {
	ChoiceID string `json:"choiceId"`
	Index    *int   `json:"index"`
}

// ChoiceView 对玩家可见的选项，不含答案
type ChoiceView struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
}

// RoundView 对玩家可见的当前回合
type RoundView struct {
	Round          int                   `json:"round"`
	Intro          string                `json:"intro"`
	Location       string                `json:"location"`
	NarrativeState models.NarrativeState `json:"narrativeState"`
	Choices        []ChoiceView          `json:"choices"`
}

// ConnectionResult 测试连接结果
type ConnectionResult struct {
	Connected  bool   `json:"connected"`
	Provider   string `json:"provider"`
	// AuthFailed 供应商拒绝了凭据，区别于网络等暂时性失败
	AuthFailed bool   `json:"authFailed"`
	Error      string `json:"error,omitempty"`
}

// ------------------------------------------------
// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"status":      "ok",
		"sessions":    h.Sessions.Len(),
		"diagnostics": h.Diagnostics != nil,
		"backends":    h.Factory.Backends(),
		"time":        time.Now().UTC(),
	})
}

// ListProviders 提供者目录，不含任何密钥
func (h *Handler) ListProviders(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"providers":       h.Factory.Catalog().Providers(),
		"defaultProvider": h.DefaultProvider,
	})
}

// ------------------------------------------------
// CreateSession 创建空闲会话
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}
	if req.Seed != "" {
		if _, err := strconv.ParseUint(req.Seed, 10, 64); err != nil {
			h.Response.Error(c, http.StatusBadRequest, ErrorValidation, "seed must be a non-negative integer")
			return
		}
	}

	provider := models.ProviderConfig{
		Provider: h.DefaultProvider,
		APIKeys:  cloneKeys(h.ProviderKeys),
	}
	if req.Provider != nil {
		merged, err := h.mergeProvider(provider, *req.Provider)
		if err != nil {
			h.Response.AppError(c, err)
			return
		}
		provider = merged
	}

	opts := []game.Option{game.WithProviderConfig(provider)}
	if req.Seed != "" {
		opts = append(opts, game.WithSeed(req.Seed))
	}
	if h.Metrics != nil {
		opts = append(opts, game.WithMetrics(h.Metrics))
	}

	id := uuid.NewString()
	session := game.NewSession(id, h.Factory.Create, opts...)
	h.Sessions.Put(id, session)
	h.updateActiveSessions()

	utils.GetLogger().Info("session created", map[string]interface{}{
		"session_id": id,
		"provider":   provider.Provider,
	})
	h.Response.Created(c, sessionResponse(session), "session created")
}

// GetSession 会话详情
func (h *Handler) GetSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	h.Response.Success(c, sessionResponse(session))
}

// DeleteSession 删除会话并断开其推送连接
func (h *Handler) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	session, ok := h.Sessions.Delete(id)
	if !ok {
		h.Response.NotFound(c, "session", "session id: "+id)
		return
	}
	session.Reset()
	h.WebSockets.CloseSession(id)
	h.updateActiveSessions()

	h.Response.Success(c, gin.H{"id": id}, "session deleted")
}

// ------------------------------------------------
// UpdateProvider 更新提供者配置；密钥只保存在内存中
func (h *Handler) UpdateProvider(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req models.ProviderConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	merged, err := h.mergeProvider(session.ProviderConfig(), req)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	session.SetProviderConfig(merged)

	h.Response.Success(c, merged.Masked(), "provider updated")
}

// GetProvider 当前提供者配置，密钥已掩码
func (h *Handler) GetProvider(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	h.Response.Success(c, session.ProviderConfig().Masked())
}

// TestProvider 测试当前配置能否连通，失败不视为请求错误
func (h *Handler) TestProvider(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), connectionTestTimeout)
	defer cancel()

	result := ConnectionResult{Provider: session.ProviderConfig().Provider}
	if result.Provider == "" {
		result.Provider = h.DefaultProvider
	}
	if err := session.TestConnection(ctx); err != nil {
		result.Error = sanitizeErrorMessage(err.Error())
		result.AuthFailed = apperrors.IsAuthFailure(err)
	} else {
		result.Connected = true
	}
	h.Response.Success(c, result)
}

// ------------------------------------------------
// StartGame 生成故事并开局，阻塞到生成完成
func (h *Handler) StartGame(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var cfg models.GameConfig
	if err := bindOptionalJSON(c, &cfg); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	state, err := session.Start(c.Request.Context(), cfg)
	if err != nil {
		h.Response.AppError(c, err, "failed to start game")
		return
	}
	h.Response.Success(c, state, "game started")
}

// Choose 提交选择
func (h *Handler) Choose(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req ChooseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	var (
		state models.GameState
		err   error
	)
	switch {
	case req.ChoiceID != "":
		state, err = session.ChooseByID(req.ChoiceID)
	case req.Index != nil:
		state, err = session.ChooseByIndex(*req.Index)
	default:
		h.Response.Error(c, http.StatusBadRequest, ErrorChoiceInvalid, "either choiceId or index is required")
		return
	}
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, state)
}

// CurrentRound 当前回合，不暴露正确答案
func (h *Handler) CurrentRound(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	round, ok := session.CurrentRound()
	if !ok || session.State().Status != models.StatusPlaying {
		h.Response.NotFound(c, "round", "no game in progress")
		return
	}
	h.Response.Success(c, roundView(round))
}

// ResetGame 回到空闲状态
func (h *Handler) ResetGame(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	h.Response.Success(c, session.Reset(), "game reset")
}

// SessionWebSocket 推送会话状态
func (h *Handler) SessionWebSocket(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	h.WebSockets.Serve(c, session)
}

// ------------------------------------------------
// GetLLMLogs 诊断日志，按时间倒序
func (h *Handler) GetLLMLogs(c *gin.Context) {
	if !h.diagnosticsEnabled(c) {
		return
	}

	filter := llm.LogFilter{
		Provider:   c.Query("provider"),
		Method:     c.Query("method"),
		OnlyErrors: c.Query("errors") == "true",
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			h.Response.BadRequest(c, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	logs := h.Diagnostics.Logs(filter)
	h.Response.Success(c, gin.H{"logs": logs, "count": len(logs)})
}

// GetLLMStats 诊断统计
func (h *Handler) GetLLMStats(c *gin.Context) {
	if !h.diagnosticsEnabled(c) {
		return
	}
	h.Response.Success(c, h.Diagnostics.Stats())
}

// ClearLLMLogs 清空诊断日志
func (h *Handler) ClearLLMLogs(c *gin.Context) {
	if !h.diagnosticsEnabled(c) {
		return
	}
	h.Diagnostics.Clear()
	h.Response.Success(c, nil, "logs cleared")
}

// GetWebSocketStatus 推送连接概况
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	h.Response.Success(c, h.WebSockets.GetStatus())
}

// ------------------------------------------------
// 辅助函数

func (h *Handler) session(c *gin.Context) (*game.Session, bool) {
	id := c.Param("id")
	session, ok := h.Sessions.Get(id)
	if !ok {
		h.Response.NotFound(c, "session", "session id: "+id)
		return nil, false
	}
	return session, true
}

func (h *Handler) diagnosticsEnabled(c *gin.Context) bool {
	if h.Diagnostics == nil {
		h.Response.Error(c, http.StatusNotFound, ErrorDiagnosticsDisabled, "diagnostic log is only available in debug mode")
		return false
	}
	return true
}

func (h *Handler) updateActiveSessions() {
	if h.Metrics != nil {
		h.Metrics.SetActiveSessions(h.Sessions.Len())
	}
}

// mergeProvider 合并提供者配置：空字段沿用原值，密钥逐个覆盖，空字符串删除该密钥
func (h *Handler) mergeProvider(current, update models.ProviderConfig) (models.ProviderConfig, error) {
	out := current.Clone()

	if id := strings.TrimSpace(update.Provider); id != "" {
		info, ok := h.Factory.Catalog().Lookup(id)
		if !ok {
			return current, apperrors.NewUnsupportedProviderError(id)
		}
		// 切换提供者时模型与地址回到新提供者的默认值
		if info.ID != h.catalogID(current.Provider) {
			out.APIBase, out.Model, out.CustomModel = "", "", ""
		}
		out.Provider = id
	}
	if update.APIBase != "" {
		out.APIBase = strings.TrimSpace(update.APIBase)
	}
	if update.Model != "" {
		out.Model = strings.TrimSpace(update.Model)
	}
	if update.CustomModel != "" {
		out.CustomModel = strings.TrimSpace(update.CustomModel)
	}

	if len(update.APIKeys) > 0 && out.APIKeys == nil {
		out.APIKeys = make(map[string]string, len(update.APIKeys))
	}
	for id, key := range update.APIKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			delete(out.APIKeys, id)
			continue
		}
		out.APIKeys[id] = key
	}
	return out, nil
}

// catalogID 配置中提供者对应的目录ID，空值按默认提供者处理
func (h *Handler) catalogID(provider string) string {
	if strings.TrimSpace(provider) == "" {
		provider = h.DefaultProvider
	}
	if info, ok := h.Factory.Catalog().Lookup(provider); ok {
		return info.ID
	}
	return provider
}

func sessionResponse(s *game.Session) SessionResponse {
	return SessionResponse{
		ID:        s.ID(),
		Seed:      s.Seed(),
		CreatedAt: s.CreatedAt(),
		State:     s.State(),
		Provider:  s.ProviderConfig().Masked(),
	}
}

func roundView(r models.GameRound) RoundView {
	view := RoundView{
		Round:          r.Round,
		Intro:          r.Intro,
		Location:       r.Location,
		NarrativeState: r.NarrativeState,
		Choices:        make([]ChoiceView, 0, len(r.Choices)),
	}
	for _, c := range r.Choices {
		view.Choices = append(view.Choices, ChoiceView{ID: c.ID, Title: c.Title, Summary: c.Summary})
	}
	return view
}

// bindOptionalJSON 空请求体视为零值
func bindOptionalJSON(c *gin.Context, out interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func cloneKeys(keys map[string]string) map[string]string {
	out := make(map[string]string, len(keys))
	for k, v := range keys {
		out[k] = v
	}
	return out
}
