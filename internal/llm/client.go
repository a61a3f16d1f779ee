// internal/llm/client.go
package llm

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/Corphon/JadeCompass/internal/errors"
	"github.com/Corphon/JadeCompass/internal/models"
	"github.com/Corphon/JadeCompass/internal/parser"
	"github.com/Corphon/JadeCompass/internal/utils"
)

// 日志中的方法名
const (
	MethodGenerateFullStory = "generateFullStory"
	MethodTestConnection    = "testConnection"
)

// StoryTemperature 生成故事的采样温度
const StoryTemperature float32 = 0.7

// Client 游戏使用的提供者客户端
type Client interface {
	// GenerateFullStory 一次调用生成完整的多回合故事
	GenerateFullStory(ctx context.Context, totalRounds, choicesPerRound int, language models.ContentLanguage, seed string) (*models.StoryDocument, error)
	// TestConnection 验证凭据，nil 表示连接正常
	TestConnection(ctx context.Context) error
	// GenerateRequestID 关联请求与响应日志
	GenerateRequestID() string
	// ProviderID 目录中的提供者ID
	ProviderID() string
	// Model 实际使用的模型
	Model() string
	Close() error
}

type storyClient struct {
	backend    Provider
	info       ProviderInfo
	model      string
	baseURL    string
	maxTokens  int
	events     EventLogger
	metrics    *utils.MetricsCollector
	tracer     trace.Tracer
	now        func() time.Time
	requestIDs func() string
}

func (c *storyClient) ProviderID() string        { return c.info.ID }
func (c *storyClient) Model() string             { return c.model }
func (c *storyClient) GenerateRequestID() string { return c.requestIDs() }

// Close 释放后端持有的连接
func (c *storyClient) Close() error {
	if closer, ok := c.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *storyClient) GenerateFullStory(ctx context.Context, totalRounds, choicesPerRound int, language models.ContentLanguage, seed string) (*models.StoryDocument, error) {
	if totalRounds < models.MinRounds || choicesPerRound < models.MinChoicesPerRound {
		return nil, apperrors.NewValidationError("totalRounds and choicesPerRound must both be at least 2", nil)
	}

	ctx, span := c.tracer.Start(ctx, "llm.GenerateFullStory", trace.WithAttributes(
		attribute.String("llm.provider", c.info.ID),
		attribute.String("llm.model", c.model),
		attribute.Int("game.rounds", totalRounds),
		attribute.Int("game.choices_per_round", choicesPerRound),
	))
	defer span.End()

	req := CompletionRequest{
		SystemPrompt: BuildSystemPrompt(language),
		Prompt: BuildUserPrompt(StoryPromptParams{
			TotalRounds:     totalRounds,
			ChoicesPerRound: choicesPerRound,
			Language:        language,
			IncludeFormat:   !c.info.Structured,
		}),
		Model:       c.model,
		Temperature: StoryTemperature,
		MaxTokens:   c.maxTokens,
		Seed:        parseSeed(seed),
	}
	if c.info.Structured {
		schema, err := StorySchema()
		if err != nil {
			return nil, apperrors.NewInternalError("failed to build story schema", err)
		}
		req.Schema = schema
		req.SchemaName = StorySchemaName
	}

	requestID := c.GenerateRequestID()
	started := c.now()
	c.events.LogRequest(RequestEvent{
		Provider:     c.info.ID,
		Method:       MethodGenerateFullStory,
		RequestID:    requestID,
		Model:        c.model,
		BaseURL:      c.baseURL,
		Timestamp:    started,
		SystemPrompt: req.SystemPrompt,
		Prompt:       req.Prompt,
	})

	resp, err := c.backend.CompleteText(ctx, req)
	elapsed := c.now().Sub(started)
	if err != nil {
		err = c.wrapRequestError(err)
		c.finish(span, requestID, MethodGenerateFullStory, started, elapsed, "", 0, err)
		return nil, err
	}

	doc, err := parser.ParseStory(resp.Text, resp.Structured)
	c.metrics.RecordLLMTokens(c.info.ID, resp.PromptTokens, resp.OutputTokens)
	c.finish(span, requestID, MethodGenerateFullStory, started, elapsed, resp.Text, tokensOf(resp), err)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("story.rounds", len(doc.Rounds)))
	return doc, nil
}

func (c *storyClient) TestConnection(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "llm.TestConnection", trace.WithAttributes(
		attribute.String("llm.provider", c.info.ID),
		attribute.String("llm.model", c.model),
	))
	defer span.End()

	requestID := c.GenerateRequestID()
	started := c.now()
	c.events.LogRequest(RequestEvent{
		Provider:  c.info.ID,
		Method:    MethodTestConnection,
		RequestID: requestID,
		Model:     c.model,
		BaseURL:   c.baseURL,
		Timestamp: started,
	})

	err := c.backend.CheckConnection(ctx)
	if err != nil {
		err = c.wrapRequestError(err)
	}
	c.finish(span, requestID, MethodTestConnection, started, c.now().Sub(started), "", 0, err)
	return err
}

func (c *storyClient) finish(span trace.Span, requestID, method string, started time.Time, elapsed time.Duration, response string, tokens int, err error) {
	ev := ResponseEvent{
		Provider:  c.info.ID,
		Method:    method,
		RequestID: requestID,
		Model:     c.model,
		Timestamp: started.Add(elapsed),
		Elapsed:   elapsed,
		Response:  response,
		Tokens:    tokens,
	}
	if err != nil {
		ev.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.events.LogResponse(ev)
	c.metrics.RecordLLMRequest(c.info.ID, method, err == nil, elapsed)
}

// wrapRequestError 后端已返回类型化错误时原样保留，否则统一包装为请求失败
func (c *storyClient) wrapRequestError(err error) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	status := 0
	if errors.Is(err, context.DeadlineExceeded) {
		status = 504
	}
	return apperrors.NewProviderRequestError(c.info.ID, status, c.info.Name+" request failed", err)
}

// parseSeed 只有纯数字的种子会传给供应商
func parseSeed(seed string) *int {
	n, err := strconv.Atoi(seed)
	if err != nil {
		return nil
	}
	return &n
}

func tokensOf(resp *CompletionResponse) int {
	if resp.TokensUsed > 0 {
		return resp.TokensUsed
	}
	return resp.PromptTokens + resp.OutputTokens
}

func defaultTracer() trace.Tracer {
	return otel.Tracer("github.com/Corphon/JadeCompass/internal/llm")
}
