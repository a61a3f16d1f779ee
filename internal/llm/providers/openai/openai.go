// internal/llm/providers/openai/openai.go
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openaigo "github.com/sashabaranov/go-openai"

	apperrors "github.com/Corphon/JadeCompass/internal/errors"
	"github.com/Corphon/JadeCompass/internal/llm"
)

const defaultBaseURL = "https://api.openai.com/v1"

// openai 后端同时服务所有 OpenAI 兼容端点（openrouter、groq 等）
func init() {
	llm.Register("openai", func() llm.Provider {
		return &Provider{}
	})
}

type Provider struct {
	id     string
	name   string
	model  string
	client *openaigo.Client
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config[llm.ConfigAPIKey]
	if apiKey == "" {
		return errors.New("openai api密钥未提供")
	}

	p.id = config[llm.ConfigProviderID]
	if p.id == "" {
		p.id = "openai"
	}
	p.name = config[llm.ConfigDisplayName]
	if p.name == "" {
		p.name = "OpenAI"
	}
	p.model = config[llm.ConfigModel]

	clientConfig := openaigo.DefaultConfig(apiKey)
	clientConfig.BaseURL = defaultBaseURL
	if baseURL := strings.TrimRight(config[llm.ConfigBaseURL], "/"); baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	clientConfig.HTTPClient = llm.NewHTTPClient(config)

	p.client = openaigo.NewClientWithConfig(clientConfig)
	return nil
}

func (p *Provider) GetName() string {
	return p.name
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := []openaigo.ChatCompletionMessage{}
	if req.SystemPrompt != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role:    openaigo.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openaigo.ChatCompletionMessage{
		Role:    openaigo.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	request := openaigo.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Seed:        req.Seed,
	}
	if req.Schema != nil {
		request.ResponseFormat = &openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openaigo.ChatCompletionResponseFormatJSONSchema{
				Name:   req.SchemaName,
				Schema: req.Schema,
				Strict: false,
			},
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, p.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperrors.NewProviderRequestError(p.id, 0, p.name+" returned no choices", nil)
	}

	choice := resp.Choices[0]
	return &llm.CompletionResponse{
		Text:         choice.Message.Content,
		Structured:   req.Schema != nil,
		FinishReason: string(choice.FinishReason),
		TokensUsed:   resp.Usage.TotalTokens,
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		ModelName:    resp.Model,
		ProviderName: p.name,
	}, nil
}

// CheckConnection 发送极短的补全请求验证密钥与模型
func (p *Provider) CheckConnection(ctx context.Context) error {
	_, err := p.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model: p.model,
		Messages: []openaigo.ChatCompletionMessage{
			{Role: openaigo.ChatMessageRoleUser, Content: "ping"},
		},
		MaxTokens: 5,
	})
	if err != nil {
		return p.mapError(err)
	}
	return nil
}

// mapError 将SDK错误转换为带状态码的应用错误
func (p *Provider) mapError(err error) error {
	var apiErr *openaigo.APIError
	if errors.As(err, &apiErr) {
		return apperrors.NewProviderRequestError(p.id, apiErr.HTTPStatusCode, p.name+" api error: "+apiErr.Message, err)
	}

	var reqErr *openaigo.RequestError
	if errors.As(err, &reqErr) {
		return apperrors.NewProviderRequestError(p.id, reqErr.HTTPStatusCode, p.name+" request error: "+reqErr.Error(), err)
	}

	status := 0
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	return apperrors.NewProviderRequestError(p.id, status, p.name+" request failed", err)
}
