// internal/llm/providers/ollama/ollama.go
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	apperrors "github.com/Corphon/JadeCompass/internal/errors"
	"github.com/Corphon/JadeCompass/internal/llm"
)

const defaultBaseURL = "http://localhost:11434"

func init() {
	llm.Register("ollama", func() llm.Provider {
		return &Provider{}
	})
}

// Provider 本地 Ollama 服务，无需密钥
type Provider struct {
	id     string
	name   string
	model  string
	client *api.Client
}

func (p *Provider) Initialize(config map[string]string) error {
	p.id = config[llm.ConfigProviderID]
	if p.id == "" {
		p.id = "ollama"
	}
	p.name = config[llm.ConfigDisplayName]
	if p.name == "" {
		p.name = "Ollama"
	}
	p.model = config[llm.ConfigModel]

	// api.NewClient 需要不带 /v1 后缀的地址
	baseURL := strings.TrimSuffix(strings.TrimRight(config[llm.ConfigBaseURL], "/"), "/v1")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("解析ollama地址失败 %q: %w", baseURL, err)
	}

	p.client = api.NewClient(parsed, llm.NewHTTPClient(config))
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

	messages := []api.Message{}
	if req.SystemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Prompt})

	options := map[string]interface{}{
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if req.Seed != nil {
		options["seed"] = *req.Seed
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}
	if req.Schema != nil {
		schema, err := json.Marshal(req.Schema)
		if err != nil {
			return nil, err
		}
		chatReq.Format = schema
	} else {
		chatReq.Format = json.RawMessage(`"json"`)
	}

	var resp api.ChatResponse
	var text strings.Builder
	err := p.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		text.WriteString(r.Message.Content)
		resp = r
		return nil
	})
	if err != nil {
		return nil, p.mapError(err)
	}

	return &llm.CompletionResponse{
		Text:         text.String(),
		Structured:   req.Schema != nil,
		FinishReason: resp.DoneReason,
		PromptTokens: resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
		TokensUsed:   resp.PromptEvalCount + resp.EvalCount,
		ModelName:    resp.Model,
		ProviderName: p.name,
	}, nil
}

// CheckConnection 列出本地模型
func (p *Provider) CheckConnection(ctx context.Context) error {
	if _, err := p.client.List(ctx); err != nil {
		return p.mapError(err)
	}
	return nil
}

func (p *Provider) mapError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		msg := statusErr.ErrorMessage
		if msg == "" {
			msg = statusErr.Status
		}
		return apperrors.NewProviderRequestError(p.id, statusErr.StatusCode, p.name+" api error: "+msg, err)
	}

	status := 0
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	return apperrors.NewProviderRequestError(p.id, status, p.name+" request failed", err)
}
