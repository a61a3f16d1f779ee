// internal/llm/providers/mistral/mistral.go
package mistral

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	apperrors "github.com/Corphon/JadeCompass/internal/errors"
	"github.com/Corphon/JadeCompass/internal/llm"
)

const defaultBaseURL = "https://api.mistral.ai/v1"

func init() {
	llm.Register("mistral", func() llm.Provider {
		return &Provider{}
	})
}

// Provider Mistral chat completions
type Provider struct {
	id      string
	name    string
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config[llm.ConfigAPIKey]
	if apiKey == "" {
		return errors.New("mistral api密钥未提供")
	}

	p.apiKey = apiKey
	p.id = config[llm.ConfigProviderID]
	if p.id == "" {
		p.id = "mistral"
	}
	p.name = config[llm.ConfigDisplayName]
	if p.name == "" {
		p.name = "Mistral"
	}
	p.baseURL = config[llm.ConfigBaseURL]
	if p.baseURL == "" {
		p.baseURL = defaultBaseURL
	}
	p.baseURL = strings.TrimRight(p.baseURL, "/")
	p.model = config[llm.ConfigModel]
	p.client = llm.NewHTTPClient(config)
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

	messages := []map[string]string{}
	if req.SystemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.SystemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})

	requestBody := map[string]interface{}{
		"model":       model,
		"messages":    messages,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		requestBody["max_tokens"] = req.MaxTokens
	}
	if req.Seed != nil {
		requestBody["random_seed"] = *req.Seed
	}
	if req.Schema != nil {
		requestBody["response_format"] = map[string]interface{}{
			"type": "json_schema",
			"json_schema": map[string]interface{}{
				"name":   req.SchemaName,
				"schema": req.Schema,
			},
		}
	} else {
		requestBody["response_format"] = map[string]string{"type": "json_object"}
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewProviderRequestError(p.id, 0, p.name+" request failed", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, llm.VendorError(p.id, httpResp)
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apperrors.NewProviderRequestError(p.id, httpResp.StatusCode, p.name+" response read failed", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, apperrors.NewProviderRequestError(p.id, httpResp.StatusCode, "无法解析mistral响应", nil)
	}

	choice := gjson.GetBytes(body, "choices.0")
	if !choice.Exists() {
		return nil, apperrors.NewProviderRequestError(p.id, httpResp.StatusCode, p.name+" returned no choices", nil)
	}

	return &llm.CompletionResponse{
		Text:         messageText(choice.Get("message.content")),
		Structured:   req.Schema != nil,
		FinishReason: choice.Get("finish_reason").String(),
		PromptTokens: int(gjson.GetBytes(body, "usage.prompt_tokens").Int()),
		OutputTokens: int(gjson.GetBytes(body, "usage.completion_tokens").Int()),
		TokensUsed:   int(gjson.GetBytes(body, "usage.total_tokens").Int()),
		ModelName:    gjson.GetBytes(body, "model").String(),
		ProviderName: p.name,
	}, nil
}

// messageText content 可能是字符串，也可能是分块数组
func messageText(content gjson.Result) string {
	if content.IsArray() {
		var b strings.Builder
		for _, chunk := range content.Array() {
			if chunk.Get("type").String() == "text" {
				b.WriteString(chunk.Get("text").String())
			}
		}
		return b.String()
	}
	return content.String()
}

// CheckConnection 获取模型列表验证密钥
func (p *Provider) CheckConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return apperrors.NewProviderRequestError(p.id, 0, p.name+" connection failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return llm.VendorError(p.id, resp)
	}
	return nil
}
