// internal/llm/providers/anthropic/anthropic.go
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/Corphon/JadeCompass/internal/errors"
	"github.com/Corphon/JadeCompass/internal/llm"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	apiVersion     = "2023-06-01"
	defaultTokens  = 8192
)

func init() {
	llm.Register("anthropic", func() llm.Provider {
		return &Provider{}
	})
}

// Provider Anthropic Messages API
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
		return errors.New("anthropic api密钥未提供")
	}

	p.apiKey = apiKey
	p.id = firstNonEmpty(config[llm.ConfigProviderID], "anthropic")
	p.name = firstNonEmpty(config[llm.ConfigDisplayName], "Anthropic")
	p.baseURL = strings.TrimRight(firstNonEmpty(config[llm.ConfigBaseURL], defaultBaseURL), "/")
	p.model = config[llm.ConfigModel]
	p.client = llm.NewHTTPClient(config)
	return nil
}

func (p *Provider) GetName() string {
	return p.name
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema interface{} `json:"input_schema"`
}

type messagesRequest struct {
	Model       string            `json:"model"`
	MaxTokens   int               `json:"max_tokens"`
	System      string            `json:"system,omitempty"`
	Messages    []message         `json:"messages"`
	Temperature float32           `json:"temperature"`
	Tools       []tool            `json:"tools,omitempty"`
	ToolChoice  map[string]string `json:"tool_choice,omitempty"`
}

type messagesResponse struct {
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := firstNonEmpty(req.Model, p.model)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultTokens
	}

	body := messagesRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      req.SystemPrompt,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}
	// 结构化输出：强制调用唯一的工具，工具参数即故事对象
	if req.Schema != nil {
		body.Tools = []tool{{
			Name:        req.SchemaName,
			Description: "Record the complete generated story.",
			InputSchema: req.Schema,
		}}
		body.ToolChoice = map[string]string{"type": "tool", "name": req.SchemaName}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	p.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewProviderRequestError(p.id, 0, p.name+" request failed", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, llm.VendorError(p.id, httpResp)
	}

	var response messagesResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, apperrors.NewProviderRequestError(p.id, httpResp.StatusCode, "无法解析anthropic响应", err)
	}

	out := &llm.CompletionResponse{
		FinishReason: response.StopReason,
		PromptTokens: response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
		TokensUsed:   response.Usage.InputTokens + response.Usage.OutputTokens,
		ModelName:    firstNonEmpty(response.Model, model),
		ProviderName: p.name,
	}

	var text strings.Builder
	for _, block := range response.Content {
		switch block.Type {
		case "tool_use":
			if req.Schema != nil && len(block.Input) > 0 {
				out.Text = string(block.Input)
				out.Structured = true
				return out, nil
			}
		case "text":
			text.WriteString(block.Text)
		}
	}
	out.Text = text.String()
	return out, nil
}

// CheckConnection 列出一个模型即可验证密钥
func (p *Provider) CheckConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models?limit=1", nil)
	if err != nil {
		return err
	}
	p.setHeaders(req)

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

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("X-Api-Key", p.apiKey)
	req.Header.Set("Anthropic-Version", apiVersion)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
