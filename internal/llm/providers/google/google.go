// internal/llm/providers/google/google.go
package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/Corphon/JadeCompass/internal/errors"
	"github.com/Corphon/JadeCompass/internal/llm"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

func init() {
	llm.Register("google", func() llm.Provider {
		return &Provider{}
	})
}

// Provider Gemini，SDK客户端在首次请求时创建
type Provider struct {
	id      string
	name    string
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration

	mu     sync.Mutex
	client *genai.Client
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config[llm.ConfigAPIKey]
	if apiKey == "" {
		return errors.New("google_api密钥未提供")
	}

	p.apiKey = apiKey
	p.id = config[llm.ConfigProviderID]
	if p.id == "" {
		p.id = "google"
	}
	p.name = config[llm.ConfigDisplayName]
	if p.name == "" {
		p.name = "Google Gemini"
	}
	p.baseURL = strings.TrimRight(config[llm.ConfigBaseURL], "/")
	p.model = config[llm.ConfigModel]
	p.timeout = llm.RequestTimeout(config)
	return nil
}

func (p *Provider) GetName() string {
	return p.name
}

func (p *Provider) getClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	opts := []option.ClientOption{option.WithAPIKey(p.apiKey)}
	if endpoint := grpcEndpoint(p.baseURL); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, apperrors.NewProviderRequestError(p.id, 0, "创建gemini客户端失败", err)
	}
	p.client = client
	return client, nil
}

// grpcEndpoint 把覆盖的API地址转换成 gRPC 需要的 host:port，默认地址返回空
func grpcEndpoint(baseURL string) string {
	if baseURL == "" || baseURL == defaultBaseURL {
		return ""
	}
	raw := baseURL
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	if u.Port() != "" {
		return u.Host
	}
	port := "443"
	if u.Scheme == "http" {
		port = "80"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	modelName := req.Model
	if modelName == "" {
		modelName = p.model
	}

	model := client.GenerativeModel(modelName)
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	}
	model.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	model.ResponseMIMEType = "application/json"
	if req.Schema != nil {
		model.ResponseSchema = toGenaiSchema(req.Schema)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, p.mapError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, apperrors.NewProviderRequestError(p.id, 0, p.name+" returned no candidates", nil)
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	out := &llm.CompletionResponse{
		Text:         text.String(),
		Structured:   req.Schema != nil,
		FinishReason: candidate.FinishReason.String(),
		ModelName:    modelName,
		ProviderName: p.name,
	}
	if usage := resp.UsageMetadata; usage != nil {
		out.PromptTokens = int(usage.PromptTokenCount)
		out.OutputTokens = int(usage.CandidatesTokenCount)
		out.TokensUsed = int(usage.TotalTokenCount)
	}
	return out, nil
}

// CheckConnection 读取一页模型列表
func (p *Provider) CheckConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client, err := p.getClient(ctx)
	if err != nil {
		return err
	}

	if _, err := client.ListModels(ctx).Next(); err != nil && !errors.Is(err, iterator.Done) {
		return p.mapError(err)
	}
	return nil
}

// Close 释放SDK连接
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

// mapError REST 错误取 HTTP 状态码，gRPC 错误按状态码映射
func (p *Provider) mapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apperrors.NewProviderRequestError(p.id, apiErr.Code,
			fmt.Sprintf("%s api error (%d): %s", p.name, apiErr.Code, apiErr.Message), err)
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return apperrors.NewProviderRequestError(p.id, httpStatus(st),
			p.name+" api error: "+st.Message(), err)
	}

	code := 0
	if errors.Is(err, context.DeadlineExceeded) {
		code = http.StatusGatewayTimeout
	}
	return apperrors.NewProviderRequestError(p.id, code, p.name+" request failed", err)
}

func httpStatus(st *status.Status) int {
	switch st.Code() {
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.InvalidArgument:
		if strings.Contains(st.Message(), "API key not valid") {
			return http.StatusUnauthorized
		}
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// toGenaiSchema 将 JSON Schema 转换为 Gemini 的 Schema
func toGenaiSchema(def *jsonschema.Definition) *genai.Schema {
	if def == nil {
		return nil
	}

	schema := &genai.Schema{
		Description: def.Description,
		Enum:        def.Enum,
		Required:    def.Required,
	}

	switch def.Type {
	case jsonschema.Object:
		schema.Type = genai.TypeObject
		if len(def.Properties) > 0 {
			schema.Properties = make(map[string]*genai.Schema, len(def.Properties))
			for name, prop := range def.Properties {
				schema.Properties[name] = toGenaiSchema(&prop)
			}
		}
	case jsonschema.Array:
		schema.Type = genai.TypeArray
		schema.Items = toGenaiSchema(def.Items)
	case jsonschema.String:
		schema.Type = genai.TypeString
	case jsonschema.Integer:
		schema.Type = genai.TypeInteger
	case jsonschema.Number:
		schema.Type = genai.TypeNumber
	case jsonschema.Boolean:
		schema.Type = genai.TypeBoolean
	case jsonschema.Null:
		schema.Type = genai.TypeString
		schema.Nullable = true
	}
	return schema
}
