// internal/llm/transport.go
package llm

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	apperrors "github.com/Corphon/JadeCompass/internal/errors"
)

// DefaultRequestTimeout 生成整本故事耗时较长
const DefaultRequestTimeout = 90 * time.Second

// NewHTTPClient 根据 Initialize 配置构建HTTP客户端：超时来自 timeout，
// 以 "header:" 开头的键作为附加请求头。
func NewHTTPClient(config map[string]string) *http.Client {
	timeout := RequestTimeout(config)

	headers := map[string]string{}
	for k, v := range config {
		if name, ok := strings.CutPrefix(k, ConfigHeaderPrefix); ok && name != "" && v != "" {
			headers[name] = v
		}
	}

	var transport http.RoundTripper = http.DefaultTransport
	if len(headers) > 0 {
		transport = &headerTransport{base: transport, headers: headers}
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// RequestTimeout 读取 timeout 配置，无效时使用默认值
func RequestTimeout(config map[string]string) time.Duration {
	if v := config[ConfigTimeout]; v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return DefaultRequestTimeout
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

// maxErrorBody 读取错误响应体的上限
const maxErrorBody = 64 << 10

// VendorError 将非2xx响应转换为请求失败错误，尽量取出供应商给出的错误信息
func VendorError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := VendorMessage(body)
	return apperrors.NewProviderRequestError(provider, resp.StatusCode,
		fmt.Sprintf("%s api error (%d): %s", provider, resp.StatusCode, msg), nil)
}

// VendorMessage 依次尝试常见的错误字段
func VendorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "message", "detail", "error"} {
			if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty response body"
	}
	return apperrors.Preview(text)
}
