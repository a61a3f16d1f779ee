// internal/models/provider.go
package models

// CustomModelSentinel 表示使用 CustomModel 字段中的模型名
const CustomModelSentinel = "__custom__"

// ProviderConfig 选择LLM提供者所需的配置，密钥仅保存在内存中
type ProviderConfig struct {
	Provider    string            `json:"provider"`
	APIBase     string            `json:"apiBase,omitempty"`
	APIKeys     map[string]string `json:"apiKeys,omitempty"`
	Model       string            `json:"model,omitempty"`
	CustomModel string            `json:"customModel,omitempty"`
}

// Clone 复制配置，密钥表不与调用方共享
func (c ProviderConfig) Clone() ProviderConfig {
	if c.APIKeys != nil {
		keys := make(map[string]string, len(c.APIKeys))
		for k, v := range c.APIKeys {
			keys[k] = v
		}
		c.APIKeys = keys
	}
	return c
}

// Masked 返回用于展示的副本，密钥只保留末尾4位
func (c ProviderConfig) Masked() ProviderConfig {
	out := c.Clone()
	for k, v := range out.APIKeys {
		out.APIKeys[k] = MaskSecret(v)
	}
	return out
}

// MaskSecret 掩码处理密钥
func MaskSecret(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 8 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}
