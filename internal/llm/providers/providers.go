// internal/llm/providers/providers.go
// Package providers 注册所有供应商后端
package providers

import (
	_ "github.com/Corphon/JadeCompass/internal/llm/providers/anthropic"
	_ "github.com/Corphon/JadeCompass/internal/llm/providers/google"
	_ "github.com/Corphon/JadeCompass/internal/llm/providers/mistral"
	_ "github.com/Corphon/JadeCompass/internal/llm/providers/ollama"
	_ "github.com/Corphon/JadeCompass/internal/llm/providers/openai"
)
