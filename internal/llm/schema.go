// internal/llm/schema.go
package llm

import (
	"sync"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/Corphon/JadeCompass/internal/models"
)

// StorySchemaName 结构化输出时使用的名称
const StorySchemaName = "full_story"

var (
	storySchema     *jsonschema.Definition
	storySchemaErr  error
	storySchemaOnce sync.Once
)

// StorySchema 由规范模型反射得到的 JSON Schema
func StorySchema() (*jsonschema.Definition, error) {
	storySchemaOnce.Do(func() {
		storySchema, storySchemaErr = jsonschema.GenerateSchemaForType(models.StoryDocument{})
	})
	return storySchema, storySchemaErr
}
