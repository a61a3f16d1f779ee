// internal/parser/extract.go
package parser

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	apperrors "github.com/Corphon/JadeCompass/internal/errors"
	"github.com/Corphon/JadeCompass/internal/models"
)

// fencedBlock 匹配 ```json ... ``` 形式的代码块，语言标记可选
var fencedBlock = regexp.MustCompile("(?s)```([A-Za-z0-9_-]*)[ \t]*\r?\n?(.*?)```")

// ExtractJSON 从供应商原始文本中取出唯一的JSON值。
// 只做代码围栏剥离和一次严格解析，不做任何修补。
func ExtractJSON(raw string) (string, error) {
	candidate := stripFences(strings.TrimSpace(raw))
	if candidate == "" {
		return "", apperrors.NewMalformedResponseError("provider returned an empty response", raw, nil)
	}
	if !gjson.Valid(candidate) {
		return "", apperrors.NewMalformedResponseError("provider response is not valid JSON", raw, nil)
	}
	return candidate, nil
}

// stripFences 多个代码块时优先取标记为 json 的，其次取第一个合法JSON的，都没有时取第一个
func stripFences(text string) string {
	if blocks := fencedBlock.FindAllStringSubmatch(text, -1); len(blocks) > 0 {
		for _, m := range blocks {
			if strings.EqualFold(m[1], "json") {
				return strings.TrimSpace(m[2])
			}
		}
		for _, m := range blocks {
			if body := strings.TrimSpace(m[2]); gjson.Valid(body) {
				return body
			}
		}
		return strings.TrimSpace(blocks[0][2])
	}
	// 被截断的输出只有起始围栏
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			return strings.TrimSpace(text[nl+1:])
		}
		return ""
	}
	return text
}

// ParseStory 把供应商输出转换为规范故事。
// structured 为 true 时输出已经是结构化对象，跳过文本提取。
func ParseStory(raw string, structured bool) (*models.StoryDocument, error) {
	var payload string
	if structured {
		payload = strings.TrimSpace(raw)
		if !gjson.Valid(payload) {
			return nil, apperrors.NewMalformedResponseError("structured output is not valid JSON", raw, nil)
		}
	} else {
		var err error
		if payload, err = ExtractJSON(raw); err != nil {
			return nil, err
		}
	}

	doc := NormalizeStory(gjson.Parse(payload))
	if len(doc.Rounds) == 0 {
		return nil, apperrors.NewMalformedResponseError("story contains no rounds", raw, nil)
	}
	return doc, nil
}
