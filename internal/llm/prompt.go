// internal/llm/prompt.go
package llm

import (
	"fmt"
	"strings"

	"github.com/Corphon/JadeCompass/internal/models"
)

// GameTitle 游戏名称，出现在系统提示中
const GameTitle = "Jade Compass: Relic Expedition"

// StoryPromptParams 生成整本故事的参数
type StoryPromptParams struct {
	TotalRounds     int
	ChoicesPerRound int
	Language        models.ContentLanguage
	IncludeFormat   bool // 结构化模式由 schema 约束格式，此时省略示例
}

// BuildSystemPrompt 固定题材、语气和语言，并要求每回合只有一个正确选项
func BuildSystemPrompt(language models.ContentLanguage) string {
	if language == "" {
		language = models.LanguageEnglish
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are the narrative designer of the treasure-hunting adventure game %q.\n\n", GameTitle)
	b.WriteString("Write one COMPLETE, CONNECTED story that spans every round. The story must:\n")
	b.WriteString("- keep continuity between rounds and reference earlier events\n")
	b.WriteString("- raise the tension as the expedition goes deeper\n")
	b.WriteString("- end with the discovery of the legendary Jade Compass\n")
	fmt.Fprintf(&b, "- be written ENTIRELY in %s\n\n", language)
	b.WriteString("The theme is always treasure hunting: ancient ruins, hidden temples and caves, maps, relics, traps, puzzles and rival hunters, in exotic places that connect logically.\n\n")
	b.WriteString("Every round has exactly ONE correct choice (isCorrect: true); all other choices are false. ")
	b.WriteString("Vary the position of the correct choice from round to round so the player cannot guess it by position.\n\n")
	b.WriteString("Answer with a single standard JSON object only: no markdown, no prose, no explanations.")
	return b.String()
}

// BuildUserPrompt 指定回合数、选项数以及期望的JSON结构
func BuildUserPrompt(p StoryPromptParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a complete %d-round treasure hunting adventure.\n\n", p.TotalRounds)
	b.WriteString("Requirements:\n")
	reqs := []string{
		"Open with a compelling introduction that sets up the expedition",
		fmt.Sprintf("Produce exactly %d interconnected rounds forming one story arc, numbered from 1", p.TotalRounds),
		fmt.Sprintf("Every round has exactly %d choices", p.ChoicesPerRound),
		"Exactly one choice per round has isCorrect: true",
		"The position of the correct choice varies between rounds",
		"Every choice has a consequence that affects the story",
		"narrativeState.initItems is the inventory before the choice; finalItems is the inventory after it",
		"narrativeState.storyProgress summarises the story so far",
		"failureSummary describes how the expedition ends if the player picks wrong in that round",
		"The ending is satisfying and consistent with the earlier rounds",
	}
	for i, r := range reqs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}

	if p.IncludeFormat {
		b.WriteString("\nResponse format (JSON only):\n")
		b.WriteString(formatExample(p.ChoicesPerRound))
	}
	return b.String()
}

func formatExample(choices int) string {
	if choices < 1 {
		choices = 1
	}
	var c strings.Builder
	for i := 1; i <= choices; i++ {
		if i > 1 {
			c.WriteString(",\n")
		}
		fmt.Fprintf(&c, `        {
          "id": "r1_c%d",
          "title": "Choice %d title",
          "summary": "What this option means (1-2 sentences)",
          "isCorrect": %t,
          "consequence": "How this choice changes the story",
          "finalItems": ["inventory", "after", "choice"]
        }`, i, i, i == 1)
	}

	return `{
  "intro": "Introduction to the whole adventure",
  "overallTheme": "Main theme of the story",
  "rounds": [
    {
      "round": 1,
      "intro": "Detailed description of the current situation",
      "location": "Current location",
      "narrativeState": {
        "location": "Current location",
        "status": "Character's current condition",
        "initItems": ["inventory", "before", "choice"],
        "storyProgress": "Summary of events so far"
      },
      "choices": [
` + c.String() + `
      ],
      "failureSummary": "How the expedition ends on a wrong choice"
    }
  ]
}`
}
