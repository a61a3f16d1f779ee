// internal/parser/normalize.go
package parser

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Corphon/JadeCompass/internal/models"
)

// 每个字段的候选键，按优先级排列
var (
	storyIntroKeys = []string{"intro"}
	storyThemeKeys = []string{"overallTheme", "overall_theme"}
	storyRoundKeys = []string{"rounds"}

	roundIntroKeys    = []string{"intro", "description"}
	roundNumberKeys   = []string{"round", "id"}
	roundLocationKeys = []string{"location"}
	roundStateKeys    = []string{"narrativeState", "narrative_state"}
	roundChoiceKeys   = []string{"choices"}
	roundFailureKeys  = []string{"failureSummary", "failure_summary"}

	stateLocationKeys = []string{"location"}
	stateStatusKeys   = []string{"status"}
	stateItemKeys     = []string{"initItems", "items", "init_items"}
	stateProgressKeys = []string{"storyProgress", "story_progress"}

	choiceIDKeys          = []string{"id"}
	choiceTitleKeys       = []string{"title"}
	choiceSummaryKeys     = []string{"summary"}
	choiceCorrectKeys     = []string{"isCorrect", "is_correct", "correct"}
	choiceConsequenceKeys = []string{"consequence"}
	choiceItemKeys        = []string{"finalItems", "final_items", "items"}
)

var truthy = map[string]bool{"true": true, "yes": true, "y": true, "1": true}

// NormalizeStory 将任意结构的JSON转换为规范故事，缺失字段取默认值，从不失败
func NormalizeStory(data gjson.Result) *models.StoryDocument {
	doc := &models.StoryDocument{
		Intro:        asString(lookup(data, storyIntroKeys)),
		OverallTheme: asString(lookup(data, storyThemeKeys)),
		Rounds:       []models.GameRound{},
	}

	rounds := lookup(data, storyRoundKeys)
	if rounds.IsArray() {
		for i, r := range rounds.Array() {
			doc.Rounds = append(doc.Rounds, NormalizeRound(r, i))
		}
	}
	return doc
}

// NormalizeRound 规范化单个回合，index 为其在源序列中的位置（从0开始）
func NormalizeRound(data gjson.Result, index int) models.GameRound {
	state := NormalizeNarrativeState(lookup(data, roundStateKeys))

	round := models.GameRound{
		Intro:          asString(lookup(data, roundIntroKeys)),
		Round:          roundNumber(data, index),
		Location:       asString(lookup(data, roundLocationKeys)),
		NarrativeState: state,
		Choices:        []models.Choice{},
		FailureSummary: asString(lookup(data, roundFailureKeys)),
	}
	if round.Location == "" {
		round.Location = state.Location
	}

	choices := lookup(data, roundChoiceKeys)
	if choices.IsArray() {
		for _, c := range choices.Array() {
			round.Choices = append(round.Choices, NormalizeChoice(c))
		}
	}
	return round
}

// NormalizeNarrativeState 规范化情境
func NormalizeNarrativeState(data gjson.Result) models.NarrativeState {
	return models.NarrativeState{
		Location:      asString(lookup(data, stateLocationKeys)),
		Status:        asString(lookup(data, stateStatusKeys)),
		InitItems:     asStrings(lookup(data, stateItemKeys)),
		StoryProgress: asString(lookup(data, stateProgressKeys)),
	}
}

// NormalizeChoice 规范化选项
func NormalizeChoice(data gjson.Result) models.Choice {
	return models.Choice{
		ID:          asString(lookup(data, choiceIDKeys)),
		Title:       asString(lookup(data, choiceTitleKeys)),
		Summary:     asString(lookup(data, choiceSummaryKeys)),
		IsCorrect:   ToBoolean(lookup(data, choiceCorrectKeys)),
		Consequence: asString(lookup(data, choiceConsequenceKeys)),
		FinalItems:  asStrings(lookup(data, choiceItemKeys)),
	}
}

// lookup 返回第一个存在且非 null 的候选键的值
func lookup(data gjson.Result, keys []string) gjson.Result {
	if !data.IsObject() {
		return gjson.Result{}
	}
	for _, k := range keys {
		if v := data.Get(k); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// ToBoolean 布尔强制转换：数字非零为真，字符串匹配 true/yes/y/1（忽略大小写）为真
func ToBoolean(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		return truthy[strings.ToLower(strings.TrimSpace(v.Str))]
	default:
		return false
	}
}

// roundNumber 取 round/id 中第一个可解析为正整数的值，否则回退为位置序号
func roundNumber(data gjson.Result, index int) int {
	if data.IsObject() {
		for _, k := range roundNumberKeys {
			if n, ok := positiveInt(data.Get(k)); ok {
				return n
			}
		}
	}
	return index + 1
}

func positiveInt(v gjson.Result) (int, bool) {
	switch v.Type {
	case gjson.Number:
		n := int(v.Num)
		return n, n > 0
	case gjson.String:
		n, ok := leadingInt(strings.TrimSpace(v.Str))
		return n, ok && n > 0
	default:
		return 0, false
	}
}

// leadingInt 解析开头的整数部分，"3rd" 得到 3，"r3" 失败
func leadingInt(s string) (int, bool) {
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// asString 字符串原样返回，其他标量取其JSON文本，对象和数组视为缺失
func asString(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number, gjson.True, gjson.False:
		return v.Raw
	default:
		return ""
	}
}

// asStrings 只保留真正的字符串元素
func asStrings(v gjson.Result) []string {
	out := []string{}
	if !v.IsArray() {
		return out
	}
	for _, item := range v.Array() {
		if item.Type == gjson.String {
			out = append(out, item.Str)
		}
	}
	return out
}
