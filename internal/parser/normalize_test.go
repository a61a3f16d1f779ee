package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/Corphon/JadeCompass/internal/models"
)

func TestNormalizeStoryAliasesProduceSameDocument(t *testing.T) {
	camel := `{
		"intro": "The map is torn.",
		"overallTheme": "Greed",
		"rounds": [{
			"intro": "A humid cave.",
			"round": 1,
			"location": "Cave",
			"narrativeState": {"location": "Cave", "status": "Tired", "initItems": ["map"], "storyProgress": "Arrived"},
			"choices": [{"id": "a", "title": "Left", "summary": "Go left", "isCorrect": true, "consequence": "Safe", "finalItems": ["map", "torch"]}],
			"failureSummary": "Lost"
		}]
	}`
	snake := `{
		"intro": "The map is torn.",
		"overall_theme": "Greed",
		"rounds": [{
			"description": "A humid cave.",
			"id": "1",
			"location": "Cave",
			"narrative_state": {"location": "Cave", "status": "Tired", "init_items": ["map"], "story_progress": "Arrived"},
			"choices": [{"id": "a", "title": "Left", "summary": "Go left", "is_correct": "yes", "consequence": "Safe", "final_items": ["map", "torch"]}],
			"failure_summary": "Lost"
		}]
	}`

	a := NormalizeStory(gjson.Parse(camel))
	b := NormalizeStory(gjson.Parse(snake))
	assert.Equal(t, a, b)
	require.Len(t, a.Rounds, 1)
	assert.True(t, a.Rounds[0].Choices[0].IsCorrect)
	assert.Equal(t, "Greed", a.OverallTheme)
}

func TestNormalizeRoundNumberFallsBackToPosition(t *testing.T) {
	doc := NormalizeStory(gjson.Parse(`{"rounds": [{}, {}, {}]}`))
	require.Len(t, doc.Rounds, 3)
	for i, r := range doc.Rounds {
		assert.Equal(t, i+1, r.Round)
	}
}

func TestNormalizeRoundNumberResolution(t *testing.T) {
	cases := []struct {
		name string
		json string
		want int
	}{
		{"numeric round", `{"round": 4}`, 4},
		{"string round", `{"round": "3"}`, 3},
		{"leading digits", `{"round": "2nd"}`, 2},
		{"prefixed id falls back", `{"id": "r1"}`, 6},
		{"zero falls back", `{"round": 0}`, 6},
		{"negative falls back", `{"round": "-2"}`, 6},
		{"bad round uses id", `{"round": "x", "id": 7}`, 7},
		{"null ignored", `{"round": null, "id": "9"}`, 9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NormalizeRound(gjson.Parse(tc.json), 5)
			assert.Equal(t, tc.want, r.Round)
		})
	}
}

func TestToBoolean(t *testing.T) {
	cases := map[string]bool{
		`true`:     true,
		`false`:    false,
		`1`:        true,
		`0`:        false,
		`-2.5`:     true,
		`"yes"`:    true,
		`" YES "`:  true,
		`"Y"`:      true,
		`"1"`:      true,
		`"TRUE"`:   true,
		`"no"`:     false,
		`"0"`:      false,
		`"maybe"`:  false,
		`null`:     false,
		`{}`:       false,
		`["true"]`: false,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ToBoolean(gjson.Parse(raw)), raw)
	}
}

func TestNormalizeDropsNonStringItems(t *testing.T) {
	state := NormalizeNarrativeState(gjson.Parse(`{"initItems": ["map", 42, null, "compass", {"name": "rope"}]}`))
	assert.Equal(t, []string{"map", "compass"}, state.InitItems)
}

func TestNormalizeItemAliasOrder(t *testing.T) {
	state := NormalizeNarrativeState(gjson.Parse(`{"items": ["a"], "init_items": ["b"]}`))
	assert.Equal(t, []string{"a"}, state.InitItems)

	choice := NormalizeChoice(gjson.Parse(`{"items": ["x"], "correct": 1}`))
	assert.Equal(t, []string{"x"}, choice.FinalItems)
	assert.True(t, choice.IsCorrect)
}

func TestNormalizeMissingFieldsUseDefaults(t *testing.T) {
	doc := NormalizeStory(gjson.Parse(`{"rounds": [{"choices": [{}]}]}`))
	require.Len(t, doc.Rounds, 1)
	r := doc.Rounds[0]

	assert.Equal(t, "", doc.Intro)
	assert.Equal(t, "", r.Intro)
	assert.NotNil(t, r.NarrativeState.InitItems)
	assert.Empty(t, r.NarrativeState.InitItems)
	require.Len(t, r.Choices, 1)
	assert.Equal(t, models.Choice{FinalItems: []string{}}, r.Choices[0])
}

func TestNormalizeRoundLocationFallsBackToState(t *testing.T) {
	r := NormalizeRound(gjson.Parse(`{"narrativeState": {"location": "Temple"}}`), 0)
	assert.Equal(t, "Temple", r.Location)
}

func TestNormalizeScalarsBecomeText(t *testing.T) {
	c := NormalizeChoice(gjson.Parse(`{"id": 2, "title": {"nested": true}}`))
	assert.Equal(t, "2", c.ID)
	assert.Equal(t, "", c.Title)
}

func TestNormalizeNonObjectInput(t *testing.T) {
	doc := NormalizeStory(gjson.Parse(`[1, 2, 3]`))
	assert.Empty(t, doc.Rounds)
	assert.NotNil(t, doc.Rounds)
}
