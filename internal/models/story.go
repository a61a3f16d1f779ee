// internal/models/story.go
package models

// NarrativeState 某一回合开始时角色所处的情境
type NarrativeState struct {
	Location      string   `json:"location" description:"Current location"`
	Status        string   `json:"status" description:"Character's current condition"`
	InitItems     []string `json:"initItems" description:"Inventory before the choice is made"`
	StoryProgress string   `json:"storyProgress,omitempty" description:"Summary of story events up to this point"`
}

// Choice 回合中的一个选项
type Choice struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary" description:"What happens if this option is chosen (1-2 sentences)"`
	IsCorrect   bool     `json:"isCorrect"`
	Consequence string   `json:"consequence" description:"How this choice impacts the story"`
	FinalItems  []string `json:"finalItems" description:"Inventory after this choice"`
}

// GameRound 冒险中的一个回合
type GameRound struct {
	Intro          string         `json:"intro" description:"Detailed description of the current situation"`
	Round          int            `json:"round" description:"1-based round number"`
	Location       string         `json:"location"`
	NarrativeState NarrativeState `json:"narrativeState"`
	Choices        []Choice       `json:"choices"`
	FailureSummary string         `json:"failureSummary,omitempty"`
}

// StoryDocument 一次生成的完整多回合故事
type StoryDocument struct {
	Intro        string      `json:"intro" description:"Compelling introduction to the adventure"`
	OverallTheme string      `json:"overallTheme" description:"Main theme of the story"`
	Rounds       []GameRound `json:"rounds"`
}

// Clone 深拷贝，避免调用方之间共享切片
func (n NarrativeState) Clone() NarrativeState {
	n.InitItems = cloneStrings(n.InitItems)
	return n
}

// Clone 深拷贝选项
func (c Choice) Clone() Choice {
	c.FinalItems = cloneStrings(c.FinalItems)
	return c
}

// Clone 深拷贝回合
func (r GameRound) Clone() GameRound {
	r.NarrativeState = r.NarrativeState.Clone()
	choices := make([]Choice, len(r.Choices))
	for i, c := range r.Choices {
		choices[i] = c.Clone()
	}
	r.Choices = choices
	return r
}

// Clone 深拷贝整个故事
func (d *StoryDocument) Clone() *StoryDocument {
	if d == nil {
		return nil
	}
	out := &StoryDocument{Intro: d.Intro, OverallTheme: d.OverallTheme, Rounds: make([]GameRound, len(d.Rounds))}
	for i, r := range d.Rounds {
		out.Rounds[i] = r.Clone()
	}
	return out
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
