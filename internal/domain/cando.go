package domain

import "strings"

// CanDoDescriptor is the root input of a lesson compilation: a proficiency-
// tagged can-do statement fetched from the knowledge graph. It is never
// mutated by the pipeline.
type CanDoDescriptor struct {
	ID          string `json:"id"`
	Level       string `json:"level"`
	Topic       string `json:"topic"`
	Statement   string `json:"statement"`    // target-language can-do text
	StatementEN string `json:"statement_en"` // English can-do text
}

// KitItem is one pre-requisite vocabulary word, grammar pattern, or phrase.
type KitItem struct {
	Text    string `json:"text"`
	Reading string `json:"reading,omitempty"`
	Gloss   string `json:"gloss,omitempty"`
}

// Kit holds the pre-requisite items a learner is expected to already know
// before this lesson, sourced from their learning path.
type Kit struct {
	Words           []KitItem `json:"words"`
	GrammarPatterns []KitItem `json:"grammar_patterns"`
	Phrases         []KitItem `json:"phrases"`
}

func (k *Kit) Empty() bool {
	return k == nil || (len(k.Words) == 0 && len(k.GrammarPatterns) == 0 && len(k.Phrases) == 0)
}

// Profile carries learner personalization inputs.
type Profile struct {
	Goals                  []string `json:"goals"`
	RegisterPreferences    string   `json:"register_preferences"`
	CulturalInterests      []string `json:"cultural_interests"`
	PreferredExerciseTypes []string `json:"preferred_exercise_types"`
	ScenarioDetails        string   `json:"scenario_details"`
	GrammarFocusAreas      []string `json:"grammar_focus_areas"`
}

func (p *Profile) Empty() bool {
	if p == nil {
		return true
	}
	return len(p.Goals) == 0 &&
		strings.TrimSpace(p.RegisterPreferences) == "" &&
		len(p.CulturalInterests) == 0 &&
		len(p.PreferredExerciseTypes) == 0 &&
		strings.TrimSpace(p.ScenarioDetails) == "" &&
		len(p.GrammarFocusAreas) == 0
}
