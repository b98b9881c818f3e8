package compiler

import (
	"fmt"
	"strings"

	"github.com/tatamiapp/tatami-backend/internal/domain"
)

// Fragment is one labeled context block. Fragments stay separate all the way
// into the prompt templates so each template can attach its own instructions
// to each fragment; nothing upstream concatenates them.
type Fragment struct {
	Label string
	Body  string
}

func (f Fragment) Empty() bool { return strings.TrimSpace(f.Body) == "" }

// Text renders the fragment body for template interpolation. Empty fragments
// render a placeholder so templates can interpolate unconditionally.
func (f Fragment) Text() string {
	if f.Empty() {
		return "(none)"
	}
	return f.Body
}

// GenerationContext is the composed, read-only input shared by the plan
// generator and every stage. Absent kit or profile shows up as empty
// fragments, never as a different shape.
type GenerationContext struct {
	Descriptor domain.CanDoDescriptor

	KitContext      Fragment
	KitRequirements Fragment
	ProfileContext  Fragment

	KitAvailable     bool
	ProfileAvailable bool

	// Kit item surface forms, kept for coverage measurement at assembly.
	RequiredWords   []string
	RequiredGrammar []string
	RequiredPhrases []string
}

// ComposeContext builds a GenerationContext from whatever inputs are
// available. It is pure: same inputs, same output, no I/O. A nil or empty kit
// or profile produces empty fragments.
func ComposeContext(descriptor domain.CanDoDescriptor, kit *domain.Kit, profile *domain.Profile) GenerationContext {
	gc := GenerationContext{Descriptor: descriptor}

	gc.KitContext = Fragment{Label: "prelesson_kit"}
	gc.KitRequirements = Fragment{Label: "kit_requirements"}
	if !kit.Empty() {
		gc.KitAvailable = true
		gc.KitContext.Body = renderKit(kit)
		gc.KitRequirements.Body = renderKitRequirements(kit)
		gc.RequiredWords = itemTexts(kit.Words)
		gc.RequiredGrammar = itemTexts(kit.GrammarPatterns)
		gc.RequiredPhrases = itemTexts(kit.Phrases)
	}

	gc.ProfileContext = Fragment{Label: "learner_profile"}
	if !profile.Empty() {
		gc.ProfileAvailable = true
		gc.ProfileContext.Body = renderProfile(profile)
	}

	return gc
}

func renderKit(kit *domain.Kit) string {
	var b strings.Builder
	writeItemSection(&b, "words", kit.Words)
	writeItemSection(&b, "grammar_patterns", kit.GrammarPatterns)
	writeItemSection(&b, "phrases", kit.Phrases)
	return strings.TrimRight(b.String(), "\n")
}

func writeItemSection(b *strings.Builder, name string, items []domain.KitItem) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", name)
	for _, it := range items {
		b.WriteString("- " + it.Text)
		if it.Reading != "" {
			b.WriteString(" (" + it.Reading + ")")
		}
		if it.Gloss != "" {
			b.WriteString(": " + it.Gloss)
		}
		b.WriteString("\n")
	}
}

func renderKitRequirements(kit *domain.Kit) string {
	var parts []string
	if n := len(kit.Words); n > 0 {
		parts = append(parts, fmt.Sprintf("use all %d kit words", n))
	}
	if n := len(kit.GrammarPatterns); n > 0 {
		parts = append(parts, fmt.Sprintf("exercise all %d kit grammar patterns", n))
	}
	if n := len(kit.Phrases); n > 0 {
		parts = append(parts, fmt.Sprintf("incorporate all %d kit phrases", n))
	}
	return strings.Join(parts, "; ")
}

func renderProfile(p *domain.Profile) string {
	var b strings.Builder
	writeStrSection(&b, "goals", p.Goals)
	if strings.TrimSpace(p.RegisterPreferences) != "" {
		fmt.Fprintf(&b, "register_preferences: %s\n", p.RegisterPreferences)
	}
	writeStrSection(&b, "cultural_interests", p.CulturalInterests)
	writeStrSection(&b, "preferred_exercise_types", p.PreferredExerciseTypes)
	if strings.TrimSpace(p.ScenarioDetails) != "" {
		fmt.Fprintf(&b, "scenario_details: %s\n", p.ScenarioDetails)
	}
	writeStrSection(&b, "grammar_focus_areas", p.GrammarFocusAreas)
	return strings.TrimRight(b.String(), "\n")
}

func writeStrSection(b *strings.Builder, name string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", name, strings.Join(values, ", "))
}

func itemTexts(items []domain.KitItem) []string {
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Text) != "" {
			out = append(out, it.Text)
		}
	}
	return out
}
