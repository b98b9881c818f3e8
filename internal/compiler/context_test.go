package compiler

import (
	"reflect"
	"strings"
	"testing"

	"github.com/tatamiapp/tatami-backend/internal/domain"
)

func testKit() *domain.Kit {
	return &domain.Kit{
		Words: []domain.KitItem{
			{Text: "駅", Reading: "えき", Gloss: "station"},
			{Text: "切符", Reading: "きっぷ", Gloss: "ticket"},
		},
		GrammarPatterns: []domain.KitItem{
			{Text: "〜はどこですか", Gloss: "where is ~"},
		},
		Phrases: []domain.KitItem{
			{Text: "すみません", Gloss: "excuse me"},
		},
	}
}

func testProfile() *domain.Profile {
	return &domain.Profile{
		Goals:               []string{"travel to Japan"},
		RegisterPreferences: "polite",
		CulturalInterests:   []string{"trains"},
		ScenarioDetails:     "commuting in Tokyo",
	}
}

func TestComposeContextIsPure(t *testing.T) {
	d := testDescriptor()
	a := ComposeContext(d, testKit(), testProfile())
	b := ComposeContext(d, testKit(), testProfile())
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same inputs produced different contexts")
	}
}

func TestComposeContextAbsenceIsEmptyFragments(t *testing.T) {
	gc := ComposeContext(testDescriptor(), nil, nil)

	if gc.KitAvailable || gc.ProfileAvailable {
		t.Fatalf("availability flags set with no inputs")
	}
	if !gc.KitContext.Empty() || !gc.KitRequirements.Empty() || !gc.ProfileContext.Empty() {
		t.Fatalf("expected empty fragments, got kit=%q req=%q profile=%q",
			gc.KitContext.Body, gc.KitRequirements.Body, gc.ProfileContext.Body)
	}
	// Labels survive so templates can interpolate unconditionally.
	if gc.KitContext.Label != "prelesson_kit" || gc.ProfileContext.Label != "learner_profile" {
		t.Fatalf("fragment labels missing: %q %q", gc.KitContext.Label, gc.ProfileContext.Label)
	}
	if gc.KitContext.Text() != "(none)" {
		t.Fatalf("empty fragment renders %q", gc.KitContext.Text())
	}
	if len(gc.RequiredWords)+len(gc.RequiredGrammar)+len(gc.RequiredPhrases) != 0 {
		t.Fatalf("required items recorded without a kit")
	}
}

func TestComposeContextEmptyKitTreatedAsAbsent(t *testing.T) {
	gc := ComposeContext(testDescriptor(), &domain.Kit{}, &domain.Profile{})
	if gc.KitAvailable || gc.ProfileAvailable {
		t.Fatalf("empty kit/profile should compose like absent ones")
	}
}

func TestComposeContextRendersLabeledFragments(t *testing.T) {
	gc := ComposeContext(testDescriptor(), testKit(), testProfile())

	if !gc.KitAvailable || !gc.ProfileAvailable {
		t.Fatalf("availability flags not set")
	}
	for _, want := range []string{"words:", "- 駅 (えき): station", "grammar_patterns:", "phrases:"} {
		if !strings.Contains(gc.KitContext.Body, want) {
			t.Fatalf("kit fragment missing %q:\n%s", want, gc.KitContext.Body)
		}
	}
	if !strings.Contains(gc.KitRequirements.Body, "use all 2 kit words") {
		t.Fatalf("kit requirements fragment wrong:\n%s", gc.KitRequirements.Body)
	}
	for _, want := range []string{"register_preferences: polite", "goals: travel to Japan", "scenario_details: commuting in Tokyo"} {
		if !strings.Contains(gc.ProfileContext.Body, want) {
			t.Fatalf("profile fragment missing %q:\n%s", want, gc.ProfileContext.Body)
		}
	}

	// Fragments stay separate; none contains another's content.
	if strings.Contains(gc.KitContext.Body, "register_preferences") {
		t.Fatalf("profile content leaked into the kit fragment")
	}

	if !reflect.DeepEqual(gc.RequiredWords, []string{"駅", "切符"}) {
		t.Fatalf("required words = %v", gc.RequiredWords)
	}
	if !reflect.DeepEqual(gc.RequiredGrammar, []string{"〜はどこですか"}) {
		t.Fatalf("required grammar = %v", gc.RequiredGrammar)
	}
}
