package compiler

import (
	"math"
	"strings"
	"time"

	"github.com/tatamiapp/tatami-backend/internal/compiler/cards"
	"github.com/tatamiapp/tatami-backend/internal/domain"
)

// LessonDocument is the single output of a successful compilation: the
// descriptor, the plan, every stage's cards and missing markers, and assembly
// metadata. Persistence assigns Metadata.Version before saving.
type LessonDocument struct {
	DescriptorID string                 `json:"descriptor_id"`
	Descriptor   domain.CanDoDescriptor `json:"descriptor"`
	Plan         DomainPlan             `json:"plan"`
	Stages       []StageResult          `json:"stages"`
	Metadata     LessonMetadata         `json:"metadata"`
}

type LessonMetadata struct {
	Version               int               `json:"version"`
	GeneratedAt           time.Time         `json:"generated_at"`
	PrelessonKitAvailable bool              `json:"prelesson_kit_available"`
	ProfileApplied        bool              `json:"profile_applied"`
	KitCoverage           *CoverageReport   `json:"kit_coverage,omitempty"`
	PromptFingerprints    map[string]string `json:"prompt_fingerprints"`
}

// CoverageReport measures how much of the pre-requisite kit the generated
// lesson text actually used. Only present when a kit was available.
type CoverageReport struct {
	Words   CoverageCategory `json:"words"`
	Grammar CoverageCategory `json:"grammar"`
	Phrases CoverageCategory `json:"phrases"`
	Overall CoverageCategory `json:"overall"`
}

type CoverageCategory struct {
	Used            int      `json:"used"`
	Required        int      `json:"required"`
	Percentage      float64  `json:"percentage"`
	RequirementsMet bool     `json:"requirements_met"`
	MissingItems    []string `json:"missing_items,omitempty"`
}

// AssembleLesson builds the final document from validated stage results. It
// is pure; it never calls the provider and never mutates its inputs.
func AssembleLesson(gc GenerationContext, plan DomainPlan, planCard cards.Card, stages []StageResult) *LessonDocument {
	doc := &LessonDocument{
		DescriptorID: gc.Descriptor.ID,
		Descriptor:   gc.Descriptor,
		Plan:         plan,
		Stages:       stages,
		Metadata: LessonMetadata{
			GeneratedAt:           time.Now().UTC(),
			PrelessonKitAvailable: gc.KitAvailable,
			ProfileApplied:        gc.ProfileAvailable,
			PromptFingerprints:    fingerprints(planCard, stages),
		},
	}
	if gc.KitAvailable {
		doc.Metadata.KitCoverage = measureCoverage(gc, stages)
	}
	return doc
}

func fingerprints(planCard cards.Card, stages []StageResult) map[string]string {
	out := map[string]string{}
	if planCard.Fingerprint != "" {
		out[cards.SchemaDomainPlan] = planCard.Fingerprint
	}
	for _, s := range stages {
		for name, c := range s.Cards {
			out[name] = c.Fingerprint
		}
	}
	return out
}

func measureCoverage(gc GenerationContext, stages []StageResult) *CoverageReport {
	text := strings.ToLower(lessonText(stages))

	words := coverCategory(gc.RequiredWords, text)
	grammar := coverCategory(gc.RequiredGrammar, text)
	phrases := coverCategory(gc.RequiredPhrases, text)

	overall := CoverageCategory{
		Used:     words.Used + grammar.Used + phrases.Used,
		Required: words.Required + grammar.Required + phrases.Required,
	}
	overall.Percentage = coveragePct(overall.Used, overall.Required)
	overall.RequirementsMet = overall.Used == overall.Required

	return &CoverageReport{Words: words, Grammar: grammar, Phrases: phrases, Overall: overall}
}

func coverCategory(required []string, text string) CoverageCategory {
	cat := CoverageCategory{Required: len(required)}
	for _, item := range required {
		if strings.Contains(text, strings.ToLower(item)) {
			cat.Used++
		} else {
			cat.MissingItems = append(cat.MissingItems, item)
		}
	}
	cat.Percentage = coveragePct(cat.Used, cat.Required)
	cat.RequirementsMet = cat.Used == cat.Required
	return cat
}

// coveragePct rounds to one decimal place; an empty category counts as fully
// covered.
func coveragePct(used, required int) float64 {
	if required == 0 {
		return 100.0
	}
	return math.Round(float64(used)/float64(required)*1000) / 10
}

// lessonText flattens every string value in every card payload into one
// searchable blob, map keys excluded.
func lessonText(stages []StageResult) string {
	var b strings.Builder
	for _, s := range stages {
		for _, c := range s.Cards {
			collectStrings(&b, c.Payload)
		}
	}
	return b.String()
}

func collectStrings(b *strings.Builder, v any) {
	switch t := v.(type) {
	case string:
		b.WriteString(t)
		b.WriteString("\n")
	case []any:
		for _, e := range t {
			collectStrings(b, e)
		}
	case map[string]any:
		for _, e := range t {
			collectStrings(b, e)
		}
	}
}
