package compiler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tatamiapp/tatami-backend/internal/compiler/cards"
	"github.com/tatamiapp/tatami-backend/internal/compiler/prompts"
)

// DomainPlan is the validated output of the planning step: the thematic
// skeleton every stage generates against. It is immutable once produced.
type DomainPlan struct {
	VocabularyBuckets []VocabularyBucket `json:"vocabulary_buckets"`
	GrammarFunctions  []string           `json:"grammar_functions"`
	Scenarios         []PlannedScenario  `json:"scenarios"`
	CulturalThemes    []string           `json:"cultural_themes"`
}

type VocabularyBucket struct {
	Name  string   `json:"name"`
	Words []string `json:"words"`
}

type PlannedScenario struct {
	Setting      string   `json:"setting"`
	Register     string   `json:"register"`
	Participants []string `json:"participants,omitempty"`
}

// JSON renders the plan for prompt interpolation.
func (p DomainPlan) JSON() string {
	b, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// GeneratePlan runs the planning prompt through the repair engine and decodes
// the validated payload. Failures wrap in GenerationFailure; the caller
// aborts compilation, nothing downstream can run without a plan.
func GeneratePlan(ctx context.Context, engine *RepairEngine, gc GenerationContext, sink Sink) (DomainPlan, cards.Card, error) {
	in := prompts.Input{
		Level:           gc.Descriptor.Level,
		Topic:           gc.Descriptor.Topic,
		Statement:       gc.Descriptor.Statement,
		StatementEN:     gc.Descriptor.StatementEN,
		KitContext:      gc.KitContext.Text(),
		KitRequirements: gc.KitRequirements.Text(),
		ProfileContext:  gc.ProfileContext.Text(),
	}

	p, err := prompts.Build(prompts.PromptDomainPlan, in)
	if err != nil {
		return DomainPlan{}, cards.Card{}, &GenerationFailure{Err: err}
	}

	schema, ok := cards.SchemaFor(cards.SchemaDomainPlan)
	if !ok {
		return DomainPlan{}, cards.Card{}, &GenerationFailure{Err: fmt.Errorf("schema %s not registered", cards.SchemaDomainPlan)}
	}

	emit(sink, "plan", cards.SchemaDomainPlan, StatusGenerating)
	card, err := engine.GenerateValidated(ctx, p, schema, sink, "plan")
	if err != nil {
		emit(sink, "plan", cards.SchemaDomainPlan, StatusFailed)
		return DomainPlan{}, cards.Card{}, &GenerationFailure{Err: err}
	}

	plan, err := decodePlan(card.Payload)
	if err != nil {
		emit(sink, "plan", cards.SchemaDomainPlan, StatusFailed)
		return DomainPlan{}, cards.Card{}, &GenerationFailure{Err: err}
	}

	emit(sink, "plan", cards.SchemaDomainPlan, StatusCompleted)
	return plan, card, nil
}

func decodePlan(payload map[string]any) (DomainPlan, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return DomainPlan{}, fmt.Errorf("encode plan payload: %w", err)
	}
	var plan DomainPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return DomainPlan{}, fmt.Errorf("decode plan payload: %w", err)
	}
	return plan, nil
}
