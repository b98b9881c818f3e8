package compiler

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tatamiapp/tatami-backend/internal/compiler/cards"
	"github.com/tatamiapp/tatami-backend/internal/compiler/prompts"
	"github.com/tatamiapp/tatami-backend/internal/platform/openai"
)

func buildVocabularyPrompt(t *testing.T) (prompts.Prompt, cards.CardSchema) {
	t.Helper()
	in := prompts.Input{
		Level:         "A2",
		Topic:         "directions",
		Statement:     "駅で道を尋ねることができる",
		StatementEN:   "Can ask for directions at a station",
		PlanJSON:      `{"grammar_functions":["asking where"]}`,
		ObjectiveText: "You will be able to ask for directions.",
	}
	p, err := prompts.Build(prompts.PromptVocabulary, in)
	if err != nil {
		t.Fatalf("prompts.Build: %v", err)
	}
	schema, ok := cards.SchemaFor(cards.ArtifactVocabulary)
	if !ok {
		t.Fatalf("no vocabulary schema")
	}
	return p, schema
}

func TestRepairEngineCallBudget(t *testing.T) {
	provider := newFakeProvider()
	provider.override[cards.ArtifactVocabulary] = func(int, string) (map[string]any, error) {
		return map[string]any{"items": "never a list"}, nil
	}
	engine := NewRepairEngine(provider, testLogger(t), 2, nil)
	p, schema := buildVocabularyPrompt(t)

	_, err := engine.GenerateValidated(context.Background(), p, schema, nil, StageContent)
	var ve *ValidationExhausted
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationExhausted, got %T: %v", err, err)
	}
	if ve.Attempts != 3 {
		t.Fatalf("reported %d attempts, want 3", ve.Attempts)
	}
	if got := provider.callCount(cards.ArtifactVocabulary); got != 3 {
		t.Fatalf("provider called %d times, want 3 (1 initial + 2 repairs)", got)
	}
	if len(ve.Errors) != 1 || ve.Errors[0].Field != "items" {
		t.Fatalf("exhaustion should carry the last validation errors, got %v", ve.Errors)
	}
}

func TestRepairPromptCarriesExactFieldErrors(t *testing.T) {
	provider := newFakeProvider()
	provider.override[cards.ArtifactVocabulary] = func(call int, _ string) (map[string]any, error) {
		if call == 0 {
			return map[string]any{"items": "never a list"}, nil
		}
		return validPayload(cards.ArtifactVocabulary), nil
	}
	engine := NewRepairEngine(provider, testLogger(t), 2, nil)
	p, schema := buildVocabularyPrompt(t)

	card, err := engine.GenerateValidated(context.Background(), p, schema, nil, StageContent)
	if err != nil {
		t.Fatalf("GenerateValidated: %v", err)
	}
	if card.Artifact != cards.ArtifactVocabulary {
		t.Fatalf("card artifact = %q", card.Artifact)
	}

	sent := provider.promptsFor(cards.ArtifactVocabulary)
	if len(sent) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(sent))
	}
	repair := sent[1]
	if !strings.Contains(repair, "- items: malformed (expected a list of objects)") {
		t.Fatalf("repair prompt does not quote the exact field error:\n%s", repair)
	}
	if !strings.HasPrefix(repair, sent[0]) {
		t.Fatalf("repair prompt does not start from the original instructions")
	}
}

func TestRepairPromptsDoNotStack(t *testing.T) {
	provider := newFakeProvider()
	provider.override[cards.ArtifactVocabulary] = func(int, string) (map[string]any, error) {
		return map[string]any{"items": "never a list"}, nil
	}
	engine := NewRepairEngine(provider, testLogger(t), 2, nil)
	p, schema := buildVocabularyPrompt(t)

	_, _ = engine.GenerateValidated(context.Background(), p, schema, nil, StageContent)

	sent := provider.promptsFor(cards.ArtifactVocabulary)
	if len(sent) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(sent))
	}
	last := sent[2]
	if got := strings.Count(last, "failed validation"); got != 1 {
		t.Fatalf("error lists stacked across attempts: %d occurrences in\n%s", got, last)
	}
}

func TestAutoFixAvoidsRepairCall(t *testing.T) {
	provider := newFakeProvider()
	provider.override[cards.ArtifactVocabulary] = func(int, string) (map[string]any, error) {
		payload := validPayload(cards.ArtifactVocabulary)
		payload["plan"] = map[string]any{"leaked": true}
		payload["metalanguage"] = "leaked commentary"
		return payload, nil
	}
	engine := NewRepairEngine(provider, testLogger(t), 2, nil)
	p, schema := buildVocabularyPrompt(t)

	card, err := engine.GenerateValidated(context.Background(), p, schema, nil, StageContent)
	if err != nil {
		t.Fatalf("GenerateValidated: %v", err)
	}
	if got := provider.callCount(cards.ArtifactVocabulary); got != 1 {
		t.Fatalf("deterministic fix consumed %d calls, want 1", got)
	}
	if _, leaked := card.Payload["plan"]; leaked {
		t.Fatalf("leaked plan survived auto-fix")
	}
	if _, leaked := card.Payload["metalanguage"]; leaked {
		t.Fatalf("leaked metalanguage survived auto-fix")
	}
	if _, ok := card.Payload["items"]; !ok {
		t.Fatalf("auto-fix dropped a declared field")
	}
}

func TestProviderTimeoutConsumesRepairAttempt(t *testing.T) {
	provider := newFakeProvider()
	provider.override[cards.ArtifactVocabulary] = func(call int, _ string) (map[string]any, error) {
		if call == 0 {
			return nil, openai.ErrTimeout
		}
		return validPayload(cards.ArtifactVocabulary), nil
	}
	engine := NewRepairEngine(provider, testLogger(t), 1, nil)
	p, schema := buildVocabularyPrompt(t)

	if _, err := engine.GenerateValidated(context.Background(), p, schema, nil, StageContent); err != nil {
		t.Fatalf("GenerateValidated: %v", err)
	}
	if got := provider.callCount(cards.ArtifactVocabulary); got != 2 {
		t.Fatalf("provider called %d times, want 2", got)
	}
}

func TestProviderTimeoutExhaustsBudget(t *testing.T) {
	provider := newFakeProvider()
	provider.override[cards.ArtifactVocabulary] = func(int, string) (map[string]any, error) {
		return nil, openai.ErrTimeout
	}
	engine := NewRepairEngine(provider, testLogger(t), 0, nil)
	p, schema := buildVocabularyPrompt(t)

	_, err := engine.GenerateValidated(context.Background(), p, schema, nil, StageContent)
	var ve *ValidationExhausted
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationExhausted, got %T: %v", err, err)
	}
	if ve.Attempts != 1 {
		t.Fatalf("reported %d attempts, want 1", ve.Attempts)
	}
	if got := provider.callCount(cards.ArtifactVocabulary); got != 1 {
		t.Fatalf("provider called %d times, want 1", got)
	}
}

func TestTimeoutObservationCause(t *testing.T) {
	provider := newFakeProvider()
	provider.override[cards.ArtifactVocabulary] = func(int, string) (map[string]any, error) {
		return nil, openai.ErrTimeout
	}
	var observed []CallObservation
	observe := func(_ context.Context, obs CallObservation) { observed = append(observed, obs) }

	engine := NewRepairEngine(provider, testLogger(t), 0, observe)
	p, schema := buildVocabularyPrompt(t)
	_, _ = engine.GenerateValidated(context.Background(), p, schema, nil, StageContent)

	if len(observed) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(observed))
	}
	if observed[0].Cause != "timeout" {
		t.Fatalf("observation cause = %q, want timeout", observed[0].Cause)
	}
}
