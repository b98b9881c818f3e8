package compiler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tatamiapp/tatami-backend/internal/compiler/cards"
	"github.com/tatamiapp/tatami-backend/internal/domain"
	"github.com/tatamiapp/tatami-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func testDescriptor() domain.CanDoDescriptor {
	return domain.CanDoDescriptor{
		ID:          "jf:a2:directions:01",
		Level:       "A2",
		Topic:       "directions",
		Statement:   "駅で道を尋ねることができる",
		StatementEN: "Can ask for directions at a station",
	}
}

// fakeProvider returns schema-valid payloads by default; per-schema overrides
// script failures.
type fakeProvider struct {
	mu       sync.Mutex
	calls    map[string]int
	prompts  map[string][]string
	override map[string]func(call int, user string) (map[string]any, error)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		calls:    map[string]int{},
		prompts:  map[string][]string{},
		override: map[string]func(int, string) (map[string]any, error){},
	}
}

func (f *fakeProvider) GenerateJSON(_ context.Context, _, user, schemaName string, _ map[string]any) (map[string]any, error) {
	f.mu.Lock()
	n := f.calls[schemaName]
	f.calls[schemaName] = n + 1
	f.prompts[schemaName] = append(f.prompts[schemaName], user)
	fn := f.override[schemaName]
	f.mu.Unlock()

	if fn != nil {
		return fn(n, user)
	}
	return validPayload(schemaName), nil
}

func (f *fakeProvider) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeProvider) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeProvider) promptsFor(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.prompts[name]))
	copy(out, f.prompts[name])
	return out
}

func validPayload(name string) map[string]any {
	switch name {
	case cards.SchemaDomainPlan:
		return map[string]any{
			"vocabulary_buckets": []any{
				map[string]any{"name": "station", "words": []any{"駅", "切符", "改札"}},
			},
			"grammar_functions": []any{"asking where something is"},
			"scenarios": []any{
				map[string]any{"setting": "train station", "register": "polite", "participants": []any{"learner", "attendant"}},
			},
			"cultural_themes": []any{"station etiquette"},
		}
	case cards.ArtifactObjective:
		return map[string]any{
			"objective":        "You will be able to ask for directions at a train station.",
			"success_criteria": []any{"asks politely", "understands the answer"},
			"register":         "polite",
		}
	case cards.ArtifactVocabulary:
		return map[string]any{
			"items": []any{
				map[string]any{"term": "駅", "reading": "えき", "gloss": "station", "example": "駅はどこですか。"},
			},
		}
	case cards.ArtifactGrammarPatterns:
		return map[string]any{
			"patterns": []any{
				map[string]any{"pattern": "〜はどこですか", "function": "asking where", "example": "改札はどこですか。"},
			},
		}
	case cards.ArtifactFormulaicExpressions:
		return map[string]any{
			"expressions": []any{
				map[string]any{"phrase": "すみません", "usage": "getting attention", "register": "polite"},
			},
		}
	case cards.ArtifactDialogue:
		return map[string]any{
			"title":    "At the station",
			"scenario": "A traveler asks a station attendant for directions.",
			"register": "polite",
			"turns": []any{
				map[string]any{"speaker": "traveler", "line": "すみません、駅はどこですか。", "gloss": "Excuse me, where is the station?"},
				map[string]any{"speaker": "attendant", "line": "まっすぐ行ってください。", "gloss": "Please go straight."},
			},
		}
	case cards.ArtifactCulture:
		return map[string]any{
			"themes": []any{
				map[string]any{"theme": "station etiquette", "note": "Stand on one side of the escalator."},
			},
		}
	case cards.ArtifactReading:
		return map[string]any{
			"title":       "A trip to the station",
			"body":        "今日、駅で切符を買いました。改札はどこですか、と聞きました。",
			"gloss_notes": []any{"切符 = ticket", "改札 = ticket gate"},
		}
	case cards.ArtifactComprehensionEx:
		return map[string]any{
			"exercises": []any{
				map[string]any{"type": "true_false", "prompt": "The writer bought a ticket.", "options": []any{}, "answer": "true"},
			},
		}
	case cards.ArtifactComprehensionTutor:
		return map[string]any{
			"persona": "A patient reading tutor.",
			"goals":   []any{"confirm overall meaning"},
			"hints":   []any{"look at the first sentence"},
		}
	case cards.ArtifactGuidedDialogue:
		return map[string]any{
			"scenario":     "Asking an attendant for directions.",
			"register":     "polite",
			"learner_role": "traveler",
			"turns": []any{
				map[string]any{"speaker": "attendant", "line": "はい、どうしましたか。"},
				map[string]any{"speaker": "traveler", "line": "駅はどこですか。", "hint": "Ask where the station is."},
			},
		}
	case cards.ArtifactProductionEx:
		return map[string]any{
			"exercises": []any{
				map[string]any{"type": "short_answer", "prompt": "Ask where the ticket gate is.", "example_answer": "改札はどこですか。"},
			},
		}
	case cards.ArtifactProductionEvaluator:
		return map[string]any{
			"criteria": []any{
				map[string]any{"name": "question form", "description": "Uses どこですか to ask location."},
			},
		}
	case cards.ArtifactInteractiveDialogue:
		return map[string]any{
			"scenario":     "The learner is lost near the station.",
			"register":     "polite",
			"opening_line": "こんにちは、何かお探しですか。",
			"branches": []any{
				map[string]any{"cue": "asks for the station", "response": "駅はあちらです。"},
			},
		}
	case cards.ArtifactInteractionActivities:
		return map[string]any{
			"activities": []any{
				map[string]any{"title": "Find the platform", "instructions": "Ask your partner where platform 3 is.", "exercise_type": "role_play"},
			},
		}
	case cards.ArtifactScenarioManager:
		return map[string]any{
			"scenario": "Getting to the right platform.",
			"persona":  "A station attendant.",
			"states": []any{
				map[string]any{"name": "greet", "goal": "greet the attendant", "transition_cue": "greeting heard"},
			},
		}
	}
	return nil
}

func TestCompileProducesFourStages(t *testing.T) {
	provider := newFakeProvider()
	c := New(provider, testLogger(t), nil)
	gc := ComposeContext(testDescriptor(), nil, nil)

	var events EventLog
	doc, err := c.Compile(context.Background(), gc, DefaultParams(), &events)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if len(doc.Stages) != 4 {
		t.Fatalf("expected 4 stages, got %d", len(doc.Stages))
	}
	wantOrder := []string{StageContent, StageComprehension, StageProduction, StageInteraction}
	for i, want := range wantOrder {
		if doc.Stages[i].Stage != want {
			t.Fatalf("stage %d: got %s, want %s", i, doc.Stages[i].Stage, want)
		}
		if len(doc.Stages[i].Cards) == 0 {
			t.Fatalf("stage %s produced no cards", want)
		}
		if len(doc.Stages[i].Missing) != 0 {
			t.Fatalf("stage %s has unexpected missing markers: %v", want, doc.Stages[i].Missing)
		}
	}

	if doc.Metadata.PrelessonKitAvailable {
		t.Fatalf("no kit was provided but PrelessonKitAvailable is true")
	}
	if doc.Metadata.KitCoverage != nil {
		t.Fatalf("no kit was provided but coverage was reported")
	}
	if doc.Metadata.ProfileApplied {
		t.Fatalf("no profile was provided but ProfileApplied is true")
	}

	// 1 plan + 15 artifacts, one call each.
	if got := provider.totalCalls(); got != 16 {
		t.Fatalf("expected 16 provider calls, got %d", got)
	}
	if len(doc.Metadata.PromptFingerprints) != 16 {
		t.Fatalf("expected 16 fingerprints, got %d", len(doc.Metadata.PromptFingerprints))
	}
}

func TestCompileStageOrdering(t *testing.T) {
	provider := newFakeProvider()
	c := New(provider, testLogger(t), nil)
	gc := ComposeContext(testDescriptor(), nil, nil)

	var events EventLog
	if _, err := c.Compile(context.Background(), gc, DefaultParams(), &events); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	evs := events.Events()
	idx := func(stage, artifact, status string) int {
		for i, e := range evs {
			if e.Stage == stage && e.Artifact == artifact && e.Status == status {
				return i
			}
		}
		t.Fatalf("no event %s/%s/%s", stage, artifact, status)
		return -1
	}

	// Objective gates the rest of the content stage.
	if idx(StageContent, cards.ArtifactObjective, StatusCompleted) > idx(StageContent, cards.ArtifactDialogue, StatusGenerating) {
		t.Fatalf("dialogue started generating before objective completed")
	}
	// Reading gates the rest of the comprehension stage.
	if idx(StageComprehension, cards.ArtifactReading, StatusCompleted) > idx(StageComprehension, cards.ArtifactComprehensionEx, StatusGenerating) {
		t.Fatalf("comprehension exercises started before reading completed")
	}
	// Stages run strictly in order.
	if idx(StageContent, "", StatusCompleted) > idx(StageComprehension, "", StatusStarted) {
		t.Fatalf("comprehension started before content completed")
	}
	if idx(StageProduction, "", StatusCompleted) > idx(StageInteraction, "", StatusStarted) {
		t.Fatalf("interaction started before production completed")
	}
}

func TestCompileObjectiveExhaustionAbortsPipeline(t *testing.T) {
	provider := newFakeProvider()
	provider.override[cards.ArtifactObjective] = func(int, string) (map[string]any, error) {
		// Always invalid: leaks plan, omits every required field.
		return map[string]any{"plan": map[string]any{"notes": "leaked"}}, nil
	}

	c := New(provider, testLogger(t), nil)
	gc := ComposeContext(testDescriptor(), nil, nil)

	_, err := c.Compile(context.Background(), gc, Params{MaxRepairs: 2}, nil)
	if err == nil {
		t.Fatalf("expected compile failure")
	}

	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CompileError, got %T: %v", err, err)
	}
	if ce.Stage != StageContent || ce.Artifact != cards.ArtifactObjective {
		t.Fatalf("got failure at %s/%s, want %s/%s", ce.Stage, ce.Artifact, StageContent, cards.ArtifactObjective)
	}
	if len(ce.Errors) == 0 {
		t.Fatalf("CompileError carries no validation errors")
	}
	if len(ce.Completed) != 0 {
		t.Fatalf("no stage completed, but %d results kept", len(ce.Completed))
	}

	// Budget: 1 initial + 2 repairs, nothing after the critical failure.
	if got := provider.callCount(cards.ArtifactObjective); got != 3 {
		t.Fatalf("objective consumed %d calls, want 3", got)
	}
	if got := provider.totalCalls(); got != 4 { // plan + 3 objective attempts
		t.Fatalf("pipeline made %d calls in total, want 4", got)
	}
}

func TestCompileNonCriticalFailureDegradesToMissing(t *testing.T) {
	provider := newFakeProvider()
	provider.override[cards.ArtifactVocabulary] = func(int, string) (map[string]any, error) {
		return map[string]any{"items": "not a list"}, nil
	}

	c := New(provider, testLogger(t), nil)
	gc := ComposeContext(testDescriptor(), nil, nil)

	doc, err := c.Compile(context.Background(), gc, Params{MaxRepairs: 1}, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	content := doc.Stages[0]
	if _, ok := content.Cards[cards.ArtifactVocabulary]; ok {
		t.Fatalf("invalid vocabulary was stored as a card")
	}
	marker, ok := content.Missing[cards.ArtifactVocabulary]
	if !ok {
		t.Fatalf("vocabulary has no missing marker")
	}
	if marker.Reason != "validation_exhausted" {
		t.Fatalf("marker reason = %q, want validation_exhausted", marker.Reason)
	}
	if len(marker.Errors) == 0 {
		t.Fatalf("marker carries no validation errors")
	}

	// Pipeline still ran to the end.
	if len(doc.Stages) != 4 {
		t.Fatalf("expected 4 stages, got %d", len(doc.Stages))
	}
	if got := provider.callCount(cards.ArtifactScenarioManager); got != 1 {
		t.Fatalf("scenario manager was called %d times, want 1", got)
	}
}

func TestCompileMissingDialogueShortCircuitsComprehension(t *testing.T) {
	provider := newFakeProvider()
	provider.override[cards.ArtifactDialogue] = func(int, string) (map[string]any, error) {
		return map[string]any{"title": "only a title"}, nil
	}

	c := New(provider, testLogger(t), nil)
	gc := ComposeContext(testDescriptor(), nil, nil)

	_, err := c.Compile(context.Background(), gc, Params{MaxRepairs: 0}, nil)
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CompileError, got %T: %v", err, err)
	}
	// Reading cannot be built without the dialogue, and reading is critical.
	if ce.Stage != StageComprehension || ce.Artifact != cards.ArtifactReading {
		t.Fatalf("got failure at %s/%s, want %s/%s", ce.Stage, ce.Artifact, StageComprehension, cards.ArtifactReading)
	}
	var um *UpstreamDependencyMissing
	if !errors.As(err, &um) {
		t.Fatalf("failure cause should be UpstreamDependencyMissing, got %v", err)
	}

	// The completed content stage is kept, with dialogue marked missing.
	if len(ce.Completed) != 1 || ce.Completed[0].Stage != StageContent {
		t.Fatalf("completed results = %v, want content only", ce.Completed)
	}
	marker, ok := ce.Completed[0].Missing[cards.ArtifactDialogue]
	if !ok || marker.Reason != "validation_exhausted" {
		t.Fatalf("dialogue missing marker wrong: %v %v", ok, marker)
	}

	// Reading never reached the provider, and nothing downstream ran.
	if got := provider.callCount(cards.ArtifactReading); got != 0 {
		t.Fatalf("reading consumed %d provider calls, want 0", got)
	}
	if got := provider.callCount(cards.ArtifactGuidedDialogue); got != 0 {
		t.Fatalf("production ran after a comprehension failure: %d calls", got)
	}
}

func TestRegenerateArtifactFillsMissingMarker(t *testing.T) {
	provider := newFakeProvider()
	provider.override[cards.ArtifactCulture] = func(int, string) (map[string]any, error) {
		return map[string]any{"themes": "broken"}, nil
	}

	c := New(provider, testLogger(t), nil)
	gc := ComposeContext(testDescriptor(), nil, nil)

	doc, err := c.Compile(context.Background(), gc, Params{MaxRepairs: 0}, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, ok := doc.Stages[0].Missing[cards.ArtifactCulture]; !ok {
		t.Fatalf("culture should be missing after scripted failure")
	}

	delete(provider.override, cards.ArtifactCulture)
	if err := c.RegenerateArtifact(context.Background(), doc, gc, StageContent, cards.ArtifactCulture, DefaultParams()); err != nil {
		t.Fatalf("RegenerateArtifact: %v", err)
	}

	if _, ok := doc.Stages[0].Cards[cards.ArtifactCulture]; !ok {
		t.Fatalf("regenerated culture card not stored")
	}
	if _, ok := doc.Stages[0].Missing[cards.ArtifactCulture]; ok {
		t.Fatalf("missing marker not cleared after regeneration")
	}
	if doc.Metadata.PromptFingerprints[cards.ArtifactCulture] == "" {
		t.Fatalf("fingerprint not recorded for regenerated card")
	}
}

func TestCompileRecordsCallObservations(t *testing.T) {
	provider := newFakeProvider()
	provider.override[cards.ArtifactReading] = func(call int, _ string) (map[string]any, error) {
		if call == 0 {
			return map[string]any{"title": "t", "body": "b"}, nil // gloss_notes missing
		}
		return validPayload(cards.ArtifactReading), nil
	}

	var mu sync.Mutex
	var observed []CallObservation
	observe := func(_ context.Context, obs CallObservation) {
		mu.Lock()
		observed = append(observed, obs)
		mu.Unlock()
	}

	c := New(provider, testLogger(t), observe)
	gc := ComposeContext(testDescriptor(), nil, nil)
	if _, err := c.Compile(context.Background(), gc, DefaultParams(), nil); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	var readingObs []CallObservation
	for _, o := range observed {
		if o.Prompt == cards.ArtifactReading {
			readingObs = append(readingObs, o)
		}
	}
	if len(readingObs) != 2 {
		t.Fatalf("expected 2 reading observations, got %d", len(readingObs))
	}
	if readingObs[0].Success || readingObs[0].Cause != "validation" {
		t.Fatalf("first reading call should be a validation failure, got %+v", readingObs[0])
	}
	if !readingObs[1].Success {
		t.Fatalf("second reading call should succeed, got %+v", readingObs[1])
	}
}
