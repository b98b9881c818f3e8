package compiler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tatamiapp/tatami-backend/internal/compiler/cards"
	"github.com/tatamiapp/tatami-backend/internal/compiler/prompts"
	"github.com/tatamiapp/tatami-backend/internal/platform/logger"
)

// Stage names, in pipeline order.
const (
	StageContent       = "content"
	StageComprehension = "comprehension"
	StageProduction    = "production"
	StageInteraction   = "interaction"
)

// StageResult is everything a stage produced. Cards holds the validated
// artifacts; Missing marks non-critical artifacts that exhausted repair or
// lost an upstream dependency, with enough detail to regenerate them later.
type StageResult struct {
	Stage   string                     `json:"stage"`
	Cards   map[string]cards.Card      `json:"cards"`
	Missing map[string]MissingArtifact `json:"missing,omitempty"`
}

type MissingArtifact struct {
	Reason string             `json:"reason"`
	Errors []cards.FieldError `json:"errors,omitempty"`
}

func (r StageResult) clone() StageResult {
	out := StageResult{Stage: r.Stage, Cards: make(map[string]cards.Card, len(r.Cards))}
	for k, v := range r.Cards {
		out.Cards[k] = v
	}
	if len(r.Missing) > 0 {
		out.Missing = make(map[string]MissingArtifact, len(r.Missing))
		for k, v := range r.Missing {
			out.Missing[k] = v
		}
	}
	return out
}

// stageUnit is one artifact generation inside a stage. Critical units abort
// the whole compilation when they fail; everything else degrades to a missing
// marker.
type stageUnit struct {
	artifact string
	prompt   prompts.PromptName
	critical bool
}

// stageDef fixes a stage's internal ordering: phase1 units run sequentially
// and gate phase2, phase2 units run concurrently. The tables are static;
// stages never reorder at runtime.
type stageDef struct {
	name   string
	phase1 []stageUnit
	phase2 []stageUnit
}

var stagePipeline = []stageDef{
	{
		name:   StageContent,
		phase1: []stageUnit{{cards.ArtifactObjective, prompts.PromptObjective, true}},
		phase2: []stageUnit{
			{cards.ArtifactVocabulary, prompts.PromptVocabulary, false},
			{cards.ArtifactGrammarPatterns, prompts.PromptGrammarPatterns, false},
			{cards.ArtifactFormulaicExpressions, prompts.PromptFormulaicExpressions, false},
			{cards.ArtifactDialogue, prompts.PromptDialogue, false},
			{cards.ArtifactCulture, prompts.PromptCulture, false},
		},
	},
	{
		name:   StageComprehension,
		phase1: []stageUnit{{cards.ArtifactReading, prompts.PromptReading, true}},
		phase2: []stageUnit{
			{cards.ArtifactComprehensionEx, prompts.PromptComprehensionEx, false},
			{cards.ArtifactComprehensionTutor, prompts.PromptComprehensionTutor, false},
		},
	},
	{
		name: StageProduction,
		phase2: []stageUnit{
			{cards.ArtifactGuidedDialogue, prompts.PromptGuidedDialogue, false},
			{cards.ArtifactProductionEx, prompts.PromptProductionEx, false},
			{cards.ArtifactProductionEvaluator, prompts.PromptProductionEvaluator, false},
		},
	},
	{
		name: StageInteraction,
		phase2: []stageUnit{
			{cards.ArtifactInteractiveDialogue, prompts.PromptInteractiveDialogue, false},
			{cards.ArtifactInteractionActivities, prompts.PromptInteractionActivities, false},
			{cards.ArtifactScenarioManager, prompts.PromptScenarioManager, false},
		},
	},
}

// StageOrchestrator runs the four-stage pipeline over one generation context
// and plan.
type StageOrchestrator struct {
	engine *RepairEngine
	log    *logger.Logger
	sink   Sink
}

func NewStageOrchestrator(engine *RepairEngine, baseLog *logger.Logger, sink Sink) *StageOrchestrator {
	return &StageOrchestrator{
		engine: engine,
		log:    baseLog.With("service", "StageOrchestrator"),
		sink:   sink,
	}
}

// RunAll executes the stages in fixed order. On a critical failure it stops
// and returns the completed stage results alongside the StageFailure.
func (o *StageOrchestrator) RunAll(ctx context.Context, gc GenerationContext, plan DomainPlan) ([]StageResult, error) {
	var results []StageResult
	for _, def := range stagePipeline {
		res, err := o.runStage(ctx, def, gc, plan, results)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (o *StageOrchestrator) runStage(ctx context.Context, def stageDef, gc GenerationContext, plan DomainPlan, prior []StageResult) (StageResult, error) {
	emit(o.sink, def.name, "", StatusStarted)
	o.log.Info("stage started", "stage", def.name)

	res := StageResult{
		Stage:   def.name,
		Cards:   map[string]cards.Card{},
		Missing: map[string]MissingArtifact{},
	}

	// Phase 1: sequential, gates phase 2.
	for _, u := range def.phase1 {
		card, err := o.runUnit(ctx, def.name, u, gc, plan, prior, res)
		if err != nil {
			if u.critical {
				emit(o.sink, def.name, u.artifact, StatusFailed)
				emit(o.sink, def.name, "", StatusFailed)
				return res, &StageFailure{Stage: def.name, Artifact: u.artifact, Err: err}
			}
			res.Missing[u.artifact] = missingFrom(err)
			emit(o.sink, def.name, u.artifact, StatusMissing)
			continue
		}
		res.Cards[u.artifact] = card
		emit(o.sink, def.name, u.artifact, StatusCompleted)
	}

	// Phase 2: concurrent. Units read a snapshot of results so input
	// construction never races stage-local writes.
	snapshot := append(append([]StageResult{}, prior...), res.clone())

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, u := range def.phase2 {
		u := u
		g.Go(func() error {
			card, err := o.runUnit(gctx, def.name, u, gc, plan, snapshot, StageResult{})
			if err != nil {
				if u.critical {
					return &StageFailure{Stage: def.name, Artifact: u.artifact, Err: err}
				}
				mu.Lock()
				res.Missing[u.artifact] = missingFrom(err)
				mu.Unlock()
				emit(o.sink, def.name, u.artifact, StatusMissing)
				return nil
			}
			mu.Lock()
			res.Cards[u.artifact] = card
			mu.Unlock()
			emit(o.sink, def.name, u.artifact, StatusCompleted)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		emit(o.sink, def.name, "", StatusFailed)
		return res, err
	}

	if len(res.Missing) == 0 {
		res.Missing = nil
	}
	emit(o.sink, def.name, "", StatusCompleted)
	o.log.Info("stage completed", "stage", def.name, "cards", len(res.Cards), "missing", len(res.Missing))
	return res, nil
}

func (o *StageOrchestrator) runUnit(ctx context.Context, stage string, u stageUnit, gc GenerationContext, plan DomainPlan, prior []StageResult, current StageResult) (cards.Card, error) {
	in := buildInput(gc, plan, prior, current)

	p, err := prompts.Build(u.prompt, in)
	if err != nil {
		// The only runtime-variable Build failure is an input validator,
		// which means an upstream artifact this unit depends on is missing.
		return cards.Card{}, &UpstreamDependencyMissing{Stage: stage, Dependency: u.artifact + ": " + err.Error()}
	}

	schema, ok := cards.SchemaFor(u.artifact)
	if !ok {
		return cards.Card{}, errors.New("no schema registered for " + u.artifact)
	}

	emit(o.sink, stage, u.artifact, StatusGenerating)
	return o.engine.GenerateValidated(ctx, p, schema, o.sink, stage)
}

// buildInput assembles the prompt input from the descriptor, the composed
// context fragments, the plan, and every upstream artifact produced so far.
func buildInput(gc GenerationContext, plan DomainPlan, prior []StageResult, current StageResult) prompts.Input {
	in := prompts.Input{
		Level:            gc.Descriptor.Level,
		Topic:            gc.Descriptor.Topic,
		Statement:        gc.Descriptor.Statement,
		StatementEN:      gc.Descriptor.StatementEN,
		KitContext:       gc.KitContext.Text(),
		KitRequirements:  gc.KitRequirements.Text(),
		ProfileContext:   gc.ProfileContext.Text(),
		PlanJSON:         plan.JSON(),
		ExerciseTypesCSV: strings.Join(cards.ExerciseTypes(), ", "),
	}

	all := append(append([]StageResult{}, prior...), current)

	if c, ok := findCard(all, StageContent, cards.ArtifactObjective); ok {
		if s, ok := c.Payload["objective"].(string); ok {
			in.ObjectiveText = s
		}
	}
	if c, ok := findCard(all, StageContent, cards.ArtifactDialogue); ok {
		in.DialogueJSON = marshalPayload(c.Payload)
	}
	if c, ok := findCard(all, StageComprehension, cards.ArtifactReading); ok {
		in.ReadingJSON = marshalPayload(c.Payload)
	}

	in.ContentJSON = stageJSON(all, StageContent)
	in.ComprehensionJSON = stageJSON(all, StageComprehension)
	in.ProductionJSON = stageJSON(all, StageProduction)
	return in
}

func findCard(results []StageResult, stage, artifact string) (cards.Card, bool) {
	for _, r := range results {
		if r.Stage != stage {
			continue
		}
		c, ok := r.Cards[artifact]
		return c, ok
	}
	return cards.Card{}, false
}

// stageJSON renders a whole stage's card payloads keyed by artifact name.
// Empty string when the stage produced nothing yet.
func stageJSON(results []StageResult, stage string) string {
	for _, r := range results {
		if r.Stage != stage || len(r.Cards) == 0 {
			continue
		}
		payloads := make(map[string]map[string]any, len(r.Cards))
		for name, c := range r.Cards {
			payloads[name] = c.Payload
		}
		b, err := json.Marshal(payloads)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return ""
}

func marshalPayload(payload map[string]any) string {
	b, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(b)
}

func missingFrom(err error) MissingArtifact {
	var ve *ValidationExhausted
	if errors.As(err, &ve) {
		return MissingArtifact{Reason: "validation_exhausted", Errors: ve.Errors}
	}
	var um *UpstreamDependencyMissing
	if errors.As(err, &um) {
		return MissingArtifact{Reason: "upstream_dependency_missing"}
	}
	return MissingArtifact{Reason: "generation_error"}
}
