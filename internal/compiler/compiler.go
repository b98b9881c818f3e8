package compiler

import (
	"context"
	"errors"
	"fmt"

	"github.com/tatamiapp/tatami-backend/internal/compiler/cards"
	"github.com/tatamiapp/tatami-backend/internal/compiler/prompts"
	"github.com/tatamiapp/tatami-backend/internal/platform/logger"
)

// Params tunes one compilation.
type Params struct {
	// MaxRepairs bounds LLM repair calls per artifact (total calls per
	// artifact = 1 + MaxRepairs). Negative means the default.
	MaxRepairs int
}

func DefaultParams() Params { return Params{MaxRepairs: DefaultMaxRepairs} }

// Compiler wires the full pipeline: context composition, plan generation,
// staged card generation, assembly.
type Compiler struct {
	provider Provider
	log      *logger.Logger
	observe  CallObserver
}

func New(provider Provider, baseLog *logger.Logger, observe CallObserver) *Compiler {
	return &Compiler{
		provider: provider,
		log:      baseLog.With("service", "Compiler"),
		observe:  observe,
	}
}

// Compile runs the whole pipeline for one pre-composed generation context.
// Kit and profile fetching (and their degrade-on-failure policy) belong to
// the caller; by the time Compile runs, absence is already empty fragments.
//
// On a critical failure it returns a CompileError carrying the stage results
// completed before the failure.
func (c *Compiler) Compile(ctx context.Context, gc GenerationContext, params Params, sink Sink) (*LessonDocument, error) {
	if sink == nil {
		sink = NopSink
	}
	maxRepairs := params.MaxRepairs
	if maxRepairs < 0 {
		maxRepairs = DefaultMaxRepairs
	}
	engine := NewRepairEngine(c.provider, c.log, maxRepairs, c.observe)

	c.log.Info("compile started",
		"descriptor_id", gc.Descriptor.ID,
		"kit", gc.KitAvailable,
		"profile", gc.ProfileAvailable,
		"max_repairs", maxRepairs)

	plan, planCard, err := GeneratePlan(ctx, engine, gc, sink)
	if err != nil {
		return nil, &CompileError{
			Stage:    "plan",
			Artifact: cards.SchemaDomainPlan,
			Errors:   validationErrors(err),
			Err:      err,
		}
	}

	orch := NewStageOrchestrator(engine, c.log, sink)
	results, err := orch.RunAll(ctx, gc, plan)
	if err != nil {
		ce := &CompileError{Completed: results, Err: err}
		var sf *StageFailure
		if errors.As(err, &sf) {
			ce.Stage = sf.Stage
			ce.Artifact = sf.Artifact
			ce.Errors = validationErrors(err)
		}
		return nil, ce
	}

	doc := AssembleLesson(gc, plan, planCard, results)
	c.log.Info("compile finished",
		"descriptor_id", gc.Descriptor.ID,
		"stages", len(doc.Stages),
		"missing", countMissing(doc.Stages))
	return doc, nil
}

// RegenerateArtifact re-runs a single artifact against an already-assembled
// document, for filling missing markers or refreshing one card without a full
// recompilation. The document is updated in place on success.
func (c *Compiler) RegenerateArtifact(ctx context.Context, doc *LessonDocument, gc GenerationContext, stage, artifact string, params Params) error {
	var def *stageDef
	for i := range stagePipeline {
		if stagePipeline[i].name == stage {
			def = &stagePipeline[i]
			break
		}
	}
	if def == nil {
		return fmt.Errorf("unknown stage %q", stage)
	}
	var unit *stageUnit
	for _, u := range append(append([]stageUnit{}, def.phase1...), def.phase2...) {
		if u.artifact == artifact {
			u := u
			unit = &u
			break
		}
	}
	if unit == nil {
		return fmt.Errorf("stage %s has no artifact %q", stage, artifact)
	}

	maxRepairs := params.MaxRepairs
	if maxRepairs < 0 {
		maxRepairs = DefaultMaxRepairs
	}
	engine := NewRepairEngine(c.provider, c.log, maxRepairs, c.observe)

	in := buildInput(gc, doc.Plan, doc.Stages, StageResult{})
	p, err := prompts.Build(unit.prompt, in)
	if err != nil {
		return &UpstreamDependencyMissing{Stage: stage, Dependency: artifact + ": " + err.Error()}
	}
	schema, ok := cards.SchemaFor(artifact)
	if !ok {
		return fmt.Errorf("no schema registered for %s", artifact)
	}

	card, err := engine.GenerateValidated(ctx, p, schema, NopSink, stage)
	if err != nil {
		return err
	}

	for i := range doc.Stages {
		if doc.Stages[i].Stage != stage {
			continue
		}
		if doc.Stages[i].Cards == nil {
			doc.Stages[i].Cards = map[string]cards.Card{}
		}
		doc.Stages[i].Cards[artifact] = card
		delete(doc.Stages[i].Missing, artifact)
		if len(doc.Stages[i].Missing) == 0 {
			doc.Stages[i].Missing = nil
		}
		doc.Metadata.PromptFingerprints[artifact] = card.Fingerprint
		return nil
	}
	return fmt.Errorf("document has no results for stage %s", stage)
}

func validationErrors(err error) []cards.FieldError {
	var ve *ValidationExhausted
	if errors.As(err, &ve) {
		return ve.Errors
	}
	return nil
}

func countMissing(stages []StageResult) int {
	n := 0
	for _, s := range stages {
		n += len(s.Missing)
	}
	return n
}
