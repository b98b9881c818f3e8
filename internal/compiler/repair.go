package compiler

import (
	"context"
	"errors"
	"time"

	"github.com/tatamiapp/tatami-backend/internal/compiler/cards"
	"github.com/tatamiapp/tatami-backend/internal/compiler/prompts"
	"github.com/tatamiapp/tatami-backend/internal/platform/logger"
	"github.com/tatamiapp/tatami-backend/internal/platform/openai"
)

const DefaultMaxRepairs = 2

// Provider is the LLM surface the compiler consumes. The platform openai
// client satisfies it; tests use scripted fakes.
type Provider interface {
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error)
}

// CallObservation records one provider call for audit logging. Cause is set
// only on failure: validation, provider, or timeout.
type CallObservation struct {
	Prompt     string
	Attempt    int
	DurationMS int64
	Success    bool
	Cause      string
	Err        string
}

// CallObserver receives one observation per provider call. It must be cheap
// and must not fail the pipeline.
type CallObserver func(ctx context.Context, obs CallObservation)

// RepairEngine runs the generate -> auto-fix -> validate -> repair loop for a
// single artifact. Budget: one initial call plus at most maxRepairs repair
// calls. A provider error or timeout consumes a repair attempt the same as a
// validation failure.
type RepairEngine struct {
	provider   Provider
	log        *logger.Logger
	maxRepairs int
	observe    CallObserver
}

func NewRepairEngine(provider Provider, baseLog *logger.Logger, maxRepairs int, observe CallObserver) *RepairEngine {
	if maxRepairs < 0 {
		maxRepairs = DefaultMaxRepairs
	}
	return &RepairEngine{
		provider:   provider,
		log:        baseLog.With("service", "RepairEngine"),
		maxRepairs: maxRepairs,
		observe:    observe,
	}
}

// GenerateValidated produces one schema-valid card or a ValidationExhausted
// error carrying the last round of validation errors.
func (e *RepairEngine) GenerateValidated(ctx context.Context, p prompts.Prompt, schema cards.CardSchema, sink Sink, stage string) (cards.Card, error) {
	user := p.User
	var lastErrs []cards.FieldError

	for attempt := 0; attempt <= e.maxRepairs; attempt++ {
		if attempt > 0 {
			emit(sink, stage, p.Name, StatusRepairing)
		}

		start := time.Now()
		payload, err := e.provider.GenerateJSON(ctx, p.System, user, p.SchemaName, p.Schema)
		elapsed := time.Since(start).Milliseconds()

		if err != nil {
			cause := "provider"
			if errors.Is(err, openai.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				cause = "timeout"
			}
			e.record(ctx, p.Name, attempt, elapsed, false, cause, err.Error())
			e.log.Warn("provider call failed", "prompt", p.Name, "attempt", attempt, "cause", cause, "error", err)
			lastErrs = []cards.FieldError{{Field: "(provider)", Problem: "malformed", Detail: err.Error()}}
			if ctx.Err() != nil {
				break
			}
			user = repairUserPrompt(p.User, lastErrs)
			continue
		}

		fixed, applied := cards.AutoFix(payload, schema)
		if len(applied) > 0 {
			e.log.Info("auto-fix applied", "prompt", p.Name, "attempt", attempt, "fixes", applied)
		}

		errs := cards.Validate(fixed, schema)
		if len(errs) == 0 {
			e.record(ctx, p.Name, attempt, elapsed, true, "", "")
			return cards.Card{
				Artifact:    schema.Name,
				Payload:     fixed,
				Fingerprint: p.Fingerprint(),
				GeneratedAt: time.Now().UTC(),
			}, nil
		}

		e.record(ctx, p.Name, attempt, elapsed, false, "validation", cards.FormatErrors(errs))
		e.log.Warn("validation failed", "prompt", p.Name, "attempt", attempt, "errors", len(errs))
		lastErrs = errs
		user = repairUserPrompt(p.User, errs)
	}

	return cards.Card{}, &ValidationExhausted{
		Artifact: p.Name,
		Attempts: e.maxRepairs + 1,
		Errors:   lastErrs,
	}
}

func (e *RepairEngine) record(ctx context.Context, prompt string, attempt int, durationMS int64, success bool, cause, errText string) {
	if e.observe == nil {
		return
	}
	e.observe(ctx, CallObservation{
		Prompt:     prompt,
		Attempt:    attempt,
		DurationMS: durationMS,
		Success:    success,
		Cause:      cause,
		Err:        errText,
	})
}

// repairUserPrompt appends the exact field errors to the ORIGINAL user
// prompt. Repairs always start from the original instructions, never from an
// already-repaired prompt, so error lists do not stack across attempts.
func repairUserPrompt(originalUser string, errs []cards.FieldError) string {
	return originalUser +
		"\n\nYour previous response failed validation. Fix exactly these problems and keep everything else unchanged:\n" +
		cards.FormatErrors(errs)
}
