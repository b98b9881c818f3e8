package compiler

import (
	"fmt"

	"github.com/tatamiapp/tatami-backend/internal/compiler/cards"
)

// ValidationExhausted is raised per artifact when deterministic auto-fix plus
// the bounded LLM repair budget could not produce a schema-valid payload. It
// carries the last validation errors for triage and repair-prompt auditing.
type ValidationExhausted struct {
	Artifact string
	Attempts int
	Errors   []cards.FieldError
}

func (e *ValidationExhausted) Error() string {
	return fmt.Sprintf("validation exhausted for %s after %d attempts: %s",
		e.Artifact, e.Attempts, cards.FormatErrors(e.Errors))
}

// GenerationFailure wraps a failed domain plan generation.
type GenerationFailure struct {
	Err error
}

func (e *GenerationFailure) Error() string { return "domain plan generation failed: " + e.Err.Error() }
func (e *GenerationFailure) Unwrap() error { return e.Err }

// StageFailure is raised when a stage-critical artifact exhausts repair. It
// aborts the remaining stages; completed earlier stages are kept.
type StageFailure struct {
	Stage    string
	Artifact string
	Err      error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("stage %s failed on %s: %v", e.Stage, e.Artifact, e.Err)
}
func (e *StageFailure) Unwrap() error { return e.Err }

// UpstreamDependencyMissing marks a stage that was short-circuited because a
// prior stage failed; nothing in it was generated.
type UpstreamDependencyMissing struct {
	Stage      string
	Dependency string
}

func (e *UpstreamDependencyMissing) Error() string {
	return fmt.Sprintf("stage %s not run: upstream dependency %s missing", e.Stage, e.Dependency)
}

// CompileError is the typed failure surfaced by Compile. It carries enough
// structure for the caller to retry the whole compilation, retry later stages
// with the kept results, or report the failure.
type CompileError struct {
	Stage     string             `json:"stage"`
	Artifact  string             `json:"artifact,omitempty"`
	Errors    []cards.FieldError `json:"errors,omitempty"`
	Completed []StageResult      `json:"completed,omitempty"`
	Err       error              `json:"-"`
}

func (e *CompileError) Error() string {
	if e.Artifact != "" {
		return fmt.Sprintf("compile failed at stage %s, artifact %s: %v", e.Stage, e.Artifact, e.Err)
	}
	return fmt.Sprintf("compile failed at stage %s: %v", e.Stage, e.Err)
}
func (e *CompileError) Unwrap() error { return e.Err }
