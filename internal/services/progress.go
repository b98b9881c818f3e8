package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tatamiapp/tatami-backend/internal/clients/redis"
	"github.com/tatamiapp/tatami-backend/internal/compiler"
	"github.com/tatamiapp/tatami-backend/internal/platform/logger"
	"github.com/tatamiapp/tatami-backend/internal/repos"
	"github.com/tatamiapp/tatami-backend/internal/sse"
)

// compileUnits is the number of artifact-level completions in a full run: the
// domain plan plus fifteen stage artifacts.
const compileUnits = 16

// progressReporter turns compiler events into run-row updates and SSE
// messages. Row writes are rate-limited; terminal updates always go through.
type progressReporter struct {
	log   *logger.Logger
	runs  repos.CompileRunRepo
	hub   *sse.Hub
	bus   redis.ProgressBus
	runID uuid.UUID

	mu        sync.Mutex
	completed int
	stage     string
	lastWrite time.Time
	minGap    time.Duration
}

func newProgressReporter(log *logger.Logger, runs repos.CompileRunRepo, hub *sse.Hub, bus redis.ProgressBus, runID uuid.UUID) *progressReporter {
	return &progressReporter{
		log:    log.With("component", "ProgressReporter", "runID", runID),
		runs:   runs,
		hub:    hub,
		bus:    bus,
		runID:  runID,
		minGap: 500 * time.Millisecond,
	}
}

// sink adapts the reporter to the compiler's event stream.
func (r *progressReporter) sink(ctx context.Context) compiler.Sink {
	return compiler.SinkFunc(func(ev compiler.Event) {
		r.handle(ctx, ev)
	})
}

func (r *progressReporter) handle(ctx context.Context, ev compiler.Event) {
	r.mu.Lock()
	if ev.Stage != "" {
		r.stage = ev.Stage
	}
	if ev.Artifact != "" && (ev.Status == compiler.StatusCompleted || ev.Status == compiler.StatusMissing) {
		r.completed++
	}
	pct := 5 + r.completed*90/compileUnits
	stage := r.stage
	throttled := time.Since(r.lastWrite) < r.minGap
	if !throttled {
		r.lastWrite = time.Now()
	}
	r.mu.Unlock()

	msg := ev.Stage
	if ev.Artifact != "" {
		msg = ev.Stage + "/" + ev.Artifact + " " + ev.Status
	}

	r.publish(ctx, sse.EventCompileProgress, map[string]any{
		"stage":    ev.Stage,
		"artifact": ev.Artifact,
		"status":   ev.Status,
		"progress": pct,
	})

	if throttled {
		return
	}
	if err := r.runs.UpdateFields(ctx, nil, r.runID, map[string]interface{}{
		"stage":            stage,
		"progress":         pct,
		"progress_message": msg,
	}); err != nil {
		r.log.Warn("progress update failed", "error", err)
	}
}

// publish fans a message out locally and, when a bus is configured, to the
// other replicas. The forwarder re-broadcasts bus messages into local hubs.
func (r *progressReporter) publish(ctx context.Context, event sse.Event, data any) {
	msg := sse.Message{Channel: sse.RunChannel(r.runID), Event: event, Data: data}
	if r.hub != nil {
		r.hub.Broadcast(msg)
	}
	if r.bus != nil {
		if err := r.bus.Publish(ctx, msg); err != nil {
			r.log.Warn("progress bus publish failed", "error", err)
		}
	}
}

func (r *progressReporter) done(ctx context.Context, data any) {
	r.publish(ctx, sse.EventCompileDone, data)
}

func (r *progressReporter) failed(ctx context.Context, data any) {
	r.publish(ctx, sse.EventCompileFailed, data)
}
