package compiler

import (
	"sync"
	"time"
)

// Event statuses. A stage only reports StatusCompleted once every artifact in
// it is completed or missing; the sink never gates control flow.
const (
	StatusStarted    = "started"
	StatusGenerating = "generating"
	StatusRepairing  = "repairing"
	StatusCompleted  = "completed"
	StatusMissing    = "missing"
	StatusFailed     = "failed"
)

// Event is one progress observation. Artifact is empty for stage-level
// events.
type Event struct {
	Stage     string    `json:"stage"`
	Artifact  string    `json:"artifact,omitempty"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives progress events. Implementations must accept concurrent
// emits: artifacts within a stage generate in parallel.
type Sink interface {
	Emit(ev Event)
}

type SinkFunc func(ev Event)

func (f SinkFunc) Emit(ev Event) {
	if f != nil {
		f(ev)
	}
}

// NopSink drops events.
var NopSink Sink = SinkFunc(nil)

// EventLog is an append-only, concurrency-safe sink used by tests and by the
// service layer to drive progress reporting.
type EventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *EventLog) Emit(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *EventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

func emit(sink Sink, stage, artifact, status string) {
	if sink == nil {
		return
	}
	sink.Emit(Event{Stage: stage, Artifact: artifact, Status: status, Timestamp: time.Now().UTC()})
}

// multiSink fans one event stream out to several sinks.
type multiSink []Sink

func (m multiSink) Emit(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

func MultiSink(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
