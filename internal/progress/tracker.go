// Package progress binds a session stream to the phase-inference engine
// and exposes a derived, monotonically-growing view of the workflow: the
// event log, per-phase status, completion state, and any connection fault.
package progress

import (
	"context"
	"sync"

	"github.com/user/stratwatch/internal/stream"
	"github.com/user/stratwatch/pkg/workflow"
)

// Snapshot is the derived view handed to presentation. Phases are
// recomputed from the log on every read; the completion flag latches true
// on the first terminal event and never reverts for the binding.
type Snapshot struct {
	SessionID  string                `json:"session_id"`
	Phases     []workflow.PhaseState `json:"phases"`
	Ready      bool                  `json:"ready"`
	Complete   bool                  `json:"complete"`
	Failed     bool                  `json:"failed"`
	EventCount int                   `json:"event_count"`
	Fault      *stream.Fault         `json:"-"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithPipeline overrides the default phase definitions.
func WithPipeline(phases []workflow.Phase) Option {
	return func(t *Tracker) { t.pipeline = phases }
}

// WithOnUpdate registers a callback invoked with a fresh snapshot after
// every state change (event append, fault, readiness, open).
func WithOnUpdate(fn func(Snapshot)) Option {
	return func(t *Tracker) { t.onUpdate = fn }
}

// WithReadyNotifier registers the readiness hook, invoked at most once per
// binding with the session identifier.
func WithReadyNotifier(fn func(sessionID string)) Option {
	return func(t *Tracker) { t.onReady = fn }
}

// WithOnTerminal registers a callback invoked exactly once per binding,
// with the first terminal event. Trailing events after it are still
// appended but do not re-trigger the callback.
func WithOnTerminal(fn func(sessionID string, e workflow.Event)) Option {
	return func(t *Tracker) { t.onTerminal = fn }
}

// WithRecorder registers a sink that receives every appended event, e.g.
// for persistence.
func WithRecorder(fn func(sessionID string, e workflow.Event)) Option {
	return func(t *Tracker) { t.recorder = fn }
}

// Tracker tracks exactly one session at a time. The event log is owned by
// the tracker and append-only for the lifetime of a binding; binding a new
// session resets it.
type Tracker struct {
	connector *stream.Connector
	pipeline  []workflow.Phase

	onUpdate   func(Snapshot)
	onReady    func(string)
	onTerminal func(string, workflow.Event)
	recorder   func(string, workflow.Event)

	mu        sync.RWMutex
	sessionID string
	log       []workflow.Event
	ready     bool
	complete  bool
	failed    bool
	fault     *stream.Fault
}

func New(cfg stream.Config, opts ...Option) *Tracker {
	t := &Tracker{pipeline: workflow.DefaultPipeline()}
	for _, opt := range opts {
		opt(t)
	}
	t.connector = stream.New(cfg, stream.Callbacks{
		OnOpen:  t.handleOpen,
		OnReady: t.handleReady,
		OnEvent: t.handleEvent,
		OnFault: t.handleFault,
	})
	return t
}

// Bind resets derived state and opens a stream for sessionID. A dial
// failure is recorded as a connection fault in addition to being returned,
// so presentation renders it like any other fault.
func (t *Tracker) Bind(ctx context.Context, sessionID string) error {
	t.mu.Lock()
	t.sessionID = sessionID
	t.log = nil
	t.ready = false
	t.complete = false
	t.failed = false
	t.fault = nil
	t.mu.Unlock()

	if err := t.connector.Bind(ctx, sessionID); err != nil {
		t.mu.Lock()
		t.fault = &stream.Fault{Kind: stream.FaultConnection, SessionID: sessionID, Err: err}
		t.mu.Unlock()
		t.notify()
		return err
	}
	return nil
}

// Close tears down the current binding. Idempotent.
func (t *Tracker) Close() {
	t.connector.Unbind()
}

// Snapshot derives the current view. Classification is recomputed from the
// log on every call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		SessionID:  t.sessionID,
		Phases:     workflow.Infer(t.log, t.pipeline),
		Ready:      t.ready,
		Complete:   t.complete,
		Failed:     t.failed,
		EventCount: len(t.log),
		Fault:      t.fault,
	}
}

// Events returns a copy of the event log.
func (t *Tracker) Events() []workflow.Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]workflow.Event(nil), t.log...)
}

func (t *Tracker) handleOpen(sessionID string) {
	t.mu.Lock()
	if sessionID == t.sessionID {
		t.fault = nil
	}
	t.mu.Unlock()
	t.notify()
}

func (t *Tracker) handleReady(sessionID string) {
	t.mu.Lock()
	stale := sessionID != t.sessionID
	if !stale {
		t.ready = true
	}
	t.mu.Unlock()
	if stale {
		return
	}
	if t.onReady != nil {
		t.onReady(sessionID)
	}
	t.notify()
}

func (t *Tracker) handleEvent(sessionID string, e workflow.Event) {
	t.mu.Lock()
	if sessionID != t.sessionID {
		t.mu.Unlock()
		return
	}
	t.log = append(t.log, e)
	firstTerminal := false
	if workflow.IsTerminal(e.Kind) && !t.complete {
		t.complete = true
		t.failed = e.Kind == workflow.KindError
		firstTerminal = true
	}
	t.mu.Unlock()

	if t.recorder != nil {
		t.recorder(sessionID, e)
	}
	if firstTerminal && t.onTerminal != nil {
		t.onTerminal(sessionID, e)
	}
	t.notify()
}

func (t *Tracker) handleFault(f stream.Fault) {
	t.mu.Lock()
	if f.SessionID != t.sessionID {
		t.mu.Unlock()
		return
	}
	t.fault = &f
	t.mu.Unlock()
	t.notify()
}

func (t *Tracker) notify() {
	if t.onUpdate != nil {
		t.onUpdate(t.Snapshot())
	}
}
