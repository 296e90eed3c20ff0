// internal/types/models.go
package types

import (
	"encoding/json"
	"time"

	"github.com/user/stratwatch/pkg/workflow"
)

// Session statuses tracked in the session index.
const (
	StatusWatching     = "watching"
	StatusComplete     = "complete"
	StatusFailed       = "failed"
	StatusDisconnected = "disconnected"
)

// Event is a workflow event as recorded on disk: the wire-level event plus
// the session it belongs to and an append-order sequence number.
type Event struct {
	ID        EventID         `json:"id"`
	SessionID SessionID       `json:"session_id"`
	Seq       int64           `json:"seq"`
	Kind      string          `json:"kind"`
	Agent     string          `json:"agent,omitempty"`
	Message   string          `json:"message,omitempty"`
	At        time.Time       `json:"at"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Workflow converts the recorded event back into its wire form for the
// phase-inference engine.
func (e *Event) Workflow() workflow.Event {
	return workflow.Event{
		Kind:       e.Kind,
		Agent:      e.Agent,
		Message:    e.Message,
		ReceivedAt: e.At,
		Raw:        e.Raw,
	}
}

// Recorded wraps a wire event into its on-disk form. Seq is assigned by the
// event store on append.
func Recorded(sessionID SessionID, we workflow.Event) *Event {
	return &Event{
		ID:        NewEventID(),
		SessionID: sessionID,
		Kind:      we.Kind,
		Agent:     we.Agent,
		Message:   we.Message,
		At:        we.ReceivedAt,
		Raw:       we.Raw,
	}
}

// SessionIndex is one entry in the local index of observed sessions.
type SessionIndex struct {
	SessionID    SessionID `json:"session_id"`
	Status       string    `json:"status"`
	NotifyTarget string    `json:"notify_target,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastEventSeq int64     `json:"last_event_seq"`
}

// EvalResult is the evaluation summary the backend embeds in the payload of
// a terminal complete event.
type EvalResult struct {
	Passed           bool                       `json:"passed"`
	AverageScore     float64                    `json:"average_score"`
	FailedEvaluators []string                   `json:"failed_evaluators,omitempty"`
	PassedEvaluators []string                   `json:"passed_evaluators,omitempty"`
	Errors           []string                   `json:"errors,omitempty"`
	Warnings         []string                   `json:"warnings,omitempty"`
	Evaluators       map[string]EvaluatorResult `json:"evaluators,omitempty"`
}

// EvaluatorResult is the per-evaluator breakdown inside an EvalResult.
type EvaluatorResult struct {
	Passed   bool           `json:"passed"`
	Score    *float64       `json:"score,omitempty"`
	Errors   []string       `json:"errors,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// StrategyArtifact is the generated strategy delivered with a terminal
// complete event, persisted per session.
type StrategyArtifact struct {
	SessionID  SessionID   `json:"session_id"`
	Source     string      `json:"source,omitempty"`
	Evaluation *EvalResult `json:"evaluation,omitempty"`
	SavedAt    time.Time   `json:"saved_at"`
}

// WatchEntry is a named watch target the daemon resumes on startup.
type WatchEntry struct {
	Name         string    `json:"name"`
	SessionID    SessionID `json:"session_id"`
	NotifyTarget string    `json:"notify_target,omitempty"`
	Enabled      bool      `json:"enabled"`
}
