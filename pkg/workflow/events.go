// Package workflow defines the event vocabulary emitted by the strategy
// generation backend and the phase-inference engine that folds a session's
// event log into per-phase progress. Everything in this package is pure
// computation: transports and stores live elsewhere.
package workflow

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event kinds the backend is known to emit. The vocabulary is open-ended:
// unknown kinds are preserved and appended to the log like any other event.
const (
	KindReady          = "ready"
	KindHeartbeat      = "heartbeat"
	KindAgentStart     = "agent_start"
	KindAgentComplete  = "agent_complete"
	KindIterationStart = "iteration_start"
	KindRefinement     = "refinement"
	KindComplete       = "complete"
	KindError          = "error"
)

// Event is one workflow lifecycle event received from the backend stream.
// Raw holds the full original payload so that fields this package does not
// understand pass through untouched for display.
type Event struct {
	Kind       string          `json:"kind"`
	Agent      string          `json:"agent,omitempty"`
	Message    string          `json:"message,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// IsControl reports whether kind is a control signal (ready, heartbeat).
// Control signals affect connector state but are never part of the event log.
func IsControl(kind string) bool {
	return kind == KindReady || kind == KindHeartbeat
}

// IsTerminal reports whether kind ends progress tracking for a session.
func IsTerminal(kind string) bool {
	return kind == KindComplete || kind == KindError
}

// Decode parses a raw stream payload into an Event. The payload must be a
// JSON object; the recognized top-level fields are "type", "agent" and
// "message". A missing "type" yields an event with an empty kind rather
// than an error, since the vocabulary is open-ended.
func Decode(data []byte) (Event, error) {
	var head struct {
		Type    string `json:"type"`
		Agent   string `json:"agent"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Event{}, fmt.Errorf("parse stream payload: %w", err)
	}

	raw := make(json.RawMessage, len(data))
	copy(raw, data)

	return Event{
		Kind:       head.Type,
		Agent:      head.Agent,
		Message:    head.Message,
		ReceivedAt: time.Now(),
		Raw:        raw,
	}, nil
}
