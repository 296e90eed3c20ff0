// internal/types/ids.go
package types

import "github.com/google/uuid"

// SessionID identifies one generation/evaluation workflow run. Session IDs
// are opaque strings assigned by the backend; this package never mints them.
type SessionID string

type EventID string
type WatchID string

func NewEventID() EventID {
	return EventID(uuid.New().String())
}

func NewWatchID() WatchID {
	return WatchID(uuid.New().String())
}
