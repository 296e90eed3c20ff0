// internal/types/interfaces.go
package types

import (
	"context"
	"time"
)

type SessionStore interface {
	Track(ctx context.Context, id SessionID, notifyTarget string) (*SessionIndex, error)
	Get(ctx context.Context, id SessionID) (*SessionIndex, error)
	List(ctx context.Context) ([]*SessionIndex, error)
	Update(ctx context.Context, session *SessionIndex) error
	Delete(ctx context.Context, id SessionID) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

type EventStore interface {
	Append(ctx context.Context, event *Event) error
	Tail(ctx context.Context, sessionID SessionID, limit int) ([]*Event, error)
	Count(ctx context.Context, sessionID SessionID) (int64, error)
}

type StrategyStore interface {
	Put(ctx context.Context, artifact *StrategyArtifact) error
	Get(ctx context.Context, sessionID SessionID) (*StrategyArtifact, error)
}
