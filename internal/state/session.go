// internal/state/session.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/stratwatch/internal/types"
)

// SessionStore is a JSON-file-backed index of observed sessions.
// It stores index data in sessions/sessions.json and creates per-session
// directories at sessions/<sessionID>/ for the event log and strategy.
type SessionStore struct {
	root string
	mu   sync.RWMutex
}

// NewSessionStore creates a new file-backed SessionStore rooted at the given directory.
func NewSessionStore(root string) *SessionStore {
	return &SessionStore{root: root}
}

func (s *SessionStore) indexPath() string {
	return filepath.Join(s.root, "sessions", "sessions.json")
}

func (s *SessionStore) sessionsDir() string {
	return filepath.Join(s.root, "sessions")
}

func (s *SessionStore) sessionDir(id types.SessionID) string {
	return filepath.Join(s.root, "sessions", string(id))
}

// loadIndex reads sessions.json and returns a map keyed by SessionID.
func (s *SessionStore) loadIndex() (map[types.SessionID]*types.SessionIndex, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[types.SessionID]*types.SessionIndex), nil
		}
		return nil, fmt.Errorf("read session index: %w", err)
	}

	var sessions []*types.SessionIndex
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("unmarshal session index: %w", err)
	}

	index := make(map[types.SessionID]*types.SessionIndex, len(sessions))
	for _, sess := range sessions {
		index[sess.SessionID] = sess
	}
	return index, nil
}

// saveIndex converts the map to a slice, marshals with indentation, and writes atomically.
func (s *SessionStore) saveIndex(index map[types.SessionID]*types.SessionIndex) error {
	sessions := make([]*types.SessionIndex, 0, len(index))
	for _, sess := range index {
		sessions = append(sessions, sess)
	}

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session index: %w", err)
	}

	dir := s.sessionsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := os.Rename(tmp, s.indexPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp index: %w", err)
	}
	return nil
}

// Track registers a session in the index, creating its entry if needed.
// Session IDs are assigned by the backend; tracking an already-known session
// returns the existing entry unchanged.
func (s *SessionStore) Track(_ context.Context, id types.SessionID, notifyTarget string) (*types.SessionIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	if existing, ok := index[id]; ok {
		return existing, nil
	}

	now := time.Now()
	session := &types.SessionIndex{
		SessionID:    id,
		Status:       types.StatusWatching,
		NotifyTarget: notifyTarget,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	index[id] = session

	if err := s.saveIndex(index); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.sessionDir(id), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	return session, nil
}

// Get returns the session with the given ID.
func (s *SessionStore) Get(_ context.Context, id types.SessionID) (*types.SessionIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	if sess, ok := index[id]; ok {
		return sess, nil
	}
	return nil, fmt.Errorf("session not found: %s", id)
}

// List returns all tracked sessions.
func (s *SessionStore) List(_ context.Context) ([]*types.SessionIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	sessions := make([]*types.SessionIndex, 0, len(index))
	for _, sess := range index {
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// Update persists changes to the given session, setting UpdatedAt to now.
func (s *SessionStore) Update(_ context.Context, session *types.SessionIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return err
	}

	if _, ok := index[session.SessionID]; !ok {
		return fmt.Errorf("session not found: %s", session.SessionID)
	}

	session.UpdatedAt = time.Now()
	index[session.SessionID] = session

	return s.saveIndex(index)
}

// Delete removes a session from the index and deletes its directory,
// including the event log and any saved strategy.
func (s *SessionStore) Delete(_ context.Context, id types.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return err
	}

	if _, ok := index[id]; !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	delete(index, id)

	if err := s.saveIndex(index); err != nil {
		return err
	}

	if err := os.RemoveAll(s.sessionDir(id)); err != nil {
		return fmt.Errorf("remove session dir: %w", err)
	}
	return nil
}

// PruneOlderThan deletes terminal sessions last updated before the cutoff
// and returns the number removed. Sessions still being watched are kept.
func (s *SessionStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return 0, err
	}

	var pruned int
	for id, sess := range index {
		if sess.Status == types.StatusWatching {
			continue
		}
		if !sess.UpdatedAt.Before(cutoff) {
			continue
		}
		delete(index, id)
		if err := os.RemoveAll(s.sessionDir(id)); err != nil {
			return pruned, fmt.Errorf("remove session dir: %w", err)
		}
		pruned++
	}

	if pruned > 0 {
		if err := s.saveIndex(index); err != nil {
			return pruned, err
		}
	}
	return pruned, nil
}
