// internal/state/strategy.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/user/stratwatch/internal/types"
)

// StrategyStore persists the generated strategy delivered with a session's
// completion event. One strategy per session, stored at
// sessions/<sessionID>/strategy.json.
type StrategyStore struct {
	root string
}

// NewStrategyStore creates a new file-backed StrategyStore rooted at the given directory.
func NewStrategyStore(root string) *StrategyStore {
	return &StrategyStore{root: root}
}

func (s *StrategyStore) strategyPath(sessionID types.SessionID) string {
	return filepath.Join(s.root, "sessions", string(sessionID), "strategy.json")
}

// Put stores the strategy for its session, replacing any previous one.
func (s *StrategyStore) Put(_ context.Context, artifact *types.StrategyArtifact) error {
	content, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal strategy: %w", err)
	}

	target := s.strategyPath(artifact.SessionID)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	// Atomic write via temp file + rename
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("write temp strategy: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp strategy: %w", err)
	}

	return nil
}

// Get returns the saved strategy for the given session.
func (s *StrategyStore) Get(_ context.Context, sessionID types.SessionID) (*types.StrategyArtifact, error) {
	data, err := os.ReadFile(s.strategyPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("strategy not found: %s", sessionID)
		}
		return nil, fmt.Errorf("read strategy file: %w", err)
	}

	var artifact types.StrategyArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("unmarshal strategy: %w", err)
	}
	return &artifact, nil
}
