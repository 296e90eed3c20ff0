// internal/state/strategy_test.go
package state

import (
	"context"
	"testing"
	"time"

	"github.com/user/stratwatch/internal/types"
)

func TestStrategyStore(t *testing.T) {
	dir := t.TempDir()
	store := NewStrategyStore(dir)
	ctx := context.Background()

	sessionID := types.SessionID("sess-strat")
	artifact := &types.StrategyArtifact{
		SessionID: sessionID,
		Source:    "def on_bar(ctx): pass",
		Evaluation: &types.EvalResult{
			Passed:       true,
			AverageScore: 0.91,
		},
		SavedAt: time.Now(),
	}

	if err := store.Put(ctx, artifact); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != artifact.Source {
		t.Errorf("expected source %q, got %q", artifact.Source, got.Source)
	}
	if got.Evaluation == nil || !got.Evaluation.Passed {
		t.Error("expected passing evaluation")
	}

	// Put replaces the previous strategy
	artifact.Source = "def on_bar(ctx): return 1"
	if err := store.Put(ctx, artifact); err != nil {
		t.Fatal(err)
	}
	got, err = store.Get(ctx, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != "def on_bar(ctx): return 1" {
		t.Error("Put should replace the stored strategy")
	}
}

func TestStrategyStoreMissing(t *testing.T) {
	store := NewStrategyStore(t.TempDir())

	if _, err := store.Get(context.Background(), types.SessionID("nope")); err == nil {
		t.Error("expected error for missing strategy")
	}
}
