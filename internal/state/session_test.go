// internal/state/session_test.go
package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/stratwatch/internal/types"
)

func TestSessionStore(t *testing.T) {
	dir := t.TempDir()
	store := NewSessionStore(dir)
	ctx := context.Background()

	id := types.SessionID("sess-123")
	sess, err := store.Track(ctx, id, "telegram:42")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != types.StatusWatching {
		t.Errorf("expected status watching, got %s", sess.Status)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.NotifyTarget != "telegram:42" {
		t.Errorf("expected notify target telegram:42, got %s", got.NotifyTarget)
	}

	// Tracking the same session again returns the existing entry
	again, err := store.Track(ctx, id, "")
	if err != nil {
		t.Fatal(err)
	}
	if again.NotifyTarget != "telegram:42" {
		t.Error("re-tracking must not overwrite the existing entry")
	}

	got.Status = types.StatusComplete
	if err := store.Update(ctx, got); err != nil {
		t.Fatal(err)
	}
	updated, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != types.StatusComplete {
		t.Errorf("expected status complete, got %s", updated.Status)
	}
}

func TestSessionStoreDelete(t *testing.T) {
	dir := t.TempDir()
	store := NewSessionStore(dir)
	ctx := context.Background()

	id := types.SessionID("sess-del")
	if _, err := store.Track(ctx, id, ""); err != nil {
		t.Fatal(err)
	}

	sessDir := filepath.Join(dir, "sessions", string(id))
	if _, err := os.Stat(sessDir); err != nil {
		t.Fatalf("session dir should exist: %v", err)
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, id); err == nil {
		t.Error("expected error getting deleted session")
	}
	if _, err := os.Stat(sessDir); !os.IsNotExist(err) {
		t.Error("session dir should be removed")
	}
}

func TestSessionStorePrune(t *testing.T) {
	dir := t.TempDir()
	store := NewSessionStore(dir)
	ctx := context.Background()

	old := types.SessionID("sess-old")
	sess, err := store.Track(ctx, old, "")
	if err != nil {
		t.Fatal(err)
	}
	sess.Status = types.StatusComplete
	if err := store.Update(ctx, sess); err != nil {
		t.Fatal(err)
	}

	// A session still being watched is never pruned regardless of age
	live := types.SessionID("sess-live")
	if _, err := store.Track(ctx, live, ""); err != nil {
		t.Fatal(err)
	}

	pruned, err := store.PruneOlderThan(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned, got %d", pruned)
	}
	if _, err := store.Get(ctx, old); err == nil {
		t.Error("old session should be gone")
	}
	if _, err := store.Get(ctx, live); err != nil {
		t.Errorf("watching session should survive prune: %v", err)
	}
}
