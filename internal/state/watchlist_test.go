// internal/state/watchlist_test.go
package state

import (
	"path/filepath"
	"testing"

	"github.com/user/stratwatch/internal/types"
)

func newTestWatchlist(t *testing.T) *WatchlistStore {
	t.Helper()
	return NewWatchlistStore(filepath.Join(t.TempDir(), "watchlist.json"))
}

func TestWatchlistAddGet(t *testing.T) {
	store := newTestWatchlist(t)

	entry := &types.WatchEntry{
		Name:         "momentum-v2",
		SessionID:    types.SessionID("sess-1"),
		NotifyTarget: "telegram:42",
		Enabled:      true,
	}
	if err := store.Add(entry); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get("momentum-v2")
	if err != nil {
		t.Fatal(err)
	}
	if got.SessionID != "sess-1" {
		t.Errorf("expected session sess-1, got %s", got.SessionID)
	}

	// Duplicate names are rejected
	if err := store.Add(entry); err == nil {
		t.Error("expected error adding duplicate watch")
	}
}

func TestWatchlistListEmpty(t *testing.T) {
	store := newTestWatchlist(t)

	entries, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty list, got %d entries", len(entries))
	}
}

func TestWatchlistRemove(t *testing.T) {
	store := newTestWatchlist(t)

	if err := store.Add(&types.WatchEntry{Name: "w1", SessionID: "s1", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := store.Remove("w1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get("w1"); err == nil {
		t.Error("expected error getting removed watch")
	}
	if err := store.Remove("w1"); err == nil {
		t.Error("expected error removing missing watch")
	}
}

func TestWatchlistSetEnabled(t *testing.T) {
	store := newTestWatchlist(t)

	if err := store.Add(&types.WatchEntry{Name: "w1", SessionID: "s1", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetEnabled("w1", false); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get("w1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Enabled {
		t.Error("expected watch to be disabled")
	}
}
