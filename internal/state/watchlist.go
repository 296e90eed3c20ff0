// internal/state/watchlist.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/stratwatch/internal/types"
)

// WatchlistStore is a JSON-file-backed store for named watch entries.
// Enabled entries are resumed by the daemon on startup.
type WatchlistStore struct {
	path string
	mu   sync.RWMutex
}

// NewWatchlistStore creates a new file-backed WatchlistStore at the given file path.
func NewWatchlistStore(path string) *WatchlistStore {
	return &WatchlistStore{path: path}
}

// Path returns the file path used by this store.
func (s *WatchlistStore) Path() string {
	return s.path
}

// List returns all watch entries. Returns an empty slice if the file doesn't exist.
func (s *WatchlistStore) List() ([]*types.WatchEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	if entries == nil {
		return []*types.WatchEntry{}, nil
	}
	return entries, nil
}

// Get finds a watch entry by name. Returns an error if not found.
func (s *WatchlistStore) Get(name string) (*types.WatchEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.Name == name {
			return entry, nil
		}
	}
	return nil, fmt.Errorf("watch not found: %s", name)
}

// Add appends a watch entry. Returns an error if one with the same name already exists.
func (s *WatchlistStore) Add(entry *types.WatchEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	for _, existing := range entries {
		if existing.Name == entry.Name {
			return fmt.Errorf("watch already exists: %s", entry.Name)
		}
	}

	entries = append(entries, entry)
	return s.save(entries)
}

// Remove deletes a watch entry by name. Returns an error if not found.
func (s *WatchlistStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	for i, entry := range entries {
		if entry.Name == name {
			entries = append(entries[:i], entries[i+1:]...)
			return s.save(entries)
		}
	}
	return fmt.Errorf("watch not found: %s", name)
}

// SetEnabled toggles the enabled flag for a watch entry. Returns an error if not found.
func (s *WatchlistStore) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.Name == name {
			entry.Enabled = enabled
			return s.save(entries)
		}
	}
	return fmt.Errorf("watch not found: %s", name)
}

// load reads the JSON file and returns the watch list. Returns nil if the file doesn't exist.
func (s *WatchlistStore) load() ([]*types.WatchEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read watchlist file: %w", err)
	}

	var entries []*types.WatchEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal watchlist: %w", err)
	}
	return entries, nil
}

// save writes the watch list to disk using atomic write (temp file + rename).
func (s *WatchlistStore) save(entries []*types.WatchEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal watchlist: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create watchlist dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp watchlist file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp watchlist file: %w", err)
	}
	return nil
}
