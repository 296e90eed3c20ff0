// Package watch runs one progress tracker per watched session, bounded by a
// global concurrency limit. Terminal events update the session index,
// persist the delivered strategy, and trigger notifications.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/user/stratwatch/internal/notify"
	"github.com/user/stratwatch/internal/progress"
	"github.com/user/stratwatch/internal/render"
	"github.com/user/stratwatch/internal/stream"
	"github.com/user/stratwatch/internal/types"
	"github.com/user/stratwatch/pkg/workflow"
)

// Manager owns the active watches. Each watched session gets its own
// tracker and stream binding; the semaphore caps how many run at once.
type Manager struct {
	cfg           stream.Config
	sessions      types.SessionStore
	events        types.EventStore
	strategies    types.StrategyStore
	registry      *notify.Registry
	defaultTarget string

	slots *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	watches map[types.SessionID]*watchSlot
}

type watchSlot struct {
	tracker *progress.Tracker
	target  string
	release sync.Once
}

// New creates a Manager allowing up to maxWatches concurrent watches.
func New(
	cfg stream.Config,
	sessions types.SessionStore,
	events types.EventStore,
	strategies types.StrategyStore,
	registry *notify.Registry,
	defaultTarget string,
	maxWatches int64,
) *Manager {
	if maxWatches <= 0 {
		maxWatches = 4
	}
	return &Manager{
		cfg:           cfg,
		sessions:      sessions,
		events:        events,
		strategies:    strategies,
		registry:      registry,
		defaultTarget: defaultTarget,
		slots:         semaphore.NewWeighted(maxWatches),
		watches:       make(map[types.SessionID]*watchSlot),
	}
}

// Start initialises the manager's context. Must be called before Watch.
func (m *Manager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
}

// Stop tears down all active watches and cancels the manager context.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	slots := make([]*watchSlot, 0, len(m.watches))
	ids := make([]types.SessionID, 0, len(m.watches))
	for id, slot := range m.watches {
		slots = append(slots, slot)
		ids = append(ids, id)
	}
	m.watches = make(map[types.SessionID]*watchSlot)
	m.mu.Unlock()

	for i, slot := range slots {
		slot.tracker.Close()
		m.releaseSlot(ids[i], slot)
	}
}

// Watch begins watching a session. Returns an error when the session is
// already watched or the watch limit is reached; the limit check does not
// block.
func (m *Manager) Watch(ctx context.Context, sessionID types.SessionID, target string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if target == "" {
		target = m.defaultTarget
	}

	slot := &watchSlot{target: target}
	slot.tracker = progress.New(m.cfg,
		progress.WithRecorder(m.recordEvent),
		progress.WithOnTerminal(m.handleTerminal),
		progress.WithOnUpdate(func(snap progress.Snapshot) {
			m.handleUpdate(sessionID, snap)
		}),
	)

	// The exists check, slot acquisition, and map insert form one critical
	// section so two concurrent Watch calls for the same session cannot
	// both claim it.
	m.mu.Lock()
	if _, exists := m.watches[sessionID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("session already watched: %s", sessionID)
	}
	if !m.slots.TryAcquire(1) {
		m.mu.Unlock()
		return fmt.Errorf("watch limit reached")
	}
	m.watches[sessionID] = slot
	m.mu.Unlock()

	if _, err := m.sessions.Track(ctx, sessionID, target); err != nil {
		m.detach(sessionID)
		return fmt.Errorf("track session: %w", err)
	}

	if err := slot.tracker.Bind(m.ctx, string(sessionID)); err != nil {
		m.detach(sessionID)
		m.markStatus(sessionID, types.StatusDisconnected)
		return fmt.Errorf("bind session stream: %w", err)
	}

	slog.Info("watching session", "session", sessionID, "target", target)
	return nil
}

// Unwatch tears down the watch for a session. No-op when not watched.
func (m *Manager) Unwatch(sessionID types.SessionID) {
	slot := m.detach(sessionID)
	if slot == nil {
		return
	}
	slot.tracker.Close()
	slog.Info("stopped watching session", "session", sessionID)
}

// Snapshot returns the current progress view for a watched session.
func (m *Manager) Snapshot(sessionID types.SessionID) (progress.Snapshot, bool) {
	m.mu.Lock()
	slot, ok := m.watches[sessionID]
	m.mu.Unlock()
	if !ok {
		return progress.Snapshot{}, false
	}
	return slot.tracker.Snapshot(), true
}

// Active returns the session IDs currently being watched.
func (m *Manager) Active() []types.SessionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]types.SessionID, 0, len(m.watches))
	for id := range m.watches {
		ids = append(ids, id)
	}
	return ids
}

// detach removes the slot from the watch map and releases its semaphore
// slot, exactly once.
func (m *Manager) detach(sessionID types.SessionID) *watchSlot {
	m.mu.Lock()
	slot, ok := m.watches[sessionID]
	if ok {
		delete(m.watches, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	m.releaseSlot(sessionID, slot)
	return slot
}

func (m *Manager) releaseSlot(_ types.SessionID, slot *watchSlot) {
	slot.release.Do(func() {
		m.slots.Release(1)
	})
}

func (m *Manager) recordEvent(sessionID string, e workflow.Event) {
	event := types.Recorded(types.SessionID(sessionID), e)
	if err := m.events.Append(context.Background(), event); err != nil {
		slog.Error("record event failed", "session", sessionID, "error", err)
		return
	}

	sess, err := m.sessions.Get(context.Background(), types.SessionID(sessionID))
	if err != nil {
		return
	}
	sess.LastEventSeq = event.Seq
	if err := m.sessions.Update(context.Background(), sess); err != nil {
		slog.Error("update session failed", "session", sessionID, "error", err)
	}
}

// terminalPayload is the shape of a terminal event's raw payload.
type terminalPayload struct {
	Strategy   string            `json:"strategy"`
	Evaluation *types.EvalResult `json:"evaluation"`
	Message    string            `json:"message"`
}

func (m *Manager) handleTerminal(sessionID string, e workflow.Event) {
	id := types.SessionID(sessionID)
	failed := e.Kind == workflow.KindError

	var payload terminalPayload
	if len(e.Raw) > 0 {
		if err := json.Unmarshal(e.Raw, &payload); err != nil {
			slog.Warn("unparseable terminal payload", "session", sessionID, "error", err)
		}
	}

	if !failed && (payload.Strategy != "" || payload.Evaluation != nil) {
		artifact := &types.StrategyArtifact{
			SessionID:  id,
			Source:     payload.Strategy,
			Evaluation: payload.Evaluation,
			SavedAt:    e.ReceivedAt,
		}
		if err := m.strategies.Put(context.Background(), artifact); err != nil {
			slog.Error("persist strategy failed", "session", sessionID, "error", err)
		}
	}

	status := types.StatusComplete
	if failed {
		status = types.StatusFailed
	}
	m.markStatus(id, status)

	m.dispatch(id, failed, render.Message(e.Message))

	// The session is done; free the slot without waiting for the server
	// to close the stream.
	if slot := m.detach(id); slot != nil {
		slot.tracker.Close()
	}
}

// handleUpdate watches for faults on a bound session. A faulted watch is
// torn down and the session marked disconnected; terminal completion keeps
// the status set by handleTerminal.
func (m *Manager) handleUpdate(sessionID types.SessionID, snap progress.Snapshot) {
	if snap.Fault == nil {
		return
	}
	slot := m.detach(sessionID)
	if slot == nil {
		return
	}
	slot.tracker.Close()
	m.markStatus(sessionID, types.StatusDisconnected)
	m.dispatch(sessionID, true, snap.Fault.Message())
}

func (m *Manager) markStatus(sessionID types.SessionID, status string) {
	sess, err := m.sessions.Get(context.Background(), sessionID)
	if err != nil {
		return
	}
	sess.Status = status
	if err := m.sessions.Update(context.Background(), sess); err != nil {
		slog.Error("update session status failed", "session", sessionID, "error", err)
	}
}

func (m *Manager) dispatch(sessionID types.SessionID, failed bool, detail string) {
	sess, err := m.sessions.Get(context.Background(), sessionID)
	if err != nil {
		return
	}
	target := sess.NotifyTarget
	if target == "" {
		target = m.defaultTarget
	}
	if target == "" {
		return
	}

	n := notify.Notification{
		SessionID: sessionID,
		Failed:    failed,
		Summary:   render.Summary(string(sessionID), failed, detail),
	}
	if err := m.registry.Dispatch(target, n); err != nil {
		slog.Error("notification failed", "session", sessionID, "target", target, "error", err)
	}
}
