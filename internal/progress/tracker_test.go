package progress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/stratwatch/internal/stream"
	"github.com/user/stratwatch/pkg/workflow"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func serveFrames(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func waitSnapshot(t *testing.T, tr *Tracker, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := tr.Snapshot()
		if cond(snap) {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("snapshot condition not met in time")
	return Snapshot{}
}

func TestTrackerFullSession(t *testing.T) {
	srv := serveFrames(t, []string{
		`{"type":"ready"}`,
		`{"type":"agent_start","agent":"StrategyParser"}`,
		`{"type":"heartbeat"}`,
		`{"type":"agent_complete","agent":"StrategyParser"}`,
		`{"type":"agent_start","agent":"CodeGenerator"}`,
		`{"type":"agent_complete","agent":"CodeGenerator"}`,
		`{"type":"complete","message":"strategy ready"}`,
		`{"type":"complete"}`, // trailing terminal must not re-fire side effects
	})

	var readyCalls, terminalCalls atomic.Int32
	var mu sync.Mutex
	var recorded []string

	tr := New(stream.Config{BaseURL: srv.URL},
		WithReadyNotifier(func(string) { readyCalls.Add(1) }),
		WithOnTerminal(func(string, workflow.Event) { terminalCalls.Add(1) }),
		WithRecorder(func(_ string, e workflow.Event) {
			mu.Lock()
			recorded = append(recorded, e.Kind)
			mu.Unlock()
		}),
	)
	if err := tr.Bind(context.Background(), "sess-full"); err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	snap := waitSnapshot(t, tr, func(s Snapshot) bool { return s.EventCount == 6 })

	if !snap.Ready {
		t.Error("expected ready")
	}
	if !snap.Complete || snap.Failed {
		t.Errorf("expected clean completion, complete=%v failed=%v", snap.Complete, snap.Failed)
	}
	byKey := map[string]workflow.Status{}
	for _, p := range snap.Phases {
		byKey[p.Key] = p.Status
	}
	if byKey["parse"] != workflow.StatusDone || byKey["code"] != workflow.StatusDone {
		t.Errorf("expected parse and code done, got %v", byKey)
	}
	if byKey["backtest"] != workflow.StatusPending {
		t.Errorf("expected backtest pending, got %v", byKey["backtest"])
	}

	// Expected close after the terminal event: no fault.
	time.Sleep(50 * time.Millisecond)
	if f := tr.Snapshot().Fault; f != nil {
		t.Errorf("expected no fault, got %v", f.Kind)
	}
	if n := readyCalls.Load(); n != 1 {
		t.Errorf("expected one readiness call, got %d", n)
	}
	if n := terminalCalls.Load(); n != 1 {
		t.Errorf("expected one terminal call, got %d", n)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(recorded) != 6 {
		t.Errorf("recorder should see every appended event, got %d", len(recorded))
	}
	for _, kind := range recorded {
		if workflow.IsControl(kind) {
			t.Errorf("control signal %q leaked into the log", kind)
		}
	}
}

func TestTrackerUnexpectedClose(t *testing.T) {
	srv := serveFrames(t, []string{`{"type":"agent_start","agent":"StrategyParser"}`})

	tr := New(stream.Config{BaseURL: srv.URL})
	if err := tr.Bind(context.Background(), "sess-drop"); err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	snap := waitSnapshot(t, tr, func(s Snapshot) bool { return s.Fault != nil })
	if snap.Fault.Kind != stream.FaultUnexpectedClose {
		t.Errorf("expected unexpected close, got %s", snap.Fault.Kind)
	}
	if snap.Complete {
		t.Error("no terminal event was delivered")
	}
}

func TestTrackerDialFailure(t *testing.T) {
	tr := New(stream.Config{BaseURL: "http://127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	err := tr.Bind(context.Background(), "sess-unreachable")
	if err == nil {
		t.Fatal("expected dial error")
	}
	snap := tr.Snapshot()
	if snap.Fault == nil || snap.Fault.Kind != stream.FaultConnection {
		t.Errorf("dial failure should surface as a connection fault, got %v", snap.Fault)
	}
}

func TestTrackerRebindResetsState(t *testing.T) {
	srv := serveFrames(t, []string{
		`{"type":"agent_start","agent":"StrategyParser"}`,
		`{"type":"complete"}`,
	})

	tr := New(stream.Config{BaseURL: srv.URL})
	if err := tr.Bind(context.Background(), "first"); err != nil {
		t.Fatal(err)
	}
	waitSnapshot(t, tr, func(s Snapshot) bool { return s.Complete })

	if err := tr.Bind(context.Background(), "second"); err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	snap := waitSnapshot(t, tr, func(s Snapshot) bool { return s.SessionID == "second" })
	if snap.EventCount != 0 && snap.EventCount != 2 {
		// The second binding replays the same script; the point is that
		// the first binding's state did not leak before events arrive.
		t.Errorf("unexpected event count %d", snap.EventCount)
	}
	waitSnapshot(t, tr, func(s Snapshot) bool { return s.Complete && s.SessionID == "second" })
}
