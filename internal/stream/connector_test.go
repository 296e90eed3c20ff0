package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/stratwatch/pkg/workflow"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// streamServer runs an httptest WebSocket server that writes the given
// frames and then closes the connection with a normal close frame.
func streamServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// collector records connector callbacks for assertions.
type collector struct {
	mu     sync.Mutex
	opens  []string
	readys []string
	events []workflow.Event
	faults []Fault
	done   chan struct{}
}

func newCollector() *collector {
	return &collector{done: make(chan struct{}, 4)}
}

func (c *collector) callbacks() Callbacks {
	return Callbacks{
		OnOpen: func(id string) {
			c.mu.Lock()
			c.opens = append(c.opens, id)
			c.mu.Unlock()
		},
		OnReady: func(id string) {
			c.mu.Lock()
			c.readys = append(c.readys, id)
			c.mu.Unlock()
		},
		OnEvent: func(id string, e workflow.Event) {
			c.mu.Lock()
			c.events = append(c.events, e)
			c.mu.Unlock()
		},
		OnFault: func(f Fault) {
			c.mu.Lock()
			c.faults = append(c.faults, f)
			c.mu.Unlock()
			c.done <- struct{}{}
		},
	}
}

func (c *collector) snapshot() ([]string, []workflow.Event, []Fault) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.readys...),
		append([]workflow.Event(nil), c.events...),
		append([]Fault(nil), c.faults...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestBindDeliversEventsAndFiltersControls(t *testing.T) {
	srv := streamServer(t, []string{
		`{"type":"ready"}`,
		`{"type":"heartbeat"}`,
		`{"type":"agent_start","agent":"StrategyParser"}`,
		`{"type":"ready"}`, // duplicate ready must not re-fire the callback
		`not json at all`,  // decode fault: logged and dropped
		`{"type":"agent_complete","agent":"StrategyParser"}`,
		`{"type":"complete"}`,
	})

	col := newCollector()
	c := New(Config{BaseURL: srv.URL}, col.callbacks())
	if err := c.Bind(context.Background(), "sess-1"); err != nil {
		t.Fatal(err)
	}
	defer c.Unbind()

	waitFor(t, func() bool {
		_, events, _ := col.snapshot()
		return len(events) == 3
	})

	readys, events, faults := col.snapshot()
	if len(readys) != 1 || readys[0] != "sess-1" {
		t.Errorf("expected one readiness signal for sess-1, got %v", readys)
	}
	kinds := make([]string, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	if strings.Join(kinds, ",") != "agent_start,agent_complete,complete" {
		t.Errorf("unexpected event kinds: %v", kinds)
	}
	// Scenario D: the close after the terminal event is expected.
	time.Sleep(50 * time.Millisecond)
	_, _, faults = col.snapshot()
	if len(faults) != 0 {
		t.Errorf("expected no faults after expected close, got %v", faults)
	}
}

func TestUnexpectedCloseReportsFaultOnce(t *testing.T) {
	// Scenario E: the server closes without ever sending a terminal event.
	srv := streamServer(t, nil)

	col := newCollector()
	c := New(Config{BaseURL: srv.URL}, col.callbacks())
	if err := c.Bind(context.Background(), "sess-2"); err != nil {
		t.Fatal(err)
	}
	defer c.Unbind()

	select {
	case <-col.done:
	case <-time.After(2 * time.Second):
		t.Fatal("no fault reported")
	}
	time.Sleep(50 * time.Millisecond)

	_, _, faults := col.snapshot()
	if len(faults) != 1 {
		t.Fatalf("expected exactly one fault, got %d", len(faults))
	}
	if faults[0].Kind != FaultUnexpectedClose {
		t.Errorf("expected %s, got %s", FaultUnexpectedClose, faults[0].Kind)
	}
	if faults[0].SessionID != "sess-2" {
		t.Errorf("fault carries wrong session: %s", faults[0].SessionID)
	}
}

func TestTeardownSuppressesCallbacks(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-block
	}))
	defer srv.Close()
	defer close(block)

	col := newCollector()
	c := New(Config{BaseURL: srv.URL}, col.callbacks())
	if err := c.Bind(context.Background(), "sess-3"); err != nil {
		t.Fatal(err)
	}

	// Idempotent teardown: the second call must be a no-op.
	c.Unbind()
	c.Unbind()

	time.Sleep(100 * time.Millisecond)
	_, events, faults := col.snapshot()
	if len(faults) != 0 {
		t.Errorf("teardown must suppress fault reporting, got %v", faults)
	}
	if len(events) != 0 {
		t.Errorf("no events expected, got %v", events)
	}
	if c.SessionID() != "" {
		t.Errorf("expected unbound connector, got session %q", c.SessionID())
	}
}

func TestBindEmptySessionIsNoop(t *testing.T) {
	col := newCollector()
	c := New(Config{BaseURL: "http://127.0.0.1:1"}, col.callbacks())
	if err := c.Bind(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if c.SessionID() != "" {
		t.Error("empty session id must not bind")
	}
}

func TestBindReplacesPriorBinding(t *testing.T) {
	block := make(chan struct{})
	var mu sync.Mutex
	var conns int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		conns++
		mu.Unlock()
		defer conn.Close()
		<-block
	}))
	defer srv.Close()
	defer close(block)

	col := newCollector()
	c := New(Config{BaseURL: srv.URL}, col.callbacks())
	if err := c.Bind(context.Background(), "old"); err != nil {
		t.Fatal(err)
	}
	if err := c.Bind(context.Background(), "new"); err != nil {
		t.Fatal(err)
	}
	defer c.Unbind()

	if got := c.SessionID(); got != "new" {
		t.Errorf("expected binding for new session, got %q", got)
	}
	mu.Lock()
	n := conns
	mu.Unlock()
	if n != 2 {
		t.Errorf("expected 2 connections, got %d", n)
	}
	// The torn-down binding must not report its close as a fault.
	time.Sleep(100 * time.Millisecond)
	_, _, faults := col.snapshot()
	if len(faults) != 0 {
		t.Errorf("expected no faults from replaced binding, got %v", faults)
	}
}

func TestStreamURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://api.example.com", "ws://api.example.com/api/sessions/s1/stream"},
		{"https://api.example.com/", "wss://api.example.com/api/sessions/s1/stream"},
		{"wss://api.example.com", "wss://api.example.com/api/sessions/s1/stream"},
	}
	for _, tc := range cases {
		c := New(Config{BaseURL: tc.base}, Callbacks{})
		got, err := c.streamURL("s1")
		if err != nil {
			t.Fatalf("%s: %v", tc.base, err)
		}
		if got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.base, tc.want, got)
		}
	}

	c := New(Config{BaseURL: "ftp://api.example.com"}, Callbacks{})
	if _, err := c.streamURL("s1"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}
