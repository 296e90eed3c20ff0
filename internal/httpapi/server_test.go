package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/user/stratwatch/internal/notify"
	"github.com/user/stratwatch/internal/state"
	"github.com/user/stratwatch/internal/stream"
	"github.com/user/stratwatch/internal/types"
	"github.com/user/stratwatch/internal/watch"
	"github.com/user/stratwatch/pkg/workflow"
)

type testEnv struct {
	srv        *Server
	sessions   *state.SessionStore
	events     *state.EventStore
	strategies *state.StrategyStore
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	env := &testEnv{
		sessions:   state.NewSessionStore(dir),
		events:     state.NewEventStore(dir),
		strategies: state.NewStrategyStore(dir),
	}

	registry := notify.NewRegistry()
	registry.Register("log:", notify.LogHandler)

	// Nothing listens on this address; watch attempts fail fast.
	manager := watch.New(
		stream.Config{BaseURL: "http://127.0.0.1:1", DialTimeout: 200 * time.Millisecond},
		env.sessions, env.events, env.strategies,
		registry, "log:", 2,
	)
	manager.Start(context.Background())
	t.Cleanup(manager.Stop)

	env.srv = NewServer(manager, env.sessions, env.events, env.strategies, nil)
	return env
}

func (e *testEnv) seedSession(t *testing.T, id types.SessionID, status string, kinds ...string) {
	t.Helper()
	ctx := context.Background()
	sess, err := e.sessions.Track(ctx, id, "")
	if err != nil {
		t.Fatal(err)
	}
	sess.Status = status
	if err := e.sessions.Update(ctx, sess); err != nil {
		t.Fatal(err)
	}
	for _, kind := range kinds {
		we := workflow.Event{Kind: kind, ReceivedAt: time.Now()}
		// Terminal frames carry no agent; only agent lifecycle events do.
		if strings.HasPrefix(kind, "agent_") {
			we.Agent = "StrategyParser"
		}
		if err := e.events.Append(ctx, types.Recorded(id, we)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestSessionsList(t *testing.T) {
	env := setupServer(t)
	env.seedSession(t, "sess-1", types.StatusComplete, "agent_start", "complete")

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp []sessionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp) != 1 {
		t.Fatalf("expected 1 session, got %d", len(resp))
	}
	if resp[0].SessionID != "sess-1" || resp[0].EventCount != 2 {
		t.Errorf("unexpected session: %+v", resp[0])
	}
}

func TestSessionEvents(t *testing.T) {
	env := setupServer(t)
	env.seedSession(t, "sess-1", types.StatusComplete, "agent_start", "agent_complete", "complete")

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/sess-1/events?limit=2", nil)
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var events []*types.Event
	if err := json.NewDecoder(w.Body).Decode(&events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Seq != 2 {
		t.Errorf("expected tail to start at seq 2, got %d", events[0].Seq)
	}
}

func TestSessionProgressFromStoredLog(t *testing.T) {
	env := setupServer(t)
	env.seedSession(t, "sess-1", types.StatusComplete, "agent_start", "agent_complete", "complete")

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/sess-1/progress", nil)
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp progressResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Live {
		t.Error("expected non-live progress for unwatched session")
	}
	if !resp.Complete || resp.Failed {
		t.Errorf("expected complete, not failed: %+v", resp)
	}
	if len(resp.Phases) != 5 {
		t.Fatalf("expected 5 phases, got %d", len(resp.Phases))
	}
	// agent_start + agent_complete for StrategyParser: parse phase done
	if resp.Phases[0].Key != "parse" || resp.Phases[0].Status != workflow.StatusDone {
		t.Errorf("unexpected parse phase: %+v", resp.Phases[0])
	}
}

func TestSessionProgressNotFound(t *testing.T) {
	env := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/nope/progress", nil)
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestSessionEvaluation(t *testing.T) {
	env := setupServer(t)
	env.seedSession(t, "sess-1", types.StatusComplete)

	artifact := &types.StrategyArtifact{
		SessionID: "sess-1",
		Source:    "def on_bar(ctx): pass",
		Evaluation: &types.EvalResult{
			Passed:       true,
			AverageScore: 0.9,
			Evaluators: map[string]types.EvaluatorResult{
				"risk": {Passed: true},
			},
		},
		SavedAt: time.Now(),
	}
	if err := env.strategies.Put(context.Background(), artifact); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/sess-1/evaluation", nil)
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp evaluationResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Overall.Passed || !resp.Overall.Expanded {
		t.Errorf("unexpected overall panel: %+v", resp.Overall)
	}
	if len(resp.Evaluators) != 1 || resp.Evaluators[0].Name != "risk" {
		t.Errorf("unexpected evaluators: %+v", resp.Evaluators)
	}
	if resp.Evaluators[0].Expanded {
		t.Error("evaluator panels default to collapsed")
	}
}

func TestUsageUnconfigured(t *testing.T) {
	env := setupServer(t)
	env.seedSession(t, "sess-1", types.StatusComplete)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/sess-1/usage", nil)
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
}

func TestWatchStartValidation(t *testing.T) {
	env := setupServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/watches", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestWatchStartDialFailure(t *testing.T) {
	env := setupServer(t)

	body := `{"session_id":"sess-x"}`
	req := httptest.NewRequest(http.MethodPost, "/api/watches", strings.NewReader(body))
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", w.Code)
	}
}

func TestWatchesEmpty(t *testing.T) {
	env := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/watches", nil)
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp map[string][]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp["watching"]) != 0 {
		t.Errorf("expected no watches, got %v", resp["watching"])
	}
}
