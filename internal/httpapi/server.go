// Package httpapi exposes the daemon's local HTTP surface: session
// inspection, derived progress, evaluation views, usage estimates, and
// watch control.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/user/stratwatch/internal/evalview"
	"github.com/user/stratwatch/internal/types"
	"github.com/user/stratwatch/internal/usage"
	"github.com/user/stratwatch/internal/watch"
	"github.com/user/stratwatch/pkg/workflow"
)

// Server is a lightweight HTTP handler over the daemon's stores and the
// watch manager.
type Server struct {
	manager    *watch.Manager
	sessions   types.SessionStore
	events     types.EventStore
	strategies types.StrategyStore
	estimator  *usage.Estimator
	mux        *http.ServeMux
}

// NewServer creates the API server. estimator may be nil; the usage
// endpoint then reports unavailable.
func NewServer(
	manager *watch.Manager,
	sessions types.SessionStore,
	events types.EventStore,
	strategies types.StrategyStore,
	estimator *usage.Estimator,
) *Server {
	s := &Server{
		manager:    manager,
		sessions:   sessions,
		events:     events,
		strategies: strategies,
		estimator:  estimator,
		mux:        http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
	s.mux.HandleFunc("GET /api/sessions/{id}/events", s.handleSessionEvents)
	s.mux.HandleFunc("GET /api/sessions/{id}/progress", s.handleSessionProgress)
	s.mux.HandleFunc("GET /api/sessions/{id}/evaluation", s.handleSessionEvaluation)
	s.mux.HandleFunc("GET /api/sessions/{id}/usage", s.handleSessionUsage)
	s.mux.HandleFunc("GET /api/watches", s.handleWatches)
	s.mux.HandleFunc("POST /api/watches", s.handleWatchStart)
	s.mux.HandleFunc("DELETE /api/watches/{id}", s.handleWatchStop)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

type sessionResponse struct {
	SessionID    string `json:"session_id"`
	Status       string `json:"status"`
	NotifyTarget string `json:"notify_target,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	EventCount   int64  `json:"event_count"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		slog.Error("list sessions failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	result := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		count, err := s.events.Count(ctx, sess.SessionID)
		if err != nil {
			slog.Warn("count events failed", "session_id", sess.SessionID, "error", err)
		}
		result = append(result, sessionResponse{
			SessionID:    string(sess.SessionID),
			Status:       sess.Status,
			NotifyTarget: sess.NotifyTarget,
			CreatedAt:    sess.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			UpdatedAt:    sess.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
			EventCount:   count,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt > result[j].UpdatedAt
	})

	writeJSON(w, result)
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := types.SessionID(r.PathValue("id"))

	limit := 200
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := s.events.Tail(r.Context(), sessionID, limit)
	if err != nil {
		slog.Error("tail events failed", "session_id", sessionID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*types.Event{}
	}

	writeJSON(w, events)
}

type progressResponse struct {
	SessionID  string                `json:"session_id"`
	Status     string                `json:"status"`
	Phases     []workflow.PhaseState `json:"phases"`
	Complete   bool                  `json:"complete"`
	Failed     bool                  `json:"failed"`
	EventCount int                   `json:"event_count"`
	Live       bool                  `json:"live"`
	Fault      string                `json:"fault,omitempty"`
}

// handleSessionProgress serves the live snapshot for a watched session, or
// recomputes phase classification from the recorded log for a past one.
func (s *Server) handleSessionProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := types.SessionID(r.PathValue("id"))

	sess, err := s.sessions.Get(r.Context(), sessionID)
	if err != nil {
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
		return
	}

	resp := progressResponse{SessionID: string(sessionID), Status: sess.Status}

	if snap, ok := s.manager.Snapshot(sessionID); ok {
		resp.Phases = snap.Phases
		resp.Complete = snap.Complete
		resp.Failed = snap.Failed
		resp.EventCount = snap.EventCount
		resp.Live = true
		if snap.Fault != nil {
			resp.Fault = snap.Fault.Message()
		}
		writeJSON(w, resp)
		return
	}

	stored, err := s.events.Tail(r.Context(), sessionID, 10000)
	if err != nil {
		slog.Error("tail events failed", "session_id", sessionID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	log := make([]workflow.Event, 0, len(stored))
	for _, e := range stored {
		log = append(log, e.Workflow())
	}
	resp.Phases = workflow.Infer(log, workflow.DefaultPipeline())
	resp.Complete = workflow.Complete(log)
	resp.Failed = workflow.Failed(log)
	resp.EventCount = len(log)
	writeJSON(w, resp)
}

type evaluationResponse struct {
	SessionID  string                    `json:"session_id"`
	Overall    evalview.OverallPanel     `json:"overall"`
	Evaluators []evalview.EvaluatorPanel `json:"evaluators"`
}

func (s *Server) handleSessionEvaluation(w http.ResponseWriter, r *http.Request) {
	sessionID := types.SessionID(r.PathValue("id"))

	artifact, err := s.strategies.Get(r.Context(), sessionID)
	if err != nil || artifact.Evaluation == nil {
		http.Error(w, `{"error":"no evaluation for session"}`, http.StatusNotFound)
		return
	}

	view := evalview.New(artifact.Evaluation)
	writeJSON(w, evaluationResponse{
		SessionID:  string(sessionID),
		Overall:    view.Overall(),
		Evaluators: view.Evaluators(),
	})
}

func (s *Server) handleSessionUsage(w http.ResponseWriter, r *http.Request) {
	if s.estimator == nil {
		http.Error(w, `{"error":"usage estimation not configured"}`, http.StatusServiceUnavailable)
		return
	}
	sessionID := types.SessionID(r.PathValue("id"))

	events, err := s.events.Tail(r.Context(), sessionID, 10000)
	if err != nil {
		slog.Error("tail events failed", "session_id", sessionID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, s.estimator.Estimate(sessionID, events))
}

func (s *Server) handleWatches(w http.ResponseWriter, r *http.Request) {
	active := s.manager.Active()
	ids := make([]string, 0, len(active))
	for _, id := range active {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	writeJSON(w, map[string][]string{"watching": ids})
}

// watchRequest is the JSON body for POST /api/watches.
type watchRequest struct {
	SessionID    string `json:"session_id"`
	NotifyTarget string `json:"notify_target"`
}

func (s *Server) handleWatchStart(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, `{"error":"session_id is required"}`, http.StatusBadRequest)
		return
	}

	if err := s.manager.Watch(r.Context(), types.SessionID(req.SessionID), req.NotifyTarget); err != nil {
		msg := err.Error()
		code := http.StatusInternalServerError
		switch {
		case strings.Contains(msg, "already watched"):
			code = http.StatusConflict
		case strings.Contains(msg, "watch limit"):
			code = http.StatusTooManyRequests
		case strings.Contains(msg, "dial"):
			code = http.StatusBadGateway
		}
		writeError(w, code, msg)
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"session_id": req.SessionID, "status": "watching"})
}

func (s *Server) handleWatchStop(w http.ResponseWriter, r *http.Request) {
	sessionID := types.SessionID(r.PathValue("id"))
	s.manager.Unwatch(sessionID)
	writeJSON(w, map[string]string{"session_id": string(sessionID), "status": "stopped"})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
