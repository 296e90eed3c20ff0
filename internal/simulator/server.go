// Package simulator hosts a local stand-in for the strategy backend. It
// serves the same stream endpoint and plays a scripted session to every
// connecting client, which makes end-to-end runs possible without a live
// backend.
package simulator

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Config controls the simulator endpoint and the script it plays.
type Config struct {
	ListenAddr string
	Script     []Step
}

func (c Config) withDefaults() Config {
	out := c
	out.ListenAddr = strings.TrimSpace(out.ListenAddr)
	if out.ListenAddr == "" {
		out.ListenAddr = "127.0.0.1:17380"
	}
	if len(out.Script) == 0 {
		out.Script = DefaultScript()
	}
	return out
}

// Server plays a scripted session to every stream subscriber.
type Server struct {
	cfg Config

	mu      sync.Mutex
	ln      net.Listener
	httpSrv *http.Server
	addr    string
}

// New creates a simulator server.
func New(cfg Config) *Server {
	return &Server{cfg: cfg.withDefaults()}
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// BaseURL returns the http base URL clients should dial, or "" before Start.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	return "http://" + addr
}

// Start binds the listener and begins serving. Idempotent.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.ln != nil {
		s.mu.Unlock()
		return nil
	}
	cfg := s.cfg
	s.mu.Unlock()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	addr := ln.Addr().String()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions/", s.handleStream)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.ln = ln
	s.httpSrv = httpSrv
	s.addr = addr
	s.mu.Unlock()

	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("simulator serve failed", "error", err)
		}
	}()

	slog.Info("simulator listening", "addr", addr)
	return nil
}

// Close shuts the server down.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.httpSrv = nil
	s.ln = nil
	s.addr = ""
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.Shutdown(ctx)
}

// handleStream upgrades /api/sessions/<id>/stream and plays the script.
// Any other path under the prefix is a 404.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	sessionID, ok := strings.CutSuffix(rest, "/stream")
	if !ok || sessionID == "" || strings.Contains(sessionID, "/") {
		http.NotFound(w, r)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	slog.Debug("simulator subscriber connected", "session", sessionID)

	for _, step := range s.cfg.Script {
		if step.Delay > 0 {
			time.Sleep(step.Delay)
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(step.Frame)); err != nil {
			return
		}
	}

	// Normal close after the script: clients treat this as the expected end
	// of a finished session.
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}
