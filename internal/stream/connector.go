// Package stream owns the lifecycle of one streaming connection per
// session: it dials the backend's session stream, normalizes raw frames
// into workflow events, filters control signals, and surfaces connection
// faults. It never retries: a fault is terminal for the binding until the
// caller binds again.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/stratwatch/pkg/workflow"
)

// FaultKind distinguishes the two connection-level fault categories.
type FaultKind string

const (
	// FaultConnection is a transport-level error while the binding is live.
	FaultConnection FaultKind = "connection_error"
	// FaultUnexpectedClose is a transport close with no terminal event
	// observed. A close after a terminal event is expected and silent.
	FaultUnexpectedClose FaultKind = "unexpected_close"
)

// Fault is a non-fatal, user-visible connection advisory. Faults are
// delivered through callbacks alongside normal events, never thrown.
type Fault struct {
	Kind      FaultKind
	SessionID string
	Err       error
}

// Message returns the advisory text for display.
func (f Fault) Message() string {
	switch f.Kind {
	case FaultUnexpectedClose:
		return "stream closed unexpectedly"
	default:
		return "stream connection error"
	}
}

// Callbacks receive connector signals. For one binding all callbacks are
// invoked sequentially in arrival order from the binding's read loop; no
// callback fires after teardown of that binding begins.
type Callbacks struct {
	// OnOpen fires once after a successful dial. Any previously reported
	// fault should be considered cleared.
	OnOpen func(sessionID string)
	// OnReady fires at most once per binding, when the backend signals the
	// stream is live. The ready message itself is discarded.
	OnReady func(sessionID string)
	// OnEvent delivers every non-control event in arrival order.
	OnEvent func(sessionID string, e workflow.Event)
	// OnFault delivers connection faults for a live binding.
	OnFault func(f Fault)
}

type Config struct {
	// BaseURL of the backend, http(s) or ws(s); the scheme is normalized.
	BaseURL     string
	APIToken    string
	DialTimeout time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	out.BaseURL = strings.TrimRight(strings.TrimSpace(out.BaseURL), "/")
	if out.DialTimeout <= 0 {
		out.DialTimeout = 15 * time.Second
	}
	return out
}

// Connector opens at most one session stream at a time. Binding a new
// session tears down the previous binding first.
type Connector struct {
	cfg Config
	cb  Callbacks

	mu      sync.Mutex
	binding *binding
}

func New(cfg Config, cb Callbacks) *Connector {
	return &Connector{cfg: cfg.withDefaults(), cb: cb}
}

// Bind opens a streaming connection scoped to sessionID, tearing down any
// prior binding first. An empty sessionID only tears down: the connector
// becomes a no-op until the next Bind.
func (c *Connector) Bind(ctx context.Context, sessionID string) error {
	c.Unbind()
	if sessionID == "" {
		return nil
	}

	target, err := c.streamURL(sessionID)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	var header http.Header
	if c.cfg.APIToken != "" {
		header = http.Header{"Authorization": {"Bearer " + c.cfg.APIToken}}
	}

	conn, resp, err := dialer.DialContext(ctx, target, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial session stream: %w", err)
	}

	b := &binding{sessionID: sessionID, conn: conn, cb: c.cb}

	c.mu.Lock()
	c.binding = b
	c.mu.Unlock()

	if c.cb.OnOpen != nil {
		c.cb.OnOpen(sessionID)
	}

	go b.readLoop()
	return nil
}

// Unbind tears down the current binding, if any. Teardown is idempotent:
// the underlying connection is closed once and no callback fires for the
// binding afterwards.
func (c *Connector) Unbind() {
	c.mu.Lock()
	b := c.binding
	c.binding = nil
	c.mu.Unlock()

	if b != nil {
		b.close()
	}
}

// SessionID returns the currently bound session, or "".
func (c *Connector) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.binding == nil {
		return ""
	}
	return c.binding.sessionID
}

func (c *Connector) streamURL(sessionID string) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse backend URL %q: %w", c.cfg.BaseURL, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported backend URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/sessions/" + url.PathEscape(sessionID) + "/stream"
	return u.String(), nil
}

// binding is one live connection. closed is the cleanliness flag: it is
// raised synchronously on teardown and gates every callback, so a stale
// binding's late frames can never leak into a newer binding's state.
// terminal is the authoritative completion flag, updated under mu at the
// moment the terminal event is processed, before delivery, so a close
// arriving right after reliably sees it.
type binding struct {
	sessionID string
	conn      *websocket.Conn
	cb        Callbacks

	mu       sync.Mutex
	closed   bool
	terminal bool
	ready    bool
}

func (b *binding) readLoop() {
	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			b.finish(err)
			return
		}
		b.handleFrame(data)
	}
}

func (b *binding) handleFrame(data []byte) {
	e, err := workflow.Decode(data)
	if err != nil {
		// Decode faults are recovered locally: logged and dropped.
		slog.Warn("dropping malformed stream message", "session_id", b.sessionID, "error", err)
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	switch e.Kind {
	case workflow.KindReady:
		first := !b.ready
		b.ready = true
		b.mu.Unlock()
		if first && b.cb.OnReady != nil {
			b.cb.OnReady(b.sessionID)
		}
		return
	case workflow.KindHeartbeat:
		b.mu.Unlock()
		return
	}

	if workflow.IsTerminal(e.Kind) {
		b.terminal = true
	}
	b.mu.Unlock()

	if b.cb.OnEvent != nil {
		b.cb.OnEvent(b.sessionID, e)
	}
}

// finish runs when the read loop ends. If teardown already began the
// binding stays silent; otherwise the error is classified into exactly one
// fault, or none when the close was expected.
func (b *binding) finish(err error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	terminal := b.terminal
	b.mu.Unlock()

	_ = b.conn.Close()

	if !isTransportClose(err) {
		if b.cb.OnFault != nil {
			b.cb.OnFault(Fault{Kind: FaultConnection, SessionID: b.sessionID, Err: err})
		}
		return
	}
	if terminal {
		return
	}
	if b.cb.OnFault != nil {
		b.cb.OnFault(Fault{Kind: FaultUnexpectedClose, SessionID: b.sessionID, Err: err})
	}
}

// close raises the cleanliness flag and closes the connection. Safe to call
// more than once; only the first call closes the connection.
func (b *binding) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	_ = b.conn.Close()
}

// isTransportClose reports whether the read error means the peer closed the
// stream, as opposed to a transport-level failure mid-connection.
func isTransportClose(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
