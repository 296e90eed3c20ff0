// Package notify dispatches completion notifications to external channels.
// Targets are strings like "telegram:123456" or "log:"; the prefix selects
// the handler.
package notify

import (
	"fmt"
	"strings"
	"sync"

	"github.com/user/stratwatch/internal/types"
)

// Notification describes the terminal outcome of a watched session.
type Notification struct {
	SessionID types.SessionID
	Failed    bool
	Summary   string
}

// Handler delivers a notification to the channel identified by target.
type Handler func(target string, n Notification) error

// Registry routes notifications to the appropriate handler based on target
// prefix (e.g. "telegram:", "log:").
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	retry    *RetryPolicy
}

// NewRegistry creates an empty notification registry using the default
// retry policy.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		retry:    DefaultRetryPolicy(),
	}
}

// Register adds a handler for targets starting with prefix.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// Dispatch finds the handler matching the target prefix and calls it,
// retrying transient failures. Returns an error if no handler is registered
// for the prefix.
func (r *Registry) Dispatch(target string, n Notification) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for prefix, handler := range r.handlers {
		if strings.HasPrefix(target, prefix) {
			return r.retry.Execute(func() error {
				return handler(target, n)
			})
		}
	}
	return fmt.Errorf("no notify handler for target: %s", target)
}
