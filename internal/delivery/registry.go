// Package delivery routes mission notices to the channel named by a notify
// target's prefix.
package delivery

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/user/marketradar/internal/types"
)

// Handler delivers a message to the address encoded in target.
type Handler func(target types.NotifyTarget, message string) error

// Registry routes messages to the appropriate delivery handler based on
// target prefix (e.g. "telegram:").
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	retry    *RetryPolicy
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// SetRetry makes Deliver retry transient failures with p. nil disables
// retrying.
func (r *Registry) SetRetry(p *RetryPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retry = p
}

// Register adds a handler for targets starting with prefix.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// Prefixes lists the registered prefixes in sorted order.
func (r *Registry) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prefixes := make([]string, 0, len(r.handlers))
	for p := range r.handlers {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return prefixes
}

// Deliver calls the handler with the longest prefix matching target.
func (r *Registry) Deliver(target types.NotifyTarget, message string) error {
	r.mu.RLock()
	var best string
	var handler Handler
	for prefix, h := range r.handlers {
		if strings.HasPrefix(string(target), prefix) && len(prefix) >= len(best) {
			best, handler = prefix, h
		}
	}
	retry := r.retry
	r.mu.RUnlock()

	if handler == nil {
		return fmt.Errorf("%w for target: %s", ErrNoHandler, target)
	}
	if retry == nil {
		return handler(target, message)
	}
	return retry.Execute(func() error {
		return handler(target, message)
	})
}
