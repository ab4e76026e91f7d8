package event

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/event"
)

// HandlerRegistry maps handler names to implementations so persisted
// subscriptions can be re-attached to code at startup.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]event.Handler
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]event.Handler)}
}

// Register adds a handler under its name. Duplicate names are rejected so
// a persisted subscription can never attach to the wrong code.
func (r *HandlerRegistry) Register(h event.Handler) error {
	if h == nil {
		return event.ErrNilHandler
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[h.Name()]; exists {
		return fmt.Errorf("event: handler %q already registered", h.Name())
	}
	r.handlers[h.Name()] = h
	return nil
}

// Lookup returns the handler registered under name.
func (r *HandlerRegistry) Lookup(name string) (event.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Registry holds the live subscriptions the dispatcher matches against.
// Insertion order is preserved and breaks priority ties, so dispatch order
// is deterministic.
type Registry struct {
	mu   sync.RWMutex
	subs []*event.Subscription
}

// NewRegistry creates an empty subscription registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add validates and registers a subscription.
func (r *Registry) Add(sub *event.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, sub)
	return nil
}

// Remove unregisters a subscription by ID.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, sub := range r.subs {
		if sub.ID == id {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return true
		}
	}
	return false
}

// MatchesFor returns the subscriptions an event dispatches to, ordered by
// subscription priority descending, then registration order.
func (r *Registry) MatchesFor(e *event.SyncEvent) []*event.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*event.Subscription
	for _, sub := range r.subs {
		if sub.Matches(e) {
			matched = append(matched, sub)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority > matched[j].Priority
	})
	return matched
}

// Len returns the number of registered subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
