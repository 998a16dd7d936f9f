package action

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gyaneshwarpardhi/clientrules/internal/rule"
)

// Registry maps action types to their handlers.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[rule.ActionType]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[rule.ActionType]Handler)}
}

// Register adds a handler. Panics on duplicate type to surface misconfiguration early.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[h.Type()]; exists {
		panic(fmt.Sprintf("action registry: duplicate type %q", h.Type()))
	}
	r.handlers[h.Type()] = h
}

// Get returns the handler for the given type.
func (r *Registry) Get(t rule.ActionType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("no handler registered for action type %q", t)
	}
	return h, nil
}

// Types returns all registered action types, sorted.
func (r *Registry) Types() []rule.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]rule.ActionType, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Validate checks one action's type-specific fields.
func (r *Registry) Validate(a rule.Action) error {
	h, err := r.Get(a.Type)
	if err != nil {
		return err
	}
	return h.Validate(a)
}

// ValidateAll checks every action and joins the failures, indexed by position.
func (r *Registry) ValidateAll(actions []rule.Action) error {
	var errs []error
	for i, a := range actions {
		if err := r.Validate(a); err != nil {
			errs = append(errs, fmt.Errorf("actions[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
