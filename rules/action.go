package rules

import (
	"context"
	"fmt"
	"sync"
)

// Handler performs one side-effecting capability: reassign a zone, send a
// notification, hold an order. Parameter validation is the handler's
// responsibility; the executor passes parameters through opaquely.
type Handler func(ctx context.Context, params map[string]Value, entity Entity) error

// CapabilityProvider resolves an action type to its handler. Action types
// are an open set: registering a handler is all it takes to support a new
// one, the engine never changes.
type CapabilityProvider interface {
	Lookup(actionType string) (Handler, bool)
}

// Registry is the standard CapabilityProvider: a thread-safe map from
// action type to handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register installs a handler for an action type, replacing any existing
// handler for the same type.
func (r *Registry) Register(actionType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[actionType] = h
}

// Lookup returns the handler for an action type.
func (r *Registry) Lookup(actionType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[actionType]
	return h, ok
}

// Types returns the registered action types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}

// Executor dispatches actions to capability handlers. Each action executes
// independently: an unknown type or a handler failure yields a failed
// outcome, never an error that aborts the sibling actions.
type Executor struct {
	capabilities CapabilityProvider
}

// NewExecutor creates an executor over a capability provider.
func NewExecutor(capabilities CapabilityProvider) *Executor {
	return &Executor{capabilities: capabilities}
}

// Execute runs one action. A panicking handler is contained here and
// reported as a failed outcome.
func (e *Executor) Execute(ctx context.Context, action Action, entity Entity) (outcome ActionOutcome) {
	outcome = ActionOutcome{
		ActionID: action.ID,
		Type:     action.Type,
	}

	handler, ok := e.capabilities.Lookup(action.Type)
	if !ok {
		outcome.Error = fmt.Sprintf("no capability registered for action type %q", action.Type)
		return outcome
	}

	defer func() {
		if r := recover(); r != nil {
			outcome.Succeeded = false
			outcome.Error = fmt.Sprintf("capability panicked: %v", r)
		}
	}()

	if err := handler(ctx, action.Parameters, entity); err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	outcome.Succeeded = true
	return outcome
}
