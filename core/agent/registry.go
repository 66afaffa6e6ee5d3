package agent

import (
	"fmt"
	"sort"
)

// Registry is the closed handler registration table, built once at startup.
//
// Lookups for unknown names resolve to the default conversational handler,
// so a known route can never fail with "handler not found" at runtime.
type Registry struct {
	handlers    map[string]Handler
	defaultName string
}

// NewRegistry creates a Registry whose fallback is defaultHandler.
// The default handler is registered under its own name as well.
func NewRegistry(defaultHandler Handler) (*Registry, error) {
	if defaultHandler == nil {
		return nil, fmt.Errorf("default handler is required")
	}
	r := &Registry{
		handlers:    make(map[string]Handler),
		defaultName: defaultHandler.Name(),
	}
	if err := r.Register(defaultHandler); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds a handler. Only one handler per name is allowed.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("cannot register nil handler")
	}
	name := h.Name()
	if name == "" {
		return fmt.Errorf("cannot register handler with empty name")
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("handler already registered: %s", name)
	}
	r.handlers[name] = h
	return nil
}

// Resolve returns the handler for name, falling back to the default handler
// for unknown names. The second return reports whether the name was known.
func (r *Registry) Resolve(name string) (Handler, bool) {
	if h, ok := r.handlers[name]; ok {
		return h, true
	}
	return r.handlers[r.defaultName], false
}

// Has reports whether a handler is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// DefaultName returns the name of the fallback handler.
func (r *Registry) DefaultName() string {
	return r.defaultName
}

// Names returns all registered handler names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
