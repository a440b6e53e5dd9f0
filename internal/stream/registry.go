package stream

import (
	"maps"
	"slices"
)

// Registry maps event discriminants to handlers. It is built once at startup and
// never modified, so one value can be shared by concurrent dispatchers.
type Registry[P Payload] struct {
	handlers map[string]Handler[P]
}

// NewRegistry copies handlers into an immutable registry.
func NewRegistry[P Payload](handlers map[string]Handler[P]) *Registry[P] {
	return &Registry[P]{handlers: maps.Clone(handlers)}
}

// Lookup returns the handler of kind.
func (r *Registry[P]) Lookup(kind string) (Handler[P], bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds returns the registered discriminants, sorted.
func (r *Registry[P]) Kinds() []string {
	return slices.Sorted(maps.Keys(r.handlers))
}
