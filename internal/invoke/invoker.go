package invoke

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownTarget is returned when a target name is not defined.
var ErrUnknownTarget = errors.New("unknown target")

// Invoker executes a named target with a unit's scope. Implementations must
// be safe for concurrent use; the scope passed in is owned by the call.
type Invoker interface {
	Invoke(ctx context.Context, target string, scope *Scope) error
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, target string, scope *Scope) error

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, target string, scope *Scope) error {
	return f(ctx, target, scope)
}

// TargetFunc is a target implemented in Go.
type TargetFunc func(ctx context.Context, scope *Scope) error

// Registry maps target names to Go functions.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]TargetFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{targets: make(map[string]TargetFunc)}
}

// Register adds or replaces a target.
func (r *Registry) Register(name string, fn TargetFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[name] = fn
}

// Has reports whether a target is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.targets[name]
	return ok
}

// Targets returns the sorted target names.
func (r *Registry) Targets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.targets))
	for name := range r.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named target.
func (r *Registry) Invoke(ctx context.Context, target string, scope *Scope) error {
	r.mu.RLock()
	fn, ok := r.targets[target]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
	return fn(ctx, scope)
}
