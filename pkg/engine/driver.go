package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ResourceDriver performs the backend calls for one resource type. The
// executor hands every driver the shared backend client; what the client
// is (an API handle, a socket, a session) is between the driver and the
// ClientFactory that built it.
//
// Create, Update, and Delete return whether the operation took effect. A
// (false, nil) return means the driver declined the operation, which the
// executor counts as a failure for that resource. Read returns the live
// state of the resource, or an error when it does not exist.
type ResourceDriver interface {
	Create(ctx context.Context, r *Resource, client any) (bool, error)
	Read(ctx context.Context, r *Resource, client any) (any, error)
	Update(ctx context.Context, r *Resource, client any) (bool, error)
	Delete(ctx context.Context, r *Resource, client any) (bool, error)
}

// ClientFactory builds the shared backend client handle. The executor
// calls it at most once per run sequence and caches the result.
type ClientFactory func(ctx context.Context) (any, error)

// Confirmer asks for approval of a plan before execution. Implementations
// range from terminal prompts to policy services.
type Confirmer interface {
	Confirm(ctx context.Context, plan *ExecutionPlan) (bool, error)
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, plan *ExecutionPlan) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmerFunc) Confirm(ctx context.Context, plan *ExecutionPlan) (bool, error) {
	return f(ctx, plan)
}

// DriverRegistry maps resource type tags to drivers. It is safe for
// concurrent use.
type DriverRegistry struct {
	mu      sync.RWMutex
	drivers map[string]ResourceDriver
}

// NewDriverRegistry creates an empty driver registry.
func NewDriverRegistry() *DriverRegistry {
	return &DriverRegistry{drivers: make(map[string]ResourceDriver)}
}

// Register binds a driver to a resource type tag. Registering the same
// type twice is an error; drivers are wired once at startup.
func (r *DriverRegistry) Register(typeTag string, d ResourceDriver) error {
	if typeTag == "" {
		return NewPermanentError("driver type tag is empty", nil).
			WithCode(ErrCodeValidation)
	}
	if d == nil {
		return NewPermanentError(fmt.Sprintf("driver for %q is nil", typeTag), nil).
			WithCode(ErrCodeValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.drivers[typeTag]; exists {
		return NewConflictError(fmt.Sprintf("driver for %q already registered", typeTag), nil)
	}
	r.drivers[typeTag] = d
	return nil
}

// Get returns the driver for a resource type tag.
func (r *DriverRegistry) Get(typeTag string) (ResourceDriver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[typeTag]
	if !ok {
		return nil, NewPermanentError(fmt.Sprintf("no driver for resource type %q", typeTag), nil).
			WithCode(ErrCodeNotFound)
	}
	return d, nil
}

// Types returns the registered type tags, sorted.
func (r *DriverRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.drivers))
	for t := range r.drivers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
