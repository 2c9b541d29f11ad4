package container

import (
	"context"

	"github.com/roach88/orbit/internal/refcount"
)

// Operation is one submitted intent. It runs in its own goroutine with a
// Syntax giving access to state, reduction and side effects.
//
// ctx is cancelled when the container is torn down; long-running operations
// should observe it.
type Operation[S, E any] func(ctx context.Context, s *Syntax[S, E]) error

// Container is the surface shared by the core and its decorators.
//
// Decorators implement Container by holding the wrapped instance and
// intercepting the calls they care about.
type Container[S, E any] interface {
	// ID identifies the container in logs and errors.
	ID() string

	// State returns the current state. Never blocks.
	State() S

	// StateFlow returns a stream starting with the current state followed by
	// every committed state. Each subscriber gets its own copy of every
	// update. The channel closes when ctx is done or the container closes.
	StateFlow(ctx context.Context) <-chan S

	// WatchState is StateFlow for internal observers such as persistence.
	// Watchers do not count as subscribers and do not trigger lazy creation.
	WatchState(ctx context.Context) <-chan S

	// SideEffectFlow returns the shared side-effect channel. Consumers
	// compete for effects: each effect is received exactly once. ctx scopes
	// the subscription for ref-counting; stop reading when it is done. The
	// channel closes after teardown, once buffered effects are drained.
	SideEffectFlow(ctx context.Context) <-chan E

	// Submit enqueues op and returns immediately.
	Submit(op Operation[S, E]) error

	// Subscribed streams the debounced subscription state.
	Subscribed(ctx context.Context) <-chan refcount.Subscription

	// Settings returns the effective configuration.
	Settings() Settings

	// Close tears the container down and waits for teardown to finish.
	// Returns the error that failed the container, if any.
	Close() error

	// Done is closed once teardown has finished.
	Done() <-chan struct{}

	// Err returns the operation error that failed the container, or nil.
	Err() error
}
