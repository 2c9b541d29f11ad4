// Package idling lets instrumented tests detect when tracked asynchronous
// work has finished.
//
// A Resource is incremented when a tracked unit of work starts and
// decremented when it finishes. Production containers use Noop; tests use a
// Counter and wait for it to report idle.
package idling

import (
	"context"
	"sync"
	"sync/atomic"
)

// Resource counts in-flight tracked work.
type Resource interface {
	Increment()
	Decrement()
	// Close releases the resource. The owning container calls it on teardown.
	Close()
}

// Noop is the production Resource. All methods do nothing.
type Noop struct{}

func (Noop) Increment() {}
func (Noop) Decrement() {}
func (Noop) Close()     {}

// Track runs fn with r incremented, and decrements r on every exit path,
// including panics.
func Track(r Resource, fn func() error) error {
	r.Increment()
	defer r.Decrement()
	return fn()
}

// TrackContext is Track for work that observes cancellation. If ctx is
// already done, fn is not run and r is left untouched.
func TrackContext(ctx context.Context, r Resource, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return Track(r, func() error { return fn(ctx) })
}

// Counter is a Resource backed by an atomic counter. It can be awaited.
//
// Thread-safety: all methods are safe for concurrent use.
type Counter struct {
	count  atomic.Int64
	closed atomic.Bool

	mu   sync.Mutex
	idle chan struct{} // closed while count == 0
}

// NewCounter creates an idle counter.
func NewCounter() *Counter {
	idle := make(chan struct{})
	close(idle)
	return &Counter{idle: idle}
}

// Increment marks one more unit of work in flight.
func (c *Counter) Increment() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count.Add(1) == 1 {
		c.idle = make(chan struct{})
	}
}

// Decrement marks one unit of work as finished.
// Panics if it would drop the count below zero.
func (c *Counter) Decrement() {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.count.Add(-1)
	switch {
	case n < 0:
		panic("idling: Decrement without matching Increment")
	case n == 0:
		close(c.idle)
	}
}

// Close marks the counter as released.
func (c *Counter) Close() {
	c.closed.Store(true)
}

// Closed reports whether Close has been called.
func (c *Counter) Closed() bool {
	return c.closed.Load()
}

// Count returns the number of units in flight.
func (c *Counter) Count() int64 {
	return c.count.Load()
}

// Idle reports whether no tracked work is in flight.
func (c *Counter) Idle() bool {
	return c.count.Load() == 0
}

// WaitIdle blocks until the counter reaches zero or ctx is done.
func (c *Counter) WaitIdle(ctx context.Context) error {
	for {
		c.mu.Lock()
		idle := c.idle
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
			// Work may have started again between close and wake-up.
			if c.Idle() {
				return nil
			}
		}
	}
}
