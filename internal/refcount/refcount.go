// Package refcount tracks active consumers of a stream and derives a
// debounced Subscribed/Unsubscribed signal from the count.
//
// The signal gates expensive upstream work: it flips to Subscribed as soon as
// the first consumer arrives, and back to Unsubscribed only after the count
// has stayed at zero for a grace period. A consumer that leaves just before
// another arrives (UI reconfiguration, for example) never tears the work down.
package refcount

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/orbit/internal/flow"
)

// Subscription is the derived subscription state.
type Subscription int

const (
	// Unsubscribed means no consumer has been active for the grace period.
	Unsubscribed Subscription = iota
	// Subscribed means at least one consumer is active.
	Subscribed
)

// String implements fmt.Stringer.
func (s Subscription) String() string {
	switch s {
	case Subscribed:
		return "subscribed"
	case Unsubscribed:
		return "unsubscribed"
	default:
		return "unknown"
	}
}

// Counter counts active consumers.
//
// Thread-safety: all methods are safe for concurrent use. Increment and
// Decrement are serialized by a mutex so concurrent (un)subscriptions never
// lose updates.
//
// INVARIANTS:
//   - Every Decrement is paired with an earlier Increment
//   - The signal never emits the same state twice in a row
type Counter struct {
	mu          sync.Mutex
	count       int
	stopTimeout time.Duration
	timer       *time.Timer
	generation  uint64 // bumped to invalidate a pending grace timer
	closed      bool

	signal *flow.Cell[Subscription]
}

// NewCounter creates a counter whose Unsubscribed transition is delayed by
// stopTimeout. A zero or negative timeout makes the transition immediate.
func NewCounter(stopTimeout time.Duration) *Counter {
	return &Counter{
		stopTimeout: stopTimeout,
		signal: flow.NewCell(Unsubscribed, flow.WithEqual(func(a, b Subscription) bool {
			return a == b
		})),
	}
}

// Increment records a new consumer.
func (c *Counter) Increment() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.count++
	if c.count == 1 {
		c.cancelGraceLocked()
		c.signal.Set(Subscribed)
	}
}

// Decrement records a consumer leaving.
// Panics when called more times than Increment: that is an integration bug.
func (c *Counter) Decrement() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count == 0 {
		panic("refcount: Decrement without matching Increment")
	}

	c.count--
	if c.count > 0 || c.closed {
		return
	}

	if c.stopTimeout <= 0 {
		c.signal.Set(Unsubscribed)
		return
	}

	c.generation++
	gen := c.generation
	c.timer = time.AfterFunc(c.stopTimeout, func() {
		c.expire(gen)
	})
}

// expire fires when the grace period elapses.
func (c *Counter) expire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A consumer arrived (or the counter closed) after the timer was armed.
	if gen != c.generation || c.count > 0 || c.closed {
		return
	}
	c.timer = nil
	c.signal.Set(Unsubscribed)
}

func (c *Counter) cancelGraceLocked() {
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Count returns the number of active consumers.
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Current returns the latest derived state.
func (c *Counter) Current() Subscription {
	return c.signal.Value()
}

// Subscribed returns a stream of distinct subscription states, starting with
// the current one. The channel closes when ctx is done or the counter closes.
func (c *Counter) Subscribed(ctx context.Context) <-chan Subscription {
	return c.signal.Subscribe(ctx)
}

// Close cancels any pending grace timer and closes the signal.
func (c *Counter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.cancelGraceLocked()
	c.signal.Close()
}
