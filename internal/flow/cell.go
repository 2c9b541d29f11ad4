package flow

import (
	"context"
	"sync"
	"sync/atomic"
)

// Cell is a continuously updated broadcast value.
//
// Every subscriber first receives the value current at subscription time,
// then every later value in the order Set committed them. Each subscriber
// owns an unbounded queue, so Set never waits on a slow consumer.
//
// Thread-safety: all methods are safe for concurrent use.
type Cell[T any] struct {
	mu      sync.Mutex
	current atomic.Pointer[T]
	subs    map[*subscriber[T]]struct{}
	closed  bool

	equal         func(a, b T) bool
	onSubscribe   func()
	onUnsubscribe func()
}

type subscriber[T any] struct {
	queue   *Queue[T]
	out     chan T
	counted bool
}

// CellOption configures a Cell.
type CellOption[T any] func(*Cell[T])

// WithEqual suppresses Set calls whose value equals the current one.
// Subscribers then only observe distinct consecutive values.
func WithEqual[T any](equal func(a, b T) bool) CellOption[T] {
	return func(c *Cell[T]) {
		c.equal = equal
	}
}

// WithSubscriptionHooks registers callbacks run when a subscriber starts
// and when it stops. Each onSubscribe is matched by exactly one onUnsubscribe.
func WithSubscriptionHooks[T any](onSubscribe, onUnsubscribe func()) CellOption[T] {
	return func(c *Cell[T]) {
		c.onSubscribe = onSubscribe
		c.onUnsubscribe = onUnsubscribe
	}
}

// NewCell creates a cell holding initial.
func NewCell[T any](initial T, opts ...CellOption[T]) *Cell[T] {
	c := &Cell[T]{
		subs: make(map[*subscriber[T]]struct{}),
	}
	c.current.Store(&initial)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Value returns the latest value. Never blocks.
func (c *Cell[T]) Value() T {
	return *c.current.Load()
}

// Set replaces the value and fans it out to all subscribers.
// Returns false if the cell is closed or the value was suppressed as a duplicate.
func (c *Cell[T]) Set(v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(v)
}

// Update applies fn to the current value and publishes the result atomically
// with respect to other Set and Update calls.
func (c *Cell[T]) Update(fn func(T) T) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := fn(*c.current.Load())
	return next, c.setLocked(next)
}

func (c *Cell[T]) setLocked(v T) bool {
	if c.closed {
		return false
	}
	if c.equal != nil && c.equal(*c.current.Load(), v) {
		return false
	}

	c.current.Store(&v)
	for s := range c.subs {
		s.queue.Enqueue(v)
	}
	return true
}

// Subscribe returns a channel yielding the current value followed by every
// subsequent value. The channel is closed when ctx is done or the cell is
// closed (after remaining values are delivered).
//
// Subscribing to a closed cell yields the final value once.
func (c *Cell[T]) Subscribe(ctx context.Context) <-chan T {
	return c.subscribe(ctx, true)
}

// Watch is Subscribe without the subscription hooks: the watcher is not
// counted as a consumer.
func (c *Cell[T]) Watch(ctx context.Context) <-chan T {
	return c.subscribe(ctx, false)
}

func (c *Cell[T]) subscribe(ctx context.Context, counted bool) <-chan T {
	c.mu.Lock()
	if c.closed {
		v := *c.current.Load()
		c.mu.Unlock()
		out := make(chan T, 1)
		out <- v
		close(out)
		return out
	}

	s := &subscriber[T]{
		queue:   NewQueue[T](),
		out:     make(chan T),
		counted: counted,
	}
	s.queue.Enqueue(*c.current.Load())
	c.subs[s] = struct{}{}
	c.mu.Unlock()

	if counted && c.onSubscribe != nil {
		c.onSubscribe()
	}

	go c.pump(ctx, s)

	return s.out
}

// pump moves values from a subscriber's queue to its output channel.
func (c *Cell[T]) pump(ctx context.Context, s *subscriber[T]) {
	defer func() {
		c.mu.Lock()
		delete(c.subs, s)
		c.mu.Unlock()
		s.queue.Close()

		if s.counted && c.onUnsubscribe != nil {
			c.onUnsubscribe()
		}
		close(s.out)
	}()

	for {
		if v, ok := s.queue.TryDequeue(); ok {
			select {
			case s.out <- v:
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-s.queue.Wait():
			if s.queue.Closed() && s.queue.Len() == 0 {
				return
			}
		}
	}
}

// Subscribers returns the number of active subscribers.
func (c *Cell[T]) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Close stops accepting values. Subscribers receive what is already queued,
// then their channels close.
func (c *Cell[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for s := range c.subs {
		s.queue.Close()
	}
}
