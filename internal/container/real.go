package container

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/roach88/orbit/internal/flow"
	"github.com/roach88/orbit/internal/idling"
	"github.com/roach88/orbit/internal/refcount"
)

// pending is an admitted operation waiting for the admission loop.
type pending[S, E any] struct {
	id int64
	op Operation[S, E]
}

// RealContainer is the container core.
//
// Thread-safety model:
//   - Submit, State, StateFlow, SideEffectFlow: safe from any goroutine
//   - the admission loop runs in exactly one goroutine
//   - reductions are serialized by reduceMu
//
// INVARIANTS:
//   - At most one reducer executes at any instant
//   - Operations are launched in submission order
//   - The side-effect channel is closed only after every operation returned
type RealContainer[S, E any] struct {
	id       string
	settings Settings

	ctx    context.Context
	cancel context.CancelCauseFunc

	queue    *flow.Queue[pending[S, E]]
	clock    *Clock
	inflight atomic.Int64 // submitted but not yet finished
	started  atomic.Bool  // IsolateFirstOperation bookkeeping

	reduceMu sync.Mutex
	state    *flow.Cell[S]

	effectsMu     sync.RWMutex
	effects       chan E
	effectsClosed bool

	subscribers *refcount.Counter

	ops      sync.WaitGroup
	loopDone chan struct{}
	done     chan struct{}

	errMu sync.Mutex
	err   error
}

// New creates a container holding initial and starts its admission loop.
//
// The container lives until ctx is cancelled or Close is called.
func New[S, E any](ctx context.Context, initial S, opts ...Option) *RealContainer[S, E] {
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	settings = settings.normalize()

	c := &RealContainer[S, E]{
		id:          settings.IDGenerator.Generate(),
		settings:    settings,
		queue:       flow.NewQueue[pending[S, E]](),
		clock:       NewClock(0),
		effects:     make(chan E, settings.SideEffectBufferCapacity),
		subscribers: refcount.NewCounter(settings.SubscribedStopTimeout),
		loopDone:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancelCause(ctx)

	c.state = flow.NewCell(initial, flow.WithSubscriptionHooks[S](
		func() {
			c.subscribers.Increment()
			c.settings.Metrics.SubscribersChanged(1)
		},
		func() {
			c.subscribers.Decrement()
			c.settings.Metrics.SubscribersChanged(-1)
		},
	))

	c.settings.Logger.Debug("container starting",
		"container_id", c.id,
		"side_effect_capacity", settings.SideEffectBufferCapacity,
		"overflow_policy", settings.OverflowPolicy.String(),
		"error_policy", settings.ErrorPolicy.String(),
	)

	go c.run()
	go func() {
		<-c.ctx.Done()
		c.teardown()
	}()

	return c
}

// ID implements Container.
func (c *RealContainer[S, E]) ID() string {
	return c.id
}

// Settings implements Container.
func (c *RealContainer[S, E]) Settings() Settings {
	return c.settings
}

// State implements Container.
func (c *RealContainer[S, E]) State() S {
	return c.state.Value()
}

// StateFlow implements Container.
func (c *RealContainer[S, E]) StateFlow(ctx context.Context) <-chan S {
	return c.state.Subscribe(ctx)
}

// WatchState implements Container.
func (c *RealContainer[S, E]) WatchState(ctx context.Context) <-chan S {
	return c.state.Watch(ctx)
}

// SideEffectFlow implements Container.
func (c *RealContainer[S, E]) SideEffectFlow(ctx context.Context) <-chan E {
	select {
	case <-c.done:
		return c.effects
	default:
	}

	c.subscribers.Increment()
	go func() {
		select {
		case <-ctx.Done():
		case <-c.ctx.Done():
		}
		c.subscribers.Decrement()
	}()
	return c.effects
}

// Subscribed implements Container.
func (c *RealContainer[S, E]) Subscribed(ctx context.Context) <-chan refcount.Subscription {
	return c.subscribers.Subscribed(ctx)
}

// Submit implements Container.
//
// Submit never blocks. It fails with CLOSED after teardown has begun, and
// with QUEUE_FULL when MaxPendingOperations is set and that many operations
// are queued or running.
func (c *RealContainer[S, E]) Submit(op Operation[S, E]) error {
	if c.ctx.Err() != nil {
		return NewClosedError(c.id)
	}

	limit := int64(c.settings.MaxPendingOperations)
	if n := c.inflight.Add(1); limit > 0 && n > limit {
		c.inflight.Add(-1)
		return NewQueueFullError(c.id, int(limit))
	}

	if !c.queue.Enqueue(pending[S, E]{id: c.clock.Next(), op: op}) {
		c.inflight.Add(-1)
		return NewClosedError(c.id)
	}

	c.settings.Metrics.OperationSubmitted()
	c.settings.Metrics.PendingOperations(c.queue.Len())
	return nil
}

// PendingOperations returns the number of operations not yet launched.
func (c *RealContainer[S, E]) PendingOperations() int {
	return c.queue.Len()
}

// InFlightOperations returns the number of operations submitted but not
// yet finished.
func (c *RealContainer[S, E]) InFlightOperations() int {
	return int(c.inflight.Load())
}

// Close implements Container.
func (c *RealContainer[S, E]) Close() error {
	c.cancel(nil)
	<-c.done
	return c.Err()
}

// Done implements Container.
func (c *RealContainer[S, E]) Done() <-chan struct{} {
	return c.done
}

// Err implements Container.
func (c *RealContainer[S, E]) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// run is the admission loop. It launches operations in FIFO order.
func (c *RealContainer[S, E]) run() {
	defer close(c.loopDone)

	for {
		// Once cancelled, leave the rest queued for teardown to drop.
		if c.ctx.Err() != nil {
			return
		}

		p, ok := c.queue.TryDequeue()
		if ok {
			c.settings.Metrics.PendingOperations(c.queue.Len())
			c.launch(p)
			continue
		}

		select {
		case <-c.ctx.Done():
			return
		case <-c.queue.Wait():
			if c.queue.Closed() && c.queue.Len() == 0 {
				return
			}
		}
	}
}

// launch starts one operation in its own goroutine.
// Called only from the admission loop, so ops.Add never races teardown's Wait.
func (c *RealContainer[S, E]) launch(p pending[S, E]) {
	if c.ctx.Err() != nil {
		c.settings.Metrics.OperationDropped()
		c.inflight.Add(-1)
		return
	}

	if c.settings.IsolateFirstOperation && !c.started.CompareAndSwap(false, true) {
		c.settings.Logger.Debug("operation dropped: isolating first operation",
			"container_id", c.id,
			"operation_id", p.id,
		)
		c.settings.Metrics.OperationDropped()
		c.inflight.Add(-1)
		return
	}

	c.ops.Add(1)
	go func() {
		defer c.ops.Done()

		s := &Syntax[S, E]{c: c, operationID: p.id}
		err := idling.Track(c.settings.IdlingResource, func() error {
			return p.op(c.ctx, s)
		})
		s.finished.Store(true)
		c.finish(p.id, err)
		c.inflight.Add(-1)
	}()
}

// finish applies the error policy to an operation's result.
func (c *RealContainer[S, E]) finish(id int64, err error) {
	if err == nil {
		c.settings.Metrics.OperationCompleted()
		return
	}

	// Cancellation caused by teardown is not a failure.
	if c.ctx.Err() != nil && (errors.Is(err, context.Canceled) || IsClosed(err)) {
		return
	}

	c.settings.Metrics.OperationFailed()
	opErr := NewOperationError(c.id, id, err)

	if c.settings.ErrorPolicy == Isolate {
		if c.settings.ErrorHandler != nil {
			c.settings.ErrorHandler(opErr)
		}
		return
	}

	c.errMu.Lock()
	if c.err == nil {
		c.err = opErr
	}
	c.errMu.Unlock()
	c.cancel(opErr)
}

// teardown runs once, after the container context is done.
func (c *RealContainer[S, E]) teardown() {
	c.queue.Close()
	<-c.loopDone
	c.ops.Wait()

	c.effectsMu.Lock()
	c.effectsClosed = true
	close(c.effects)
	c.effectsMu.Unlock()

	c.state.Close()
	c.subscribers.Close()
	c.settings.IdlingResource.Close()

	dropped := c.queue.Len()
	for i := 0; i < dropped; i++ {
		c.settings.Metrics.OperationDropped()
	}
	c.inflight.Add(-int64(dropped))

	c.settings.Logger.Debug("container stopped",
		"container_id", c.id,
		"dropped_operations", dropped,
		"cause", context.Cause(c.ctx),
	)
	close(c.done)
}

var _ Container[struct{}, struct{}] = (*RealContainer[struct{}, struct{}])(nil)
