package container

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/roach88/orbit/internal/idling"
	"github.com/roach88/orbit/internal/refcount"
)

// Syntax is the context handed to a running operation.
//
// A Syntax is valid only while its operation runs. Using it afterwards
// (for example from a goroutine the operation leaked) fails with
// OUTSIDE_OPERATION.
type Syntax[S, E any] struct {
	c           *RealContainer[S, E]
	operationID int64
	finished    atomic.Bool
}

// OperationID returns the admission sequence number of the operation.
func (s *Syntax[S, E]) OperationID() int64 {
	return s.operationID
}

// ContainerID returns the owning container's id.
func (s *Syntax[S, E]) ContainerID() string {
	return s.c.id
}

// State returns the current state. Never blocks.
func (s *Syntax[S, E]) State() S {
	return s.c.state.Value()
}

func (s *Syntax[S, E]) check(ctx context.Context) error {
	if s.finished.Load() {
		return newOutsideOperationError(s.c.id, s.operationID)
	}
	return ctx.Err()
}

// Reduce atomically replaces the state with reducer(current).
//
// Reductions are serialized container-wide. The reducer runs under the
// reduction lock and must not block or call back into the container. Once
// started, a reduction always completes; cancellation is only observed
// before the lock is taken.
func (s *Syntax[S, E]) Reduce(ctx context.Context, reducer func(state S) S) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	c := s.c
	c.reduceMu.Lock()
	defer c.reduceMu.Unlock()

	next := reducer(c.state.Value())
	c.state.Set(next)
	c.settings.Metrics.Reduced()
	return nil
}

// PostSideEffect delivers effect to the side-effect channel according to the
// container's overflow policy. Under Suspend it blocks until there is room or
// ctx (or the container) is done.
func (s *Syntax[S, E]) PostSideEffect(ctx context.Context, effect E) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	c := s.c
	c.effectsMu.RLock()
	defer c.effectsMu.RUnlock()

	if c.effectsClosed {
		return NewClosedError(c.id)
	}

	switch c.settings.OverflowPolicy {
	case DropNewest:
		select {
		case c.effects <- effect:
		default:
			c.settings.Metrics.SideEffectDropped()
			return nil
		}

	case DropOldest:
		for posted := false; !posted; {
			select {
			case c.effects <- effect:
				posted = true
			default:
				select {
				case <-c.effects:
					c.settings.Metrics.SideEffectDropped()
				default:
				}
			}
		}

	default:
		select {
		case c.effects <- effect:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return c.ctx.Err()
		}
	}

	c.settings.Metrics.SideEffectPosted()
	return nil
}

// Submit enqueues a follow-up operation on the same container. The new
// operation is admitted behind everything already submitted.
func (s *Syntax[S, E]) Submit(op Operation[S, E]) error {
	if s.finished.Load() {
		return newOutsideOperationError(s.c.id, s.operationID)
	}
	return s.c.Submit(op)
}

// Background runs fn on the container's background executor and waits for
// it. The work counts against the idling resource while it runs.
func (s *Syntax[S, E]) Background(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := BackgroundValue(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// backgroundResult carries the outcome of background work back to the
// waiting operation. The worker owns it until it is sent.
type backgroundResult[T any] struct {
	value T
	err   error
}

// BackgroundValue is Background for work that produces a value.
//
// If ctx is done first, BackgroundValue returns without waiting and the
// value fn eventually produces is discarded.
func BackgroundValue[S, E, T any](ctx context.Context, s *Syntax[S, E], fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := s.check(ctx); err != nil {
		return zero, err
	}

	c := s.c
	done := make(chan backgroundResult[T], 1)
	err := c.settings.Background.Execute(ctx, func(ctx context.Context) {
		var r backgroundResult[T]
		r.err = idling.Track(c.settings.IdlingResource, func() error {
			v, err := fn(ctx)
			r.value = v
			return err
		})
		done <- r
	})
	if err != nil {
		return zero, err
	}

	select {
	case r := <-done:
		if r.err != nil {
			return zero, r.err
		}
		return r.value, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// RepeatOnSubscription runs fn whenever the container has subscribers and
// cancels it when they leave (after the grace period). fn is started again on
// the next subscription. Returns when ctx is done or the container closes,
// or when fn fails with an error other than cancellation.
func (s *Syntax[S, E]) RepeatOnSubscription(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	signal := s.c.subscribers.Subscribed(ctx)

	var (
		cancelRun context.CancelFunc
		runDone   chan error
	)
	stop := func() error {
		if cancelRun == nil {
			return nil
		}
		cancelRun()
		err := <-runDone
		cancelRun, runDone = nil, nil
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	for {
		select {
		case state, ok := <-signal:
			if !ok {
				if err := stop(); err != nil {
					return err
				}
				return ctx.Err()
			}
			switch state {
			case refcount.Subscribed:
				if cancelRun == nil {
					var runCtx context.Context
					runCtx, cancelRun = context.WithCancel(ctx)
					runDone = make(chan error, 1)
					go func() { runDone <- fn(runCtx) }()
				}
			case refcount.Unsubscribed:
				if err := stop(); err != nil {
					return err
				}
			}

		case err := <-runDone:
			// fn finished by itself; wait for the next subscription.
			cancelRun()
			cancelRun, runDone = nil, nil
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

		case <-ctx.Done():
			if err := stop(); err != nil {
				return err
			}
			return ctx.Err()
		}
	}
}
