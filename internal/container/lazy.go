package container

import (
	"context"
	"sync/atomic"
)

// LazyContainer runs an onCreate operation exactly once, the first time the
// container is observed or used.
//
// onCreate is submitted before whatever triggered it, so admission order
// guarantees it starts ahead of every other operation.
type LazyContainer[S, E any] struct {
	Container[S, E]

	onCreate Operation[S, E]
	created  atomic.Bool
}

// Lazy wraps c so that onCreate runs on first StateFlow, SideEffectFlow or
// Submit. A nil onCreate makes the wrapper a pass-through.
func Lazy[S, E any](c Container[S, E], onCreate Operation[S, E]) *LazyContainer[S, E] {
	return &LazyContainer[S, E]{
		Container: c,
		onCreate:  onCreate,
	}
}

// Created reports whether onCreate has been submitted.
// A rejected submission does not count; the next trigger retries it.
func (l *LazyContainer[S, E]) Created() bool {
	return l.created.Load()
}

func (l *LazyContainer[S, E]) runOnCreate() error {
	if l.onCreate == nil || !l.created.CompareAndSwap(false, true) {
		return nil
	}
	if err := l.Container.Submit(l.onCreate); err != nil {
		l.created.Store(false)
		return err
	}
	return nil
}

// triggerOnCreate runs onCreate for the subscription paths, which have no
// error return.
func (l *LazyContainer[S, E]) triggerOnCreate() {
	if err := l.runOnCreate(); err != nil {
		l.Settings().Logger.Debug("onCreate not submitted",
			"container_id", l.ID(),
			"error", err,
		)
	}
}

// StateFlow subscribes, then triggers onCreate so the subscriber observes
// the initial state before anything onCreate reduces.
func (l *LazyContainer[S, E]) StateFlow(ctx context.Context) <-chan S {
	ch := l.Container.StateFlow(ctx)
	l.triggerOnCreate()
	return ch
}

// SideEffectFlow subscribes, then triggers onCreate.
func (l *LazyContainer[S, E]) SideEffectFlow(ctx context.Context) <-chan E {
	ch := l.Container.SideEffectFlow(ctx)
	l.triggerOnCreate()
	return ch
}

// Submit triggers onCreate, then submits op.
func (l *LazyContainer[S, E]) Submit(op Operation[S, E]) error {
	if err := l.runOnCreate(); err != nil {
		return err
	}
	return l.Container.Submit(op)
}
