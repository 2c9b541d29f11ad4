package container

import "context"

// Executor runs background work delegated by operations.
//
// Execute must not block past scheduling: it either starts fn (now or once
// capacity frees) or returns an error if ctx ends first.
type Executor interface {
	Execute(ctx context.Context, fn func(ctx context.Context)) error
}

// GoExecutor starts one goroutine per call.
type GoExecutor struct{}

// Execute implements Executor.
func (GoExecutor) Execute(ctx context.Context, fn func(ctx context.Context)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	go fn(ctx)
	return nil
}

// BoundedExecutor runs at most n functions at once. Callers beyond the limit
// wait for a slot, respecting cancellation while waiting.
type BoundedExecutor struct {
	slots chan struct{}
}

// NewBoundedExecutor creates an executor with n slots (minimum 1).
func NewBoundedExecutor(n int) *BoundedExecutor {
	if n < 1 {
		n = 1
	}
	return &BoundedExecutor{slots: make(chan struct{}, n)}
}

// Execute implements Executor.
func (b *BoundedExecutor) Execute(ctx context.Context, fn func(ctx context.Context)) error {
	select {
	case b.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	go func() {
		defer func() { <-b.slots }()
		fn(ctx)
	}()
	return nil
}

// Limit returns the number of slots.
func (b *BoundedExecutor) Limit() int {
	return cap(b.slots)
}
