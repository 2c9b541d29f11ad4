package harness

import (
	"context"
	"sync"

	"github.com/roach88/orbit/internal/container"
)

// Recorder collects every state and side effect a container emits, until
// the container tears down.
//
// A Recorder is a state subscriber and the side-effect consumer, so it must
// be the only one when effects are asserted.
type Recorder[S, E any] struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	states  []S
	effects []E
}

// Record starts recording c. The first recorded state is c's state at
// call time.
func Record[S, E any](ctx context.Context, c container.Container[S, E]) *Recorder[S, E] {
	r := &Recorder[S, E]{}

	states := c.StateFlow(ctx)
	effects := c.SideEffectFlow(ctx)

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		for s := range states {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		}
	}()
	go func() {
		defer r.wg.Done()
		for e := range effects {
			r.mu.Lock()
			r.effects = append(r.effects, e)
			r.mu.Unlock()
		}
	}()
	return r
}

// Wait blocks until both streams have closed.
func (r *Recorder[S, E]) Wait() {
	r.wg.Wait()
}

// States returns a copy of the states recorded so far.
func (r *Recorder[S, E]) States() []S {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]S{}, r.states...)
}

// Effects returns a copy of the side effects recorded so far.
func (r *Recorder[S, E]) Effects() []E {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]E{}, r.effects...)
}
