package syntax

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Kind is the closed set of stage operators.
type Kind int

const (
	KindTransform Kind = iota
	KindReduce
	KindPostSideEffect
	KindLoopBack

	kindCount
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindTransform:
		return "transform"
	case KindReduce:
		return "reduce"
	case KindPostSideEffect:
		return "post_side_effect"
	case KindLoopBack:
		return "loop_back"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Dispatch names an intent to run next, with its input.
type Dispatch struct {
	Intent string
	Input  any
}

// Stage is one step of a pipeline. Build stages with Transform, Reduce,
// PostSideEffect and LoopBack.
//
// Reduce, PostSideEffect and LoopBack pass their input through unchanged;
// Transform replaces it.
type Stage[S, E any] struct {
	Kind Kind

	transform func(ctx context.Context, in any) (any, error)
	reduce    func(in any) (func(S) S, error)
	effect    func(state S, in any) (E, error)
	loopBack  func(in any) (Dispatch, error)
}

// cast converts a stage input. A nil input is the zero value of T, so
// intents that take no input can be dispatched with nil.
func cast[T any](kind Kind, in any) (T, error) {
	var zero T
	if in == nil {
		return zero, nil
	}
	v, ok := in.(T)
	if !ok {
		return zero, fmt.Errorf("%s stage: input is %T, want %T", kind, in, zero)
	}
	return v, nil
}

// Transform maps the input with fn. fn runs on the container's background
// executor, so it may block.
func Transform[S, E, In, Out any](fn func(ctx context.Context, in In) (Out, error)) Stage[S, E] {
	return Stage[S, E]{
		Kind: KindTransform,
		transform: func(ctx context.Context, in any) (any, error) {
			v, err := cast[In](KindTransform, in)
			if err != nil {
				return nil, err
			}
			return fn(ctx, v)
		},
	}
}

// Reduce folds the input into the state with fn. fn must be pure.
func Reduce[S, E, In any](fn func(state S, in In) S) Stage[S, E] {
	return Stage[S, E]{
		Kind: KindReduce,
		reduce: func(in any) (func(S) S, error) {
			v, err := cast[In](KindReduce, in)
			if err != nil {
				return nil, err
			}
			return func(state S) S { return fn(state, v) }, nil
		},
	}
}

// PostSideEffect posts fn(state, input) as a side effect.
func PostSideEffect[S, E, In any](fn func(state S, in In) E) Stage[S, E] {
	return Stage[S, E]{
		Kind: KindPostSideEffect,
		effect: func(state S, in any) (E, error) {
			v, err := cast[In](KindPostSideEffect, in)
			if err != nil {
				var zero E
				return zero, err
			}
			return fn(state, v), nil
		},
	}
}

// LoopBack dispatches the intent returned by fn as a new operation.
func LoopBack[S, E, In any](fn func(in In) Dispatch) Stage[S, E] {
	return Stage[S, E]{
		Kind: KindLoopBack,
		loopBack: func(in any) (Dispatch, error) {
			v, err := cast[In](KindLoopBack, in)
			if err != nil {
				return Dispatch{}, err
			}
			return fn(v), nil
		},
	}
}

// Pipeline is a named intent.
type Pipeline[S, E any] struct {
	Name   string
	Stages []Stage[S, E]
}

// Intent starts a pipeline called name.
func Intent[S, E any](name string) *Pipeline[S, E] {
	return &Pipeline[S, E]{Name: name}
}

// Then appends stages and returns the pipeline for chaining.
func (p *Pipeline[S, E]) Then(stages ...Stage[S, E]) *Pipeline[S, E] {
	p.Stages = append(p.Stages, stages...)
	return p
}

// Kinds lists the stage kinds in order.
func (p *Pipeline[S, E]) Kinds() []Kind {
	kinds := make([]Kind, len(p.Stages))
	for i, st := range p.Stages {
		kinds[i] = st.Kind
	}
	return kinds
}

// Catalog maps intent names to pipelines.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Catalog[S, E any] struct {
	mu        sync.RWMutex
	pipelines map[string]*Pipeline[S, E]
}

// NewCatalog creates a catalog holding pipelines.
// Panics on duplicate names.
func NewCatalog[S, E any](pipelines ...*Pipeline[S, E]) *Catalog[S, E] {
	c := &Catalog[S, E]{pipelines: make(map[string]*Pipeline[S, E])}
	for _, p := range pipelines {
		c.MustAdd(p)
	}
	return c
}

// Add registers p. Returns an error if the name is taken.
func (c *Catalog[S, E]) Add(p *Pipeline[S, E]) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.pipelines[p.Name]; dup {
		return fmt.Errorf("intent %q already defined", p.Name)
	}
	c.pipelines[p.Name] = p
	return nil
}

// MustAdd is Add that panics on error.
func (c *Catalog[S, E]) MustAdd(p *Pipeline[S, E]) {
	if err := c.Add(p); err != nil {
		panic(err)
	}
}

// Lookup returns the pipeline named name.
func (c *Catalog[S, E]) Lookup(name string) (*Pipeline[S, E], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.pipelines[name]
	return p, ok
}

// Names returns the intent names in sorted order.
func (c *Catalog[S, E]) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.pipelines))
	for name := range c.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
