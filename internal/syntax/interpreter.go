package syntax

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/orbit/internal/container"
)

// ErrUnknownIntent is returned when a dispatch names an intent missing from
// the catalog.
var ErrUnknownIntent = errors.New("unknown intent")

// StageFunc executes one stage against the running operation and returns
// the value handed to the next stage.
type StageFunc[S, E any] func(ctx context.Context, s *container.Syntax[S, E], st Stage[S, E], in any) (any, error)

// Interpreter compiles pipelines into container operations.
type Interpreter[S, E any] struct {
	catalog *Catalog[S, E]
	table   [kindCount]StageFunc[S, E]
}

// InterpreterOption configures an Interpreter.
type InterpreterOption[S, E any] func(*Interpreter[S, E])

// WithStage replaces the executor for one stage kind, for example to trace
// or stub transforms in tests.
func WithStage[S, E any](kind Kind, fn StageFunc[S, E]) InterpreterOption[S, E] {
	return func(in *Interpreter[S, E]) {
		if kind >= 0 && kind < kindCount {
			in.table[kind] = fn
		}
	}
}

// NewInterpreter creates an interpreter resolving LoopBack dispatches
// against catalog.
func NewInterpreter[S, E any](catalog *Catalog[S, E], opts ...InterpreterOption[S, E]) *Interpreter[S, E] {
	in := &Interpreter[S, E]{catalog: catalog}
	in.table = [kindCount]StageFunc[S, E]{
		KindTransform:      runTransform[S, E],
		KindReduce:         runReduce[S, E],
		KindPostSideEffect: runPostSideEffect[S, E],
		KindLoopBack:       in.runLoopBack,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Catalog returns the interpreter's catalog.
func (in *Interpreter[S, E]) Catalog() *Catalog[S, E] {
	return in.catalog
}

// Compile turns p applied to input into an operation.
func (in *Interpreter[S, E]) Compile(p *Pipeline[S, E], input any) container.Operation[S, E] {
	return func(ctx context.Context, s *container.Syntax[S, E]) error {
		v := input
		for i, st := range p.Stages {
			if st.Kind < 0 || st.Kind >= kindCount || in.table[st.Kind] == nil {
				return fmt.Errorf("intent %q stage %d: unsupported kind %s", p.Name, i, st.Kind)
			}

			out, err := in.table[st.Kind](ctx, s, st, v)
			if err != nil {
				return fmt.Errorf("intent %q stage %d (%s): %w", p.Name, i, st.Kind, err)
			}
			v = out
		}
		return nil
	}
}

// Operation looks up intent in the catalog and compiles it.
func (in *Interpreter[S, E]) Operation(intent string, input any) (container.Operation[S, E], error) {
	p, ok := in.catalog.Lookup(intent)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, intent)
	}
	return in.Compile(p, input), nil
}

// Dispatch compiles intent and submits it to c.
func (in *Interpreter[S, E]) Dispatch(c container.Container[S, E], intent string, input any) error {
	op, err := in.Operation(intent, input)
	if err != nil {
		return err
	}
	return c.Submit(op)
}

func runTransform[S, E any](ctx context.Context, s *container.Syntax[S, E], st Stage[S, E], in any) (any, error) {
	return container.BackgroundValue(ctx, s, func(ctx context.Context) (any, error) {
		return st.transform(ctx, in)
	})
}

func runReduce[S, E any](ctx context.Context, s *container.Syntax[S, E], st Stage[S, E], in any) (any, error) {
	reducer, err := st.reduce(in)
	if err != nil {
		return nil, err
	}
	return in, s.Reduce(ctx, reducer)
}

func runPostSideEffect[S, E any](ctx context.Context, s *container.Syntax[S, E], st Stage[S, E], in any) (any, error) {
	effect, err := st.effect(s.State(), in)
	if err != nil {
		return nil, err
	}
	return in, s.PostSideEffect(ctx, effect)
}

func (in *Interpreter[S, E]) runLoopBack(ctx context.Context, s *container.Syntax[S, E], st Stage[S, E], v any) (any, error) {
	d, err := st.loopBack(v)
	if err != nil {
		return nil, err
	}
	op, err := in.Operation(d.Intent, d.Input)
	if err != nil {
		return nil, err
	}
	return v, s.Submit(op)
}
