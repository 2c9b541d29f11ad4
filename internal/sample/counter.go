// Package sample is a small counter model built with the pipeline DSL. The
// scenario harness and the CLI drive containers of this model.
package sample

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/orbit/internal/container"
	"github.com/roach88/orbit/internal/syntax"
)

// State is the counter state.
type State struct {
	Count int    `json:"count" yaml:"count"`
	Label string `json:"label" yaml:"label"`
}

// Effect is a one-shot event for the view.
type Effect struct {
	Kind  string `json:"kind" yaml:"kind"`
	Value int    `json:"value,omitempty" yaml:"value,omitempty"`
	Text  string `json:"text,omitempty" yaml:"text,omitempty"`
}

// Intent names.
const (
	IntentAdd     = "add"
	IntentReset   = "reset"
	IntentToast   = "toast"
	IntentSlowAdd = "slow_add"
	IntentRename  = "rename"
	IntentFail    = "fail"
)

// Effect kinds.
const (
	EffectReset = "reset"
	EffectToast = "toast"
	EffectAdded = "added"
)

// ErrFailed is returned by the fail intent.
var ErrFailed = errors.New("counter: requested failure")

// Model holds the counter catalog and its interpreter.
type Model struct {
	interpreter *syntax.Interpreter[State, Effect]
}

// Option configures a Model.
type Option func(*config)

type config struct {
	slowDelay time.Duration
}

// WithSlowDelay sets how long slow_add spends in the background.
//
// Default: 10ms.
func WithSlowDelay(d time.Duration) Option {
	return func(c *config) {
		c.slowDelay = d
	}
}

// New builds the counter model.
func New(opts ...Option) *Model {
	cfg := config{slowDelay: 10 * time.Millisecond}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Model{interpreter: syntax.NewInterpreter(Catalog(cfg.slowDelay))}
}

// Catalog returns the counter intents.
func Catalog(slowDelay time.Duration) *syntax.Catalog[State, Effect] {
	add := syntax.Intent[State, Effect](IntentAdd).Then(
		syntax.Reduce[State, Effect](addCount),
	)

	reset := syntax.Intent[State, Effect](IntentReset).Then(
		syntax.Reduce[State, Effect](func(s State, _ struct{}) State {
			return State{Label: s.Label}
		}),
		syntax.PostSideEffect[State, Effect](func(State, struct{}) Effect {
			return Effect{Kind: EffectReset}
		}),
	)

	toast := syntax.Intent[State, Effect](IntentToast).Then(
		syntax.PostSideEffect[State, Effect](func(_ State, text string) Effect {
			return Effect{Kind: EffectToast, Text: text}
		}),
	)

	slowAdd := syntax.Intent[State, Effect](IntentSlowAdd).Then(
		syntax.Transform[State, Effect](func(ctx context.Context, n int) (int, error) {
			t := time.NewTimer(slowDelay)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-t.C:
				return n, nil
			}
		}),
		syntax.Reduce[State, Effect](addCount),
		syntax.PostSideEffect[State, Effect](func(s State, _ int) Effect {
			return Effect{Kind: EffectAdded, Value: s.Count}
		}),
	)

	rename := syntax.Intent[State, Effect](IntentRename).Then(
		syntax.Reduce[State, Effect](func(s State, label string) State {
			s.Label = label
			return s
		}),
		syntax.LoopBack[State, Effect](func(label string) syntax.Dispatch {
			return syntax.Dispatch{Intent: IntentToast, Input: "renamed to " + label}
		}),
	)

	fail := syntax.Intent[State, Effect](IntentFail).Then(
		syntax.Transform[State, Effect](func(context.Context, struct{}) (struct{}, error) {
			return struct{}{}, ErrFailed
		}),
	)

	return syntax.NewCatalog(add, reset, toast, slowAdd, rename, fail)
}

func addCount(s State, n int) State {
	s.Count += n
	return s
}

// Intents lists the intent names in sorted order.
func (m *Model) Intents() []string {
	return m.interpreter.Catalog().Names()
}

// Dispatch submits intent with input to c.
func (m *Model) Dispatch(c container.Container[State, Effect], intent string, input any) error {
	return m.interpreter.Dispatch(c, intent, input)
}

// Operation compiles intent into a container operation.
func (m *Model) Operation(intent string, input any) (container.Operation[State, Effect], error) {
	return m.interpreter.Operation(intent, input)
}
