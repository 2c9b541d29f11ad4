package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/orbit/internal/container"
	"github.com/roach88/orbit/internal/idling"
	"github.com/roach88/orbit/internal/sample"
	"github.com/roach88/orbit/internal/savedstate"
	"github.com/roach88/orbit/internal/syntax"
	"github.com/roach88/orbit/internal/testutil"
)

// ErrCodeUnknownIntent is the dispatch error code for intents missing from
// the model.
const ErrCodeUnknownIntent = "UNKNOWN_INTENT"

// DefaultSettleTimeout bounds the wait after each step.
const DefaultSettleTimeout = 5 * time.Second

// Option configures a scenario run.
type Option func(*runConfig)

type runConfig struct {
	store         savedstate.Store
	key           string
	logger        *slog.Logger
	metrics       container.Metrics
	model         *sample.Model
	settleTimeout time.Duration
}

// WithStore restores the initial state from store and persists every
// committed state under key.
func WithStore(store savedstate.Store, key string) Option {
	return func(c *runConfig) {
		c.store = store
		c.key = key
	}
}

// WithLogger sets the container logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// WithMetrics sets the container metrics sink.
func WithMetrics(m container.Metrics) Option {
	return func(c *runConfig) {
		c.metrics = m
	}
}

// WithModel replaces the default counter model.
func WithModel(m *sample.Model) Option {
	return func(c *runConfig) {
		c.model = m
	}
}

// WithSettleTimeout bounds the wait after each step.
func WithSettleTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.settleTimeout = d
	}
}

// Run executes a scenario in a fresh container and evaluates its
// assertions.
//
// Step and assertion mismatches are reported in the Result. The returned
// error is for runs that could not be carried out at all.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:       container.NopMetrics{},
		settleTimeout: DefaultSettleTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.model == nil {
		cfg.model = sample.New()
	}

	file, err := scenario.SettingsFile()
	if err != nil {
		return nil, err
	}
	containerOpts, err := file.Options()
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}

	idle := idling.NewCounter()
	containerOpts = append(containerOpts,
		container.WithIDGenerator(testutil.NewFixedIDGenerator(scenario.ContainerID)),
		container.WithIdlingResource(idle),
		container.WithLogger(cfg.logger),
		container.WithMetrics(cfg.metrics),
	)

	result := NewResult()

	initial := scenario.Initial
	var seq int64
	codec := savedstate.JSONCodec[sample.State]{}
	if cfg.store != nil {
		restored, restoredSeq, found, err := savedstate.Restore(ctx, cfg.store, cfg.key, codec)
		if err != nil {
			return nil, err
		}
		if found {
			initial, seq = restored, restoredSeq
			result.Restored = true
		}
	}

	core := container.New[sample.State, sample.Effect](ctx, initial, containerOpts...)
	result.ContainerID = core.ID()

	var c container.Container[sample.State, sample.Effect] = core
	var saved *savedstate.SavedContainer[sample.State, sample.Effect]
	if cfg.store != nil {
		saved = savedstate.Saved[sample.State, sample.Effect](core, cfg.store, cfg.key, codec,
			savedstate.WithStartSeq(seq),
			savedstate.WithSaveLogger(cfg.logger),
		)
		c = saved
	}

	rec := Record(context.Background(), c)
	seqs := container.NewClock(0)

	for i, step := range scenario.Steps {
		event := DispatchEvent{
			Seq:    seqs.Next(),
			Intent: step.Dispatch,
			Input:  step.Input,
		}
		if err := cfg.model.Dispatch(c, step.Dispatch, step.Input); err != nil {
			event.Error = errorCode(err)
		}
		result.Dispatches = append(result.Dispatches, event)

		if event.Error != step.Error {
			result.AddError(fmt.Sprintf("steps[%d] %s: dispatch error %q, want %q",
				i, step.Dispatch, event.Error, step.Error))
		}

		if step.Async {
			continue
		}
		if err := settle(ctx, core, idle, cfg.settleTimeout); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Dispatch, err)
		}
	}

	if err := settle(ctx, core, idle, cfg.settleTimeout); err != nil {
		_ = c.Close()
		return nil, err
	}

	closeErr := c.Close()
	rec.Wait()

	if !idle.Closed() {
		result.AddError("idling resource was not released on teardown")
	}

	if saved != nil {
		if err := saved.SaveErr(); err != nil {
			return nil, fmt.Errorf("save state: %w", err)
		}
	}
	if err := core.Err(); err != nil {
		result.ContainerError = errorCode(err)
	} else if closeErr != nil {
		return nil, closeErr
	}

	result.States = rec.States()
	result.Effects = rec.Effects()
	result.FinalState = core.State()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	cfg.logger.Debug("scenario finished",
		"scenario", scenario.Name,
		"container_id", result.ContainerID,
		"pass", result.Pass,
		"states", len(result.States),
		"effects", len(result.Effects),
	)
	return result, nil
}

// settle waits until no operation is in flight and the idling counter is
// idle, or the container has torn down.
func settle(ctx context.Context, c *container.RealContainer[sample.State, sample.Effect], idle *idling.Counter, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for c.InFlightOperations() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("container did not settle: %w", ctx.Err())
		case <-c.Done():
			return nil
		case <-ticker.C:
		}
	}

	if err := idle.WaitIdle(ctx); err != nil {
		return fmt.Errorf("container did not settle: %w", err)
	}
	return nil
}

// errorCode maps a dispatch or container error to its code.
func errorCode(err error) string {
	var ce *container.Error
	switch {
	case errors.As(err, &ce):
		return string(ce.Code)
	case errors.Is(err, syntax.ErrUnknownIntent):
		return ErrCodeUnknownIntent
	default:
		return err.Error()
	}
}
