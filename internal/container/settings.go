package container

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/orbit/internal/idling"
)

// DefaultSideEffectBufferCapacity is the default side-effect channel capacity.
const DefaultSideEffectBufferCapacity = 64

// DefaultSubscribedStopTimeout is the default grace period before the
// subscription signal reports Unsubscribed.
const DefaultSubscribedStopTimeout = 100 * time.Millisecond

// OverflowPolicy decides what PostSideEffect does when the buffer is full.
type OverflowPolicy int

const (
	// Suspend blocks the posting operation until space frees up.
	Suspend OverflowPolicy = iota
	// DropOldest discards the oldest buffered effect to make room.
	DropOldest
	// DropNewest discards the effect being posted.
	DropNewest
)

// String implements fmt.Stringer. The names match settings files.
func (p OverflowPolicy) String() string {
	switch p {
	case Suspend:
		return "suspend"
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(p))
	}
}

// ParseOverflowPolicy converts a settings-file name to an OverflowPolicy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "suspend":
		return Suspend, nil
	case "drop_oldest":
		return DropOldest, nil
	case "drop_newest":
		return DropNewest, nil
	default:
		return Suspend, fmt.Errorf("invalid overflow policy %q: must be suspend, drop_oldest, or drop_newest", s)
	}
}

// ErrorPolicy decides what a failed operation does to its siblings.
type ErrorPolicy int

const (
	// FailFast cancels the container on the first operation error.
	FailFast ErrorPolicy = iota
	// Isolate reports the error to the ErrorHandler and keeps running.
	Isolate
)

// String implements fmt.Stringer.
func (p ErrorPolicy) String() string {
	switch p {
	case FailFast:
		return "fail_fast"
	case Isolate:
		return "isolate"
	default:
		return fmt.Sprintf("ErrorPolicy(%d)", int(p))
	}
}

// ParseErrorPolicy converts a settings-file name to an ErrorPolicy.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch s {
	case "", "fail_fast":
		return FailFast, nil
	case "isolate":
		return Isolate, nil
	default:
		return FailFast, fmt.Errorf("invalid error policy %q: must be fail_fast or isolate", s)
	}
}

// Settings is the immutable container configuration.
type Settings struct {
	// SideEffectBufferCapacity bounds the side-effect channel.
	SideEffectBufferCapacity int

	// OverflowPolicy applies when the side-effect buffer is full.
	OverflowPolicy OverflowPolicy

	// IdlingResource tracks in-flight operations. Released on teardown.
	IdlingResource idling.Resource

	// Background runs work delegated with Syntax.Background.
	Background Executor

	// IsolateFirstOperation runs only the first submitted operation and
	// drops the rest. Testing only.
	IsolateFirstOperation bool

	// SubscribedStopTimeout delays the Unsubscribed transition.
	SubscribedStopTimeout time.Duration

	// ErrorPolicy decides how operation errors propagate.
	ErrorPolicy ErrorPolicy

	// ErrorHandler receives operation errors under Isolate.
	ErrorHandler func(error)

	// MaxPendingOperations caps operations queued or running. Zero means unbounded.
	MaxPendingOperations int

	Logger      *slog.Logger
	Metrics     Metrics
	IDGenerator IDGenerator
}

// DefaultSettings returns production defaults.
func DefaultSettings() Settings {
	return Settings{
		SideEffectBufferCapacity: DefaultSideEffectBufferCapacity,
		OverflowPolicy:           Suspend,
		IdlingResource:           idling.Noop{},
		Background:               GoExecutor{},
		SubscribedStopTimeout:    DefaultSubscribedStopTimeout,
		ErrorPolicy:              FailFast,
		Logger:                   slog.Default(),
		Metrics:                  NopMetrics{},
		IDGenerator:              UUIDv7Generator{},
	}
}

// normalize fills unset collaborators and resolves conflicting knobs.
func (s Settings) normalize() Settings {
	if s.SideEffectBufferCapacity < 0 {
		s.SideEffectBufferCapacity = 0
	}
	// A rendezvous channel has nothing to drop; conflate to one slot instead.
	if s.SideEffectBufferCapacity == 0 && s.OverflowPolicy != Suspend {
		s.SideEffectBufferCapacity = 1
	}
	if s.IdlingResource == nil {
		s.IdlingResource = idling.Noop{}
	}
	if s.Background == nil {
		s.Background = GoExecutor{}
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Metrics == nil {
		s.Metrics = NopMetrics{}
	}
	if s.IDGenerator == nil {
		s.IDGenerator = UUIDv7Generator{}
	}
	if s.MaxPendingOperations < 0 {
		s.MaxPendingOperations = 0
	}
	return s
}

// Option configures container Settings.
type Option func(*Settings)

// WithSettings replaces all settings. Later options still apply on top.
func WithSettings(s Settings) Option {
	return func(dst *Settings) {
		*dst = s
	}
}

// WithSideEffectBuffer sets the side-effect buffer capacity and overflow policy.
//
// Default: 64, Suspend.
func WithSideEffectBuffer(capacity int, policy OverflowPolicy) Option {
	return func(s *Settings) {
		s.SideEffectBufferCapacity = capacity
		s.OverflowPolicy = policy
	}
}

// WithIdlingResource sets the idling resource incremented per operation.
func WithIdlingResource(r idling.Resource) Option {
	return func(s *Settings) {
		s.IdlingResource = r
	}
}

// WithBackgroundExecutor sets where Syntax.Background runs work.
func WithBackgroundExecutor(e Executor) Option {
	return func(s *Settings) {
		s.Background = e
	}
}

// WithIsolateFirstOperation makes the container run only the first submitted
// operation. Used by tests that exercise one intent in isolation.
func WithIsolateFirstOperation() Option {
	return func(s *Settings) {
		s.IsolateFirstOperation = true
	}
}

// WithSubscribedStopTimeout sets the Unsubscribed grace period.
//
// Default: 100ms.
func WithSubscribedStopTimeout(d time.Duration) Option {
	return func(s *Settings) {
		s.SubscribedStopTimeout = d
	}
}

// WithErrorPolicy sets how operation errors propagate.
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(s *Settings) {
		s.ErrorPolicy = p
	}
}

// WithErrorHandler sets the handler called for operation errors under Isolate.
func WithErrorHandler(h func(error)) Option {
	return func(s *Settings) {
		s.ErrorHandler = h
	}
}

// WithMaxPendingOperations caps queued plus running operations; Submit fails with
// QUEUE_FULL beyond it instead of blocking.
func WithMaxPendingOperations(n int) Option {
	return func(s *Settings) {
		s.MaxPendingOperations = n
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Settings) {
		s.Logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Settings) {
		s.Metrics = m
	}
}

// WithIDGenerator sets the container id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Settings) {
		s.IDGenerator = g
	}
}
