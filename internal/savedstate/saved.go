package savedstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/orbit/internal/container"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*RedisStore)(nil)
)

// SavedContainer persists every state the wrapped container commits.
//
// Snapshots are written by one persister goroutine in commit order. When
// states arrive faster than the store accepts them, intermediate states are
// skipped and only the newest is written.
type SavedContainer[S, E any] struct {
	container.Container[S, E]

	store  Store
	key    string
	codec  Codec[S]
	clock  *container.Clock
	logger *slog.Logger

	done chan struct{}

	mu      sync.Mutex
	saveErr error
}

// SavedOption configures a SavedContainer.
type SavedOption func(*savedConfig)

type savedConfig struct {
	startSeq int64
	logger   *slog.Logger
}

// WithStartSeq resumes the snapshot clock after seq, the seq of the snapshot
// the container was restored from.
func WithStartSeq(seq int64) SavedOption {
	return func(c *savedConfig) {
		c.startSeq = seq
	}
}

// WithSaveLogger sets the logger used for persistence failures.
func WithSaveLogger(l *slog.Logger) SavedOption {
	return func(c *savedConfig) {
		c.logger = l
	}
}

// Saved wraps c and starts persisting its state under key.
//
// The state current at wrap time is not written; only later commits are.
func Saved[S, E any](c container.Container[S, E], store Store, key string, codec Codec[S], opts ...SavedOption) *SavedContainer[S, E] {
	cfg := savedConfig{logger: c.Settings().Logger}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	s := &SavedContainer[S, E]{
		Container: c,
		store:     store,
		key:       key,
		codec:     codec,
		clock:     container.NewClock(cfg.startSeq),
		logger:    cfg.logger,
		done:      make(chan struct{}),
	}

	// The watch ends when the container tears down, after the last state.
	updates := c.WatchState(context.Background())
	<-updates
	go s.persist(updates)

	return s
}

func (s *SavedContainer[S, E]) persist(updates <-chan S) {
	defer close(s.done)

	ctx := context.Background()
	for state := range updates {
		state = latest(state, updates)
		if err := s.save(ctx, state); err != nil {
			s.logger.Warn("failed to save state",
				"container_id", s.ID(),
				"key", s.key,
				"error", err,
			)
			s.mu.Lock()
			if s.saveErr == nil {
				s.saveErr = err
			}
			s.mu.Unlock()
		}
	}
}

// latest returns the newest value already waiting on updates, or v.
func latest[S any](v S, updates <-chan S) S {
	for {
		select {
		case next, ok := <-updates:
			if !ok {
				return v
			}
			v = next
		default:
			return v
		}
	}
}

func (s *SavedContainer[S, E]) save(ctx context.Context, state S) error {
	payload, err := s.codec.Encode(state)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.codec.Name(), err)
	}
	return s.store.Save(ctx, Snapshot{Key: s.key, Payload: payload, Seq: s.clock.Next()})
}

// Key returns the store key.
func (s *SavedContainer[S, E]) Key() string {
	return s.key
}

// Seq returns the seq of the last snapshot written or restored.
func (s *SavedContainer[S, E]) Seq() int64 {
	return s.clock.Last()
}

// SaveErr returns the first persistence failure, or nil.
func (s *SavedContainer[S, E]) SaveErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveErr
}

// Done is closed once the container has torn down and the final state has
// been written.
func (s *SavedContainer[S, E]) Done() <-chan struct{} {
	return s.done
}

// Close tears the container down and waits for the final write.
// Returns the container error, or the first persistence failure.
func (s *SavedContainer[S, E]) Close() error {
	err := s.Container.Close()
	<-s.done
	if err != nil {
		return err
	}
	return s.SaveErr()
}

// Restore loads and decodes the snapshot stored under key.
// found is false when nothing was stored; a snapshot that fails to decode is
// an error, never silently replaced.
func Restore[S any](ctx context.Context, store Store, key string, codec Codec[S]) (state S, seq int64, found bool, err error) {
	snap, err := store.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return state, 0, false, nil
	}
	if err != nil {
		return state, 0, false, fmt.Errorf("restore %q: %w", key, err)
	}

	state, err = codec.Decode(snap.Payload)
	if err != nil {
		return state, 0, false, fmt.Errorf("restore %q: %w", key, err)
	}
	return state, snap.Seq, true, nil
}

// NewContainer builds a persisted container.
//
// If a snapshot exists under key the container starts from it and onCreate
// never runs. Otherwise it starts from initial and onCreate runs lazily, on
// first use.
func NewContainer[S, E any](
	ctx context.Context,
	store Store,
	key string,
	codec Codec[S],
	initial S,
	onCreate container.Operation[S, E],
	opts ...container.Option,
) (*SavedContainer[S, E], error) {
	state, seq, found, err := Restore(ctx, store, key, codec)
	if err != nil {
		return nil, err
	}
	if !found {
		state = initial
	}

	core := container.New[S, E](ctx, state, opts...)
	core.Settings().Logger.Debug("saved state",
		"container_id", core.ID(),
		"key", key,
		"restored", found,
		"seq", seq,
	)

	var c container.Container[S, E] = core
	if !found && onCreate != nil {
		c = container.Lazy(c, onCreate)
	}
	return Saved(c, store, key, codec, WithStartSeq(seq)), nil
}
