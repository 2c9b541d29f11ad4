package savedstate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orbit/internal/container"
	"github.com/roach88/orbit/internal/refcount"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func increment(ctx context.Context, s *container.Syntax[counterState, string]) error {
	return s.Reduce(ctx, func(st counterState) counterState {
		st.Count++
		return st
	})
}

func label(l string) container.Operation[counterState, string] {
	return func(ctx context.Context, s *container.Syntax[counterState, string]) error {
		return s.Reduce(ctx, func(st counterState) counterState {
			st.Label = l
			return st
		})
	}
}

func waitState(t *testing.T, c container.Container[counterState, string], want counterState) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, 2*time.Second, time.Millisecond)
}

func TestSaved_PersistsLatestState(t *testing.T) {
	store := NewMemoryStore()
	core := container.New[counterState, string](context.Background(), counterState{}, container.WithLogger(quietLogger))
	saved := Saved[counterState, string](core, store, "counter", JSONCodec[counterState]{})

	for i := 0; i < 5; i++ {
		require.NoError(t, saved.Submit(increment))
	}
	waitState(t, saved, counterState{Count: 5})
	require.NoError(t, saved.Close())

	snap, err := store.Load(context.Background(), "counter")
	require.NoError(t, err)
	assert.Equal(t, `{"count":5,"label":""}`, string(snap.Payload))
	assert.Equal(t, saved.Seq(), snap.Seq)
	assert.GreaterOrEqual(t, snap.Seq, int64(1))
	assert.LessOrEqual(t, snap.Seq, int64(5))
}

func TestSaved_InitialStateNotWritten(t *testing.T) {
	store := NewMemoryStore()
	core := container.New[counterState, string](context.Background(), counterState{Count: 9}, container.WithLogger(quietLogger))
	saved := Saved[counterState, string](core, store, "counter", JSONCodec[counterState]{})

	require.NoError(t, saved.Close())

	_, err := store.Load(context.Background(), "counter")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, store.Saves())
}

func TestSaved_DoesNotCountAsSubscriber(t *testing.T) {
	core := container.New[counterState, string](context.Background(), counterState{},
		container.WithLogger(quietLogger),
		container.WithSubscribedStopTimeout(0),
	)
	saved := Saved[counterState, string](core, NewMemoryStore(), "counter", JSONCodec[counterState]{})
	defer saved.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signal := saved.Subscribed(ctx)

	assert.Equal(t, refcount.Unsubscribed, <-signal)
	select {
	case s := <-signal:
		t.Fatalf("unexpected transition to %v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

type failingStore struct{ err error }

func (f failingStore) Save(context.Context, Snapshot) error { return f.err }

func (f failingStore) Load(context.Context, string) (Snapshot, error) {
	return Snapshot{}, ErrNotFound
}

func TestSaved_CloseReportsSaveFailure(t *testing.T) {
	boom := errors.New("disk full")
	core := container.New[counterState, string](context.Background(), counterState{}, container.WithLogger(quietLogger))
	saved := Saved[counterState, string](core, failingStore{boom}, "counter", JSONCodec[counterState]{})

	require.NoError(t, saved.Submit(increment))
	waitState(t, saved, counterState{Count: 1})

	err := saved.Close()
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, saved.SaveErr(), boom)
}

func TestSaved_DoneWaitsForFinalWrite(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	core := container.New[counterState, string](ctx, counterState{}, container.WithLogger(quietLogger))
	saved := Saved[counterState, string](core, store, "counter", JSONCodec[counterState]{})

	require.NoError(t, saved.Submit(increment))
	waitState(t, saved, counterState{Count: 1})
	cancel()

	select {
	case <-saved.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("saved container did not finish")
	}
	snap, err := store.Load(context.Background(), "counter")
	require.NoError(t, err)
	assert.Equal(t, `{"count":1,"label":""}`, string(snap.Payload))
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	codec := JSONCodec[counterState]{}

	_, seq, found, err := Restore(ctx, store, "counter", codec)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int64(0), seq)

	require.NoError(t, store.Save(ctx, Snapshot{Key: "counter", Payload: []byte(`{"count":4,"label":"x"}`), Seq: 12}))
	state, seq, found, err := Restore(ctx, store, "counter", codec)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(12), seq)
	assert.Equal(t, counterState{Count: 4, Label: "x"}, state)

	require.NoError(t, store.Save(ctx, Snapshot{Key: "broken", Payload: []byte(`{"count":`), Seq: 1}))
	_, _, _, err = Restore(ctx, store, "broken", codec)
	assert.ErrorContains(t, err, `restore "broken"`)
}

func TestNewContainer_RestoresAcrossRestartsWithSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	codec := JSONCodec[counterState]{}

	store, err := OpenSQLite(path)
	require.NoError(t, err)

	first, err := NewContainer[counterState, string](ctx, store, "counter", codec,
		counterState{}, label("created"), container.WithLogger(quietLogger))
	require.NoError(t, err)

	// First subscription runs onCreate.
	subCtx, cancel := context.WithCancel(ctx)
	first.StateFlow(subCtx)
	waitState(t, first, counterState{Label: "created"})
	require.NoError(t, first.Submit(increment))
	waitState(t, first, counterState{Count: 1, Label: "created"})
	cancel()
	require.NoError(t, first.Close())
	firstSeq := first.Seq()
	require.NoError(t, store.Close())

	store, err = OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()

	second, err := NewContainer[counterState, string](ctx, store, "counter", codec,
		counterState{}, label("recreated"), container.WithLogger(quietLogger))
	require.NoError(t, err)

	assert.Equal(t, counterState{Count: 1, Label: "created"}, second.State())
	assert.Equal(t, firstSeq, second.Seq(), "clock resumes from the stored seq")

	// onCreate must not run for a restored container.
	second.StateFlow(ctx)
	require.NoError(t, second.Submit(increment))
	waitState(t, second, counterState{Count: 2, Label: "created"})
	require.NoError(t, second.Close())

	snap, err := store.Load(ctx, "counter")
	require.NoError(t, err)
	assert.Greater(t, snap.Seq, firstSeq)
	assert.Equal(t, `{"count":2,"label":"created"}`, string(snap.Payload))
}

func TestNewContainer_PropagatesRestoreErrors(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), Snapshot{Key: "k", Payload: []byte("nope"), Seq: 1}))

	_, err := NewContainer[counterState, string](context.Background(), store, "k",
		JSONCodec[counterState]{}, counterState{}, nil)
	assert.Error(t, err)
}
