package savedstate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract exercises the behaviour every Store must share.
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := store.Load(ctx, "absent")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save then load", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, Snapshot{Key: "k1", Payload: []byte(`{"count":1}`), Seq: 1}))

		snap, err := store.Load(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, "k1", snap.Key)
		assert.Equal(t, `{"count":1}`, string(snap.Payload))
		assert.Equal(t, int64(1), snap.Seq)
	})

	t.Run("newer seq replaces", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, Snapshot{Key: "k2", Payload: []byte("a"), Seq: 1}))
		require.NoError(t, store.Save(ctx, Snapshot{Key: "k2", Payload: []byte("b"), Seq: 2}))

		snap, err := store.Load(ctx, "k2")
		require.NoError(t, err)
		assert.Equal(t, "b", string(snap.Payload))
		assert.Equal(t, int64(2), snap.Seq)
	})

	t.Run("stale seq ignored", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, Snapshot{Key: "k3", Payload: []byte("new"), Seq: 5}))
		require.NoError(t, store.Save(ctx, Snapshot{Key: "k3", Payload: []byte("old"), Seq: 4}))
		require.NoError(t, store.Save(ctx, Snapshot{Key: "k3", Payload: []byte("same"), Seq: 5}))

		snap, err := store.Load(ctx, "k3")
		require.NoError(t, err)
		assert.Equal(t, "new", string(snap.Payload))
		assert.Equal(t, int64(5), snap.Seq)
	})

	t.Run("keys are independent", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, Snapshot{Key: "a", Payload: []byte("1"), Seq: 9}))
		require.NoError(t, store.Save(ctx, Snapshot{Key: "b", Payload: []byte("2"), Seq: 1}))

		snap, err := store.Load(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, "2", string(snap.Payload))
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestMemoryStore_CountsAppliedSaves(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, Snapshot{Key: "k", Payload: []byte("a"), Seq: 2}))
	require.NoError(t, store.Save(ctx, Snapshot{Key: "k", Payload: []byte("b"), Seq: 1}))
	assert.Equal(t, 1, store.Saves())
}

func TestMemoryStore_CopiesPayload(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	payload := []byte("abc")
	require.NoError(t, store.Save(ctx, Snapshot{Key: "k", Payload: payload, Seq: 1}))
	payload[0] = 'X'

	snap, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(snap.Payload))
}
