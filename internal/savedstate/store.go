package savedstate

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Store.Load when no snapshot exists for a key.
var ErrNotFound = errors.New("saved state not found")

// Snapshot is the persisted form of one state value.
type Snapshot struct {
	Key     string
	Payload []byte
	Seq     int64
}

// Store keeps the newest snapshot per key.
//
// Save must be idempotent and must ignore writes whose seq is not greater
// than the stored seq for that key.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, key string) (Snapshot, error)
}

// MemoryStore is an in-process Store.
//
// Thread-safety: safe for concurrent use via internal mutex.
type MemoryStore struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
	saves int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.snaps[snap.Key]; ok && cur.Seq >= snap.Seq {
		return nil
	}
	snap.Payload = append([]byte(nil), snap.Payload...)
	m.snaps[snap.Key] = snap
	m.saves++
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context, key string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap, ok := m.snaps[key]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	snap.Payload = append([]byte(nil), snap.Payload...)
	return snap, nil
}

// Saves returns how many writes were applied (stale writes excluded).
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
