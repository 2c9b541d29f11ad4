// Package savedstate persists container state across process restarts.
//
// A Codec turns a state value into bytes, a Store keeps the latest bytes per
// key, and the Saved decorator wires the two to a container's state stream.
//
// Snapshots carry a sequence number from a logical clock. Stores keep only
// the newest snapshot per key: a write whose seq is not greater than the
// stored one is ignored, so a late or replayed write can never roll state
// back.
//
// Stores:
//   - SQLiteStore: durable single-file store (WAL mode)
//   - RedisStore: shared store; the seq guard runs server-side in Lua
//   - MemoryStore: in-process, for tests
package savedstate
