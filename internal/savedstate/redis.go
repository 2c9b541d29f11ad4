package savedstate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisEvaler is the minimal surface RedisStore needs from a Redis client.
// A script returning nil must yield (nil, nil).
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// GoRedisEvaler adapts a go-redis client to RedisEvaler.
type GoRedisEvaler struct{ c redis.Cmdable }

// NewGoRedisEvaler connects to addr (for example "127.0.0.1:6379").
func NewGoRedisEvaler(addr string) *GoRedisEvaler {
	return &GoRedisEvaler{c: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewGoRedisEvalerFromClient wraps an existing client or cluster client.
func NewGoRedisEvalerFromClient(c redis.Cmdable) *GoRedisEvaler {
	return &GoRedisEvaler{c: c}
}

// Eval implements RedisEvaler.
func (g *GoRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	res, err := g.c.Eval(ctx, script, keys, args...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return res, err
}

// Close closes the wrapped client when it owns a connection pool.
func (g *GoRedisEvaler) Close() error {
	if c, ok := g.c.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// redisSaveScript writes the snapshot only when its seq is newer.
// Returns 1 if applied, 0 if the stored snapshot is as new or newer.
const redisSaveScript = `
local cur = redis.call('HGET', KEYS[1], 'seq')
if cur and tonumber(cur) >= tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[1], 'payload', ARGV[1], 'seq', ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl and ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`

// redisLoadScript returns {payload, seq} or nil.
const redisLoadScript = `
local v = redis.call('HMGET', KEYS[1], 'payload', 'seq')
if not v[1] then
  return nil
end
return {v[1], tonumber(v[2])}
`

// RedisStateKey returns the hash key holding the snapshot for key.
func RedisStateKey(key string) string { return fmt.Sprintf("orbit:state:%s", key) }

// RedisStore is a Store shared between processes through Redis.
// The seq guard runs inside a Lua script, so concurrent writers cannot
// interleave between the check and the write.
type RedisStore struct {
	client RedisEvaler
	ttl    time.Duration
}

// NewRedisStore creates a store. A positive ttl expires snapshots that have
// not been written for that long; zero keeps them forever.
func NewRedisStore(client RedisEvaler, ttl time.Duration) *RedisStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	keys := []string{RedisStateKey(snap.Key)}
	args := []interface{}{string(snap.Payload), snap.Seq, ttlMillis(r.ttl)}
	if _, err := r.client.Eval(ctx, redisSaveScript, keys, args...); err != nil {
		return fmt.Errorf("redis save key=%s seq=%d: %w", snap.Key, snap.Seq, err)
	}
	return nil
}

// ttlMillis converts ttl to whole milliseconds, rounding up so a short
// positive ttl never becomes "no expiry".
func ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return int64((ttl + time.Millisecond - 1) / time.Millisecond)
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context, key string) (Snapshot, error) {
	res, err := r.client.Eval(ctx, redisLoadScript, []string{RedisStateKey(key)})
	if err != nil {
		return Snapshot{}, fmt.Errorf("redis load key=%s: %w", key, err)
	}
	if res == nil {
		return Snapshot{}, ErrNotFound
	}

	fields, ok := res.([]interface{})
	if !ok || len(fields) != 2 {
		return Snapshot{}, fmt.Errorf("redis load key=%s: unexpected reply %T", key, res)
	}
	payload, ok := fields[0].(string)
	if !ok {
		return Snapshot{}, fmt.Errorf("redis load key=%s: unexpected payload %T", key, fields[0])
	}
	seq, ok := fields[1].(int64)
	if !ok {
		return Snapshot{}, fmt.Errorf("redis load key=%s: unexpected seq %T", key, fields[1])
	}

	return Snapshot{Key: key, Payload: []byte(payload), Seq: seq}, nil
}
