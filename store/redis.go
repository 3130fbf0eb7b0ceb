package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a RedisBackend.
type RedisConfig struct {
	// Prefix namespaces every key the backend writes.
	// Default: "instancecache"
	Prefix string
}

// removeExpiredScript deletes indexed snapshots scored at or below the
// cutoff in one atomic step, so a snapshot re-saved concurrently is kept.
var removeExpiredScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
  redis.call('DEL', ARGV[2] .. id)
  redis.call('ZREM', KEYS[1], id)
end
return #ids
`)

// RedisBackend stores snapshots in Redis.
//
// Layout:
//   - <prefix>:snap:<key>  JSON-encoded Snapshot
//   - <prefix>:index       sorted set of keys scored by StoredAt (unix ms)
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBackend creates a RedisBackend on client.
func NewRedisBackend(client redis.UniversalClient, config RedisConfig) (*RedisBackend, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if config.Prefix == "" {
		config.Prefix = "instancecache"
	}
	return &RedisBackend{client: client, prefix: config.Prefix}, nil
}

func (r *RedisBackend) snapPrefix() string { return r.prefix + ":snap:" }

func (r *RedisBackend) snapKey(key string) string { return r.snapPrefix() + key }

func (r *RedisBackend) indexKey() string { return r.prefix + ":index" }

// Load implements Backend.
func (r *RedisBackend) Load(ctx context.Context, key string) (Snapshot, error) {
	bs, err := r.client.Get(ctx, r.snapKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, ErrSnapshotNotFound
		}
		return Snapshot{}, fmt.Errorf("store: load %q: %w", key, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(bs, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("store: decode snapshot %q: %w", key, err)
	}
	return snap, nil
}

// Save implements Backend.
func (r *RedisBackend) Save(ctx context.Context, snap Snapshot) error {
	bs, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: encode snapshot %q: %w", snap.Key, err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.snapKey(snap.Key), bs, 0)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(snap.StoredAt.UnixMilli()), Member: snap.Key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: save %q: %w", snap.Key, err)
	}
	return nil
}

// Delete implements Backend.
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.snapKey(key))
		pipe.ZRem(ctx, r.indexKey(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	return nil
}

// RemoveExpired implements Backend.
func (r *RedisBackend) RemoveExpired(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := removeExpiredScript.Run(ctx, r.client,
		[]string{r.indexKey()},
		strconv.FormatInt(cutoff.UnixMilli(), 10), r.snapPrefix(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("store: remove expired: %w", err)
	}
	return n, nil
}

// Ping implements Backend.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Indexed returns the number of keys in the snapshot index.
func (r *RedisBackend) Indexed(ctx context.Context) (int64, error) {
	return r.client.ZCard(ctx, r.indexKey()).Result()
}

var _ Backend = (*RedisBackend)(nil)
