package store

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type account struct {
	Owner   string `json:"owner"`
	Balance int    `json:"balance"`
}

type ledger struct {
	Name string            `json:"name"`
	Tags map[string]string `json:"tags,omitempty"`
	Note string            `json:"note,omitempty"`
}

func newRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newRedisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr, client := newRedis(t)
	b, err := NewRedisBackend(client, RedisConfig{Prefix: "test"})
	if err != nil {
		t.Fatalf("NewRedisBackend() error = %v", err)
	}
	return b, mr
}

var errNetwork = &net.OpError{Op: "dial", Net: "tcp", Err: &net.AddrError{Err: "connection refused", Addr: "redis:6379"}}

// flakyBackend fails the first failSaves saves, or all of them when
// failSaves is negative.
type flakyBackend struct {
	*MemoryBackend

	mu        sync.Mutex
	failSaves int
	saves     int
}

func (f *flakyBackend) Save(ctx context.Context, snap Snapshot) error {
	f.mu.Lock()
	f.saves++
	fail := f.failSaves < 0 || f.saves <= f.failSaves
	f.mu.Unlock()
	if fail {
		return errNetwork
	}
	return f.MemoryBackend.Save(ctx, snap)
}

func (f *flakyBackend) saveCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
