package txn_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/instancecache/cache"
	"github.com/jonwraymond/instancecache/eviction"
	"github.com/jonwraymond/instancecache/instance"
	"github.com/jonwraymond/instancecache/pool"
	"github.com/jonwraymond/instancecache/txn"
)

type memStore struct {
	mu          sync.Mutex
	data        map[string]string
	activations map[string]int
	passivated  []string
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}, activations: map[string]int{}}
}

func (s *memStore) Activate(_ context.Context, inst *instance.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activations[inst.Key()]++
	inst.SetState(s.data[inst.Key()])
	return nil
}

func (s *memStore) Passivate(_ context.Context, inst *instance.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passivated = append(s.passivated, inst.Key())
	if v, ok := inst.State().(string); ok {
		s.data[inst.Key()] = v
	}
	return nil
}

func (s *memStore) activationCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activations[key]
}

func (s *memStore) passivatedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.passivated)
}

func (s *memStore) stored(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key]
}

type fixture struct {
	cache *cache.Cache
	coord *txn.Coordinator
	store *memStore
}

func newFixture(t *testing.T, config txn.Config) *fixture {
	t.Helper()
	st := newMemStore()
	p, err := pool.New(pool.Config{
		Component: "Account",
		MaxSize:   4,
		Factory:   instance.FactoryFunc(func(context.Context) (any, error) { return "", nil }),
	})
	if err != nil {
		t.Fatalf("pool.New() error = %v", err)
	}
	c, err := cache.New(cache.Config{
		Name:       "accounts",
		Pool:       p,
		Activator:  st,
		Passivator: st,
		Eviction:   eviction.Config{MinCapacity: 2, MaxCapacity: 8, MaxAge: time.Hour},
	})
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	coord := txn.New(c, config)
	c.SetEnlister(coord)
	t.Cleanup(func() {
		coord.Stop()
		_ = c.Destroy(context.Background())
	})
	return &fixture{cache: c, coord: coord, store: st}
}

// write runs a call in tx that sets key's state to v.
func (f *fixture) write(t *testing.T, tx instance.Transaction, key, v string) {
	t.Helper()
	err := f.cache.Invoke(context.Background(), key, lockCall(), tx, func(_ context.Context, inst *instance.Instance) error {
		inst.SetState(v)
		return nil
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
}
