package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/instancecache/eviction"
	"github.com/jonwraymond/instancecache/instance"
	"github.com/jonwraymond/instancecache/pool"
)

// store is an in-test durable backend for activation and passivation.
type store struct {
	mu          sync.Mutex
	data        map[string]string
	activations atomic.Int64
	passivated  []string
	failLoad    map[string]error
	failStore   error
	delay       time.Duration
}

func newStore() *store {
	return &store{data: map[string]string{}, failLoad: map[string]error{}}
}

func (s *store) Activate(_ context.Context, inst *instance.Instance) error {
	s.activations.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failLoad[inst.Key()]; err != nil {
		return err
	}
	inst.SetState(s.data[inst.Key()])
	return nil
}

func (s *store) Passivate(_ context.Context, inst *instance.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passivated = append(s.passivated, inst.Key())
	if s.failStore != nil {
		return s.failStore
	}
	if v, ok := inst.State().(string); ok {
		s.data[inst.Key()] = v
	}
	return nil
}

func (s *store) passivatedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.passivated...)
}

type stubTx struct {
	id string

	mu        sync.Mutex
	status    instance.TxStatus
	callbacks []func(instance.TxStatus)
}

func (t *stubTx) ID() string { return t.id }

func (t *stubTx) Status() instance.TxStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *stubTx) IsActive() bool { return t.Status() == instance.TxActive }

func (t *stubTx) RegisterCompletion(fn func(instance.TxStatus)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, fn)
	return nil
}

type recordingEnlister struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *recordingEnlister) Enlist(_ context.Context, inst *instance.Instance, tx instance.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return e.err
	}
	inst.SetTransaction(tx)
	return nil
}

type testCache struct {
	*Cache
	store *store
	pool  *pool.Pool
}

func newTestCache(t *testing.T, mutate func(*Config, *pool.Config)) *testCache {
	t.Helper()
	st := newStore()
	pcfg := pool.Config{
		Component: "Order",
		MaxSize:   8,
		Factory:   instance.FactoryFunc(func(context.Context) (any, error) { return "", nil }),
	}
	cfg := Config{
		Name:       "orders",
		Activator:  st,
		Passivator: st,
		Eviction:   eviction.Config{MinCapacity: 4, MaxCapacity: 16, MaxAge: time.Hour},
	}
	if mutate != nil {
		mutate(&cfg, &pcfg)
	}

	p, err := pool.New(pcfg)
	if err != nil {
		t.Fatalf("pool.New() error = %v", err)
	}
	cfg.Pool = p

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Destroy(context.Background()) })
	return &testCache{Cache: c, store: st, pool: p}
}

var errBoom = errors.New("boom")
