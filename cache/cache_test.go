package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/instancecache/instance"
	"github.com/jonwraymond/instancecache/pool"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNilPool) {
		t.Errorf("New without pool error = %v, want ErrNilPool", err)
	}
	p, _ := pool.New(pool.Config{Factory: instance.FactoryFunc(func(context.Context) (any, error) { return nil, nil })})
	if _, err := New(Config{Pool: p}); !errors.Is(err, ErrNilActivator) {
		t.Errorf("New without activator error = %v, want ErrNilActivator", err)
	}
}

func TestGet_MissActivatesAndCaches(t *testing.T) {
	tc := newTestCache(t, nil)
	tc.store.data["Order:1"] = "pending"
	ctx := context.Background()

	inst, err := tc.Get(ctx, "Order:1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if inst.Key() != "Order:1" || inst.State() != "pending" || !inst.Valid() {
		t.Errorf("instance = key %q state %v valid %v", inst.Key(), inst.State(), inst.Valid())
	}
	if !tc.IsActive("Order:1") || tc.Len() != 1 {
		t.Errorf("IsActive = %v, Len = %d", tc.IsActive("Order:1"), tc.Len())
	}

	again, err := tc.Get(ctx, "Order:1")
	if err != nil || again != inst {
		t.Fatalf("second Get = %p, %v; want cached instance", again, err)
	}
	if got := tc.store.activations.Load(); got != 1 {
		t.Errorf("activations = %d, want 1", got)
	}
}

func TestGet_HitPromotesRecency(t *testing.T) {
	tc := newTestCache(t, nil)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		if _, err := tc.Get(ctx, k); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := tc.Get(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	keys := tc.Keys()
	if keys[len(keys)-1] != "a" {
		t.Errorf("Keys = %v, want a most recent", keys)
	}
}

func TestGet_ConcurrentMissesShareOneInstance(t *testing.T) {
	tc := newTestCache(t, nil)
	tc.store.delay = 20 * time.Millisecond
	ctx := context.Background()

	const n = 16
	results := make([]*instance.Instance, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst, err := tc.Get(ctx, "Order:7")
			if err != nil {
				t.Errorf("Get() error = %v", err)
				return
			}
			results[i] = inst
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent Get returned distinct instances for one key")
		}
	}
	if tc.Len() != 1 {
		t.Errorf("Len = %d, want 1", tc.Len())
	}
	if s := tc.pool.Stats(); s.CheckedOut != 1 {
		t.Errorf("pool CheckedOut = %d, want 1", s.CheckedOut)
	}
}

func TestGet_ActivationFailure(t *testing.T) {
	tc := newTestCache(t, nil)
	tc.store.failLoad["Order:9"] = errBoom

	inst, err := tc.Get(context.Background(), "Order:9")
	if inst != nil {
		t.Fatal("failed activation returned an instance")
	}
	if !errors.Is(err, instance.ErrNotFound) || !errors.Is(err, instance.ErrActivation) || !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want NotFound wrapping ErrActivation and cause", err)
	}
	if tc.IsActive("Order:9") {
		t.Error("failed activation left the key live")
	}
	if s := tc.pool.Stats(); s.CheckedOut != 0 || s.Discarded != 1 || s.Pooled != 0 {
		t.Errorf("pool stats = %+v, want instance discarded", s)
	}
}

func TestGet_InvalidKey(t *testing.T) {
	tc := newTestCache(t, nil)
	if _, err := tc.Get(context.Background(), ""); !errors.Is(err, instance.ErrInvalidKey) {
		t.Fatalf("err = %v, want ErrInvalidKey", err)
	}
}

func TestGet_RecursiveActivationViaContext(t *testing.T) {
	var tc *testCache
	var inner *instance.Instance
	tc = newTestCache(t, func(cfg *Config, _ *pool.Config) {
		cfg.Activator = instance.ActivatorFunc(func(ctx context.Context, inst *instance.Instance) error {
			got, err := tc.Get(ctx, inst.Key())
			if err != nil {
				return err
			}
			inner = got
			return nil
		})
	})

	outer, err := tc.Get(context.Background(), "Order:1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if inner != outer {
		t.Error("recursive Get should return the instance being activated")
	}
	if tc.Len() != 1 {
		t.Errorf("Len = %d, want 1", tc.Len())
	}
}

func TestGet_ActivatorReportsRecursion(t *testing.T) {
	tc := newTestCache(t, func(cfg *Config, p *pool.Config) {
		p.MaxSize = 1
		p.Strict = true
		p.AcquireTimeout = 20 * time.Millisecond
		cfg.Activator = instance.ActivatorFunc(func(_ context.Context, inst *instance.Instance) error {
			if inst.Key() == "Order:r" {
				return instance.ErrRecursiveActivation
			}
			return nil
		})
	})
	ctx := context.Background()

	inst, err := tc.Get(ctx, "Order:r")
	if !errors.Is(err, instance.ErrNotFound) || !errors.Is(err, instance.ErrRecursiveActivation) {
		t.Fatalf("Get() error = %v, want ErrNotFound wrapping ErrRecursiveActivation", err)
	}
	if inst != nil {
		t.Error("Get() returned an instance that was never activated")
	}
	if tc.IsActive("Order:r") {
		t.Error("recursive activation must not insert")
	}
	if got := tc.pool.Stats().CheckedOut; got != 0 {
		t.Errorf("CheckedOut = %d, want 0", got)
	}

	if _, err := tc.Get(ctx, "Order:2"); err != nil {
		t.Errorf("Get(Order:2) error = %v, want the permit back", err)
	}
}

func TestGet_PoolExhaustionPropagates(t *testing.T) {
	tc := newTestCache(t, func(_ *Config, p *pool.Config) {
		p.MaxSize = 1
		p.Strict = true
		p.AcquireTimeout = 20 * time.Millisecond
	})
	ctx := context.Background()

	if _, err := tc.Get(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	_, err := tc.Get(ctx, "b")
	if !errors.Is(err, instance.ErrPoolExhausted) {
		t.Fatalf("err = %v, want ErrPoolExhausted", err)
	}
	if !instance.IsRetryable(err) {
		t.Error("pool exhaustion should be retryable")
	}
}

func TestInsert_Duplicate(t *testing.T) {
	tc := newTestCache(t, nil)
	a := instance.New("Order", "x")
	a.Bind("Order:1")
	if err := tc.Insert(a); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if !a.Valid() {
		t.Error("inserted instance should be valid")
	}

	b := instance.New("Order", "y")
	b.Bind("Order:1")
	if err := tc.Insert(b); !errors.Is(err, instance.ErrIllegalState) {
		t.Fatalf("duplicate Insert error = %v, want ErrIllegalState", err)
	}
	if got, _ := tc.Peek("Order:1"); got != a {
		t.Error("duplicate insert replaced the live instance")
	}
}

func TestRemove_Idempotent(t *testing.T) {
	tc := newTestCache(t, nil)
	if _, err := tc.Get(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}

	if _, ok := tc.Remove("missing"); ok {
		t.Error("Remove of absent key reported presence")
	}
	if tc.Len() != 1 {
		t.Errorf("Len = %d, want 1", tc.Len())
	}

	inst, ok := tc.Remove("a")
	if !ok || inst.Key() != "a" {
		t.Fatal("Remove should return the live instance")
	}
	if _, ok := tc.Remove("a"); ok {
		t.Error("second Remove reported presence")
	}
	if tc.Len() != 0 || len(tc.Keys()) != 0 {
		t.Error("Remove left the key in the map or policy")
	}
}

func TestInvalidate_ReloadsOnNextGet(t *testing.T) {
	tc := newTestCache(t, nil)
	ctx := context.Background()
	tc.store.data["k"] = "v1"

	inst, _ := tc.Get(ctx, "k")
	tc.store.mu.Lock()
	tc.store.data["k"] = "v2"
	tc.store.mu.Unlock()

	if !tc.Invalidate("k") {
		t.Fatal("Invalidate should report a live key")
	}
	if tc.Invalidate("missing") {
		t.Error("Invalidate of absent key reported presence")
	}

	again, err := tc.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if again != inst || again.State() != "v2" || !again.Valid() {
		t.Errorf("reloaded instance state = %v valid = %v", again.State(), again.Valid())
	}
	if got := tc.store.activations.Load(); got != 2 {
		t.Errorf("activations = %d, want 2", got)
	}
}

func TestInvalidate_ReloadFailureRemoves(t *testing.T) {
	tc := newTestCache(t, nil)
	ctx := context.Background()
	if _, err := tc.Get(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	tc.store.mu.Lock()
	tc.store.failLoad["k"] = errBoom
	tc.store.mu.Unlock()

	if n := tc.InvalidateAll(); n != 1 {
		t.Fatalf("InvalidateAll = %d, want 1", n)
	}
	if _, err := tc.Get(ctx, "k"); !errors.Is(err, instance.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if tc.IsActive("k") {
		t.Error("failed reload left the key live")
	}
}

func TestStats(t *testing.T) {
	tc := newTestCache(t, nil)
	if _, err := tc.Get(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	s := tc.Stats()
	if s.Live != 1 || s.Capacity != 16 || s.State != StateCreated || s.Pool.CheckedOut != 1 {
		t.Errorf("Stats = %+v", s)
	}
	if s.Eviction.Misses != 1 {
		t.Errorf("Eviction.Misses = %d, want 1", s.Eviction.Misses)
	}
}
