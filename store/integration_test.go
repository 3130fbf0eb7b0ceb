package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/instancecache/cache"
	"github.com/jonwraymond/instancecache/eviction"
	"github.com/jonwraymond/instancecache/instance"
	"github.com/jonwraymond/instancecache/pool"
	"github.com/jonwraymond/instancecache/store"
)

type cart struct {
	Items []string `json:"items"`
}

func newCartCache(t *testing.T) (*cache.Cache, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backend, err := store.NewRedisBackend(client, store.RedisConfig{Prefix: "carts"})
	if err != nil {
		t.Fatalf("NewRedisBackend() error = %v", err)
	}
	st, err := store.New(backend, store.Config{CreateOnMissing: true})
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	p, err := pool.New(pool.Config{
		Component: "Cart",
		MaxSize:   4,
		Factory:   instance.FactoryFunc(func(context.Context) (any, error) { return &cart{}, nil }),
	})
	if err != nil {
		t.Fatalf("pool.New() error = %v", err)
	}
	c, err := cache.New(cache.Config{
		Name:       "carts",
		Pool:       p,
		Activator:  st,
		Passivator: st,
		Remover:    st,
		Eviction:   eviction.Config{MinCapacity: 2, MaxCapacity: 8, MaxAge: time.Hour},
	})
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Destroy(context.Background()) })
	return c, client
}

func TestCacheRoundTripThroughRedis(t *testing.T) {
	ctx := context.Background()
	c, _ := newCartCache(t)

	inst, err := c.Get(ctx, "cart-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	inst.State().(*cart).Items = []string{"book", "pen"}

	ok, err := c.TryPassivate(ctx, "cart-1")
	if err != nil || !ok {
		t.Fatalf("TryPassivate() = %v, %v; want true, nil", ok, err)
	}
	if c.IsActive("cart-1") {
		t.Fatal("IsActive() = true after passivation")
	}

	again, err := c.Get(ctx, "cart-1")
	if err != nil {
		t.Fatalf("Get() after passivation error = %v", err)
	}
	items := again.State().(*cart).Items
	if len(items) != 2 || items[0] != "book" || items[1] != "pen" {
		t.Errorf("Items = %v, want [book pen]", items)
	}
}

func TestRecycledInstanceStartsClean(t *testing.T) {
	ctx := context.Background()
	c, _ := newCartCache(t)

	first, err := c.Get(ctx, "cart-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	first.State().(*cart).Items = []string{"book"}
	if ok, err := c.TryPassivate(ctx, "cart-1"); err != nil || !ok {
		t.Fatalf("TryPassivate() = %v, %v; want true, nil", ok, err)
	}

	second, err := c.Get(ctx, "cart-2")
	if err != nil {
		t.Fatalf("Get(cart-2) error = %v", err)
	}
	if second != first {
		t.Fatal("expected the pooled instance to be reused")
	}
	if items := second.State().(*cart).Items; len(items) != 0 {
		t.Errorf("cart-2 Items = %v, want empty", items)
	}
}

func TestListenerInvalidatesCachedInstance(t *testing.T) {
	ctx := context.Background()
	c, client := newCartCache(t)

	inst, err := c.Get(ctx, "cart-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	l, err := store.NewListener(client, c, store.ListenerConfig{})
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	if err := store.Notify(ctx, client, l.Channel(), "cart-1"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for inst.Valid() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if inst.Valid() {
		t.Error("Valid() = true, want invalidated by listener")
	}
}
