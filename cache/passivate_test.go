package cache

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/jonwraymond/instancecache/eviction"
	"github.com/jonwraymond/instancecache/instance"
	"github.com/jonwraymond/instancecache/lock"
	"github.com/jonwraymond/instancecache/pool"
)

func TestTryPassivate_Eligible(t *testing.T) {
	tc := newTestCache(t, nil)
	ctx := context.Background()
	inst, _ := tc.Get(ctx, "Order:1")
	inst.SetState("shipped")

	ok, err := tc.TryPassivate(ctx, "Order:1")
	if err != nil || !ok {
		t.Fatalf("TryPassivate = %v, %v; want true, nil", ok, err)
	}
	if tc.IsActive("Order:1") {
		t.Error("passivated key still live")
	}
	if tc.store.data["Order:1"] != "shipped" {
		t.Errorf("stored state = %q, want shipped", tc.store.data["Order:1"])
	}
	if tc.pool.Len() != 1 || inst.Key() != "" {
		t.Error("passivated instance should be reset and pooled")
	}
	if tc.Locks().Len() != 0 {
		t.Errorf("lock registry Len = %d, want 0", tc.Locks().Len())
	}
}

func TestTryPassivate_NeverRemovesPinned(t *testing.T) {
	tc := newTestCache(t, nil)
	ctx := context.Background()

	locked, _ := tc.Get(ctx, "locked")
	locked.SetLocked(true)

	enlisted, _ := tc.Get(ctx, "enlisted")
	enlisted.SetTransaction(&stubTx{id: "tx1"})

	for _, key := range []string{"locked", "enlisted"} {
		ok, err := tc.TryPassivate(ctx, key)
		if err != nil || ok {
			t.Errorf("TryPassivate(%s) = %v, %v; want false, nil", key, ok, err)
		}
		if !tc.IsActive(key) {
			t.Errorf("pinned key %s was removed", key)
		}
	}

	if locked.PassivateAfterCommit() {
		t.Error("call-chain pin must not request passivate after commit")
	}
	if !enlisted.PassivateAfterCommit() {
		t.Error("transaction pin should request passivate after commit")
	}
	if len(tc.store.passivatedKeys()) != 0 {
		t.Error("passivator ran for a pinned instance")
	}
}

func TestTryPassivate_PinnedEntryIsPromoted(t *testing.T) {
	tc := newTestCache(t, nil)
	ctx := context.Background()
	pinned, _ := tc.Get(ctx, "a")
	_, _ = tc.Get(ctx, "b")
	pinned.SetLocked(true)

	_, _ = tc.TryPassivate(ctx, "a")
	if keys := tc.Keys(); keys[len(keys)-1] != "a" {
		t.Errorf("Keys = %v, want pinned entry promoted", keys)
	}
}

func TestTryPassivate_BusyLockSkips(t *testing.T) {
	tc := newTestCache(t, nil)
	ctx := context.Background()
	_, _ = tc.Get(ctx, "k")

	l := tc.Locks().GetLock("k")
	if err := l.Schedule(ctx, lock.Call{Owner: "caller"}); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ok, err := tc.TryPassivate(ctx, "k")
		if err != nil || ok {
			t.Errorf("TryPassivate = %v, %v; want false, nil", ok, err)
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("TryPassivate blocked on a busy key lock")
	}

	_ = l.EndInvocation(lock.Call{Owner: "caller"})
	_ = tc.Locks().RemoveLockRef("k")
	if !tc.IsActive("k") {
		t.Error("busy entry was removed")
	}
	if tc.Locks().Len() != 0 {
		t.Errorf("lock registry Len = %d, want 0", tc.Locks().Len())
	}
}

func TestTryPassivate_OracleVeto(t *testing.T) {
	tc := newTestCache(t, func(cfg *Config, _ *pool.Config) {
		cfg.Oracle = instance.OracleFunc(func(key string) bool { return key != "held" })
	})
	ctx := context.Background()
	_, _ = tc.Get(ctx, "held")

	if ok, _ := tc.TryPassivate(ctx, "held"); ok {
		t.Error("oracle veto ignored")
	}
	if !tc.IsActive("held") {
		t.Error("vetoed entry removed")
	}
}

func TestTryPassivate_PassivatorFailureStillEvicts(t *testing.T) {
	tc := newTestCache(t, nil)
	ctx := context.Background()
	_, _ = tc.Get(ctx, "k")
	tc.store.failStore = errBoom

	ok, err := tc.TryPassivate(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("TryPassivate = %v, %v; want true, nil", ok, err)
	}
	if tc.IsActive("k") {
		t.Error("instance left cached after passivation failure")
	}
	if tc.pool.Len() != 1 {
		t.Error("instance not returned to pool after passivation failure")
	}
}

func TestTryPassivate_AbsentKey(t *testing.T) {
	tc := newTestCache(t, nil)
	for _, key := range []string{"", "missing"} {
		if ok, err := tc.TryPassivate(context.Background(), key); ok || err != nil {
			t.Errorf("TryPassivate(%q) = %v, %v; want false, nil", key, ok, err)
		}
	}
}

func TestRelease_SkipsBusyKeyLock(t *testing.T) {
	tc := newTestCache(t, nil)
	ctx := context.Background()
	inst, _ := tc.Get(ctx, "k")

	l := tc.Locks().GetLock("k")
	_ = l.Schedule(ctx, lock.Call{Owner: "caller"})

	if ok, err := tc.Release(ctx, inst); ok || err != nil {
		t.Errorf("Release while locked = %v, %v; want false, nil", ok, err)
	}
	if !tc.IsActive("k") {
		t.Error("busy instance should stay cached")
	}

	_ = l.EndInvocation(lock.Call{Owner: "caller"})
	_ = tc.Locks().RemoveLockRef("k")
	if ok, err := tc.Release(ctx, inst); !ok || err != nil {
		t.Errorf("Release after unlock = %v, %v; want true, nil", ok, err)
	}
}

func TestRelease_InsideInvokeReturnsPromptly(t *testing.T) {
	tc := newTestCache(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var (
		ok      bool
		err     error
		elapsed time.Duration
	)
	invokeErr := tc.Invoke(ctx, "k", lock.Call{}, nil, func(ctx context.Context, inst *instance.Instance) error {
		start := time.Now()
		ok, err = tc.Release(ctx, inst)
		elapsed = time.Since(start)
		return nil
	})
	if invokeErr != nil {
		t.Fatalf("Invoke() error = %v", invokeErr)
	}
	if ok || err != nil {
		t.Errorf("Release inside Invoke = %v, %v; want false, nil", ok, err)
	}
	if elapsed > 100*time.Millisecond {
		t.Errorf("Release inside Invoke took %v, want no wait", elapsed)
	}
	if !tc.IsActive("k") {
		t.Error("instance should stay cached")
	}
}

func TestFlush_BestEffort(t *testing.T) {
	tc := newTestCache(t, nil)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		_, _ = tc.Get(ctx, k)
	}
	pinned, _ := tc.Peek("b")
	pinned.SetLocked(true)

	if n := tc.Flush(ctx); n != 2 {
		t.Errorf("Flush = %d, want 2", n)
	}
	if keys := tc.Keys(); !slices.Equal(keys, []string{"b"}) {
		t.Errorf("remaining = %v, want [b]", keys)
	}
}

func TestDiscard(t *testing.T) {
	tc := newTestCache(t, nil)
	ctx := context.Background()
	inst, _ := tc.Get(ctx, "k")
	inst.SetState("dirty")

	if !tc.Discard(ctx, "k") {
		t.Fatal("Discard should report a live key")
	}
	if tc.Discard(ctx, "k") {
		t.Error("second Discard reported presence")
	}
	if len(tc.store.passivatedKeys()) != 0 {
		t.Error("Discard must not passivate")
	}
	if s := tc.pool.Stats(); s.Discarded != 1 || s.Pooled != 0 {
		t.Errorf("pool stats = %+v", s)
	}
}

func TestDiscardInstance_OnlyMatchingInstance(t *testing.T) {
	tc := newTestCache(t, nil)
	ctx := context.Background()
	old, _ := tc.Get(ctx, "k")
	tc.Discard(ctx, "k")
	current, _ := tc.Get(ctx, "k")

	if tc.DiscardInstance(ctx, "k", old) {
		t.Error("DiscardInstance removed an instance that replaced the given one")
	}
	if got, _ := tc.Peek("k"); got != current {
		t.Error("live instance changed")
	}
	if !tc.DiscardInstance(ctx, "k", current) {
		t.Error("DiscardInstance should remove the live instance")
	}
	if tc.IsActive("k") {
		t.Error("IsActive = true after DiscardInstance")
	}
}

func TestOverager_PassivatesAgedEntries(t *testing.T) {
	tc := newTestCache(t, func(cfg *Config, _ *pool.Config) {
		cfg.Eviction = eviction.Config{
			MinCapacity:    4,
			MaxCapacity:    4,
			MaxAge:         20 * time.Millisecond,
			OveragerPeriod: 10 * time.Millisecond,
		}
	})
	ctx := context.Background()
	_, _ = tc.Get(ctx, "idle")
	busy, _ := tc.Get(ctx, "busy")
	busy.SetLocked(true)

	if err := tc.Start(ctx); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for tc.IsActive("idle") {
		if time.Now().After(deadline) {
			t.Fatal("aged entry was never passivated")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !tc.IsActive("busy") {
		t.Error("pinned entry was passivated by the overager")
	}
	if err := tc.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}
