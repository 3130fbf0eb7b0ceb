package cache

import (
	"context"

	"github.com/jonwraymond/instancecache/instance"
	"github.com/jonwraymond/instancecache/lock"
	"github.com/jonwraymond/instancecache/observe"
)

// Release passivates inst if its key lock is free right now. A busy lock,
// including one held by the caller's own Invoke, skips the passivation
// instead of waiting. Pinned or vetoed instances stay cached. It reports
// whether the instance was passivated.
func (c *Cache) Release(ctx context.Context, inst *instance.Instance) (bool, error) {
	return c.passivate(ctx, "cache.release", inst.Key(), lock.Call{}, false)
}

// TryPassivate passivates key's instance if its key lock is free right now.
// It never blocks on the key lock and reports false when the entry was
// skipped.
func (c *Cache) TryPassivate(ctx context.Context, key string) (bool, error) {
	return c.passivate(ctx, "cache.try_passivate", key, lock.Call{}, false)
}

// PassivateAs passivates key's instance, acquiring the key lock on behalf of
// call. A call whose Owner holds the lock re-enters instead of waiting.
func (c *Cache) PassivateAs(ctx context.Context, key string, call lock.Call) (bool, error) {
	return c.passivate(ctx, "cache.passivate", key, call, true)
}

func (c *Cache) passivate(ctx context.Context, op, key string, call lock.Call, block bool) (passivated bool, err error) {
	if key == "" {
		return false, nil
	}
	if err := c.checkOpen(op, key); err != nil {
		return false, err
	}

	l := c.locks.GetLock(key)
	defer func() {
		if rerr := c.locks.RemoveLockRef(key); rerr != nil {
			c.log.Error(ctx, "lock reference release failed", observe.F("key", key), observe.F("error", rerr))
		}
	}()

	if block {
		if err := l.Schedule(ctx, call); err != nil {
			return false, err
		}
	} else {
		ok, err := l.Attempt(0, call, false)
		if err != nil {
			return false, err
		}
		if !ok {
			c.log.Debug(ctx, "could not passivate now, key lock busy", observe.F("key", key))
			c.metrics.RecordPassivationSkipped(ctx, c.meta, "busy")
			return false, nil
		}
	}
	defer func() {
		if eerr := l.EndInvocation(call); eerr != nil {
			c.log.Error(ctx, "key lock release failed", observe.F("key", key), observe.F("error", eerr))
		}
	}()

	c.mu.Lock()
	inst, ok := c.live[key]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}

	reason := ""
	switch {
	case inst.Pinned():
		reason = "pinned"
	case !c.oracle.CanPassivate(key):
		reason = "vetoed"
	}

	c.mu.Lock()
	if c.live[key] != inst {
		c.mu.Unlock()
		return false, nil
	}
	if reason == "" && inst.Pinned() {
		reason = "pinned"
	}
	if reason != "" {
		if inst.Transaction() != nil {
			inst.MarkPassivateAfterCommit()
		}
		c.lru.RecordAccess(key)
		c.mu.Unlock()
		c.log.Debug(ctx, "passivation deferred", observe.F("key", key), observe.F("reason", reason))
		c.metrics.RecordPassivationSkipped(ctx, c.meta, reason)
		return false, nil
	}
	delete(c.live, key)
	c.lru.Remove(key)
	c.mu.Unlock()

	// Failures are logged by the middleware; the instance leaves the cache regardless.
	_ = c.passivator.Passivate(ctx, inst)
	c.pool.Release(ctx, inst)
	return true, nil
}

// Flush tries to passivate every live instance without blocking and returns
// how many left the cache. Pinned or busy entries are skipped.
func (c *Cache) Flush(ctx context.Context) int {
	c.mu.Lock()
	keys := c.lru.Keys()
	c.mu.Unlock()

	n := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		if ok, _ := c.TryPassivate(ctx, key); ok {
			n++
		}
	}
	return n
}

// Discard removes key's instance and tears it down without passivation.
// It is the rollback path: in-memory state may disagree with durable state.
func (c *Cache) Discard(ctx context.Context, key string) bool {
	inst, ok := c.Remove(key)
	if !ok {
		return false
	}
	c.pool.Discard(ctx, inst)
	c.log.Info(ctx, "instance discarded", observe.F("key", key))
	return true
}

// DiscardInstance is Discard restricted to inst: it does nothing when
// another instance has since become live under key.
func (c *Cache) DiscardInstance(ctx context.Context, key string, inst *instance.Instance) bool {
	c.mu.Lock()
	if c.live[key] != inst {
		c.mu.Unlock()
		return false
	}
	delete(c.live, key)
	c.lru.Remove(key)
	c.mu.Unlock()

	c.pool.Discard(ctx, inst)
	c.log.Info(ctx, "instance discarded", observe.F("key", key))
	return true
}

// Invalidate marks key's instance stale so the next Get reloads it. It
// reports whether key was live.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	inst, ok := c.live[key]
	c.mu.Unlock()
	if ok {
		inst.SetValid(false)
	}
	return ok
}

// InvalidateAll marks every live instance stale and returns how many were
// marked.
func (c *Cache) InvalidateAll() int {
	c.mu.Lock()
	insts := make([]*instance.Instance, 0, len(c.live))
	for _, inst := range c.live {
		insts = append(insts, inst)
	}
	c.mu.Unlock()

	for _, inst := range insts {
		inst.SetValid(false)
	}
	return len(insts)
}
