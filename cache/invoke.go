package cache

import (
	"context"

	"github.com/jonwraymond/instancecache/instance"
	"github.com/jonwraymond/instancecache/lock"
	"github.com/jonwraymond/instancecache/observe"
)

// InvokeFunc is a business call made against a live instance.
type InvokeFunc func(ctx context.Context, inst *instance.Instance) error

// Invoke runs fn against key's instance while holding the key lock.
//
// The lock is scheduled on behalf of call; when tx is non-nil and call has
// no Owner, the transaction ID is used so that calls in the same
// transaction re-enter. The instance is marked locked for the duration of
// fn and, when tx is active, enlisted with the configured Enlister before
// fn runs.
func (c *Cache) Invoke(ctx context.Context, key string, call lock.Call, tx instance.Transaction, fn InvokeFunc) error {
	if err := c.checkOpen("cache.invoke", key); err != nil {
		return err
	}
	if tx != nil {
		if call.Owner == "" {
			call.Owner = tx.ID()
		}
		ctx = observe.ContextWithFields(ctx, observe.F("tx", tx.ID()))
	}

	c.mu.Lock()
	enlister := c.enlister
	c.mu.Unlock()
	if tx != nil && tx.IsActive() && enlister == nil {
		return instance.NewError("cache.invoke", key, instance.ErrIllegalState, ErrNoEnlister)
	}

	l := c.locks.GetLock(key)
	defer func() {
		if err := c.locks.RemoveLockRef(key); err != nil {
			c.log.Error(ctx, "lock reference release failed", observe.F("key", key), observe.F("error", err))
		}
	}()

	if err := c.schedule(ctx, l, call); err != nil {
		return err
	}
	defer func() {
		if err := l.EndInvocation(call); err != nil {
			c.log.Error(ctx, "key lock release failed", observe.F("key", key), observe.F("error", err))
		}
	}()

	inst, err := c.Get(ctx, key)
	if err != nil {
		return err
	}

	if !inst.Locked() {
		inst.SetLocked(true)
		defer inst.SetLocked(false)
	}

	if tx != nil && tx.IsActive() {
		if err := enlister.Enlist(ctx, inst, tx); err != nil {
			return err
		}
	}

	return fn(ctx, inst)
}

func (c *Cache) schedule(ctx context.Context, l *lock.KeyLock, call lock.Call) error {
	if !c.config.NonReentrant {
		return l.Schedule(ctx, call)
	}
	ok, err := l.Attempt(0, call, true)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return l.Schedule(ctx, call)
}
