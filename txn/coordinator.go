package txn

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/instancecache/instance"
	"github.com/jonwraymond/instancecache/lock"
	"github.com/jonwraymond/instancecache/observe"
)

// Cache is the part of a cache the Coordinator acts on.
type Cache interface {
	Locks() *lock.Registry
	DiscardInstance(ctx context.Context, key string, inst *instance.Instance) bool
	PassivateAs(ctx context.Context, key string, call lock.Call) (bool, error)
	InvalidateAll() int
}

// Config configures a Coordinator.
type Config struct {
	// Option is the commit option. Default: OptionA
	Option CommitOption

	// RefreshPeriod is how often OptionD invalidates cached instances.
	// Default: 30s
	RefreshPeriod time.Duration

	Logger observe.Logger
}

type registration struct {
	tx  string
	key string
}

// Coordinator enlists instances in transactions and applies the commit
// option when they complete.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - An instance belongs to at most one active transaction; enlisting it in
//   a second one fails with ErrTxConflict.
// - Completion drops the key lock reference taken at enlistment. It clears
//   the instance's transaction only while that is still the completing one.
type Coordinator struct {
	cache  Cache
	config Config
	log    observe.Logger

	mu         sync.Mutex
	registered map[registration]struct{}

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Coordinator for cache.
func New(cache Cache, config Config) *Coordinator {
	if config.RefreshPeriod <= 0 {
		config.RefreshPeriod = 30 * time.Second
	}
	return &Coordinator{
		cache:      cache,
		config:     config,
		log:        observe.LoggerOrNop(config.Logger),
		registered: make(map[registration]struct{}),
	}
}

// Option returns the configured commit option.
func (c *Coordinator) Option() CommitOption { return c.config.Option }

// Enlist associates inst with tx and registers a completion callback.
// Enlisting the same key in the same transaction again is a no-op. An
// instance still enlisted in another active transaction is refused with an
// error matching instance.ErrIllegalState and ErrTxConflict.
func (c *Coordinator) Enlist(ctx context.Context, inst *instance.Instance, tx instance.Transaction) error {
	key := inst.Key()
	reg := registration{tx: tx.ID(), key: key}

	c.mu.Lock()
	if _, ok := c.registered[reg]; ok {
		c.mu.Unlock()
		return nil
	}
	if cur := inst.Transaction(); cur != nil && cur.ID() != tx.ID() && cur.IsActive() {
		c.mu.Unlock()
		c.log.Warn(ctx, "instance already enlisted in another transaction",
			observe.F("key", key), observe.F("tx", tx.ID()), observe.F("holder", cur.ID()))
		return instance.NewError("txn.enlist", key, instance.ErrIllegalState, ErrTxConflict)
	}
	c.registered[reg] = struct{}{}
	inst.SetTransaction(tx)
	c.mu.Unlock()

	locks := c.cache.Locks()
	locks.GetLock(key)

	cctx := context.WithoutCancel(ctx)
	err := tx.RegisterCompletion(func(status instance.TxStatus) {
		c.complete(cctx, reg, inst, status)
	})
	if err != nil {
		c.release(inst, reg.tx)
		_ = locks.RemoveLockRef(key)
		c.forget(reg)
		return instance.NewError("txn.enlist", key, instance.ErrIllegalState, err)
	}
	return nil
}

// Registered reports whether key is enlisted in the transaction txID.
func (c *Coordinator) Registered(txID, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.registered[registration{tx: txID, key: key}]
	return ok
}

func (c *Coordinator) forget(reg registration) {
	c.mu.Lock()
	delete(c.registered, reg)
	c.mu.Unlock()
}

// release clears inst's transaction if it is still txID and reports whether
// it did, along with the deferred-passivation flag it carried.
func (c *Coordinator) release(inst *instance.Instance, txID string) (owned, deferred bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := inst.Transaction()
	if cur == nil || cur.ID() != txID {
		return false, false
	}
	deferred = inst.PassivateAfterCommit()
	inst.SetTransaction(nil)
	return true, deferred
}

func (c *Coordinator) complete(ctx context.Context, reg registration, inst *instance.Instance, status instance.TxStatus) {
	defer func() {
		if err := c.cache.Locks().RemoveLockRef(reg.key); err != nil {
			c.log.Error(ctx, "lock reference release failed", observe.F("key", reg.key), observe.F("error", err))
		}
		c.forget(reg)
	}()

	owned, deferred := c.release(inst, reg.tx)
	if !owned {
		c.log.Debug(ctx, "instance no longer held by completing transaction",
			observe.F("key", reg.key), observe.F("tx", reg.tx))
		return
	}

	if status != instance.TxCommitted {
		if c.cache.DiscardInstance(ctx, reg.key, inst) {
			c.log.Info(ctx, "discarded after rollback", observe.F("key", reg.key), observe.F("tx", reg.tx))
		}
		return
	}

	switch c.config.Option {
	case OptionB:
		inst.SetValid(false)
	case OptionC:
		c.passivate(ctx, reg, "commit option C")
		return
	default:
		inst.SetValid(true)
	}

	if deferred {
		c.passivate(ctx, reg, "deferred passivation")
	}
}

func (c *Coordinator) passivate(ctx context.Context, reg registration, reason string) {
	ok, err := c.cache.PassivateAs(ctx, reg.key, lock.Call{Owner: reg.tx})
	if err != nil {
		c.log.Warn(ctx, "passivation after commit failed",
			observe.F("key", reg.key), observe.F("reason", reason), observe.F("error", err))
		return
	}
	c.log.Debug(ctx, "passivation after commit",
		observe.F("key", reg.key), observe.F("reason", reason), observe.F("passivated", ok))
}

// Start runs the OptionD refresher until Stop is called. It does nothing
// for other options.
func (c *Coordinator) Start(ctx context.Context) {
	if c.config.Option != OptionD {
		return
	}
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel, c.done = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.config.RefreshPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n := c.cache.InvalidateAll()
				c.log.Debug(ctx, "refreshed cached instances", observe.F("count", n))
			}
		}
	}()
}

// Stop halts the refresher and waits for it to exit.
func (c *Coordinator) Stop() {
	c.runMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
