package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/instancecache/eviction"
	"github.com/jonwraymond/instancecache/instance"
	"github.com/jonwraymond/instancecache/lock"
	"github.com/jonwraymond/instancecache/observe"
	"github.com/jonwraymond/instancecache/pool"
)

// Config configures a Cache.
type Config struct {
	// Name identifies the cache in logs and metrics.
	Name string

	// Pool supplies anonymous instances. Required.
	Pool *pool.Pool

	// Activator loads state into newly bound instances. Required.
	Activator instance.Activator

	// Passivator stores state before an instance leaves the cache.
	// Default: no-op
	Passivator instance.Passivator

	// Oracle may veto passivation per key. Default: instance.AlwaysEligible
	Oracle instance.EligibilityOracle

	// Locks is the per-key lock registry. Default: a private registry
	Locks *lock.Registry

	// Eviction configures the LRU policy and its sweeps.
	Eviction eviction.Config

	// Remover deletes expired snapshots during the remover sweep. Optional.
	Remover eviction.SnapshotRemover

	// Enlister registers instances with transactions in Invoke. Optional.
	Enlister Enlister

	// NonReentrant rejects reentrant Invoke calls with instance.ErrReentrance.
	NonReentrant bool

	Logger  observe.Logger
	Metrics observe.Metrics
	Tracer  observe.Tracer
}

// Enlister registers an instance with a transaction so that its fate is
// decided when the transaction completes.
type Enlister interface {
	Enlist(ctx context.Context, inst *instance.Instance, tx instance.Transaction) error
}

// Stats is a point-in-time view of a Cache.
type Stats struct {
	State    State
	Live     int
	Capacity int
	Eviction eviction.Stats
	Pool     pool.Stats
}

// Cache maps keys to live managed instances.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Ownership: instances returned by Get stay owned by the cache; callers
//   hand them back with Release, never to the pool directly.
// - Errors: Get returns an error matching instance.ErrNotFound when
//   activation fails; callers never see a partially activated instance.
type Cache struct {
	config     Config
	meta       observe.ComponentMeta
	log        observe.Logger
	metrics    observe.Metrics
	pool       *pool.Pool
	locks      *lock.Registry
	activator  instance.Activator
	passivator instance.Passivator
	oracle     instance.EligibilityOracle
	enlister   Enlister
	sweeper    *eviction.Sweeper

	// mu is the structural lock over live and lru.
	mu   sync.Mutex
	live map[string]*instance.Instance
	lru  *eviction.LRU

	flight singleflight.Group

	lifeMu    sync.Mutex
	state     atomic.Int32
	unobserve []func() error
}

var noopPassivator = instance.PassivatorFunc(func(context.Context, *instance.Instance) error { return nil })

// New creates a Cache in the Created state.
func New(config Config) (*Cache, error) {
	if config.Pool == nil {
		return nil, ErrNilPool
	}
	if config.Activator == nil {
		return nil, ErrNilActivator
	}
	if config.Passivator == nil {
		config.Passivator = noopPassivator
	}
	if config.Oracle == nil {
		config.Oracle = instance.AlwaysEligible
	}
	if config.Locks == nil {
		config.Locks = lock.NewRegistry()
	}

	meta := observe.ComponentMeta{Cache: config.Name, Component: config.Pool.Component()}
	ev := config.Eviction
	ev.Cache, ev.Component = meta.Cache, meta.Component
	if ev.Logger == nil {
		ev.Logger = config.Logger
	}
	if ev.Metrics == nil {
		ev.Metrics = config.Metrics
	}
	lru, err := eviction.NewLRU(ev)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	mw := observe.NewMiddleware(config.Tracer, config.Metrics, config.Logger)
	c := &Cache{
		config:     config,
		meta:       meta,
		log:        mw.Logger().WithComponent(meta),
		metrics:    mw.Metrics(),
		pool:       config.Pool,
		locks:      config.Locks,
		activator:  mw.Activator(meta, config.Activator),
		passivator: mw.Passivator(meta, config.Passivator),
		oracle:     config.Oracle,
		enlister:   config.Enlister,
		live:       make(map[string]*instance.Instance),
		lru:        lru,
	}
	c.sweeper = eviction.NewSweeper(lru, &c.mu, c, config.Remover)

	c.observe("live", func() int64 { return int64(c.Len()) })
	c.observe("capacity", func() int64 { return int64(c.Capacity()) })
	return c, nil
}

func (c *Cache) observe(kind string, fn func() int64) {
	unregister, err := c.metrics.ObserveSize(c.meta, kind, fn)
	if err != nil {
		c.log.Warn(context.Background(), "size gauge registration failed", observe.F("kind", kind), observe.F("error", err))
		return
	}
	c.unobserve = append(c.unobserve, unregister)
}

// SetEnlister installs the transaction enlister used by Invoke.
func (c *Cache) SetEnlister(e Enlister) {
	c.mu.Lock()
	c.enlister = e
	c.mu.Unlock()
}

// Locks returns the cache's key lock registry.
func (c *Cache) Locks() *lock.Registry { return c.locks }

// Sweeper returns the cache's background sweeper.
func (c *Cache) Sweeper() *eviction.Sweeper { return c.sweeper }

// Get returns the live instance for key, activating one on a miss.
func (c *Cache) Get(ctx context.Context, key string) (*instance.Instance, error) {
	if err := c.checkOpen("cache.get", key); err != nil {
		return nil, err
	}
	if err := instance.ValidateKey(key); err != nil {
		return nil, instance.NewError("cache.get", key, instance.ErrNotFound, err)
	}

	c.mu.Lock()
	inst, ok := c.live[key]
	if ok {
		c.lru.RecordAccess(key)
	} else {
		c.lru.RecordMiss()
	}
	c.mu.Unlock()
	c.metrics.RecordLookup(ctx, c.meta, ok)

	if ok {
		if !inst.Valid() {
			return c.reload(ctx, key, inst)
		}
		return inst, nil
	}
	return c.activate(ctx, key)
}

type activation struct {
	parent *activation
	cache  *Cache
	key    string
	inst   *instance.Instance
}

type activationKey struct{}

func (c *Cache) inProgress(ctx context.Context, key string) *instance.Instance {
	a, _ := ctx.Value(activationKey{}).(*activation)
	for ; a != nil; a = a.parent {
		if a.cache == c && a.key == key {
			return a.inst
		}
	}
	return nil
}

func (c *Cache) withActivation(ctx context.Context, key string, inst *instance.Instance) context.Context {
	parent, _ := ctx.Value(activationKey{}).(*activation)
	return context.WithValue(ctx, activationKey{}, &activation{parent: parent, cache: c, key: key, inst: inst})
}

func (c *Cache) activate(ctx context.Context, key string) (*instance.Instance, error) {
	// Self-referential access from inside the key's own activation.
	if inst := c.inProgress(ctx, key); inst != nil {
		return inst, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		c.mu.Lock()
		if inst, ok := c.live[key]; ok {
			c.mu.Unlock()
			return inst, nil
		}
		c.mu.Unlock()

		inst, err := c.pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		inst.Bind(key)

		if err := c.activator.Activate(c.withActivation(ctx, key, inst), inst); err != nil {
			if errors.Is(err, instance.ErrRecursiveActivation) {
				// The fresh instance never becomes live; hand it back so a
				// strict pool keeps its permit.
				c.pool.Release(ctx, inst)
				if prev := c.inProgress(ctx, key); prev != nil {
					return prev, nil
				}
				return nil, instance.NewError("cache.get", key, instance.ErrNotFound, err)
			}
			c.pool.Discard(ctx, inst)
			return nil, instance.NewError("cache.get", key, instance.ErrNotFound,
				fmt.Errorf("%w: %w", instance.ErrActivation, err))
		}
		inst.SetValid(true)

		c.mu.Lock()
		if existing, ok := c.live[key]; ok {
			// Inserted directly while we were activating.
			c.mu.Unlock()
			c.pool.Release(ctx, inst)
			return existing, nil
		}
		c.live[key] = inst
		c.lru.Add(key)
		c.mu.Unlock()
		return inst, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*instance.Instance), nil
}

func (c *Cache) reload(ctx context.Context, key string, inst *instance.Instance) (*instance.Instance, error) {
	_, err, _ := c.flight.Do("reload\x00"+key, func() (any, error) {
		if inst.Valid() {
			return nil, nil
		}
		if err := c.activator.Activate(c.withActivation(ctx, key, inst), inst); err != nil {
			return nil, err
		}
		inst.SetValid(true)
		return nil, nil
	})
	if err == nil {
		return inst, nil
	}

	c.mu.Lock()
	removed := c.live[key] == inst
	if removed {
		delete(c.live, key)
		c.lru.Remove(key)
	}
	c.mu.Unlock()
	if removed {
		c.pool.Discard(ctx, inst)
	}
	return nil, instance.NewError("cache.get", key, instance.ErrNotFound,
		fmt.Errorf("%w: %w", instance.ErrActivation, err))
}

// Insert adds an already activated instance. Inserting a key that is
// already live fails with instance.ErrIllegalState.
func (c *Cache) Insert(inst *instance.Instance) error {
	key := inst.Key()
	if err := c.checkOpen("cache.insert", key); err != nil {
		return err
	}
	if err := instance.ValidateKey(key); err != nil {
		return instance.NewError("cache.insert", key, instance.ErrIllegalState, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.live[key]; ok {
		return instance.NewError("cache.insert", key, instance.ErrIllegalState, errors.New("duplicate key"))
	}
	inst.SetValid(true)
	c.live[key] = inst
	c.lru.Add(key)
	return nil
}

// Remove drops key from the cache and returns the instance that was live.
// Removing an absent key is a no-op. The caller decides the instance's fate.
func (c *Cache) Remove(key string) (*instance.Instance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inst, ok := c.live[key]
	if !ok {
		return nil, false
	}
	delete(c.live, key)
	c.lru.Remove(key)
	return inst, true
}

// Peek returns the live instance for key without activation or recency
// promotion.
func (c *Cache) Peek(key string) (*instance.Instance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.live[key]
	return inst, ok
}

// IsActive reports whether key has a live instance.
func (c *Cache) IsActive(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live[key]
	return ok
}

// Len returns the number of live instances.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// Capacity returns the eviction policy's target capacity.
func (c *Cache) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Capacity()
}

// Keys returns live keys from least to most recently used.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	s := Stats{
		State:    c.State(),
		Live:     len(c.live),
		Capacity: c.lru.Capacity(),
		Eviction: c.lru.Stats(),
	}
	c.mu.Unlock()
	s.Pool = c.pool.Stats()
	return s
}

var _ eviction.Target = (*Cache)(nil)
