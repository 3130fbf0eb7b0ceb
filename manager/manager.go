package manager

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/instancecache/cache"
	"github.com/jonwraymond/instancecache/config"
	"github.com/jonwraymond/instancecache/health"
	"github.com/jonwraymond/instancecache/instance"
	"github.com/jonwraymond/instancecache/observe"
	"github.com/jonwraymond/instancecache/pool"
	"github.com/jonwraymond/instancecache/store"
	"github.com/jonwraymond/instancecache/txn"
)

const redisPingTimeout = 5 * time.Second

// Options supplies what configuration cannot describe.
type Options struct {
	// Factory creates the state of pooled instances. Required.
	Factory instance.Factory

	// Codec converts state to snapshot data. Default: store.JSONCodec
	Codec store.Codec

	// Oracle may veto passivation per key. Default: instance.AlwaysEligible
	Oracle instance.EligibilityOracle

	// Observer provides telemetry. When nil one is built from the
	// configuration and shut down with the manager.
	Observer observe.Observer

	// RedisClient is used by the Redis backend and listener. When nil one
	// is dialed from the configuration and closed with the manager.
	RedisClient redis.UniversalClient
}

// Manager owns an assembled instance cache.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Lifecycle: Start may be called once; Shutdown is idempotent.
type Manager struct {
	config config.Config
	log    observe.Logger

	observer    observe.Observer
	ownObserver bool
	redis       redis.UniversalClient
	ownRedis    bool

	store       *store.Store
	pool        *pool.Pool
	cache       *cache.Cache
	coordinator *txn.Coordinator
	listener    *store.Listener
	health      *health.Aggregator

	mu       sync.Mutex
	shutdown bool
}

// New assembles a Manager from cfg. The configuration is validated first.
func New(ctx context.Context, cfg config.Config, opts Options) (*Manager, error) {
	if opts.Factory == nil {
		return nil, ErrNilFactory
	}
	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}

	m := &Manager{config: cfg}
	if err := m.build(ctx, opts); err != nil {
		_ = m.release(context.WithoutCancel(ctx))
		return nil, err
	}
	return m, nil
}

func (m *Manager) build(ctx context.Context, opts Options) error {
	cfg := m.config

	if err := m.setupObserver(ctx, opts.Observer); err != nil {
		return err
	}
	mw, err := observe.MiddlewareFromObserver(m.observer)
	if err != nil {
		return fmt.Errorf("manager: metrics: %w", err)
	}
	m.log = mw.Logger()

	backend, err := m.setupBackend(ctx, opts.RedisClient)
	if err != nil {
		return err
	}
	storeCfg := cfg.StoreConfig(m.log)
	storeCfg.Codec = opts.Codec
	if m.store, err = store.New(backend, storeCfg); err != nil {
		return fmt.Errorf("manager: store: %w", err)
	}

	if m.pool, err = pool.New(cfg.PoolConfig(opts.Factory, m.log, mw.Metrics())); err != nil {
		return fmt.Errorf("manager: pool: %w", err)
	}

	m.cache, err = cache.New(cache.Config{
		Name:         cfg.Name,
		Pool:         m.pool,
		Activator:    m.store,
		Passivator:   m.store,
		Oracle:       opts.Oracle,
		Eviction:     cfg.EvictionConfig(),
		Remover:      m.store,
		NonReentrant: cfg.Cache.NonReentrant,
		Logger:       m.log,
		Metrics:      mw.Metrics(),
		Tracer:       mw.Tracer(),
	})
	if err != nil {
		return fmt.Errorf("manager: cache: %w", err)
	}

	txnCfg, err := cfg.TxnConfig(m.log)
	if err != nil {
		return fmt.Errorf("manager: %w", err)
	}
	m.coordinator = txn.New(m.cache, txnCfg)
	m.cache.SetEnlister(m.coordinator)

	if cfg.Store.Listener.Enabled && m.redis != nil {
		if m.listener, err = store.NewListener(m.redis, m.cache, cfg.ListenerConfig(m.log)); err != nil {
			return fmt.Errorf("manager: listener: %w", err)
		}
	}

	m.setupHealth()
	return nil
}

func (m *Manager) setupObserver(ctx context.Context, obs observe.Observer) error {
	if obs != nil {
		m.observer = obs
		return nil
	}
	obs, err := observe.NewObserver(ctx, m.config.Observe)
	if err != nil {
		return fmt.Errorf("manager: observer: %w", err)
	}
	m.observer, m.ownObserver = obs, true
	return nil
}

func (m *Manager) setupBackend(ctx context.Context, client redis.UniversalClient) (store.Backend, error) {
	if m.config.Store.Backend != "redis" {
		return store.NewMemoryBackend(), nil
	}
	if client == nil {
		client = redis.NewClient(m.config.RedisOptions())
		m.ownRedis = true
	}
	m.redis = client

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("manager: redis ping %s: %w", m.config.Store.Redis.Addr, err)
	}

	backend, err := store.NewRedisBackend(client, m.config.RedisBackendConfig())
	if err != nil {
		return nil, fmt.Errorf("manager: redis backend: %w", err)
	}
	m.log.Info(ctx, "redis snapshot backend connected",
		observe.F("addr", m.config.Store.Redis.Addr),
		observe.F("prefix", m.config.Store.Redis.Prefix),
	)
	return backend, nil
}

func (m *Manager) setupHealth() {
	m.health = health.NewAggregator(health.AggregatorConfig{Timeout: m.config.Health.CheckTimeout})
	m.health.Register(health.NewCacheChecker("cache", m.cache))
	m.health.Register(health.NewPoolChecker("pool", m.pool, m.config.Health.PoolWarnRatio))
	m.health.Register(health.NewBreakerChecker("store_circuit", m.store.Breaker()))
	m.health.Register(health.NewPingChecker("store_backend", m.store.Ping))
}

// Start prefills the pool and launches the cache sweeps, the commit option
// D refresher and the invalidation listener.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return ErrShutdown
	}

	if n := m.config.Pool.Prefill; n > 0 {
		created, err := m.pool.Prefill(ctx, n)
		if err != nil {
			return fmt.Errorf("manager: prefill: %w", err)
		}
		m.log.Debug(ctx, "pool prefilled", observe.F("count", created))
	}
	if err := m.cache.Start(ctx); err != nil {
		return fmt.Errorf("manager: %w", err)
	}
	m.coordinator.Start(context.WithoutCancel(ctx))
	if m.listener != nil {
		if err := m.listener.Start(ctx); err != nil {
			m.coordinator.Stop()
			_ = m.cache.Stop()
			return fmt.Errorf("manager: %w", err)
		}
	}
	m.log.Info(ctx, "instance cache manager started",
		observe.F("cache", m.config.Name),
		observe.F("backend", m.config.Store.Backend),
		observe.F("commit_option", m.coordinator.Option().String()),
	)
	return nil
}

// Shutdown stops background work, destroys the cache and releases owned
// clients. It returns the joined errors of each step.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return nil
	}
	m.shutdown = true
	return m.release(ctx)
}

func (m *Manager) release(ctx context.Context) error {
	var errs []error
	if m.listener != nil {
		errs = append(errs, m.listener.Close())
	}
	if m.coordinator != nil {
		m.coordinator.Stop()
	}
	switch {
	case m.cache != nil:
		errs = append(errs, m.cache.Destroy(ctx))
	case m.pool != nil:
		m.pool.Close(ctx)
	}
	if m.ownRedis && m.redis != nil {
		errs = append(errs, m.redis.Close())
	}
	if m.log != nil {
		m.log.Info(ctx, "instance cache manager shut down", observe.F("cache", m.config.Name))
	}
	if m.ownObserver && m.observer != nil {
		errs = append(errs, m.observer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Notify invalidates key in every cache subscribed to the invalidation
// channel, or only locally when no Redis client is configured. Passing
// store.InvalidateAllMessage invalidates everything.
func (m *Manager) Notify(ctx context.Context, key string) error {
	if m.redis != nil && m.config.Store.Listener.Enabled {
		return store.Notify(ctx, m.redis, m.config.Store.Listener.Channel, key)
	}
	if key == store.InvalidateAllMessage {
		m.cache.InvalidateAll()
		return nil
	}
	m.cache.Invalidate(key)
	return nil
}

// Config returns the validated configuration.
func (m *Manager) Config() config.Config { return m.config }

// Cache returns the managed cache.
func (m *Manager) Cache() *cache.Cache { return m.cache }

// Pool returns the instance pool.
func (m *Manager) Pool() *pool.Pool { return m.pool }

// Store returns the snapshot store.
func (m *Manager) Store() *store.Store { return m.store }

// Coordinator returns the transaction coordinator.
func (m *Manager) Coordinator() *txn.Coordinator { return m.coordinator }

// Listener returns the invalidation listener, or nil when disabled.
func (m *Manager) Listener() *store.Listener { return m.listener }

// Health returns the health aggregator.
func (m *Manager) Health() *health.Aggregator { return m.health }

// Handler serves the health endpoints and, when metrics are exported to
// Prometheus, /metrics.
func (m *Manager) Handler() http.Handler {
	mux := http.NewServeMux()
	probes := health.Handler(m.health)
	for _, path := range []string{"/healthz", "/readyz", "/health"} {
		mux.Handle(path, probes)
	}
	if mh := m.observer.MetricsHandler(); mh != nil {
		mux.Handle("GET /metrics", mh)
	}
	return mux
}
