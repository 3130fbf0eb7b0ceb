package config

import (
	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/instancecache/eviction"
	"github.com/jonwraymond/instancecache/instance"
	"github.com/jonwraymond/instancecache/observe"
	"github.com/jonwraymond/instancecache/pool"
	"github.com/jonwraymond/instancecache/resilience"
	"github.com/jonwraymond/instancecache/store"
	"github.com/jonwraymond/instancecache/txn"
)

// PoolConfig returns the pool configuration for factory.
func (c *Config) PoolConfig(factory instance.Factory, logger observe.Logger, metrics observe.Metrics) pool.Config {
	return pool.Config{
		Component:      c.Pool.Component,
		Cache:          c.Name,
		MaxSize:        c.Pool.MaxSize,
		Strict:         c.Pool.Strict,
		AcquireTimeout: c.Pool.AcquireTimeout,
		Factory:        factory,
		Logger:         logger,
		Metrics:        metrics,
	}
}

// EvictionConfig returns the LRU and sweep configuration.
func (c *Config) EvictionConfig() eviction.Config {
	e := c.Eviction
	return eviction.Config{
		MinCapacity:     e.MinCapacity,
		MaxCapacity:     e.MaxCapacity,
		InitialCapacity: e.InitialCapacity,
		ResizerPeriod:   e.ResizerPeriod,
		MinMissPeriod:   e.MinMissPeriod,
		MaxMissPeriod:   e.MaxMissPeriod,
		LoadFactor:      e.LoadFactor,
		OveragerPeriod:  e.OveragerPeriod,
		MaxAge:          e.MaxAge,
		RemoverPeriod:   e.RemoverPeriod,
		MaxSnapshotAge:  e.MaxSnapshotAge,
	}
}

// TxnConfig returns the coordinator configuration.
func (c *Config) TxnConfig(logger observe.Logger) (txn.Config, error) {
	opt, err := txn.ParseCommitOption(c.Txn.CommitOption)
	if err != nil {
		return txn.Config{}, err
	}
	return txn.Config{Option: opt, RefreshPeriod: c.Txn.RefreshPeriod, Logger: logger}, nil
}

// StoreConfig returns the snapshot store configuration.
func (c *Config) StoreConfig(logger observe.Logger) store.Config {
	s := c.Store
	return store.Config{
		CreateOnMissing: s.CreateOnMissing,
		OpTimeout:       s.OpTimeout,
		Retry: resilience.RetryConfig{
			MaxAttempts:  s.Retry.MaxAttempts,
			InitialDelay: s.Retry.InitialDelay,
			MaxDelay:     s.Retry.MaxDelay,
			Jitter:       s.Retry.Jitter,
		},
		Breaker: resilience.CircuitBreakerConfig{
			MaxFailures:  s.Breaker.MaxFailures,
			ResetTimeout: s.Breaker.ResetTimeout,
		},
		Logger: logger,
	}
}

// RedisOptions returns client options for the Redis backend.
func (c *Config) RedisOptions() *redis.Options {
	r := c.Store.Redis
	return &redis.Options{Addr: r.Addr, Password: r.Password, DB: r.DB}
}

// RedisBackendConfig returns the Redis backend layout configuration.
func (c *Config) RedisBackendConfig() store.RedisConfig {
	return store.RedisConfig{Prefix: c.Store.Redis.Prefix}
}

// ListenerConfig returns the invalidation listener configuration.
func (c *Config) ListenerConfig(logger observe.Logger) store.ListenerConfig {
	return store.ListenerConfig{Channel: c.Store.Listener.Channel, Logger: logger}
}
