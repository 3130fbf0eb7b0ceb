package config

import (
	"time"

	"github.com/jonwraymond/instancecache/observe"
)

// Config is the root configuration.
type Config struct {
	Name     string         `koanf:"name"     validate:"required"`
	Observe  observe.Config `koanf:"observe"`
	Pool     PoolConfig     `koanf:"pool"`
	Eviction EvictionConfig `koanf:"eviction"`
	Cache    CacheConfig    `koanf:"cache"`
	Txn      TxnConfig      `koanf:"txn"`
	Store    StoreConfig    `koanf:"store"`
	Health   HealthConfig   `koanf:"health"`
}

// PoolConfig configures the instance pool.
type PoolConfig struct {
	Component      string        `koanf:"component"       validate:"required"`
	MaxSize        int           `koanf:"max_size"        validate:"min=1"`
	Strict         bool          `koanf:"strict"`
	AcquireTimeout time.Duration `koanf:"acquire_timeout" validate:"gte=0"`
	Prefill        int           `koanf:"prefill"         validate:"gte=0,ltefield=MaxSize"`
}

// EvictionConfig configures the LRU policy and its sweeps.
type EvictionConfig struct {
	MinCapacity     int           `koanf:"min_capacity"     validate:"min=1"`
	MaxCapacity     int           `koanf:"max_capacity"     validate:"gtefield=MinCapacity"`
	InitialCapacity int           `koanf:"initial_capacity" validate:"gte=0"`
	ResizerPeriod   time.Duration `koanf:"resizer_period"   validate:"gte=0"`
	MinMissPeriod   time.Duration `koanf:"min_miss_period"  validate:"gt=0"`
	MaxMissPeriod   time.Duration `koanf:"max_miss_period"  validate:"gtefield=MinMissPeriod"`
	LoadFactor      float64       `koanf:"load_factor"      validate:"gt=0,lte=1"`
	OveragerPeriod  time.Duration `koanf:"overager_period"  validate:"gte=0"`
	MaxAge          time.Duration `koanf:"max_age"          validate:"gt=0"`
	RemoverPeriod   time.Duration `koanf:"remover_period"   validate:"gte=0"`
	MaxSnapshotAge  time.Duration `koanf:"max_snapshot_age" validate:"gt=0"`
}

// CacheConfig configures the instance cache.
type CacheConfig struct {
	NonReentrant bool `koanf:"non_reentrant"`
}

// TxnConfig configures the transaction coordinator.
type TxnConfig struct {
	CommitOption  string        `koanf:"commit_option"  validate:"oneof=A B C D a b c d"`
	RefreshPeriod time.Duration `koanf:"refresh_period" validate:"gt=0"`
}

// StoreConfig configures the snapshot store.
type StoreConfig struct {
	Backend         string         `koanf:"backend"           validate:"oneof=memory redis"`
	CreateOnMissing bool           `koanf:"create_on_missing"`
	OpTimeout       time.Duration  `koanf:"op_timeout"        validate:"gte=0"`
	Retry           RetryConfig    `koanf:"retry"`
	Breaker         BreakerConfig  `koanf:"breaker"`
	Redis           RedisConfig    `koanf:"redis"`
	Listener        ListenerConfig `koanf:"listener"`
}

// RetryConfig configures retries of snapshot backend calls.
type RetryConfig struct {
	MaxAttempts  int           `koanf:"max_attempts"  validate:"min=1"`
	InitialDelay time.Duration `koanf:"initial_delay" validate:"gt=0"`
	MaxDelay     time.Duration `koanf:"max_delay"     validate:"gtefield=InitialDelay"`
	Jitter       bool          `koanf:"jitter"`
}

// BreakerConfig configures the snapshot backend circuit breaker.
type BreakerConfig struct {
	MaxFailures  int           `koanf:"max_failures"  validate:"min=1"`
	ResetTimeout time.Duration `koanf:"reset_timeout" validate:"gt=0"`
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr     string `koanf:"addr"     validate:"required"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"       validate:"gte=0"`
	Prefix   string `koanf:"prefix"   validate:"required"`
}

// ListenerConfig configures the Redis invalidation listener.
type ListenerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Channel string `koanf:"channel" validate:"required"`
}

// HealthConfig configures health checks.
type HealthConfig struct {
	PoolWarnRatio float64       `koanf:"pool_warn_ratio" validate:"gt=0,lte=1"`
	CheckTimeout  time.Duration `koanf:"check_timeout"   validate:"gt=0"`
}

// Default returns the configuration used when no source overrides a value.
func Default() Config {
	return Config{
		Name: "instances",
		Observe: observe.Config{
			ServiceName: "instancecache",
			Tracing:     observe.TracingConfig{Exporter: "none", SamplePct: 1.0},
			Metrics:     observe.MetricsConfig{Exporter: "none"},
			Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
		},
		Pool: PoolConfig{
			Component: "instance",
			MaxSize:   30,
		},
		Eviction: EvictionConfig{
			MinCapacity:    100,
			MaxCapacity:    1000,
			MinMissPeriod:  time.Second,
			MaxMissPeriod:  time.Minute,
			LoadFactor:     0.75,
			MaxAge:         10 * time.Minute,
			MaxSnapshotAge: 24 * time.Hour,
		},
		Txn: TxnConfig{
			CommitOption:  "A",
			RefreshPeriod: 30 * time.Second,
		},
		Store: StoreConfig{
			Backend:   "memory",
			OpTimeout: 2 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: 50 * time.Millisecond,
				MaxDelay:     2 * time.Second,
				Jitter:       true,
			},
			Breaker: BreakerConfig{
				MaxFailures:  5,
				ResetTimeout: 30 * time.Second,
			},
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "instancecache",
			},
			Listener: ListenerConfig{
				Channel: "instancecache:invalidate",
			},
		},
		Health: HealthConfig{
			PoolWarnRatio: 0.9,
			CheckTimeout:  2 * time.Second,
		},
	}
}
