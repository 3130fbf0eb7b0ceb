package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/instancecache/eviction"
	"github.com/jonwraymond/instancecache/instance"
	"github.com/jonwraymond/instancecache/observe"
	"github.com/jonwraymond/instancecache/resilience"
)

// Config configures a Store.
type Config struct {
	// Codec converts state to snapshot data. Default: JSONCodec
	Codec Codec

	// CreateOnMissing activates keys without a snapshot with the pooled
	// instance's fresh state instead of failing.
	CreateOnMissing bool

	// Retry configures retries of backend calls.
	Retry resilience.RetryConfig

	// Breaker configures the circuit breaker around the backend.
	Breaker resilience.CircuitBreakerConfig

	// OpTimeout bounds each backend attempt. Zero disables it.
	OpTimeout time.Duration

	Logger observe.Logger

	// Now is the clock used for StoredAt. Default: time.Now
	Now func() time.Time
}

// Store implements activation and passivation over a Backend.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: Activate errors for unknown keys match ErrSnapshotNotFound.
type Store struct {
	backend Backend
	config  Config
	exec    *resilience.Executor
	log     observe.Logger
}

// New creates a Store over backend.
func New(backend Backend, config Config) (*Store, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	if config.Codec == nil {
		config.Codec = JSONCodec{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	log := observe.LoggerOrNop(config.Logger)

	retry := config.Retry
	if retry.RetryIf == nil {
		retry.RetryIf = func(err error) bool {
			return !errors.Is(err, ErrSnapshotNotFound) && resilience.Transient(err)
		}
	}
	if retry.OnRetry == nil {
		retry.OnRetry = func(attempt int, err error, delay time.Duration) {
			log.Warn(context.Background(), "snapshot backend retry",
				observe.F("attempt", attempt), observe.F("delay", delay.String()), observe.F("error", err))
		}
	}
	breaker := config.Breaker
	if breaker.IsFailure == nil {
		breaker.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, ErrSnapshotNotFound) && !errors.Is(err, context.Canceled)
		}
	}
	if breaker.OnStateChange == nil {
		breaker.OnStateChange = func(from, to resilience.State) {
			log.Warn(context.Background(), "snapshot backend circuit changed",
				observe.F("from", from.String()), observe.F("to", to.String()))
		}
	}

	return &Store{
		backend: backend,
		config:  config,
		log:     log,
		exec: resilience.NewExecutor(
			resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(breaker)),
			resilience.WithRetry(resilience.NewRetry(retry)),
			resilience.WithTimeout(config.OpTimeout),
		),
	}, nil
}

// Activate loads key's snapshot into inst.
func (s *Store) Activate(ctx context.Context, inst *instance.Instance) error {
	key := inst.Key()

	var snap Snapshot
	err := s.exec.Execute(ctx, func(ctx context.Context) error {
		var err error
		snap, err = s.backend.Load(ctx, key)
		return err
	})
	if errors.Is(err, ErrSnapshotNotFound) && s.config.CreateOnMissing {
		return nil
	}
	if err != nil {
		return err
	}
	if snap.Component != "" && snap.Component != inst.Component() {
		return fmt.Errorf("%w: %q stored for %q, activating %q", ErrComponentMismatch, key, snap.Component, inst.Component())
	}

	state, err := s.config.Codec.Decode(snap.Data, inst.State())
	if err != nil {
		return fmt.Errorf("store: decode %q: %w", key, err)
	}
	inst.SetState(state)
	return nil
}

// Passivate saves inst's state as a snapshot.
func (s *Store) Passivate(ctx context.Context, inst *instance.Instance) error {
	data, err := s.config.Codec.Encode(inst.State())
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", inst.Key(), err)
	}
	snap := Snapshot{
		Key:       inst.Key(),
		Component: inst.Component(),
		Data:      data,
		StoredAt:  s.config.Now(),
	}
	return s.exec.Execute(ctx, func(ctx context.Context) error {
		return s.backend.Save(ctx, snap)
	})
}

// Remove deletes key's snapshot.
func (s *Store) Remove(ctx context.Context, key string) error {
	return s.exec.Execute(ctx, func(ctx context.Context) error {
		return s.backend.Delete(ctx, key)
	})
}

// RemoveExpired deletes snapshots stored at or before cutoff.
func (s *Store) RemoveExpired(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := s.exec.Execute(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.backend.RemoveExpired(ctx, cutoff)
		return err
	})
	if n > 0 {
		s.log.Info(ctx, "expired snapshots removed", observe.F("count", n), observe.F("cutoff", cutoff))
	}
	return n, err
}

// Ping checks the backend without the circuit breaker.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Breaker returns the circuit breaker guarding the backend.
func (s *Store) Breaker() *resilience.CircuitBreaker {
	return s.exec.CircuitBreaker()
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend { return s.backend }

var (
	_ instance.Activator       = (*Store)(nil)
	_ instance.Passivator      = (*Store)(nil)
	_ eviction.SnapshotRemover = (*Store)(nil)
)
