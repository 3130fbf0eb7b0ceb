package eviction

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/instancecache/instance"
	"github.com/jonwraymond/instancecache/observe"
)

// Target is the cache the Overager passivates into.
//
// Contract:
//   - TryPassivate must not block on a key lock held by another caller; it
//     reports false when the entry was skipped.
//   - Called without the structural lock held.
type Target interface {
	TryPassivate(ctx context.Context, key string) (bool, error)
}

// SnapshotRemover deletes passivated snapshots stored before cutoff.
type SnapshotRemover interface {
	RemoveExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// Sweeper runs the periodic Resizer, Overager and Remover tasks for an LRU.
//
// Contract:
// - Concurrency: Start and Stop are safe to call from any goroutine.
// - Lifecycle: tasks check for cancellation before every action and exit
//   when Stop is called.
type Sweeper struct {
	policy  *LRU
	mu      sync.Locker
	target  Target
	remover SnapshotRemover
	log     observe.Logger
	metrics observe.Metrics

	runMu  sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewSweeper creates a Sweeper. mu is the lock that guards policy. remover
// may be nil.
func NewSweeper(policy *LRU, mu sync.Locker, target Target, remover SnapshotRemover) *Sweeper {
	return &Sweeper{
		policy:  policy,
		mu:      mu,
		target:  target,
		remover: remover,
		log:     policy.log,
		metrics: observe.MetricsOrNop(policy.config.Metrics),
	}
}

// Start launches the enabled tasks. Tasks whose period is zero are skipped.
func (s *Sweeper) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	cfg := s.policy.config

	if cfg.ResizerPeriod > 0 {
		g.Go(func() error {
			return s.every(gctx, cfg.ResizerPeriod, func(context.Context) { s.Resize(cfg.ResizerPeriod) })
		})
	}
	if cfg.OveragerPeriod > 0 && s.target != nil {
		g.Go(func() error {
			return s.every(gctx, cfg.OveragerPeriod, func(ctx context.Context) { s.Overage(ctx) })
		})
	}
	if cfg.RemoverPeriod > 0 && s.remover != nil {
		g.Go(func() error {
			return s.every(gctx, cfg.RemoverPeriod, func(ctx context.Context) { s.RemoveExpired(ctx) })
		})
	}

	s.cancel, s.group = cancel, g
	return nil
}

// Stop cancels every task and waits for them to return.
func (s *Sweeper) Stop() error {
	s.runMu.Lock()
	cancel, g := s.cancel, s.group
	s.cancel, s.group = nil, nil
	s.runMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (s *Sweeper) every(ctx context.Context, period time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fn(ctx)
		}
	}
}

// Resize runs one resizer step.
func (s *Sweeper) Resize(period time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy.Adjust(period)
}

// Overage runs one overager pass and returns how many entries were passivated.
func (s *Sweeper) Overage(ctx context.Context) int {
	now := s.policy.config.Now()

	s.mu.Lock()
	candidates := s.policy.Candidates(now)
	s.mu.Unlock()

	passivated := 0
	for _, key := range candidates {
		if ctx.Err() != nil {
			break
		}
		ok, err := s.target.TryPassivate(ctx, key)
		if errors.Is(err, instance.ErrClosed) {
			break
		}
		if err != nil {
			s.log.Warn(ctx, "overager passivation failed", observe.F("key", key), observe.F("error", err))
			continue
		}
		if !ok {
			s.log.Debug(ctx, "overager skipped entry", observe.F("key", key))
			continue
		}
		passivated++
		s.metrics.RecordEviction(ctx, s.policy.meta, "overage")
	}
	return passivated
}

// RemoveExpired runs one remover pass.
func (s *Sweeper) RemoveExpired(ctx context.Context) int {
	if s.remover == nil {
		return 0
	}
	cutoff := s.policy.config.Now().Add(-s.policy.config.MaxSnapshotAge)
	n, err := s.remover.RemoveExpired(ctx, cutoff)
	if err != nil {
		s.log.Warn(ctx, "snapshot removal failed", observe.F("error", err))
		return n
	}
	if n > 0 {
		s.log.Info(ctx, "expired snapshots removed", observe.F("count", n))
	}
	return n
}
