package health

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonwraymond/instancecache/cache"
	"github.com/jonwraymond/instancecache/pool"
	"github.com/jonwraymond/instancecache/resilience"
)

// PoolSource exposes pool statistics.
type PoolSource interface {
	Stats() pool.Stats
}

// PoolChecker reports instance pool saturation.
type PoolChecker struct {
	name      string
	source    PoolSource
	warnRatio float64

	mu           sync.Mutex
	lastTimeouts int64
}

// NewPoolChecker creates a PoolChecker. warnRatio outside (0, 1] defaults
// to 0.9.
func NewPoolChecker(name string, source PoolSource, warnRatio float64) *PoolChecker {
	if warnRatio <= 0 || warnRatio > 1 {
		warnRatio = 0.9
	}
	return &PoolChecker{name: name, source: source, warnRatio: warnRatio}
}

// Name implements Checker.
func (p *PoolChecker) Name() string { return p.name }

// Check implements Checker.
func (p *PoolChecker) Check(context.Context) Result {
	s := p.source.Stats()

	p.mu.Lock()
	newTimeouts := s.Timeouts - p.lastTimeouts
	p.lastTimeouts = s.Timeouts
	p.mu.Unlock()

	ratio := 0.0
	if s.MaxSize > 0 {
		ratio = float64(s.CheckedOut) / float64(s.MaxSize)
	}
	details := map[string]any{
		"pooled":       s.Pooled,
		"checked_out":  s.CheckedOut,
		"max_size":     s.MaxSize,
		"strict":       s.Strict,
		"created":      s.Created,
		"discarded":    s.Discarded,
		"timeouts":     s.Timeouts,
		"new_timeouts": newTimeouts,
	}

	switch {
	case newTimeouts > 0:
		return Unhealthy(fmt.Sprintf("%d acquire timeouts since last check", newTimeouts), ErrCheckFailed).WithDetails(details)
	case s.Strict && ratio >= p.warnRatio:
		return Degraded(fmt.Sprintf("pool %.0f%% checked out", ratio*100)).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("pool %.0f%% checked out", ratio*100)).WithDetails(details)
	}
}

// CacheSource exposes cache statistics.
type CacheSource interface {
	Stats() cache.Stats
}

// CacheChecker reports cache lifecycle and capacity overflow.
type CacheChecker struct {
	name   string
	source CacheSource
}

// NewCacheChecker creates a CacheChecker.
func NewCacheChecker(name string, source CacheSource) *CacheChecker {
	return &CacheChecker{name: name, source: source}
}

// Name implements Checker.
func (c *CacheChecker) Name() string { return c.name }

// Check implements Checker.
func (c *CacheChecker) Check(context.Context) Result {
	s := c.source.Stats()
	details := map[string]any{
		"state":            s.State.String(),
		"live":             s.Live,
		"capacity":         s.Capacity,
		"misses":           s.Eviction.Misses,
		"overflow_growths": s.Eviction.OverflowGrowths,
		"grows":            s.Eviction.Grows,
		"shrinks":          s.Eviction.Shrinks,
	}

	switch {
	case s.State == cache.StateDestroyed:
		return Unhealthy("cache destroyed", ErrCheckFailed).WithDetails(details)
	case s.State == cache.StateStopped:
		return Degraded("cache stopped").WithDetails(details)
	case s.Live > s.Capacity:
		return Degraded(fmt.Sprintf("%d live entries over capacity %d", s.Live, s.Capacity)).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("%d/%d live", s.Live, s.Capacity)).WithDetails(details)
	}
}

// BreakerChecker reports the state of a circuit breaker.
type BreakerChecker struct {
	name    string
	breaker *resilience.CircuitBreaker
}

// NewBreakerChecker creates a BreakerChecker.
func NewBreakerChecker(name string, breaker *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{name: name, breaker: breaker}
}

// Name implements Checker.
func (b *BreakerChecker) Name() string { return b.name }

// Check implements Checker.
func (b *BreakerChecker) Check(context.Context) Result {
	s := b.breaker.Stats()
	details := map[string]any{
		"state":    s.State.String(),
		"failures": s.Failures,
		"rejected": s.Rejected,
	}
	if s.LastError != nil {
		details["last_error"] = s.LastError.Error()
	}

	switch s.State {
	case resilience.StateOpen:
		return Unhealthy("circuit open", s.LastError).WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded("circuit half-open").WithDetails(details)
	default:
		return Healthy("circuit closed").WithDetails(details)
	}
}

// PingChecker reports whether a ping function succeeds.
type PingChecker struct {
	name string
	ping func(context.Context) error
}

// NewPingChecker creates a PingChecker.
func NewPingChecker(name string, ping func(context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

// Name implements Checker.
func (p *PingChecker) Name() string { return p.name }

// Check implements Checker.
func (p *PingChecker) Check(ctx context.Context) Result {
	if err := p.ping(ctx); err != nil {
		return Unhealthy("ping failed", err)
	}
	return Healthy("ping ok")
}

var (
	_ Checker = (*PoolChecker)(nil)
	_ Checker = (*CacheChecker)(nil)
	_ Checker = (*BreakerChecker)(nil)
	_ Checker = (*PingChecker)(nil)
)
