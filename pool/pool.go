package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jonwraymond/instancecache/instance"
	"github.com/jonwraymond/instancecache/observe"
)

// Config configures a Pool.
type Config struct {
	// Component names the instance type. Default: "instance"
	Component string

	// Cache optionally names the owning cache for telemetry.
	Cache string

	// MaxSize bounds the free list and, when Strict, checked-out instances.
	// Default: 30
	MaxSize int

	// Strict bounds checked-out instances with FIFO permits.
	Strict bool

	// AcquireTimeout bounds the wait for a strict permit.
	// Default: 0 (wait until ctx is done)
	AcquireTimeout time.Duration

	// Factory creates state for new instances. Required. If it also
	// implements instance.Destroyer, discarded instances are torn down with it.
	Factory instance.Factory

	Logger  observe.Logger
	Metrics observe.Metrics
}

// Stats is a point-in-time view of a Pool.
type Stats struct {
	Pooled     int
	CheckedOut int
	MaxSize    int
	Strict     bool
	Created    int64
	Discarded  int64
	Timeouts   int64
}

// Pool is a bounded reservoir of anonymous instances.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Ownership: every Acquire must be paired with exactly one Release or Discard.
type Pool struct {
	config  Config
	meta    observe.ComponentMeta
	log     observe.Logger
	metrics observe.Metrics
	sem     *semaphore.Weighted

	mu         sync.Mutex
	free       []*instance.Instance
	checkedOut int
	created    int64
	discarded  int64
	timeouts   int64
	unobserve  []func() error
}

// New creates a Pool.
func New(config Config) (*Pool, error) {
	if config.Factory == nil {
		return nil, ErrNilFactory
	}
	if config.MaxSize <= 0 {
		config.MaxSize = 30
	}
	if config.Component == "" {
		config.Component = "instance"
	}

	p := &Pool{
		config:  config,
		meta:    observe.ComponentMeta{Cache: config.Cache, Component: config.Component},
		metrics: observe.MetricsOrNop(config.Metrics),
		free:    make([]*instance.Instance, 0, config.MaxSize),
	}
	p.log = observe.LoggerOrNop(config.Logger).WithComponent(p.meta)
	if config.Strict {
		p.sem = semaphore.NewWeighted(int64(config.MaxSize))
	}

	p.observe("pooled", func() int64 { return int64(p.Len()) })
	p.observe("checked_out", func() int64 { return int64(p.Stats().CheckedOut) })
	return p, nil
}

func (p *Pool) observe(kind string, fn func() int64) {
	unregister, err := p.metrics.ObserveSize(p.meta, kind, fn)
	if err != nil {
		p.log.Warn(context.Background(), "size gauge registration failed", observe.F("kind", kind), observe.F("error", err))
		return
	}
	p.unobserve = append(p.unobserve, unregister)
}

// Component returns the component name of pooled instances.
func (p *Pool) Component() string { return p.config.Component }

// Acquire returns a pooled instance, or a new one when the free list is empty.
func (p *Pool) Acquire(ctx context.Context) (*instance.Instance, error) {
	start := time.Now()
	inst, err := p.acquire(ctx)
	p.metrics.RecordPoolAcquire(ctx, p.meta, time.Since(start), err)
	return inst, err
}

func (p *Pool) acquire(ctx context.Context) (*instance.Instance, error) {
	if p.sem != nil {
		if err := p.acquirePermit(ctx); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	if n := len(p.free); n > 0 {
		inst := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.checkedOut++
		p.mu.Unlock()
		return inst, nil
	}
	p.mu.Unlock()

	state, err := p.config.Factory.Create(ctx)
	if err != nil {
		if p.sem != nil {
			p.sem.Release(1)
		}
		return nil, instance.NewError("pool.acquire", "", instance.ErrCreation, err)
	}

	p.mu.Lock()
	p.created++
	p.checkedOut++
	p.mu.Unlock()
	return instance.New(p.config.Component, state), nil
}

func (p *Pool) acquirePermit(ctx context.Context) error {
	actx := ctx
	if p.config.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, p.config.AcquireTimeout)
		defer cancel()
	}

	err := p.sem.Acquire(actx, 1)
	if err == nil {
		return nil
	}

	p.mu.Lock()
	p.timeouts++
	p.mu.Unlock()

	cause := instance.ErrTimeout
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
		cause = ctxErr
	}
	p.log.Debug(ctx, "pool permit wait failed", observe.F("error", cause))
	return instance.NewError("pool.acquire", "", instance.ErrPoolExhausted, cause)
}

// Release resets inst, gives it fresh Factory state and returns it to the
// free list. It tears the instance down instead when the free list is full
// or the Factory fails.
func (p *Pool) Release(ctx context.Context, inst *instance.Instance) {
	inst.Reset()

	p.mu.Lock()
	full := len(p.free) >= p.config.MaxSize
	p.mu.Unlock()
	if full || !p.renew(ctx, inst) {
		p.Discard(ctx, inst)
		return
	}

	p.mu.Lock()
	p.checkedOut--
	if len(p.free) < p.config.MaxSize {
		p.free = append(p.free, inst)
		p.mu.Unlock()
		p.releasePermit()
		return
	}
	p.discarded++
	p.mu.Unlock()

	p.destroy(ctx, inst)
	p.releasePermit()
}

// renew replaces inst's state so nothing of the previous key survives on
// the free list. The replaced state is dropped without Destroy.
func (p *Pool) renew(ctx context.Context, inst *instance.Instance) bool {
	state, err := p.config.Factory.Create(ctx)
	if err != nil {
		p.log.Warn(ctx, "pooled state renewal failed", observe.F("error", err))
		return false
	}
	inst.SetState(state)
	return true
}

// Discard tears down a checked-out instance without returning it to the
// free list.
func (p *Pool) Discard(ctx context.Context, inst *instance.Instance) {
	p.mu.Lock()
	p.checkedOut--
	p.discarded++
	p.mu.Unlock()

	p.destroy(ctx, inst)
	p.releasePermit()
}

// Prefill creates up to n instances on the free list without checking them
// out. It stops at the first creation error and returns how many were added.
func (p *Pool) Prefill(ctx context.Context, n int) (int, error) {
	added := 0
	for added < n {
		p.mu.Lock()
		room := p.config.MaxSize - len(p.free) - p.checkedOut
		p.mu.Unlock()
		if room <= 0 {
			break
		}

		state, err := p.config.Factory.Create(ctx)
		if err != nil {
			return added, instance.NewError("pool.prefill", "", instance.ErrCreation, err)
		}

		p.mu.Lock()
		p.created++
		p.free = append(p.free, instance.New(p.config.Component, state))
		p.mu.Unlock()
		added++
	}
	return added, nil
}

// Clear tears down every pooled instance and returns how many were removed.
// Checked-out instances are unaffected.
func (p *Pool) Clear(ctx context.Context) int {
	p.mu.Lock()
	free := p.free
	p.free = make([]*instance.Instance, 0, p.config.MaxSize)
	p.discarded += int64(len(free))
	p.mu.Unlock()

	for _, inst := range free {
		p.destroy(ctx, inst)
	}
	return len(free)
}

// Close clears the pool and unregisters its size gauges.
func (p *Pool) Close(ctx context.Context) {
	p.Clear(ctx)

	p.mu.Lock()
	unobserve := p.unobserve
	p.unobserve = nil
	p.mu.Unlock()

	for _, fn := range unobserve {
		_ = fn()
	}
}

// Len returns the number of instances on the free list.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Pooled:     len(p.free),
		CheckedOut: p.checkedOut,
		MaxSize:    p.config.MaxSize,
		Strict:     p.config.Strict,
		Created:    p.created,
		Discarded:  p.discarded,
		Timeouts:   p.timeouts,
	}
}

func (p *Pool) releasePermit() {
	if p.sem != nil {
		p.sem.Release(1)
	}
}

func (p *Pool) destroy(ctx context.Context, inst *instance.Instance) {
	p.metrics.RecordPoolDiscard(ctx, p.meta)

	d, ok := p.config.Factory.(instance.Destroyer)
	if !ok {
		return
	}
	if err := d.Destroy(ctx, inst); err != nil {
		p.log.Warn(ctx, "instance teardown failed", observe.F("error", err))
	}
}
