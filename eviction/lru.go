package eviction

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/jonwraymond/instancecache/observe"
)

// Config configures an LRU policy and its sweeps.
type Config struct {
	// MinCapacity is the floor the resizer shrinks toward. Default: 100
	MinCapacity int

	// MaxCapacity is the ceiling the resizer grows toward. Default: 1000
	MaxCapacity int

	// InitialCapacity is the starting target. Default: MaxCapacity
	InitialCapacity int

	// ResizerPeriod is how often capacity is re-evaluated.
	// Default: 0 (resizer disabled)
	ResizerPeriod time.Duration

	// MinMissPeriod: an average interval between misses at or below this
	// value grows capacity. Default: 1s
	MinMissPeriod time.Duration

	// MaxMissPeriod: an average interval between misses at or above this
	// value allows shrinking. Default: 60s
	MaxMissPeriod time.Duration

	// LoadFactor is the occupancy below which capacity may shrink. Default: 0.75
	LoadFactor float64

	// OveragerPeriod is how often aged entries are passivated.
	// Default: 0 (overager disabled)
	OveragerPeriod time.Duration

	// MaxAge is the idle time after which an entry is aged. Default: 10m
	MaxAge time.Duration

	// RemoverPeriod is how often expired snapshots are deleted.
	// Default: 0 (remover disabled)
	RemoverPeriod time.Duration

	// MaxSnapshotAge is the lifetime of a passivated snapshot. Default: 24h
	MaxSnapshotAge time.Duration

	// Now returns the current time. Default: time.Now
	Now func() time.Time

	Cache     string
	Component string
	Logger    observe.Logger
	Metrics   observe.Metrics
}

func (c *Config) applyDefaults() {
	if c.MinCapacity == 0 {
		c.MinCapacity = 100
	}
	if c.MaxCapacity == 0 {
		c.MaxCapacity = 1000
	}
	if c.MaxCapacity < c.MinCapacity {
		c.MaxCapacity = c.MinCapacity
	}
	if c.InitialCapacity <= 0 {
		c.InitialCapacity = c.MaxCapacity
	}
	c.InitialCapacity = min(max(c.InitialCapacity, c.MinCapacity), c.MaxCapacity)
	if c.MinMissPeriod == 0 {
		c.MinMissPeriod = time.Second
	}
	if c.MaxMissPeriod == 0 {
		c.MaxMissPeriod = time.Minute
	}
	if c.LoadFactor == 0 {
		c.LoadFactor = 0.75
	}
	if c.MaxAge == 0 {
		c.MaxAge = 10 * time.Minute
	}
	if c.MaxSnapshotAge == 0 {
		c.MaxSnapshotAge = 24 * time.Hour
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Entry is the per-key bookkeeping kept by the policy.
type Entry struct {
	Key        string
	LastAccess time.Time
}

// Stats is a point-in-time view of an LRU policy.
type Stats struct {
	Capacity        int
	Len             int
	Misses          int64
	OverflowGrowths int64
	Grows           int64
	Shrinks         int64
}

// LRU is a least-recently-used policy with a resizable target capacity.
//
// Contract:
// - Concurrency: not safe for concurrent use; callers serialize access,
//   except RecordMiss which may be called without synchronization.
type LRU struct {
	config   Config
	meta     observe.ComponentMeta
	log      observe.Logger
	list     *simplelru.LRU[string, *Entry]
	size     int // backing list size, >= capacity
	capacity int

	misses          atomic.Int64
	totalMisses     int64
	overflowGrowths int64
	grows           int64
	shrinks         int64
}

// NewLRU creates an LRU policy.
func NewLRU(config Config) (*LRU, error) {
	if config.MinCapacity < 0 || (config.MaxCapacity != 0 && config.MaxCapacity < config.MinCapacity) {
		return nil, ErrInvalidCapacity
	}
	if config.LoadFactor < 0 || config.LoadFactor > 1 {
		return nil, ErrInvalidLoadFactor
	}
	config.applyDefaults()

	list, err := simplelru.NewLRU[string, *Entry](config.InitialCapacity, nil)
	if err != nil {
		return nil, err
	}

	meta := observe.ComponentMeta{Cache: config.Cache, Component: config.Component}
	return &LRU{
		config:   config,
		meta:     meta,
		log:      observe.LoggerOrNop(config.Logger).WithComponent(meta),
		list:     list,
		size:     config.InitialCapacity,
		capacity: config.InitialCapacity,
	}, nil
}

// Config returns the effective configuration.
func (l *LRU) Config() Config { return l.config }

// Add inserts key as most recently used. Adding at or above the target
// capacity is logged and counted as an overflow, and the backing list grows
// by one instead of evicting.
func (l *LRU) Add(key string) {
	now := l.config.Now()
	if e, ok := l.list.Get(key); ok {
		e.LastAccess = now
		return
	}
	if n := l.list.Len(); n >= l.capacity {
		if n >= l.size {
			l.size++
			l.list.Resize(l.size)
		}
		l.overflowGrowths++
		l.log.Warn(context.Background(), "capacity exceeded, growing by one",
			observe.F("key", key),
			observe.F("capacity", l.capacity),
			observe.F("len", n+1),
		)
	}
	l.list.Add(key, &Entry{Key: key, LastAccess: now})
}

// RecordAccess promotes key to most recently used. It reports whether key
// is tracked.
func (l *LRU) RecordAccess(key string) bool {
	e, ok := l.list.Get(key)
	if ok {
		e.LastAccess = l.config.Now()
	}
	return ok
}

// Remove stops tracking key.
func (l *LRU) Remove(key string) bool {
	return l.list.Remove(key)
}

// Contains reports whether key is tracked without promoting it.
func (l *LRU) Contains(key string) bool {
	return l.list.Contains(key)
}

// Peek returns key's entry without promoting it.
func (l *LRU) Peek(key string) (Entry, bool) {
	e, ok := l.list.Peek(key)
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Keys returns tracked keys from least to most recently used.
func (l *LRU) Keys() []string {
	return l.list.Keys()
}

// Len returns the number of tracked keys.
func (l *LRU) Len() int {
	return l.list.Len()
}

// Capacity returns the current target capacity.
func (l *LRU) Capacity() int {
	return l.capacity
}

// RecordMiss counts a cache miss for the resizer.
func (l *LRU) RecordMiss() {
	l.misses.Add(1)
}

// Candidates returns keys to offer for passivation, oldest first: every
// entry idle for at least MaxAge, followed by the oldest entries above the
// target capacity.
func (l *LRU) Candidates(now time.Time) []string {
	keys := l.list.Keys()
	var out []string

	aged := 0
	for _, k := range keys {
		e, ok := l.list.Peek(k)
		if !ok || now.Sub(e.LastAccess) < l.config.MaxAge {
			break
		}
		out = append(out, k)
		aged++
	}

	if over := len(keys) - l.capacity; over > aged {
		out = append(out, keys[aged:over]...)
	}
	return out
}

// Adjust runs one resizer step over a period of length period and resets
// the miss counter. It returns the new target capacity.
func (l *LRU) Adjust(period time.Duration) int {
	misses := l.misses.Swap(0)
	l.totalMisses += misses
	interval := period / time.Duration(max(misses, 1))

	old := l.capacity
	count := l.list.Len()

	switch {
	case interval <= l.config.MinMissPeriod && l.capacity < l.config.MaxCapacity:
		l.capacity = min(max(l.capacity*2, l.capacity+1), l.config.MaxCapacity)
		l.grows++
	case interval >= l.config.MaxMissPeriod &&
		l.capacity > l.config.MinCapacity &&
		float64(count) < float64(l.capacity)*l.config.LoadFactor:
		target := int(float64(l.capacity) * l.config.LoadFactor)
		l.capacity = max(l.config.MinCapacity, count, target)
		if l.capacity < old {
			l.shrinks++
		}
	}

	if l.capacity == old {
		return old
	}

	// The backing list never shrinks below its content.
	l.size = max(l.capacity, count)
	l.list.Resize(l.size)
	l.log.Info(context.Background(), "capacity resized",
		observe.F("from", old),
		observe.F("to", l.capacity),
		observe.F("misses", misses),
		observe.F("len", count),
	)
	return l.capacity
}

// Stats returns policy statistics.
func (l *LRU) Stats() Stats {
	return Stats{
		Capacity:        l.capacity,
		Len:             l.list.Len(),
		Misses:          l.totalMisses + l.misses.Load(),
		OverflowGrowths: l.overflowGrowths,
		Grows:           l.grows,
		Shrinks:         l.shrinks,
	}
}

// Purge stops tracking every key.
func (l *LRU) Purge() {
	l.list.Purge()
}
