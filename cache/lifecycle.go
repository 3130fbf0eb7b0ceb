package cache

import (
	"context"

	"github.com/jonwraymond/instancecache/instance"
	"github.com/jonwraymond/instancecache/observe"
)

// State is the lifecycle state of a Cache.
type State int32

const (
	StateCreated State = iota
	StateStarted
	StateStopped
	StateDestroyed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// State returns the current lifecycle state.
func (c *Cache) State() State {
	return State(c.state.Load())
}

// Start launches the background sweeps.
func (c *Cache) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	switch c.State() {
	case StateStarted:
		return nil
	case StateDestroyed:
		return instance.NewError("cache.start", "", instance.ErrClosed, nil)
	}

	if err := c.sweeper.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	c.state.Store(int32(StateStarted))
	c.log.Info(ctx, "cache started")
	return nil
}

// Stop halts the background sweeps and waits for them to return. Cached
// instances stay live.
func (c *Cache) Stop() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	return c.stopLocked()
}

func (c *Cache) stopLocked() error {
	if c.State() != StateStarted {
		return nil
	}
	err := c.sweeper.Stop()
	c.state.Store(int32(StateStopped))
	c.log.Info(context.Background(), "cache stopped")
	return err
}

// Destroy stops the cache, passivates every eligible instance, clears the
// pool and closes the cache. Pinned instances are left to their owners.
// Destroy is idempotent.
func (c *Cache) Destroy(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.State() == StateDestroyed {
		return nil
	}
	err := c.stopLocked()

	passivated := c.Flush(ctx)
	c.state.Store(int32(StateDestroyed))

	c.mu.Lock()
	remaining := len(c.live)
	c.mu.Unlock()

	c.pool.Close(ctx)
	for _, fn := range c.unobserve {
		_ = fn()
	}
	c.unobserve = nil

	c.log.Info(ctx, "cache destroyed",
		observe.F("passivated", passivated),
		observe.F("remaining", remaining),
	)
	return err
}

func (c *Cache) checkOpen(op, key string) error {
	if c.State() == StateDestroyed {
		return instance.NewError(op, key, instance.ErrClosed, nil)
	}
	return nil
}
