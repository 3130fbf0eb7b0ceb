package lock

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/instancecache/instance"
)

// Call identifies an invocation contending for a KeyLock.
type Call struct {
	// Owner is the reentrancy token, usually the transaction ID. An empty
	// Owner is anonymous and never re-enters.
	Owner string
}

type waiter struct {
	call    Call
	ready   chan struct{}
	granted bool
}

// KeyLock is the shared lock object for one key.
type KeyLock struct {
	key  string
	refs int // guarded by Registry.mu

	syncMu sync.Mutex

	mu      sync.Mutex
	held    bool
	owner   Call
	depth   int
	waiters []*waiter
}

// Key returns the key this lock guards.
func (l *KeyLock) Key() string { return l.key }

// Sync acquires the low-level mutex.
func (l *KeyLock) Sync() { l.syncMu.Lock() }

// ReleaseSync releases the low-level mutex.
func (l *KeyLock) ReleaseSync() { l.syncMu.Unlock() }

// Schedule blocks until call holds the invocation lock or ctx is done.
// A call with the holder's Owner re-enters immediately.
func (l *KeyLock) Schedule(ctx context.Context, call Call) error {
	ok, err := l.acquire(ctx, call, false, true)
	if err != nil {
		return err
	}
	if !ok {
		return instance.NewError("lock.schedule", l.key, instance.ErrLockTimeout, ctx.Err())
	}
	return nil
}

// ScheduleTimeout is Schedule bounded by timeout. A non-positive timeout
// waits indefinitely.
func (l *KeyLock) ScheduleTimeout(timeout time.Duration, call Call) error {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return l.Schedule(ctx, call)
}

// Attempt tries to acquire the invocation lock for call.
//
// A zero timeout probes without blocking; a negative timeout waits
// indefinitely. It reports false when the lock could not be obtained in time.
// If requireNonReentrant is set and call would re-enter, Attempt returns
// false and an error matching instance.ErrReentrance.
func (l *KeyLock) Attempt(timeout time.Duration, call Call, requireNonReentrant bool) (bool, error) {
	if timeout == 0 {
		return l.acquire(context.Background(), call, requireNonReentrant, false)
	}
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return l.acquire(ctx, call, requireNonReentrant, true)
}

func (l *KeyLock) acquire(ctx context.Context, call Call, nonReentrant, wait bool) (bool, error) {
	l.mu.Lock()
	if !l.held && len(l.waiters) == 0 {
		l.held, l.owner, l.depth = true, call, 1
		l.mu.Unlock()
		return true, nil
	}
	if l.held && call.Owner != "" && call.Owner == l.owner.Owner {
		if nonReentrant {
			l.mu.Unlock()
			return false, instance.NewError("lock.attempt", l.key, instance.ErrReentrance, nil)
		}
		l.depth++
		l.mu.Unlock()
		return true, nil
	}
	if !wait {
		l.mu.Unlock()
		return false, nil
	}

	w := &waiter{call: call, ready: make(chan struct{})}
	l.waiters = append(l.waiters, w)
	l.mu.Unlock()

	select {
	case <-w.ready:
		return true, nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w.granted {
		// Handed off while the context was expiring.
		return true, nil
	}
	for i, q := range l.waiters {
		if q == w {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			break
		}
	}
	return false, nil
}

// EndInvocation releases one level of the invocation lock held by call.
// When the outermost level is released the lock passes to the oldest waiter.
func (l *KeyLock) EndInvocation(call Call) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held || l.owner.Owner != call.Owner {
		return instance.NewError("lock.end", l.key, instance.ErrIllegalState, nil)
	}
	l.depth--
	if l.depth > 0 {
		return nil
	}

	if len(l.waiters) == 0 {
		l.held, l.owner = false, Call{}
		return nil
	}
	next := l.waiters[0]
	l.waiters[0] = nil
	l.waiters = l.waiters[1:]
	l.owner, l.depth = next.call, 1
	next.granted = true
	close(next.ready)
	return nil
}

// Held reports whether an invocation currently holds the lock.
func (l *KeyLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Waiters returns the number of queued callers.
func (l *KeyLock) Waiters() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}
