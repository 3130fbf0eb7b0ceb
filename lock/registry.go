package lock

import (
	"sync"

	"github.com/jonwraymond/instancecache/instance"
)

// Registry manages per-key locks with reference counting.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Ownership: every GetLock must be paired with exactly one RemoveLockRef.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*KeyLock
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*KeyLock)}
}

// GetLock returns the lock for key, creating it on first use, and takes a
// reference on it.
func (r *Registry) GetLock(key string) *KeyLock {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[key]
	if !ok {
		l = &KeyLock{key: key}
		r.locks[key] = l
	}
	l.refs++
	return l
}

// RemoveLockRef drops one reference on key's lock and forgets the lock when
// no references remain. Dropping a reference that was never taken returns an
// error matching instance.ErrIllegalState.
func (r *Registry) RemoveLockRef(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[key]
	if !ok {
		return instance.NewError("lock.remove_ref", key, instance.ErrIllegalState, nil)
	}
	l.refs--
	if l.refs <= 0 {
		delete(r.locks, key)
	}
	return nil
}

// Refs returns the current reference count for key.
func (r *Registry) Refs(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[key]; ok {
		return l.refs
	}
	return 0
}

// Len returns the number of keys with live references.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
