package instance

import "sync"

// Instance is a unit of application state managed by a cache and a pool.
//
// Bookkeeping fields are guarded by an internal mutex so that the cache,
// background sweeps and transaction callbacks may inspect them concurrently.
// The state payload belongs to whichever caller holds the key lock; the
// infrastructure never reads it, only Activator and Passivator hooks do.
type Instance struct {
	component string

	mu                   sync.Mutex
	key                  string
	state                any
	locked               bool
	tx                   Transaction
	valid                bool
	passivateAfterCommit bool
}

// New creates an anonymous instance for the given component type wrapping
// state produced by a Factory.
func New(component string, state any) *Instance {
	return &Instance{component: component, state: state}
}

// Component returns the component type the instance belongs to.
func (i *Instance) Component() string {
	return i.component
}

// Key returns the key the instance is bound to, or "" while pooled.
func (i *Instance) Key() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.key
}

// Bind associates the instance with key. Bound instances start invalid
// until an activator loads their state.
func (i *Instance) Bind(key string) {
	i.mu.Lock()
	i.key = key
	i.valid = false
	i.mu.Unlock()
}

// State returns the application payload.
func (i *Instance) State() any {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// SetState replaces the application payload.
func (i *Instance) SetState(state any) {
	i.mu.Lock()
	i.state = state
	i.mu.Unlock()
}

// Locked reports whether a caller currently holds the instance in its call chain.
func (i *Instance) Locked() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.locked
}

// SetLocked marks the instance as in (or out of) a call chain.
func (i *Instance) SetLocked(locked bool) {
	i.mu.Lock()
	i.locked = locked
	i.mu.Unlock()
}

// Transaction returns the unit of work the instance is enlisted in, if any.
func (i *Instance) Transaction() Transaction {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.tx
}

// SetTransaction enlists the instance in tx. Passing nil clears the
// association and the passivate-after-commit flag.
func (i *Instance) SetTransaction(tx Transaction) {
	i.mu.Lock()
	i.tx = tx
	if tx == nil {
		i.passivateAfterCommit = false
	}
	i.mu.Unlock()
}

// Valid reports whether the in-memory state is known to be fresh.
func (i *Instance) Valid() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.valid
}

// SetValid marks the in-memory state fresh or stale.
func (i *Instance) SetValid(valid bool) {
	i.mu.Lock()
	i.valid = valid
	i.mu.Unlock()
}

// PassivateAfterCommit reports whether a passivation attempt was deferred
// because the instance was enlisted in a transaction.
func (i *Instance) PassivateAfterCommit() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.passivateAfterCommit
}

// MarkPassivateAfterCommit records a deferred passivation.
func (i *Instance) MarkPassivateAfterCommit() {
	i.mu.Lock()
	i.passivateAfterCommit = true
	i.mu.Unlock()
}

// Pinned reports whether the instance is in a call chain or enlisted in a
// transaction. Pinned instances are never passivated.
func (i *Instance) Pinned() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.locked || i.tx != nil
}

// Reset clears every transient field so the instance can go back to a pool.
// The state payload is kept; activators overwrite it on the next bind.
func (i *Instance) Reset() {
	i.mu.Lock()
	i.key = ""
	i.locked = false
	i.tx = nil
	i.valid = false
	i.passivateAfterCommit = false
	i.mu.Unlock()
}
