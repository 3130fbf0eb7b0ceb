// Package cache maps keys to live managed instances.
//
// A Cache composes an instance pool, a per-key lock registry and an LRU
// eviction policy. On a miss it acquires an anonymous instance from the pool,
// binds the key and runs the Activator; concurrent misses on the same key
// share one activation. On passivation it runs the Passivator and returns
// the instance to the pool.
//
// Two lock tiers are kept separate: a structural mutex guards the live map
// and the LRU and is never held across a callback, while per-key locks from
// the lock package may be held across activation and business calls.
// Background sweeps take the structural lock only to collect candidates and
// passivate with a non-blocking key lock attempt.
//
// An instance that is locked by a caller or enlisted in a transaction is
// pinned and never passivated. Passivation of a transaction-pinned instance
// is deferred and retried by the transaction coordinator on commit.
//
// Lifecycle is Created, Started, Stopped, Destroyed. Background sweeps run
// only while Started. Every operation on a destroyed cache fails with
// instance.ErrClosed.
package cache
