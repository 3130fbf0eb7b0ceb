// Package store persists instance state as snapshots so that passivated
// instances can be reactivated later.
//
// A Store adapts a snapshot Backend into the cache's Activator and
// Passivator hooks and into the eviction sweeper's SnapshotRemover:
//
//   - Activate loads the key's snapshot and decodes it into the pooled
//     instance's state. A missing snapshot fails activation unless
//     CreateOnMissing is set.
//   - Passivate encodes the state and saves it, retried and guarded by a
//     circuit breaker.
//   - RemoveExpired deletes snapshots stored before a cutoff.
//
// RedisBackend keeps snapshots as JSON strings with a sorted-set index
// scored by store time. MemoryBackend keeps them in process.
//
// Listener subscribes to a Redis channel and invalidates cached instances
// named in published messages, so that other processes can signal that a
// snapshot changed underneath this cache.
package store
