// Package eviction implements the LRU eviction policy used by the instance
// cache and the background sweeps that drive it.
//
// LRU tracks access recency per key on top of hashicorp/golang-lru's simplelru.
// Its capacity is a target, not a hard cap: inserting into a full policy
// grows the backing list by one and logs the overflow, and the Overager
// offers the oldest overflow entries for passivation until the policy is
// back at its target.
//
// LRU does no locking of its own. The owning cache serializes every call
// under its structural lock and hands the same lock to the Sweeper, which
// holds it only while scanning.
//
// The Sweeper runs up to three periodic tasks:
//
//   - Resizer: grows capacity toward MaxCapacity when misses are frequent
//     and shrinks it toward MinCapacity when they are rare.
//   - Overager: collects entries idle for at least MaxAge, releases the
//     structural lock, then tries to passivate each one without blocking.
//   - Remover: deletes passivated snapshots older than MaxSnapshotAge.
package eviction
