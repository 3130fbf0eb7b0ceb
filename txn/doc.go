// Package txn decides what happens to cached instances when the
// transactions they are enlisted in complete.
//
// A Coordinator enlists an instance by registering a completion callback on
// its transaction (once per transaction and key) and holding a reference on
// the key's lock until completion. On completion the transaction is cleared
// from the instance and, according to the commit option:
//
//   - rollback: the instance is discarded without passivation.
//   - A: the instance stays cached and valid.
//   - B: the instance stays cached but is marked stale and reloaded on the
//     next Get.
//   - C: the instance is evicted, passivated and returned to the pool.
//   - D: as A, and every cached instance is marked stale each RefreshPeriod.
//
// Passivations deferred while the instance was enlisted are retried after
// commit.
//
// Local is an in-process Transaction for callers without an external
// transaction manager.
package txn
