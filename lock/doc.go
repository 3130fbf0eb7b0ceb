// Package lock provides reference-counted per-key locks.
//
// A Registry hands out one KeyLock per key. Every GetLock must be paired with
// exactly one RemoveLockRef; the lock object is dropped from the registry when
// its reference count returns to zero.
//
// A KeyLock offers two independent facilities:
//
//   - Sync/ReleaseSync: a plain mutex for short critical sections.
//   - Schedule/Attempt/EndInvocation: serialization of whole invocations on
//     the key. Blocked callers are admitted in FIFO order. A call whose
//     Owner token matches the current holder re-enters instead of queueing,
//     unless the caller requires non-reentrant access, in which case the
//     attempt fails with instance.ErrReentrance.
//
// Attempt with a zero timeout is a non-blocking probe; background sweeps use
// it so they never stall behind an in-flight call.
package lock
