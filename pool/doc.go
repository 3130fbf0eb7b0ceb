// Package pool provides a bounded reservoir of anonymous managed instances.
//
// A Pool hands out instances with Acquire and takes them back with Release or
// Discard. Released instances are reset and kept on a free list of at most
// MaxSize entries; anything beyond that is torn down.
//
// In strict mode the pool also bounds the number of checked-out instances to
// MaxSize. Callers beyond that bound block for a permit, in arrival order, for
// at most AcquireTimeout. A timed-out Acquire fails with an error matching
// both instance.ErrPoolExhausted and instance.ErrTimeout and consumes nothing.
package pool
