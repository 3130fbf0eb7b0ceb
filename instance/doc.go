// Package instance defines the managed instance record shared by the pool,
// lock, eviction, cache and transaction packages, along with the contracts
// those packages consume from their collaborators.
//
// A managed instance is either live (bound to a key and held by a cache) or
// pooled (anonymous, waiting in an instance pool). It is never both.
//
// The package also owns the error taxonomy used across the module:
//
//	ErrNotFound          key absent, or activation failed
//	ErrPoolExhausted     strict pool could not supply an instance in time
//	ErrIllegalState      duplicate insert, unbalanced lock reference
//	ErrReentrance        non-reentrant component re-entered
//	ErrActivation        activator failure (wrapped in ErrNotFound by the cache)
//	ErrPassivation       passivator failure (logged, never propagated)
//
// Use errors.Is with the sentinels; *Error carries the operation and key.
package instance
