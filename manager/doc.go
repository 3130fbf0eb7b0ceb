// Package manager assembles an instance cache and its collaborators from a
// config.Config.
//
// New builds, in order: the observer, the snapshot backend (memory or
// Redis), the store with its retry and circuit breaker, the instance pool,
// the cache, the transaction coordinator, the optional Redis invalidation
// listener and the health aggregator. Start launches the background work
// and Shutdown tears everything down in reverse.
package manager
