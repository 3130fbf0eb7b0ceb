// Package health reports the health of an instance cache and its
// collaborators.
//
// Checkers:
//   - PoolChecker: degraded when checked-out instances reach a warning
//     ratio of the pool size, unhealthy when acquisitions timed out since
//     the previous check.
//   - CacheChecker: degraded when live entries exceed the capacity target
//     or the cache is stopped, unhealthy once destroyed.
//   - BreakerChecker: degraded while the snapshot backend circuit is
//     half-open, unhealthy while open.
//   - PingChecker: unhealthy when a ping function fails.
//
// An Aggregator runs registered checkers in parallel with a per-run
// timeout. Handler exposes /healthz, /readyz and /health over HTTP.
package health
