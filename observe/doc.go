// Package observe provides observability primitives for the instance cache:
// a structured logger, OpenTelemetry metrics for cache, pool and passivation
// events, and tracing spans around activation and passivation hooks.
//
// It is a pure instrumentation library. The cache, pool, eviction and txn
// packages accept its Logger and Metrics through their Config; nil values
// fall back to no-op implementations.
package observe
