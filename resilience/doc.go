// Package resilience guards calls to the durable snapshot backend.
//
// Passivation must not be lost to a transient backend hiccup, and a backend
// that is down must not stall every eviction sweep behind connection
// timeouts. The package provides three composable guards:
//
//   - Retry: retries transient failures with exponential, linear or
//     constant backoff.
//   - CircuitBreaker: fails fast with ErrCircuitOpen once consecutive
//     failures reach a threshold, then probes for recovery.
//   - Timeout: bounds each attempt with a deadline.
//
// An Executor composes them. The circuit breaker is outermost so that one
// retried operation counts as one failure:
//
//	exec := resilience.NewExecutor(
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})),
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{})),
//	    resilience.WithTimeout(2*time.Second),
//	)
//	err := exec.Execute(ctx, func(ctx context.Context) error {
//	    return rdb.Set(ctx, key, data, 0).Err()
//	})
package resilience
