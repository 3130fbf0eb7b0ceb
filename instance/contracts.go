package instance

import "context"

// Activator loads durable state into a freshly bound instance.
//
// Contract:
// - Concurrency: called without the cache structural lock held; implementations
//   must be safe for concurrent use across keys.
// - Errors: return ErrRecursiveActivation (possibly wrapped) when activation of
//   the same key is already in progress further up the call chain. Any other
//   error is surfaced to the caller of Cache.Get as ErrNotFound.
type Activator interface {
	Activate(ctx context.Context, inst *Instance) error
}

// ActivatorFunc adapts a function to Activator.
type ActivatorFunc func(ctx context.Context, inst *Instance) error

// Activate calls f(ctx, inst).
func (f ActivatorFunc) Activate(ctx context.Context, inst *Instance) error {
	return f(ctx, inst)
}

// Passivator stores instance state before the instance leaves a cache.
//
// Contract:
// - Errors: failures are logged by the caller and never propagated; the
//   instance leaves the cache regardless.
type Passivator interface {
	Passivate(ctx context.Context, inst *Instance) error
}

// PassivatorFunc adapts a function to Passivator.
type PassivatorFunc func(ctx context.Context, inst *Instance) error

// Passivate calls f(ctx, inst).
func (f PassivatorFunc) Passivate(ctx context.Context, inst *Instance) error {
	return f(ctx, inst)
}

// Factory creates raw state for new pooled instances.
type Factory interface {
	Create(ctx context.Context) (any, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context) (any, error)

// Create calls f(ctx).
func (f FactoryFunc) Create(ctx context.Context) (any, error) {
	return f(ctx)
}

// Destroyer is an optional Factory capability used to tear down discarded
// instances. Teardown errors are logged, never propagated.
type Destroyer interface {
	Destroy(ctx context.Context, inst *Instance) error
}

// TxStatus is the state of a unit of work.
type TxStatus int

const (
	// TxActive means the transaction is still open.
	TxActive TxStatus = iota
	// TxCommitted means the transaction committed.
	TxCommitted
	// TxRolledBack means the transaction rolled back.
	TxRolledBack
)

// String returns the string representation of the status.
func (s TxStatus) String() string {
	switch s {
	case TxActive:
		return "active"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolledback"
	default:
		return "unknown"
	}
}

// Transaction is the handle of an external unit of work.
//
// Contract:
// - ID must be stable and unique while the transaction is active; it is
//   used as the reentrancy token by key locks.
// - RegisterCompletion callbacks run exactly once, after the outcome is known.
type Transaction interface {
	ID() string
	Status() TxStatus
	IsActive() bool
	RegisterCompletion(fn func(TxStatus)) error
}

// EligibilityOracle is a deployment-specific veto on passivation, for example
// when an application-level lock is held on the key elsewhere.
type EligibilityOracle interface {
	CanPassivate(key string) bool
}

// OracleFunc adapts a function to EligibilityOracle.
type OracleFunc func(key string) bool

// CanPassivate calls f(key).
func (f OracleFunc) CanPassivate(key string) bool {
	return f(key)
}

// AlwaysEligible never vetoes passivation.
var AlwaysEligible EligibilityOracle = OracleFunc(func(string) bool { return true })
