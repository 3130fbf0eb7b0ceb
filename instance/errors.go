package instance

import (
	"errors"
	"strings"
)

// Sentinel error kinds. Match them with errors.Is.
var (
	// ErrNotFound is returned when a key is absent or its activation failed.
	ErrNotFound = errors.New("instance: not found")

	// ErrPoolExhausted is returned when a strict pool cannot supply an instance.
	ErrPoolExhausted = errors.New("instance: pool exhausted")

	// ErrTimeout is returned when a bounded wait elapses.
	ErrTimeout = errors.New("instance: timed out")

	// ErrIllegalState is returned for programming errors such as duplicate
	// insertion or an unbalanced lock reference.
	ErrIllegalState = errors.New("instance: illegal state")

	// ErrReentrance is returned when a non-reentrant component is re-entered
	// by the same call chain.
	ErrReentrance = errors.New("instance: reentrant call not allowed")

	// ErrActivation wraps activator failures.
	ErrActivation = errors.New("instance: activation failed")

	// ErrPassivation wraps passivator failures.
	ErrPassivation = errors.New("instance: passivation failed")

	// ErrRecursiveActivation is reported by an activator when activation of the
	// same key is already in progress further up the call chain.
	ErrRecursiveActivation = errors.New("instance: recursive activation")

	// ErrLockTimeout is returned when a call could not enter a key lock in time.
	ErrLockTimeout = errors.New("instance: lock wait timed out")

	// ErrCreation wraps factory failures.
	ErrCreation = errors.New("instance: creation failed")

	// ErrClosed is returned by components that have been destroyed.
	ErrClosed = errors.New("instance: closed")
)

// Error describes a failed operation on a key.
type Error struct {
	// Op is the operation that failed (get, acquire, schedule, ...).
	Op string
	// Key is the instance key, if known.
	Key string
	// Kind is one of the sentinel errors above.
	Kind error
	// Err is the underlying cause, if any.
	Err error
}

// NewError builds an *Error. A nil kind yields a nil error only when err is nil too.
func NewError(op, key string, kind, err error) error {
	if kind == nil && err == nil {
		return nil
	}
	return &Error{Op: op, Key: key, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Key != "" {
		b.WriteString(" ")
		b.WriteString(e.Key)
	}
	if e.Kind != nil {
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil && e.Err != e.Kind {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsRetryable reports whether err describes a transient condition ("resource
// busy") rather than a permanent one ("resource missing").
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrPoolExhausted) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrLockTimeout)
}
