package txn

import "errors"

var (
	// ErrInvalidOption indicates an unknown commit option name.
	ErrInvalidOption = errors.New("txn: invalid commit option")

	// ErrNotActive is returned when completing or registering on a finished
	// Local transaction.
	ErrNotActive = errors.New("txn: transaction is not active")

	// ErrTxConflict is returned when enlisting an instance that another
	// active transaction already holds.
	ErrTxConflict = errors.New("txn: instance enlisted in another transaction")
)
