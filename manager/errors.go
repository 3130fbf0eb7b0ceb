package manager

import "errors"

var (
	// ErrNilFactory indicates Options.Factory was not set.
	ErrNilFactory = errors.New("manager: factory is required")

	// ErrShutdown indicates the manager has been shut down.
	ErrShutdown = errors.New("manager: shut down")
)
