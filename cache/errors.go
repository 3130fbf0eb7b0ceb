package cache

import "errors"

var (
	// ErrNilPool is returned by New when Config.Pool is nil.
	ErrNilPool = errors.New("cache: pool is required")

	// ErrNilActivator is returned by New when Config.Activator is nil.
	ErrNilActivator = errors.New("cache: activator is required")

	// ErrNoEnlister is returned by Invoke when a transaction is supplied but
	// no Enlister was configured.
	ErrNoEnlister = errors.New("cache: transactional invoke requires an enlister")
)
