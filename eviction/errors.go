package eviction

import "errors"

var (
	// ErrInvalidCapacity indicates MinCapacity or MaxCapacity is out of range.
	ErrInvalidCapacity = errors.New("eviction: min capacity must be positive and not exceed max capacity")

	// ErrInvalidLoadFactor indicates LoadFactor is outside (0, 1].
	ErrInvalidLoadFactor = errors.New("eviction: load factor must be in (0, 1]")

	// ErrAlreadyRunning is returned by Sweeper.Start on a running sweeper.
	ErrAlreadyRunning = errors.New("eviction: sweeper already running")
)
