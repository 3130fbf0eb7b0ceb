package store

import "errors"

var (
	// ErrSnapshotNotFound indicates no snapshot exists for a key.
	ErrSnapshotNotFound = errors.New("store: snapshot not found")

	// ErrComponentMismatch indicates a snapshot was stored for a different
	// component than the instance being activated.
	ErrComponentMismatch = errors.New("store: snapshot component mismatch")

	// ErrNilBackend is returned by New when no backend is configured.
	ErrNilBackend = errors.New("store: backend is nil")

	// ErrNilClient is returned when a redis client is required but nil.
	ErrNilClient = errors.New("store: redis client is nil")
)
