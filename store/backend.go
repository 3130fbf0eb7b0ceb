package store

import (
	"context"
	"time"
)

// Backend stores snapshots by key.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Load returns an error matching ErrSnapshotNotFound for unknown keys.
// - Delete is idempotent.
// - RemoveExpired deletes every snapshot with StoredAt not after cutoff
//   and returns how many it deleted.
type Backend interface {
	Load(ctx context.Context, key string) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Delete(ctx context.Context, key string) error
	RemoveExpired(ctx context.Context, cutoff time.Time) (int, error)
	Ping(ctx context.Context) error
}
