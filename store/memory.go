package store

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is an in-process Backend.
type MemoryBackend struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{snaps: make(map[string]Snapshot)}
}

// Load implements Backend.
func (m *MemoryBackend) Load(_ context.Context, key string) (Snapshot, error) {
	m.mu.RLock()
	snap, ok := m.snaps[key]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrSnapshotNotFound
	}
	snap.Data = append([]byte(nil), snap.Data...)
	return snap, nil
}

// Save implements Backend.
func (m *MemoryBackend) Save(_ context.Context, snap Snapshot) error {
	snap.Data = append([]byte(nil), snap.Data...)
	m.mu.Lock()
	m.snaps[snap.Key] = snap
	m.mu.Unlock()
	return nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.snaps, key)
	m.mu.Unlock()
	return nil
}

// RemoveExpired implements Backend.
func (m *MemoryBackend) RemoveExpired(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, snap := range m.snaps {
		if !snap.StoredAt.After(cutoff) {
			delete(m.snaps, key)
			n++
		}
	}
	return n, nil
}

// Ping implements Backend.
func (m *MemoryBackend) Ping(context.Context) error { return nil }

// Len returns the number of stored snapshots.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snaps)
}

var _ Backend = (*MemoryBackend)(nil)
