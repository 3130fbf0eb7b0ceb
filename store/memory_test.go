package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryBackend_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()

	data := []byte(`{"balance":1}`)
	if err := m.Save(ctx, Snapshot{Key: "a", Component: "Account", Data: data}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data[0] = 'X'

	snap, err := m.Load(ctx, "a")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(snap.Data) != `{"balance":1}` {
		t.Errorf("Data = %s, want copy isolated from caller", snap.Data)
	}

	if err := m.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := m.Delete(ctx, "a"); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
	if _, err := m.Load(ctx, "a"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Load() error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestMemoryBackend_RemoveExpired(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	base := time.Unix(1_700_000_000, 0)

	_ = m.Save(ctx, Snapshot{Key: "old", StoredAt: base.Add(-time.Hour)})
	_ = m.Save(ctx, Snapshot{Key: "edge", StoredAt: base})
	_ = m.Save(ctx, Snapshot{Key: "new", StoredAt: base.Add(time.Second)})

	n, err := m.RemoveExpired(ctx, base)
	if err != nil {
		t.Fatalf("RemoveExpired() error = %v", err)
	}
	if n != 2 {
		t.Errorf("RemoveExpired() = %d, want 2", n)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
	if _, err := m.Load(ctx, "new"); err != nil {
		t.Errorf("Load(new) error = %v", err)
	}
}
