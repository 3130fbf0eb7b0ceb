package txn

import (
	"errors"
	"testing"

	"github.com/jonwraymond/instancecache/instance"
)

func TestLocal_CallbacksRunInOrder(t *testing.T) {
	tx := NewLocal("")
	var got []int
	for i := range 3 {
		if err := tx.RegisterCompletion(func(instance.TxStatus) { got = append(got, i) }); err != nil {
			t.Fatalf("RegisterCompletion() error = %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Errorf("callback order = %v, want [0 1 2]", got)
	}
	if tx.Status() != instance.TxCommitted {
		t.Errorf("Status() = %v, want TxCommitted", tx.Status())
	}
}

func TestLocal_CompleteOnce(t *testing.T) {
	tx := NewLocal("x")
	var status instance.TxStatus
	_ = tx.RegisterCompletion(func(s instance.TxStatus) { status = s })

	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if status != instance.TxRolledBack {
		t.Errorf("callback status = %v, want TxRolledBack", status)
	}
	if err := tx.Commit(); !errors.Is(err, ErrNotActive) {
		t.Errorf("Commit() error = %v, want ErrNotActive", err)
	}
	if err := tx.RegisterCompletion(func(instance.TxStatus) {}); !errors.Is(err, ErrNotActive) {
		t.Errorf("RegisterCompletion() error = %v, want ErrNotActive", err)
	}
	if tx.IsActive() {
		t.Error("IsActive() = true after rollback")
	}
}

func TestNewLocal_GeneratesIDs(t *testing.T) {
	a, b := NewLocal(""), NewLocal("")
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("IDs = %q, %q; want distinct non-empty", a.ID(), b.ID())
	}
}
