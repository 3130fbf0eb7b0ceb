package lock

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jonwraymond/instancecache/instance"
)

func TestRegistry_SharedLockPerKey(t *testing.T) {
	r := NewRegistry()
	a := r.GetLock("k")
	b := r.GetLock("k")
	if a != b {
		t.Fatal("GetLock returned different locks for the same key")
	}
	if got := r.Refs("k"); got != 2 {
		t.Errorf("Refs = %d, want 2", got)
	}
	if c := r.GetLock("other"); c == a {
		t.Error("different keys must not share a lock")
	}
}

func TestRegistry_RefCountCleanup(t *testing.T) {
	r := NewRegistry()
	r.GetLock("k")
	r.GetLock("k")

	if err := r.RemoveLockRef("k"); err != nil {
		t.Fatalf("RemoveLockRef() error = %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1 while a reference remains", r.Len())
	}
	if err := r.RemoveLockRef("k"); err != nil {
		t.Fatalf("RemoveLockRef() error = %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0 after last reference", r.Len())
	}
}

func TestRegistry_RemoveAbsentRef(t *testing.T) {
	r := NewRegistry()
	err := r.RemoveLockRef("missing")
	if !errors.Is(err, instance.ErrIllegalState) {
		t.Fatalf("RemoveLockRef() error = %v, want ErrIllegalState", err)
	}
}

func TestRegistry_ConcurrentPairsLeaveNothing(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			for j := 0; j < 100; j++ {
				r.GetLock(key)
				if err := r.RemoveLockRef(key); err != nil {
					t.Errorf("RemoveLockRef(%s) error = %v", key, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}
