package txn

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/jonwraymond/instancecache/instance"
)

var localSeq atomic.Uint64

// Local is an in-process transaction. Completion callbacks run in
// registration order on the goroutine that calls Commit or Rollback.
type Local struct {
	id string

	mu        sync.Mutex
	status    instance.TxStatus
	callbacks []func(instance.TxStatus)
}

// NewLocal starts a transaction. An empty id is replaced with a generated one.
func NewLocal(id string) *Local {
	if id == "" {
		id = "local-" + strconv.FormatUint(localSeq.Add(1), 10)
	}
	return &Local{id: id}
}

// ID returns the transaction ID.
func (t *Local) ID() string { return t.id }

// Status returns the transaction status.
func (t *Local) Status() instance.TxStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// IsActive reports whether the transaction is still open.
func (t *Local) IsActive() bool {
	return t.Status() == instance.TxActive
}

// RegisterCompletion adds fn to run when the transaction completes.
func (t *Local) RegisterCompletion(fn func(instance.TxStatus)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != instance.TxActive {
		return ErrNotActive
	}
	t.callbacks = append(t.callbacks, fn)
	return nil
}

// Commit completes the transaction as committed.
func (t *Local) Commit() error {
	return t.complete(instance.TxCommitted)
}

// Rollback completes the transaction as rolled back.
func (t *Local) Rollback() error {
	return t.complete(instance.TxRolledBack)
}

func (t *Local) complete(status instance.TxStatus) error {
	t.mu.Lock()
	if t.status != instance.TxActive {
		t.mu.Unlock()
		return ErrNotActive
	}
	t.status = status
	callbacks := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn(status)
	}
	return nil
}

var _ instance.Transaction = (*Local)(nil)
