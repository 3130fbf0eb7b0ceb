package resilience

import (
	"context"
	"errors"
	"time"
)

// Timeout bounds each call with a deadline.
type Timeout struct {
	d time.Duration
}

// NewTimeout creates a Timeout. A non-positive d disables it.
func NewTimeout(d time.Duration) *Timeout {
	return &Timeout{d: d}
}

// Duration returns the configured deadline.
func (t *Timeout) Duration() time.Duration { return t.d }

// Execute runs op with a derived deadline. When that deadline, and not the
// caller's, expires, the error matches ErrTimeout. op must honour ctx.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	if t.d <= 0 {
		return op(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	err := op(tctx)
	if err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	return err
}
