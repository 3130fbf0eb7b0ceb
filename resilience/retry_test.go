package resilience

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/jonwraymond/instancecache/instance"
)

func TestNewRetry_Defaults(t *testing.T) {
	r := NewRetry(RetryConfig{})
	cfg := r.Config()

	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.InitialDelay != 50*time.Millisecond {
		t.Errorf("InitialDelay = %v, want 50ms", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 2*time.Second {
		t.Errorf("MaxDelay = %v, want 2s", cfg.MaxDelay)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("Multiplier = %f, want 2.0", cfg.Multiplier)
	}
	if cfg.RetryIf == nil {
		t.Error("RetryIf = nil, want Transient")
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond})

	attempts := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return ErrTimeout
		}
		return nil
	})
	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	var retries []int
	r := NewRetry(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		OnRetry:      func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) },
	})

	err := r.Execute(context.Background(), func(context.Context) error {
		return instance.ErrPoolExhausted
	})
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("Execute() error = %v, want ErrMaxRetriesExceeded", err)
	}
	if !errors.Is(err, instance.ErrPoolExhausted) {
		t.Errorf("Execute() error = %v, want wrapped ErrPoolExhausted", err)
	}
	if len(retries) != 2 {
		t.Errorf("OnRetry calls = %v, want 2", retries)
	}
}

func TestRetry_PermanentErrorNotRetried(t *testing.T) {
	r := NewRetry(RetryConfig{InitialDelay: time.Millisecond})
	perm := errors.New("malformed snapshot")

	attempts := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		attempts++
		return perm
	})
	if !errors.Is(err, perm) || errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("Execute() error = %v, want %v unwrapped", err, perm)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	err := r.Execute(ctx, func(context.Context) error {
		cancel()
		return ErrTimeout
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}

func TestRetry_Delay(t *testing.T) {
	tests := []struct {
		name     string
		strategy BackoffStrategy
		attempt  int
		want     time.Duration
	}{
		{"exponential first", BackoffExponential, 1, 10 * time.Millisecond},
		{"exponential third", BackoffExponential, 3, 40 * time.Millisecond},
		{"exponential capped", BackoffExponential, 10, 100 * time.Millisecond},
		{"linear", BackoffLinear, 3, 30 * time.Millisecond},
		{"constant", BackoffConstant, 5, 10 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetry(RetryConfig{
				InitialDelay: 10 * time.Millisecond,
				MaxDelay:     100 * time.Millisecond,
				Strategy:     tt.strategy,
			})
			if got := r.delay(tt.attempt); got != tt.want {
				t.Errorf("delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestRetry_JitterBounded(t *testing.T) {
	r := NewRetry(RetryConfig{InitialDelay: 100 * time.Millisecond, Strategy: BackoffConstant, Jitter: true})
	for range 50 {
		d := r.delay(1)
		if d < 100*time.Millisecond || d >= 125*time.Millisecond {
			t.Fatalf("delay() = %v, want within [100ms, 125ms)", d)
		}
	}
}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), false},
		{"cancelled", context.Canceled, false},
		{"attempt timeout", ErrTimeout, true},
		{"pool exhausted", instance.NewError("pool.acquire", "", instance.ErrPoolExhausted, nil), true},
		{"lock timeout", instance.ErrLockTimeout, true},
		{"not found", instance.ErrNotFound, false},
		{"network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transient(tt.err); got != tt.want {
				t.Errorf("Transient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
