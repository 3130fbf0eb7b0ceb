package resilience

import (
	"errors"
	"net"

	"github.com/jonwraymond/instancecache/instance"
)

// Transient reports whether err is worth retrying: pool and lock
// timeouts, attempt timeouts and network failures. Context cancellation is
// never transient.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if instance.IsRetryable(err) || errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
