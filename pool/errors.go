package pool

import "errors"

// ErrNilFactory is returned by New when Config.Factory is nil.
var ErrNilFactory = errors.New("pool: factory is required")
