package output

import "errors"

// Sentinel errors.
var (
	// ErrDeviceLost marks a send failure that cannot be retried because the
	// device is gone. Devices wrap it.
	ErrDeviceLost = errors.New("output device lost")
	// ErrRetriesExhausted is logged when a transient failure outlives the retries.
	ErrRetriesExhausted = errors.New("output retries exhausted")
)
