package midi

import "errors"

// Sentinel errors.
var (
	ErrPortNotFound    = errors.New("midi port not found")
	ErrUnsupportedKind = errors.New("unsupported event kind")
)
