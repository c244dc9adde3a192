package syncfile

import "errors"

// Sentinel errors.
var (
	ErrInvalid            = errors.New("invalid sync file")
	ErrUnsupportedVersion = errors.New("unsupported sync file version")
)
