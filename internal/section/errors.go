package section

import "errors"

var (
	// ErrNoSections is returned by NewPlayer without content.
	ErrNoSections = errors.New("no sections loaded")
)
