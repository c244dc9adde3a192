package routing

import "errors"

var (
	// ErrDuplicateCommand is returned when a command note is registered twice.
	ErrDuplicateCommand = errors.New("duplicate command note")
	// ErrNoEmitter is returned by New without an output emitter.
	ErrNoEmitter = errors.New("routing requires an emitter")
)
