package service

import "errors"

// Sentinel errors.
var (
	ErrNoSource   = errors.New("no input source configured")
	ErrNoDevice   = errors.New("no output device configured")
	ErrNoSections = errors.New("no sections loaded")
	ErrNotStarted = errors.New("service not started")
)
