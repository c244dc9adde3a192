package worker

import (
	"github.com/tomtib/ableton-animator/pkg/logger"
)

// Option applies a configuration option to a worker or pool.
type Option func(*settings)

type settings struct {
	name   string
	logger logger.Logger
}

// WithName sets the name used for identification, logging and metrics.
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger logger.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func apply(def string, opts []Option) settings {
	s := settings{name: def}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger = s.logger.Named(s.name)
	return s
}
