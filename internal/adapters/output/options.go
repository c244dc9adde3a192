package output

import (
	"time"

	"github.com/tomtib/ableton-animator/pkg/logger"
)

// Option applies a configuration option to a Pipeline.
type Option func(*Pipeline)

// WithWorkers sets the number of output lanes and workers. Fewer than one
// lane per channel is raised to model.Channels.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets the capacity of each output lane.
func WithQueueSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.retries = n
		}
	}
}

// WithBackoff sets the base delay between retries. Attempt k waits k*d.
func WithBackoff(d time.Duration) Option {
	return func(p *Pipeline) {
		if d >= 0 {
			p.backoff = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}
