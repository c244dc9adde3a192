package queue

// Option applies a configuration option to an InMemoryQueue.
type Option func(*settings)

type settings struct {
	name     string
	capacity int
	lanes    int
}

// WithName labels the queue in metrics and logs.
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithCapacity sets the capacity of each lane.
func WithCapacity(capacity int) Option {
	return func(s *settings) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// WithLanes sets the number of lanes. Events with the same key always land
// on the same lane.
func WithLanes(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.lanes = n
		}
	}
}
