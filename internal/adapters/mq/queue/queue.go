// Package queue provides bounded, non-blocking, channel-sharded queues.
//
// Each queue is split into lanes. An event's key picks its lane, so events
// sharing a key are consumed in the order they were enqueued as long as each
// lane has a single consumer.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tomtib/ableton-animator/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultName     = "dispatch"
	defaultCapacity = 1024
	defaultLanes    = 1
)

// Queue provides non-blocking enqueue and per-lane channel dequeue semantics.
type Queue[T any] interface {
	// Enqueue adds an event to its lane.
	// Returns false if the lane is full or the queue is closed; it never blocks.
	Enqueue(ctx context.Context, e T) bool

	// Dequeue returns the receive side of lane. The channel is closed when
	// the queue is closed.
	Dequeue(ctx context.Context, lane int) <-chan T

	// Lanes returns the number of lanes.
	Lanes() int

	// Len returns the current number of queued events across all lanes.
	Len(ctx context.Context) int

	// Dropped returns how many events were refused because a lane was full.
	Dropped() uint64

	// Close gracefully shuts down the queue.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue with one buffered channel per lane.
type InMemoryQueue[T any] struct {
	name     string
	capacity int
	lanes    []chan T
	key      func(T) int
	dropped  atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue whose lanes are selected by key.
func NewInMemoryQueue[T any](key func(T) int, opts ...Option) *InMemoryQueue[T] {
	s := settings{name: defaultName, capacity: defaultCapacity, lanes: defaultLanes}
	for _, opt := range opts {
		opt(&s)
	}

	q := &InMemoryQueue[T]{
		name:     s.name,
		capacity: s.capacity,
		lanes:    make([]chan T, s.lanes),
		key:      key,
	}
	for i := range q.lanes {
		q.lanes[i] = make(chan T, s.capacity)
	}

	metrics.UpdateQueueCapacity(q.name, s.capacity*s.lanes)
	metrics.UpdateQueueSize(q.name, 0)

	return q
}

// Name returns the queue's metrics label.
func (q *InMemoryQueue[T]) Name() string { return q.name }

func (q *InMemoryQueue[T]) lane(e T) int {
	k := q.key(e)
	if k < 0 {
		k = -k
	}
	return k % len(q.lanes)
}

// Enqueue adds an event to its lane.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, e T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent(q.name, "closed")
		return false
	}

	select {
	case q.lanes[q.lane(e)] <- e:
		metrics.RecordQueueEnqueue(q.name)
		return true
	case <-ctx.Done():
		metrics.RecordErrorByComponent(q.name, "context_cancelled")
		return false
	default:
		q.dropped.Add(1)
		metrics.RecordErrorByComponent(q.name, "queue_full")
		return false
	}
}

// Dequeue returns lane's channel. Callers record dequeues with Ack.
func (q *InMemoryQueue[T]) Dequeue(_ context.Context, lane int) <-chan T {
	return q.lanes[lane%len(q.lanes)]
}

// Ack records that one event was taken off the queue.
func (q *InMemoryQueue[T]) Ack() {
	metrics.RecordQueueDequeue(q.name)
}

// Lanes returns the number of lanes.
func (q *InMemoryQueue[T]) Lanes() int { return len(q.lanes) }

// Capacity returns the capacity of a single lane.
func (q *InMemoryQueue[T]) Capacity() int { return q.capacity }

// Len returns the current number of queued events.
func (q *InMemoryQueue[T]) Len(_ context.Context) int {
	size := 0
	for _, l := range q.lanes {
		size += len(l)
	}
	metrics.UpdateQueueSize(q.name, size)
	return size
}

// Dropped returns the overflow counter.
func (q *InMemoryQueue[T]) Dropped() uint64 { return q.dropped.Load() }

// Close gracefully shuts down the queue. Queued events remain readable.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	for _, l := range q.lanes {
		close(l)
	}
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
