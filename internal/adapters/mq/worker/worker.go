// Package worker runs supervised consumers over queue lanes.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtib/ableton-animator/pkg/logger"
	"github.com/tomtib/ableton-animator/pkg/metrics"
)

// Default worker configuration constants.
const (
	workerShutdownTimeout = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Handler processes one event.
type Handler[T any] interface {
	Handle(ctx context.Context, e T) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, e T) error

// Handle implements Handler.
func (f HandlerFunc[T]) Handle(ctx context.Context, e T) error { return f(ctx, e) }

// Queue defines how workers receive events.
type Queue[T any] interface {
	Dequeue(ctx context.Context, lane int) <-chan T
	Lanes() int
}

type acker interface{ Ack() }

// Worker processes events from one lane.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, the lane closes or
	// Shutdown is called.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for it to exit.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker consumes a single queue lane. A handler panic aborts only
// the event being handled; the worker logs it and resumes on the same lane.
type InMemoryWorker[T any] struct {
	queue   Queue[T]
	lane    int
	handler Handler[T]
	name    string
	pool    string

	processed atomic.Uint64
	failed    atomic.Uint64
	restarts  atomic.Uint64

	// Shutdown control
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker bound to lane.
func NewInMemoryWorker[T any](queue Queue[T], lane int, handler Handler[T], opts ...Option) *InMemoryWorker[T] {
	s := apply("worker-"+strconv.Itoa(lane), opts)
	return &InMemoryWorker[T]{
		queue:    queue,
		lane:     lane,
		handler:  handler,
		name:     s.name,
		pool:     s.name,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   s.logger,
	}
}

// Run starts the worker loop, restarting it after a panic.
func (w *InMemoryWorker[T]) Run(ctx context.Context) {
	defer close(w.done)

	for w.loop(ctx) {
		w.restarts.Add(1)
		metrics.RecordWorkerRestart(w.pool)
		w.logger.Warn(ctx, "worker restarted", logger.Int("lane", w.lane))
	}
}

// loop consumes the lane until it should stop. It reports true if it was
// interrupted by a panic.
func (w *InMemoryWorker[T]) loop(ctx context.Context) (crashed bool) {
	defer func() {
		if r := recover(); r != nil {
			crashed = true
			w.failed.Add(1)
			metrics.RecordWorkerPanic(w.pool)
			w.logger.Error(ctx, "panic while handling event",
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())),
			)
		}
	}()

	events := w.queue.Dequeue(ctx, w.lane)
	ack, _ := w.queue.(acker)
	for {
		select {
		case <-ctx.Done():
			return false
		case <-w.shutdown:
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			if ack != nil {
				ack.Ack()
			}
			w.processed.Add(1)
			if err := w.handler.Handle(ctx, event); err != nil {
				w.failed.Add(1)
				metrics.RecordErrorByComponent(w.pool, "handler")
				w.logger.Error(ctx, "error processing event", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker without draining its lane.
func (w *InMemoryWorker[T]) Shutdown(ctx context.Context) error {
	w.stop()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker[T]) stop() {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
}

// Done is closed when Run returns.
func (w *InMemoryWorker[T]) Done() <-chan struct{} { return w.done }

// Processed returns the number of events taken off the lane.
func (w *InMemoryWorker[T]) Processed() uint64 { return w.processed.Load() }

// Restarts returns how many times the loop was restarted after a panic.
func (w *InMemoryWorker[T]) Restarts() uint64 { return w.restarts.Load() }

// Pool runs one worker per queue lane, so events sharing a lane are
// handled in order.
type Pool[T any] struct {
	name    string
	workers []*InMemoryWorker[T]
	queue   Queue[T]

	started atomic.Bool
	done    chan struct{}

	logger logger.Logger
}

// NewPool creates a pool over every lane of queue.
func NewPool[T any](queue Queue[T], handler Handler[T], opts ...Option) *Pool[T] {
	s := apply("worker-pool", opts)

	pool := &Pool[T]{
		name:    s.name,
		workers: make([]*InMemoryWorker[T], queue.Lanes()),
		queue:   queue,
		done:    make(chan struct{}),
		logger:  s.logger,
	}
	for i := range pool.workers {
		w := NewInMemoryWorker(queue, i, handler,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(s.logger),
		)
		w.pool = s.name
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(pool.name, 0)

	return pool
}

// Name returns the pool's metrics label.
func (p *Pool[T]) Name() string { return p.name }

// Size returns the number of workers.
func (p *Pool[T]) Size() int { return len(p.workers) }

// Start starts all workers in the pool. It is a no-op after the first call.
func (p *Pool[T]) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}

	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *InMemoryWorker[T]) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}
	metrics.UpdateWorkerCount(p.name, len(p.workers))

	go func() {
		wg.Wait()
		metrics.UpdateWorkerCount(p.name, 0)
		close(p.done)
	}()
}

// Done is closed once every worker has exited.
func (p *Pool[T]) Done() <-chan struct{} { return p.done }

// Stats returns per-pool counters.
func (p *Pool[T]) Stats() map[string]interface{} {
	var processed, failed, restarts uint64
	for _, w := range p.workers {
		processed += w.Processed()
		failed += w.failed.Load()
		restarts += w.Restarts()
	}
	return map[string]interface{}{
		"workers":   len(p.workers),
		"processed": processed,
		"failed":    failed,
		"restarts":  restarts,
	}
}

// Stop stops all workers without draining their lanes.
func (p *Pool[T]) Stop() {
	for _, w := range p.workers {
		w.stop()
	}
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

// Shutdown closes the queue and lets the workers drain what is left. Workers
// still running when ctx expires are stopped.
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	if !p.started.Load() {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	select {
	case <-p.done:
		return nil
	case <-shutdownCtx.Done():
		p.logger.Warn(ctx, "pool drain timed out, stopping workers")
		p.Stop()
		return fmt.Errorf("pool shutdown: %w", shutdownCtx.Err())
	}
}
