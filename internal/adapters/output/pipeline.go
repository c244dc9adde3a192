package output

import (
	"context"
	"sync"
	"time"

	"github.com/tomtib/ableton-animator/internal/adapters/mq/queue"
	"github.com/tomtib/ableton-animator/internal/adapters/mq/worker"
	"github.com/tomtib/ableton-animator/internal/domain/model"
	"github.com/tomtib/ableton-animator/pkg/logger"
	"github.com/tomtib/ableton-animator/pkg/metrics"
)

const queueName = "output"

// Pipeline is the output queue plus its worker pool. Lanes are sharded by
// channel so each channel's events reach the device in the order emitted.
type Pipeline struct {
	device    *SerializedDevice
	queue     *queue.InMemoryQueue[model.OutputEvent]
	pool      *worker.Pool[model.OutputEvent]
	workers   int
	queueSize int
	retries   int
	backoff   time.Duration

	cancel   context.CancelFunc
	lost     chan struct{}
	lostErr  error
	lostOnce sync.Once

	logger logger.Logger
}

// NewPipeline creates a pipeline writing to dev.
func NewPipeline(dev Device, opts ...Option) *Pipeline {
	p := &Pipeline{
		device:    NewSerializedDevice(dev),
		workers:   16,
		queueSize: 1024,
		retries:   3,
		backoff:   2 * time.Millisecond,
		cancel:    func() {},
		lost:      make(chan struct{}),
		logger:    logger.Get().Named("output"),
	}
	for _, opt := range opts {
		opt(p)
	}
	// A delayed event holds its lane until At, so no two channels may share one.
	if p.workers < model.Channels {
		p.workers = model.Channels
	}

	p.device.onLost = p.markLost
	p.queue = queue.NewInMemoryQueue(func(e model.OutputEvent) int { return int(e.Channel) },
		queue.WithName(queueName),
		queue.WithLanes(p.workers),
		queue.WithCapacity(p.queueSize),
	)
	sender := &Sender{device: p.device, retries: p.retries, backoff: p.backoff, logger: p.logger}
	p.pool = worker.NewPool[model.OutputEvent](p.queue, sender,
		worker.WithName("output-pool"),
		worker.WithLogger(p.logger),
	)
	return p
}

// Device returns the serialized device for producers that write directly.
func (p *Pipeline) Device() *SerializedDevice { return p.device }

// Start launches the output workers.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.pool.Start(ctx)
}

// Emit queues e without blocking. It reports false when the lane is full or
// the device is lost.
func (p *Pipeline) Emit(ctx context.Context, e model.OutputEvent) bool {
	select {
	case <-p.lost:
		return false
	default:
	}
	return p.queue.Enqueue(ctx, e)
}

// Lost is closed once the device is lost.
func (p *Pipeline) Lost() <-chan struct{} { return p.lost }

// Err returns the device-loss error, if any.
func (p *Pipeline) Err() error {
	select {
	case <-p.lost:
		return p.lostErr
	default:
		return nil
	}
}

func (p *Pipeline) markLost(err error) {
	p.lostOnce.Do(func() {
		p.lostErr = err
		metrics.RecordDeviceLost()
		p.logger.Error(context.Background(), "output device lost, stopping output workers", logger.Error(err))
		close(p.lost)
		p.cancel()
	})
}

// Shutdown drains queued output and stops the workers.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	defer p.cancel()
	return p.pool.Shutdown(ctx)
}

// Stats returns pipeline counters.
func (p *Pipeline) Stats() map[string]interface{} {
	return map[string]interface{}{
		"queued":  p.queue.Len(context.Background()),
		"dropped": p.queue.Dropped(),
		"writes":  p.device.Writes(),
		"errors":  p.device.Errors(),
		"workers": p.pool.Stats(),
		"lost":    p.Err() != nil,
	}
}
