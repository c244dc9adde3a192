package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtib/ableton-animator/internal/domain/model"
	"github.com/tomtib/ableton-animator/internal/domain/routing"
	"github.com/tomtib/ableton-animator/pkg/metrics"
)

// Dispatcher is the producer side of the dispatch queue.
type Dispatcher interface {
	Enqueue(ctx context.Context, e model.Event) bool
	IsClosed() bool
}

// Listener is the input driver callback. While disarmed it only forwards
// metronome ticks to the count-in; once armed it pushes every event into the
// dispatch queue. OnEvent never blocks.
type Listener struct {
	queue     Dispatcher
	metronome uint8
	armed     atomic.Bool
	ticks     chan time.Time

	received atomic.Uint64
	dropped  atomic.Uint64
	ignored  atomic.Uint64

	mu    sync.RWMutex
	cycle string
}

// NewListener creates a disarmed Listener. tickBuffer bounds how many
// count-in ticks may be pending.
func NewListener(queue Dispatcher, metronome uint8, tickBuffer int) *Listener {
	return &Listener{
		queue:     queue,
		metronome: metronome,
		ticks:     make(chan time.Time, max(tickBuffer, 1)),
	}
}

// OnEvent is registered with the input port.
func (l *Listener) OnEvent(e model.Event) {
	l.received.Add(1)
	metrics.RecordEventReceived()

	if l.armed.Load() {
		if l.queue.Enqueue(context.Background(), e) {
			return
		}
		if !l.queue.IsClosed() {
			l.dropped.Add(1)
			metrics.RecordEventDropped("queue_full")
		}
		return
	}

	if e.Channel == l.metronome && e.Kind == model.KindNoteOn {
		select {
		case l.ticks <- e.Arrival:
		default:
		}
		return
	}
	l.ignored.Add(1)
	metrics.RecordEventDropped(routing.DropUnrouted)
}

// Ticks delivers metronome ticks seen while disarmed.
func (l *Listener) Ticks() <-chan time.Time { return l.ticks }

// ResetCountIn discards ticks left over from an earlier count-in.
func (l *Listener) ResetCountIn() {
	for {
		select {
		case <-l.ticks:
		default:
			return
		}
	}
}

// Arm starts forwarding events for cycle.
func (l *Listener) Arm(cycle string) {
	l.mu.Lock()
	l.cycle = cycle
	l.mu.Unlock()
	l.armed.Store(true)
}

// Disarm stops forwarding events.
func (l *Listener) Disarm() { l.armed.Store(false) }

// Armed reports whether events are forwarded.
func (l *Listener) Armed() bool { return l.armed.Load() }

// Stats returns listener counters.
func (l *Listener) Stats() map[string]interface{} {
	l.mu.RLock()
	cycle := l.cycle
	l.mu.RUnlock()
	return map[string]interface{}{
		"armed":    l.Armed(),
		"cycle":    cycle,
		"received": l.received.Load(),
		"dropped":  l.dropped.Load(),
		"ignored":  l.ignored.Load(),
	}
}
