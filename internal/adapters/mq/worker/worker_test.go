package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
	queue "github.com/tomtib/ableton-animator/internal/adapters/mq/queue"
	worker "github.com/tomtib/ableton-animator/internal/adapters/mq/worker"
	model "github.com/tomtib/ableton-animator/internal/domain/model"
	logging "github.com/tomtib/ableton-animator/pkg/logger"
)

// recorder collects handled notes per channel.
type recorder struct {
	mu      sync.Mutex
	byCh    map[uint8][]uint8
	count   int
	panicOn map[uint8]bool
	errOn   map[uint8]bool
}

func newRecorder() *recorder {
	return &recorder{
		byCh:    make(map[uint8][]uint8),
		panicOn: make(map[uint8]bool),
		errOn:   make(map[uint8]bool),
	}
}

func (r *recorder) Handle(_ context.Context, e model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	if r.panicOn[e.Note] {
		panic("bad note")
	}
	if r.errOn[e.Note] {
		return errors.New("rejected")
	}
	r.byCh[e.Channel] = append(r.byCh[e.Channel], e.Note)
	return nil
}

func (r *recorder) notes(ch uint8) []uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint8(nil), r.byCh[ch]...)
}

func (r *recorder) handled() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func byChannel(e model.Event) int { return int(e.Channel) }

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker on a single-lane queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(byChannel, queue.WithCapacity(16))
		rec := newRecorder()
		w := worker.NewInMemoryWorker[model.Event](q, 0, rec, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When events are queued", func() {
			for n := uint8(1); n <= 3; n++ {
				q.Enqueue(ctx, model.NoteOn(4, n, 100, time.Now()))
			}

			convey.Convey("Then they are handled in order", func() {
				convey.So(waitFor(func() bool { return len(rec.notes(4)) == 3 }), convey.ShouldBeTrue)
				convey.So(rec.notes(4), convey.ShouldResemble, []uint8{1, 2, 3})
				convey.So(w.Processed(), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When the handler returns an error", func() {
			rec.errOn[2] = true
			for n := uint8(1); n <= 3; n++ {
				q.Enqueue(ctx, model.NoteOn(4, n, 100, time.Now()))
			}

			convey.Convey("Then the worker keeps going", func() {
				convey.So(waitFor(func() bool { return rec.handled() == 3 }), convey.ShouldBeTrue)
				convey.So(rec.notes(4), convey.ShouldResemble, []uint8{1, 3})
			})
		})

		convey.Convey("When the handler panics", func() {
			rec.panicOn[2] = true
			for n := uint8(1); n <= 3; n++ {
				q.Enqueue(ctx, model.NoteOn(4, n, 100, time.Now()))
			}

			convey.Convey("Then the worker restarts on the same lane", func() {
				convey.So(waitFor(func() bool { return len(rec.notes(4)) == 2 }), convey.ShouldBeTrue)
				convey.So(rec.notes(4), convey.ShouldResemble, []uint8{1, 3})
				convey.So(w.Restarts(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer shutdownCancel()

			err := w.Shutdown(shutdownCtx)

			convey.Convey("Then it stops gracefully", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the context is cancelled", func() {
			cancel()

			convey.Convey("Then the worker stops", func() {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker still running", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool over a sharded queue", t, func() {
		_ = logging.Init()

		for _, lanes := range []int{2, 3, 8} {
			q := queue.NewInMemoryQueue(byChannel, queue.WithLanes(lanes), queue.WithCapacity(512))
			rec := newRecorder()
			pool := worker.NewPool[model.Event](q, rec, worker.WithName("test-pool"))
			convey.So(pool.Size(), convey.ShouldEqual, lanes)

			ctx, cancel := context.WithCancel(context.Background())
			pool.Start(ctx)

			// interleave 100 notes across 16 channels
			want := make(map[uint8][]uint8)
			for i := 0; i < 100; i++ {
				ch := uint8(i % 16)
				n := uint8(i)
				want[ch] = append(want[ch], n)
				convey.So(q.Enqueue(ctx, model.NoteOn(ch, n, 100, time.Now())), convey.ShouldBeTrue)
			}

			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			cancel()

			for ch := uint8(0); ch < 16; ch++ {
				convey.So(rec.notes(ch), convey.ShouldResemble, want[ch])
			}
			convey.So(pool.Stats()["processed"], convey.ShouldEqual, uint64(100))
		}
	})

	convey.Convey("Given a started pool", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(byChannel, queue.WithLanes(2))
		pool := worker.NewPool[model.Event](q, newRecorder())
		pool.Start(context.Background())
		pool.Start(context.Background())

		convey.Convey("When it is stopped", func() {
			pool.Stop()

			convey.Convey("Then every worker exits", func() {
				select {
				case <-pool.Done():
				case <-time.After(time.Second):
					convey.So("pool still running", convey.ShouldBeEmpty)
				}
			})
		})
	})

	convey.Convey("A pool that never started shuts down immediately", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(byChannel)
		pool := worker.NewPool[model.Event](q, worker.HandlerFunc[model.Event](func(context.Context, model.Event) error { return nil }))
		convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		convey.So(q.IsClosed(), convey.ShouldBeTrue)
	})
}
