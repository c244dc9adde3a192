package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/tomtib/ableton-animator/internal/adapters/output"
	service "github.com/tomtib/ableton-animator/internal/app"
	"github.com/tomtib/ableton-animator/internal/config"
	"github.com/tomtib/ableton-animator/internal/domain/model"
	"github.com/tomtib/ableton-animator/internal/section"
	"github.com/tomtib/ableton-animator/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

type fakeSource struct {
	mu      sync.Mutex
	fn      func(model.Event)
	stopped bool
}

func (s *fakeSource) Listen(fn func(model.Event)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = fn
	return func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
	}, nil
}

func (s *fakeSource) send(e model.Event) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	fn(e)
}

type fakeDevice struct {
	mu   sync.Mutex
	sent []model.Event
	err  error
}

func (d *fakeDevice) Send(e model.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, e)
	return nil
}

func (d *fakeDevice) fail(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *fakeDevice) count(match func(model.Event) bool) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.sent {
		if match(e) {
			n++
		}
	}
	return n
}

// shortBars plays a 5ms bar and records the section names.
type shortBars struct {
	mu     sync.Mutex
	played []string
}

func (b *shortBars) PlayBar(ctx context.Context, _ time.Time, s section.Section) error {
	b.mu.Lock()
	b.played = append(b.played, s.Name)
	b.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil
	}
}

func (b *shortBars) last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.played) == 0 {
		return ""
	}
	return b.played[len(b.played)-1]
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}

func content() []section.Section {
	return []section.Section{{Name: "A"}, {Name: "B"}, {Name: "C"}}
}

func TestService_New(t *testing.T) {
	Convey("Given a new service without ports", t, func() {
		svc := service.New()

		Convey("Then it refuses to start", func() {
			So(svc.Start(context.Background()), ShouldEqual, service.ErrNoSource)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("Then its state is unavailable", func() {
			_, err := svc.State()
			So(err, ShouldEqual, service.ErrNotStarted)
			So(svc.Healthy(), ShouldEqual, service.ErrNotStarted)
		})
	})

	Convey("Given a service without content", t, func() {
		svc := service.New(service.WithSource(&fakeSource{}), service.WithDevice(&fakeDevice{}))

		Convey("Then it refuses to start", func() {
			So(svc.Start(context.Background()), ShouldEqual, service.ErrNoSections)
		})
	})

	Convey("Given a service built from the default config", t, func() {
		svc := service.New(append(service.ConfigOptions(config.New()),
			service.WithSource(&fakeSource{}),
			service.WithDevice(&fakeDevice{}),
			service.WithSections(content()),
		)...)
		defer svc.Stop()

		Convey("Then it starts and reports stats", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.Start(context.Background()), ShouldBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["bpm"], ShouldEqual, 140.0)
			So(stats, ShouldContainKey, "timing")
			So(stats, ShouldContainKey, "output")
			So(svc.Healthy(), ShouldBeNil)
		})
	})
}

func TestService_Run(t *testing.T) {
	Convey("Given a running engine with a two beat count-in", t, func() {
		src := &fakeSource{}
		dev := &fakeDevice{}
		bars := &shortBars{}
		stop := make(chan struct{}, 1)
		svc := service.New(
			service.WithSource(src),
			service.WithDevice(dev),
			service.WithSections(content()),
			service.WithBarPlayer(bars),
			service.WithStopGesture(stop),
			service.WithCountIn(2),
			service.WithWorkerCount(2),
			service.WithOutput(4, 64, 1, time.Millisecond),
		)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		var runErr error
		finished := make(chan struct{})
		go func() {
			runErr = svc.Run(ctx)
			close(finished)
		}()

		So(eventually(func() bool { return svc.GetStats()["started"] == true }), ShouldBeTrue)
		l, err := svc.Listener()
		So(err, ShouldBeNil)
		state, err := svc.State()
		So(err, ShouldBeNil)

		performerNote := func(e model.Event) bool { return e.Channel == 1 && e.Kind == model.KindNoteOn }

		Convey("When performer input arrives before the count-in", func() {
			src.send(model.NoteOn(1, 60, 100, time.Now()))

			Convey("Then it is not forwarded", func() {
				time.Sleep(20 * time.Millisecond)
				So(dev.count(performerNote), ShouldEqual, 0)
				So(l.Armed(), ShouldBeFalse)
			})
		})

		Convey("When the count-in completes", func() {
			src.send(model.NoteOn(0, 60, 100, time.Now()))
			src.send(model.NoteOn(0, 60, 100, time.Now()))
			So(eventually(l.Armed), ShouldBeTrue)

			Convey("Then performer input is forwarded and captured", func() {
				src.send(model.NoteOn(1, 60, 100, time.Now()))
				So(eventually(func() bool { return dev.count(performerNote) == 1 }), ShouldBeTrue)
				So(eventually(func() bool { return len(state.Onsets(1)) == 1 }), ShouldBeTrue)
			})

			Convey("Then a control note switches the section at a bar boundary", func() {
				src.send(model.NoteOn(15, 7, 100, time.Now()))
				So(eventually(func() bool { return bars.last() == "C" }), ShouldBeTrue)
				So(state.Section(), ShouldEqual, 2)
			})

			Convey("Then the stop gesture detaches the listener", func() {
				stop <- struct{}{}
				So(eventually(func() bool { return !l.Armed() }), ShouldBeTrue)
			})

			Convey("Then cancelling ends the run cleanly", func() {
				cancel()
				select {
				case <-finished:
					So(runErr, ShouldBeNil)
				case <-time.After(3 * time.Second):
					So("run did not return", ShouldBeEmpty)
				}
				So(svc.GetStats()["started"], ShouldEqual, false)
			})

			Convey("Then losing the device ends the run with an error", func() {
				dev.fail(fmt.Errorf("unplugged: %w", output.ErrDeviceLost))
				src.send(model.NoteOn(1, 60, 100, time.Now()))
				select {
				case <-finished:
					So(errors.Is(runErr, output.ErrDeviceLost), ShouldBeTrue)
				case <-time.After(3 * time.Second):
					So("run did not return", ShouldBeEmpty)
				}
			})
		})

		cancel()
		<-finished
	})
}
