package metronome_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
	"github.com/tomtib/ableton-animator/internal/domain/metronome"
	"github.com/tomtib/ableton-animator/internal/domain/timing"
)

func TestDurations(t *testing.T) {
	convey.Convey("Given a metronome at 140 BPM in 4/4", t, func() {
		m := metronome.New(140, 4)

		convey.Convey("Then beat, bar and sixteenth derive from the tempo", func() {
			convey.So(m.Beat().Seconds(), convey.ShouldAlmostEqual, 0.4286, 1e-4)
			convey.So(m.Bar().Seconds(), convey.ShouldAlmostEqual, 1.7143, 1e-4)
			convey.So(m.Sixteenth().Seconds(), convey.ShouldAlmostEqual, 0.1071, 1e-4)
			convey.So(m.CountInBeats(), convey.ShouldEqual, 4)
			convey.So(m.BeatsPerBar(), convey.ShouldEqual, 4)
			convey.So(m.BPM(), convey.ShouldEqual, 140)
		})

		convey.Convey("Then beat 120 is expected at 51.429s", func() {
			convey.So(m.ExpectedAt(120).Seconds(), convey.ShouldAlmostEqual, 51.429, 1e-3)
		})
	})
}

func TestTick(t *testing.T) {
	convey.Convey("Given a metronome at 140 BPM and a shared state", t, func() {
		m := metronome.New(140, 4)
		epoch := time.Now()
		state := timing.New(epoch)

		convey.Convey("When the tick for beat 120 arrives at 51.50s", func() {
			at := epoch.Add(51500 * time.Millisecond)
			drift := m.Tick(state, at)

			convey.Convey("Then drift is +0.071s", func() {
				convey.So(drift.Seconds(), convey.ShouldAlmostEqual, 0.071, 1e-3)
				convey.So(state.Drift(), convey.ShouldEqual, drift)
			})

			convey.Convey("Then exactly one drift write happened", func() {
				convey.So(state.DriftWrites(), convey.ShouldEqual, 1)
			})

			convey.Convey("Then the last tick timestamp is updated", func() {
				last, ok := state.LastTick()
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(last.Sub(epoch), convey.ShouldEqual, 51500*time.Millisecond)
			})
		})

		convey.Convey("When a tick arrives slightly early", func() {
			at := epoch.Add(m.ExpectedAt(8) - 20*time.Millisecond)
			drift := m.Tick(state, at)

			convey.Convey("Then drift is negative", func() {
				convey.So(drift, convey.ShouldEqual, -20*time.Millisecond)
			})
		})
	})
}

func TestGridError(t *testing.T) {
	convey.Convey("Given a metronome at 120 BPM", t, func() {
		m := metronome.New(120, 4)

		convey.Convey("Then offsets snap to the nearest beat", func() {
			beat, dev := m.GridError(1260 * time.Millisecond)
			convey.So(beat, convey.ShouldEqual, 3)
			convey.So(dev, convey.ShouldEqual, -240*time.Millisecond)

			beat, dev = m.GridError(1010 * time.Millisecond)
			convey.So(beat, convey.ShouldEqual, 2)
			convey.So(dev, convey.ShouldEqual, 10*time.Millisecond)
		})
	})
}

func TestCountIn(t *testing.T) {
	convey.Convey("Given a metronome with a count-in of 3", t, func() {
		m := metronome.New(140, 4, metronome.WithCountIn(3))
		ticks := make(chan time.Time, 4)

		convey.Convey("When three ticks are delivered", func() {
			for i := 0; i < 3; i++ {
				ticks <- time.Now()
			}
			err := m.CountIn(context.Background(), ticks)

			convey.Convey("Then count-in completes", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the context is cancelled first", func() {
			ticks <- time.Now()
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			err := m.CountIn(ctx, ticks)

			convey.Convey("Then the context error is returned", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the tick source closes early", func() {
			close(ticks)
			err := m.CountIn(context.Background(), ticks)

			convey.Convey("Then it reports the closed source", func() {
				convey.So(errors.Is(err, metronome.ErrTicksClosed), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a metronome with no count-in", t, func() {
		m := metronome.New(140, 4, metronome.WithCountIn(0))

		convey.Convey("Then count-in returns immediately", func() {
			convey.So(m.CountIn(context.Background(), nil), convey.ShouldBeNil)
		})
	})
}
