// Package metronome derives beat, bar and sixteenth durations from a tempo
// and turns metronome ticks into drift estimates.
package metronome

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/tomtib/ableton-animator/internal/domain/timing"
)

// ErrTicksClosed is returned by CountIn when the tick source closes early.
var ErrTicksClosed = errors.New("metronome ticks closed")

// Option configures a Metronome.
type Option func(*Metronome)

// WithCountIn sets how many ticks CountIn waits for.
func WithCountIn(beats int) Option {
	return func(m *Metronome) {
		if beats >= 0 {
			m.countInBeats = beats
		}
	}
}

// Metronome holds tempo-derived constants. It is immutable after New.
type Metronome struct {
	bpm          float64
	beatsPerBar  int
	countInBeats int
	beatSeconds  float64
}

// New creates a Metronome for bpm and beatsPerBar. The count-in defaults to one bar.
func New(bpm float64, beatsPerBar int, opts ...Option) *Metronome {
	m := &Metronome{
		bpm:          bpm,
		beatsPerBar:  beatsPerBar,
		countInBeats: beatsPerBar,
		beatSeconds:  60 / bpm,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// BPM returns the tempo.
func (m *Metronome) BPM() float64 { return m.bpm }

// BeatsPerBar returns the meter.
func (m *Metronome) BeatsPerBar() int { return m.beatsPerBar }

// CountInBeats returns the number of ticks observed before arming.
func (m *Metronome) CountInBeats() int { return m.countInBeats }

// Beat returns the duration of one beat.
func (m *Metronome) Beat() time.Duration { return seconds(m.beatSeconds) }

// Bar returns the duration of one bar.
func (m *Metronome) Bar() time.Duration { return seconds(m.beatSeconds * float64(m.beatsPerBar)) }

// Sixteenth returns a sixteenth of a bar, the smallest timing correction unit.
func (m *Metronome) Sixteenth() time.Duration {
	return seconds(m.beatSeconds * float64(m.beatsPerBar) / 16)
}

// BeatIndex returns the beat nearest to offset (an offset from the epoch).
func (m *Metronome) BeatIndex(offset time.Duration) int64 {
	return int64(math.Round(offset.Seconds() / m.beatSeconds))
}

// ExpectedAt returns the offset from the epoch at which beat is due.
func (m *Metronome) ExpectedAt(beat int64) time.Duration {
	return seconds(float64(beat) * m.beatSeconds)
}

// GridError returns the beat nearest to offset and how far offset lies from
// it. Positive means late.
func (m *Metronome) GridError(offset time.Duration) (int64, time.Duration) {
	beat := m.BeatIndex(offset)
	return beat, offset - m.ExpectedAt(beat)
}

// Tick handles one metronome tick arriving at. It writes the drift estimate
// and the last-tick timestamp to state exactly once and returns the drift.
func (m *Metronome) Tick(state *timing.State, at time.Time) time.Duration {
	_, drift := m.GridError(state.Since(at))
	state.SetDrift(drift)
	state.SetLastTick(at)
	return drift
}

// CountIn blocks until CountInBeats ticks have been received from ticks.
func (m *Metronome) CountIn(ctx context.Context, ticks <-chan time.Time) error {
	for seen := 0; seen < m.countInBeats; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ticks:
			if !ok {
				return ErrTicksClosed
			}
			seen++
		}
	}
	return nil
}
