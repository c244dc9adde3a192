// Package timing holds the timing state shared by routing workers, the
// metronome tick handler and the section player.
//
// Every field is synchronized on its own: per-channel records carry their
// own mutex and scalars are atomics, so a drift read never waits on an
// unrelated channel's append. The epoch is fixed at construction.
package timing

import (
	"sync/atomic"
	"time"
)

// Channels is the number of MIDI channels tracked.
const Channels = 16

const defaultHistory = 5

// Option configures a State.
type Option func(*State)

// WithHistory sets the capacity of every per-channel record.
func WithHistory(n int) Option {
	return func(s *State) {
		if n > 0 {
			s.history = n
		}
	}
}

// State is the shared timing state. Construct it once with New and pass the
// pointer to every component that needs it.
type State struct {
	epoch   time.Time
	history int
	records [Channels]*Record

	humanBeat     atomic.Int64
	automatedBeat atomic.Int64

	drift       atomic.Int64 // nanoseconds
	driftWrites atomic.Uint64

	lastTick atomic.Int64 // nanoseconds since epoch, -1 when no tick yet

	section atomic.Int32
}

// New creates a State whose epoch is fixed to epoch.
func New(epoch time.Time, opts ...Option) *State {
	s := &State{
		epoch:   epoch,
		history: defaultHistory,
	}
	for _, opt := range opts {
		opt(s)
	}
	for i := range s.records {
		s.records[i] = newRecord(s.history)
	}
	s.humanBeat.Store(-1)
	s.automatedBeat.Store(-1)
	s.lastTick.Store(-1)
	return s
}

// Epoch returns the start time all offsets are relative to.
func (s *State) Epoch() time.Time { return s.epoch }

// Since returns t as an offset from the epoch.
func (s *State) Since(t time.Time) time.Duration { return t.Sub(s.epoch) }

// Record returns the onset record for channel. Channels outside 0-15 wrap.
func (s *State) Record(channel uint8) *Record {
	return s.records[channel%Channels]
}

// AppendOnset records an onset offset for channel.
func (s *State) AppendOnset(channel uint8, onset time.Duration) {
	s.Record(channel).Append(onset)
}

// Onsets returns channel's onset history, oldest first.
func (s *State) Onsets(channel uint8) []time.Duration {
	return s.Record(channel).Snapshot()
}

// HumanBeat returns the beat index of the latest captured performer onset, or -1.
func (s *State) HumanBeat() int64 { return s.humanBeat.Load() }

// SetHumanBeat updates the performer beat marker.
func (s *State) SetHumanBeat(beat int64) { s.humanBeat.Store(beat) }

// AutomatedBeat returns the beat index of the latest automated onset, or -1.
func (s *State) AutomatedBeat() int64 { return s.automatedBeat.Load() }

// SwapAutomatedBeat sets the automated beat marker and returns the previous value.
func (s *State) SwapAutomatedBeat(beat int64) int64 { return s.automatedBeat.Swap(beat) }

// Drift returns the latest drift estimate (actual minus expected tick time).
func (s *State) Drift() time.Duration { return time.Duration(s.drift.Load()) }

// SetDrift replaces the drift estimate.
func (s *State) SetDrift(d time.Duration) {
	s.drift.Store(int64(d))
	s.driftWrites.Add(1)
}

// DriftWrites returns how many times the drift estimate was written.
func (s *State) DriftWrites() uint64 { return s.driftWrites.Load() }

// SetLastTick records the arrival time of the latest metronome tick.
func (s *State) SetLastTick(t time.Time) { s.lastTick.Store(int64(s.Since(t))) }

// LastTick returns the latest metronome tick time, if one was seen.
func (s *State) LastTick() (time.Time, bool) {
	v := s.lastTick.Load()
	if v < 0 {
		return time.Time{}, false
	}
	return s.epoch.Add(time.Duration(v)), true
}

// Section returns the requested section index.
func (s *State) Section() int { return int(s.section.Load()) }

// SetSection stores the requested section index; the last write wins.
func (s *State) SetSection(index int) { s.section.Store(int32(index)) }

// Snapshot is a point-in-time copy for reporting.
type Snapshot struct {
	Epoch         time.Time                 `json:"epoch"`
	DriftSeconds  float64                   `json:"drift_seconds"`
	DriftWrites   uint64                    `json:"drift_writes"`
	LastTick      *time.Time                `json:"last_tick,omitempty"`
	Section       int                       `json:"section"`
	HumanBeat     int64                     `json:"human_beat"`
	AutomatedBeat int64                     `json:"automated_beat"`
	Onsets        map[uint8][]time.Duration `json:"onsets"`
}

// Snapshot copies every field. Fields are read independently, so the copy is
// not a single consistent cut across channels.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Epoch:         s.epoch,
		DriftSeconds:  s.Drift().Seconds(),
		DriftWrites:   s.DriftWrites(),
		Section:       s.Section(),
		HumanBeat:     s.HumanBeat(),
		AutomatedBeat: s.AutomatedBeat(),
		Onsets:        make(map[uint8][]time.Duration),
	}
	if t, ok := s.LastTick(); ok {
		snap.LastTick = &t
	}
	for ch := uint8(0); ch < Channels; ch++ {
		if on := s.Onsets(ch); len(on) > 0 {
			snap.Onsets[ch] = on
		}
	}
	return snap
}
