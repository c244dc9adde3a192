// Package humanize computes timing offsets for automated performer channels
// from the live performer's captured feel.
package humanize

import (
	"math/rand/v2"
	"time"
)

// Input is everything a Humanizer may use to place one automated event.
type Input struct {
	Channel uint8

	// Beat is the beat index nearest to the event; PreviousBeat is the
	// automated-stream marker before this event (-1 if none).
	Beat         int64
	PreviousBeat int64

	// HumanBeat is the beat of the latest captured performer onset (-1 if
	// none) and HumanDeviation its distance from that beat; positive is late.
	HumanBeat      int64
	HumanDeviation time.Duration

	Drift     time.Duration
	Sixteenth time.Duration
}

// Fresh reports whether the performer played since the automated stream last
// advanced, or on the current beat.
func (in Input) Fresh() bool {
	if in.HumanBeat < 0 {
		return false
	}
	return in.HumanBeat == in.Beat || in.HumanBeat > in.PreviousBeat
}

// Humanizer returns a timing offset for an automated event. Positive offsets
// delay the event. Drift compensation is applied by the caller.
type Humanizer interface {
	Offset(in Input) time.Duration
}

// Profile is the parameter set of one automated performer.
type Profile struct {
	Channel uint8
	// Follow scales the performer's deviation, 0 ignores it and 1 copies it.
	Follow float64
	// Jitter bounds a uniform random offset in [-Jitter, +Jitter].
	Jitter time.Duration
}

// Offset implements Humanizer.
func (p Profile) Offset(in Input) time.Duration {
	var off time.Duration
	if in.Fresh() {
		off = time.Duration(p.Follow * float64(in.HumanDeviation))
	}
	if p.Jitter > 0 {
		off += time.Duration((rand.Float64()*2 - 1) * float64(p.Jitter))
	}
	return off
}

// Ensemble maps automated channels to their humanizers. It is read-only
// after NewEnsemble, so routing workers share it without locking.
type Ensemble struct {
	byChannel map[uint8]Humanizer
	fallback  Humanizer
}

// NewEnsemble builds an Ensemble from profiles. Channels without a profile
// use the zero Profile, which only receives drift compensation.
func NewEnsemble(profiles []Profile) *Ensemble {
	e := &Ensemble{
		byChannel: make(map[uint8]Humanizer, len(profiles)),
		fallback:  Profile{},
	}
	for _, p := range profiles {
		e.byChannel[p.Channel] = p
	}
	return e
}

// For returns the humanizer for channel.
func (e *Ensemble) For(channel uint8) Humanizer {
	if h, ok := e.byChannel[channel]; ok {
		return h
	}
	return e.fallback
}

// Len returns the number of registered performers.
func (e *Ensemble) Len() int { return len(e.byChannel) }
