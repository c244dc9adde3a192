// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// Kind classifies a MIDI channel message.
type Kind uint8

const (
	KindOther Kind = iota
	KindNoteOn
	KindNoteOff
	KindControlChange
)

func (k Kind) String() string {
	switch k {
	case KindNoteOn:
		return "note_on"
	case KindNoteOff:
		return "note_off"
	case KindControlChange:
		return "control_change"
	default:
		return "other"
	}
}

// Channels is the number of MIDI channels on one port.
const Channels = 16

// Event is an immutable MIDI channel event as delivered by the input driver.
type Event struct {
	Channel  uint8     // 0-15
	Kind     Kind      // note on/off, control change, other
	Note     uint8     // note number, or controller number for KindControlChange
	Velocity uint8     // velocity, or controller value for KindControlChange
	Arrival  time.Time // monotonic arrival timestamp
}

// NoteOn builds a note-on event.
func NoteOn(channel, note, velocity uint8, arrival time.Time) Event {
	return Event{Channel: channel, Kind: KindNoteOn, Note: note, Velocity: velocity, Arrival: arrival}
}

// NoteOff builds a note-off event.
func NoteOff(channel, note uint8, arrival time.Time) Event {
	return Event{Channel: channel, Kind: KindNoteOff, Note: note, Arrival: arrival}
}

// ControlChange builds a controller event.
func ControlChange(channel, controller, value uint8, arrival time.Time) Event {
	return Event{Channel: channel, Kind: KindControlChange, Note: controller, Velocity: value, Arrival: arrival}
}

func (e Event) String() string {
	return fmt.Sprintf("%s ch=%d note=%d vel=%d", e.Kind, e.Channel, e.Note, e.Velocity)
}

// OutputEvent is an event bound for the output device.
// It is not written before At; a zero At means as soon as possible.
type OutputEvent struct {
	Event
	At    time.Time
	Route string // routing rule or producer that emitted it, for metrics
}

// Immediate wraps e for output without delay.
func Immediate(e Event, route string) OutputEvent {
	return OutputEvent{Event: e, Route: route}
}
