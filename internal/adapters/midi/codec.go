// Package midi connects the engine to MIDI ports through gomidi.
package midi

import (
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/tomtib/ableton-animator/internal/domain/model"
)

// Decode converts a wire message into an Event stamped with at. It reports
// false for messages the engine does not route. A NoteOn with velocity 0 is
// a NoteOff.
func Decode(msg gomidi.Message, at time.Time) (model.Event, bool) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return model.NoteOn(ch, key, vel, at), true
	case msg.GetNoteEnd(&ch, &key):
		return model.NoteOff(ch, key, at), true
	case msg.GetControlChange(&ch, &key, &vel):
		return model.ControlChange(ch, key, vel, at), true
	default:
		return model.Event{}, false
	}
}

// Encode converts an Event to a wire message.
func Encode(e model.Event) (gomidi.Message, bool) {
	switch e.Kind {
	case model.KindNoteOn:
		return gomidi.NoteOn(e.Channel, e.Note, e.Velocity), true
	case model.KindNoteOff:
		return gomidi.NoteOff(e.Channel, e.Note), true
	case model.KindControlChange:
		return gomidi.ControlChange(e.Channel, e.Note, e.Velocity), true
	default:
		return nil, false
	}
}
