package routing

import (
	"github.com/tomtib/ableton-animator/internal/domain/humanize"
	"github.com/tomtib/ableton-animator/internal/domain/modulation"
	"github.com/tomtib/ableton-animator/pkg/logger"
)

// Channels assigns the fixed channel roles. Every other channel is automated.
type Channels struct {
	Metronome  uint8
	Performer  uint8
	Modulation uint8 // output only
	Control    uint8
}

// DefaultChannels returns the stock channel layout.
func DefaultChannels() Channels {
	return Channels{Metronome: 0, Performer: 1, Modulation: 2, Control: 15}
}

// Option configures a Router.
type Option func(*Router)

// WithChannels sets the channel roles.
func WithChannels(c Channels) Option {
	return func(r *Router) { r.channels = c }
}

// WithVelocityThreshold sets the performer noise gate. NoteOns at or below
// it are dropped.
func WithVelocityThreshold(v uint8) Option {
	return func(r *Router) { r.threshold = v }
}

// WithCommands sets the control-note table.
func WithCommands(t *CommandTable) Option {
	return func(r *Router) { r.commands = t }
}

// WithHumanizers sets the automated performers.
func WithHumanizers(e *humanize.Ensemble) Option {
	return func(r *Router) { r.humanizers = e }
}

// WithGenerators sets the modulation generators re-synthesized per tick.
func WithGenerators(g ...modulation.Generator) Option {
	return func(r *Router) { r.generators = append(r.generators, g...) }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Router) { r.logger = l }
}
