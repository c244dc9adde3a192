// Package modulation produces low-frequency controller values that are
// re-synthesized on every metronome tick.
package modulation

import (
	"fmt"
	"math"
	"time"
)

// Generator yields a controller number and value for a point in time.
type Generator interface {
	ControlValue(elapsed time.Duration) (controller, value uint8)
}

// Shape names an LFO waveform.
type Shape string

const (
	Sine     Shape = "sine"
	Triangle Shape = "triangle"
	Saw      Shape = "saw"
	Square   Shape = "square"
)

// ParseShape validates s.
func ParseShape(s string) (Shape, error) {
	switch sh := Shape(s); sh {
	case Sine, Triangle, Saw, Square:
		return sh, nil
	default:
		return "", fmt.Errorf("unknown lfo shape %q", s)
	}
}

// LFO is a periodic controller sweep between Min and Max.
type LFO struct {
	Controller uint8
	Period     time.Duration
	Shape      Shape
	Min, Max   uint8
}

// ControlValue implements Generator.
func (l LFO) ControlValue(elapsed time.Duration) (uint8, uint8) {
	if l.Period <= 0 {
		return l.Controller, l.Min
	}
	phase := math.Mod(float64(elapsed), float64(l.Period)) / float64(l.Period)
	if phase < 0 {
		phase++
	}

	var unit float64 // 0..1
	switch l.Shape {
	case Triangle:
		unit = 1 - math.Abs(2*phase-1)
	case Saw:
		unit = phase
	case Square:
		if phase >= 0.5 {
			unit = 1
		}
	default:
		unit = (1 - math.Cos(2*math.Pi*phase)) / 2
	}

	lo, hi := float64(l.Min), float64(l.Max)
	return l.Controller, uint8(math.Round(lo + unit*(hi-lo)))
}
