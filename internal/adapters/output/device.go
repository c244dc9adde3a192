// Package output delivers events to the single shared MIDI output device.
package output

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/tomtib/ableton-animator/internal/domain/model"
)

// Device sends one event. Implementations need not be safe for concurrent use.
type Device interface {
	Send(e model.Event) error
}

// DeviceFunc adapts a function to Device.
type DeviceFunc func(e model.Event) error

// Send implements Device.
func (f DeviceFunc) Send(e model.Event) error { return f(e) }

// SerializedDevice guards a Device so only one write is in flight.
type SerializedDevice struct {
	mu  sync.Mutex
	dev Device

	writes atomic.Uint64
	errors atomic.Uint64

	onLost func(error)
}

// NewSerializedDevice wraps dev.
func NewSerializedDevice(dev Device) *SerializedDevice {
	return &SerializedDevice{dev: dev}
}

// Write sends e to the device.
func (s *SerializedDevice) Write(e model.Event) error {
	s.mu.Lock()
	err := s.dev.Send(e)
	s.mu.Unlock()

	if err != nil {
		s.errors.Add(1)
		if errors.Is(err, ErrDeviceLost) && s.onLost != nil {
			s.onLost(err)
		}
		return err
	}
	s.writes.Add(1)
	return nil
}

// Writes returns the number of successful writes.
func (s *SerializedDevice) Writes() uint64 { return s.writes.Load() }

// Errors returns the number of failed writes.
func (s *SerializedDevice) Errors() uint64 { return s.errors.Load() }
