package midi

import (
	"context"
	"fmt"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/tomtib/ableton-animator/internal/adapters/output"
	"github.com/tomtib/ableton-animator/internal/domain/model"
	"github.com/tomtib/ableton-animator/pkg/logger"
	"github.com/tomtib/ableton-animator/pkg/metrics"
)

// Ports lists the names of the available input and output ports.
func Ports() (ins, outs []string) {
	for _, in := range gomidi.GetInPorts() {
		ins = append(ins, in.String())
	}
	for _, out := range gomidi.GetOutPorts() {
		outs = append(outs, out.String())
	}
	return ins, outs
}

// CloseDriver releases the registered driver.
func CloseDriver() { gomidi.CloseDriver() }

// Input is an opened input port.
type Input struct {
	port   drivers.In
	name   string
	logger logger.Logger
}

// OpenInput finds the input port called name.
func OpenInput(name string) (*Input, error) {
	in, err := gomidi.FindInPort(name)
	if err != nil {
		return nil, fmt.Errorf("%w: input %q: %w", ErrPortNotFound, name, err)
	}
	return &Input{port: in, name: name, logger: logger.Get().Named("midi-in")}, nil
}

// Name returns the port name.
func (i *Input) Name() string { return i.name }

// Listen delivers every routable message to fn. Arrival is stamped with the
// local monotonic clock as the callback runs. fn runs on the driver's
// goroutine and must not block.
func (i *Input) Listen(fn func(model.Event)) (stop func(), err error) {
	stop, err = gomidi.ListenTo(i.port, func(msg gomidi.Message, _ int32) {
		if e, ok := Decode(msg, time.Now()); ok {
			fn(e)
		}
	}, gomidi.HandleError(func(err error) {
		metrics.RecordErrorByComponent("midi_in", "listen")
		i.logger.Warn(context.Background(), "input listener error",
			logger.String("port", i.name),
			logger.Error(err),
		)
	}))
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", i.name, err)
	}
	return stop, nil
}

// Close closes the port.
func (i *Input) Close() error { return i.port.Close() }

type port interface {
	IsOpen() bool
	Close() error
}

// Output is an opened output port. It implements output.Device.
type Output struct {
	port port
	send func(gomidi.Message) error
	name string
}

// OpenOutput finds and opens the output port called name.
func OpenOutput(name string) (*Output, error) {
	out, err := gomidi.FindOutPort(name)
	if err != nil {
		return nil, fmt.Errorf("%w: output %q: %w", ErrPortNotFound, name, err)
	}
	send, err := gomidi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open output %q: %w", name, err)
	}
	return &Output{port: out, send: send, name: name}, nil
}

// Name returns the port name.
func (o *Output) Name() string { return o.name }

// Send implements output.Device. Failures on a port that is no longer open
// wrap output.ErrDeviceLost.
func (o *Output) Send(e model.Event) error {
	msg, ok := Encode(e)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, e.Kind)
	}
	if !o.port.IsOpen() {
		return fmt.Errorf("%s: %w", o.name, output.ErrDeviceLost)
	}
	if err := o.send(msg); err != nil {
		if !o.port.IsOpen() {
			return fmt.Errorf("%s: %w: %w", o.name, output.ErrDeviceLost, err)
		}
		return fmt.Errorf("send to %s: %w", o.name, err)
	}
	return nil
}

// AllNotesOff silences every channel.
func (o *Output) AllNotesOff() error {
	for ch := uint8(0); ch < model.Channels; ch++ {
		if err := o.send(gomidi.ControlChange(ch, gomidi.AllNotesOff, gomidi.Off)); err != nil {
			return fmt.Errorf("all notes off on %s: %w", o.name, err)
		}
	}
	return nil
}

// Close closes the port.
func (o *Output) Close() error { return o.port.Close() }
