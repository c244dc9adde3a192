// Package routing classifies incoming events by channel and kind, updates the
// shared timing state and emits output events.
package routing

import (
	"context"
	"time"

	"github.com/tomtib/ableton-animator/internal/domain/humanize"
	"github.com/tomtib/ableton-animator/internal/domain/metronome"
	"github.com/tomtib/ableton-animator/internal/domain/model"
	"github.com/tomtib/ableton-animator/internal/domain/modulation"
	"github.com/tomtib/ableton-animator/internal/domain/timing"
	"github.com/tomtib/ableton-animator/pkg/logger"
	"github.com/tomtib/ableton-animator/pkg/metrics"
)

// Routes label forwarded events.
const (
	RoutePerformer  = "performer"
	RouteModulation = "modulation"
	RouteAutomated  = "automated"
)

// Drop reasons.
const (
	DropNoise      = "below_threshold"
	DropUnmapped   = "unmapped_command"
	DropUnrouted   = "unrouted"
	DropOutputFull = "output_full"
)

// Emitter accepts output events without blocking.
type Emitter interface {
	Emit(ctx context.Context, e model.OutputEvent) bool
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, e model.OutputEvent) bool

// Emit implements Emitter.
func (f EmitterFunc) Emit(ctx context.Context, e model.OutputEvent) bool { return f(ctx, e) }

// Router applies the routing policy to one event at a time. It is safe for
// concurrent use; all shared state lives in timing.State.
type Router struct {
	state      *timing.State
	metro      *metronome.Metronome
	out        Emitter
	channels   Channels
	threshold  uint8
	commands   *CommandTable
	humanizers *humanize.Ensemble
	generators []modulation.Generator
	logger     logger.Logger
}

// New creates a Router.
func New(state *timing.State, metro *metronome.Metronome, out Emitter, opts ...Option) (*Router, error) {
	if out == nil {
		return nil, ErrNoEmitter
	}
	r := &Router{
		state:      state,
		metro:      metro,
		out:        out,
		channels:   DefaultChannels(),
		threshold:  10,
		commands:   &CommandTable{},
		humanizers: humanize.NewEnsemble(nil),
		logger:     logger.Get().Named("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Channels returns the channel roles.
func (r *Router) Channels() Channels { return r.channels }

// Handle routes e. It never blocks on I/O.
func (r *Router) Handle(ctx context.Context, e model.Event) error {
	start := time.Now()
	defer func() {
		metrics.RecordRoutingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	switch {
	case e.Channel == r.channels.Performer:
		r.performer(ctx, e)
	case e.Channel == r.channels.Metronome:
		if e.Kind != model.KindNoteOn {
			metrics.RecordEventDropped(DropUnrouted)
			return nil
		}
		r.tick(ctx, e)
	case e.Channel == r.channels.Control:
		if e.Kind != model.KindNoteOn {
			metrics.RecordEventDropped(DropUnrouted)
			return nil
		}
		r.command(ctx, e)
	default:
		r.automated(ctx, e)
	}
	return nil
}

func (r *Router) performer(ctx context.Context, e model.Event) {
	switch e.Kind {
	case model.KindNoteOn:
		if e.Velocity <= r.threshold {
			metrics.RecordEventDropped(DropNoise)
			return
		}
		r.emit(ctx, model.Immediate(e, RoutePerformer))
		onset := r.state.Since(e.Arrival)
		r.state.AppendOnset(e.Channel, onset)
		r.state.SetHumanBeat(r.metro.BeatIndex(onset))
	case model.KindNoteOff:
		r.emit(ctx, model.Immediate(e, RoutePerformer))
	default:
		metrics.RecordEventDropped(DropUnrouted)
	}
}

func (r *Router) tick(ctx context.Context, e model.Event) {
	drift := r.metro.Tick(r.state, e.Arrival)
	metrics.UpdateDrift(drift.Seconds())

	elapsed := r.state.Since(e.Arrival)
	for _, g := range r.generators {
		cc, val := g.ControlValue(elapsed)
		ev := model.ControlChange(r.channels.Modulation, cc, val, e.Arrival)
		r.emit(ctx, model.Immediate(ev, RouteModulation))
	}
}

func (r *Router) command(ctx context.Context, e model.Event) {
	idx, ok := r.commands.Lookup(e.Note)
	if !ok {
		metrics.RecordEventDropped(DropUnmapped)
		return
	}
	r.state.SetSection(idx)
	metrics.UpdateSectionIndex(idx)
	r.logger.Debug(ctx, "section requested",
		logger.Uint8("note", e.Note),
		logger.Int("section", idx+1),
	)
}

// automated delays e by half a sixteenth, shifted by the channel's humanizer
// and compensated for drift. NoteOffs reuse the channel's last delay so note
// lengths survive the correction.
func (r *Router) automated(ctx context.Context, e model.Event) {
	rec := r.state.Record(e.Channel)

	switch e.Kind {
	case model.KindNoteOn:
	case model.KindNoteOff, model.KindControlChange:
		delay := rec.LastDelay()
		r.emit(ctx, model.OutputEvent{Event: e, At: e.Arrival.Add(delay), Route: RouteAutomated})
		return
	default:
		metrics.RecordEventDropped(DropUnrouted)
		return
	}

	sixteenth := r.metro.Sixteenth()
	onset := r.state.Since(e.Arrival)
	beat := r.metro.BeatIndex(onset)
	prev := r.state.SwapAutomatedBeat(beat)

	in := humanize.Input{
		Channel:      e.Channel,
		Beat:         beat,
		PreviousBeat: prev,
		HumanBeat:    r.state.HumanBeat(),
		Drift:        r.state.Drift(),
		Sixteenth:    sixteenth,
	}
	if latest, ok := r.state.Record(r.channels.Performer).Latest(); ok {
		_, in.HumanDeviation = r.metro.GridError(latest)
	}

	delay := Delay(sixteenth, r.humanizers.For(e.Channel).Offset(in), in.Drift)
	rec.Append(onset + delay)
	rec.SetLastDelay(delay)

	r.emit(ctx, model.OutputEvent{Event: e, At: e.Arrival.Add(delay), Route: RouteAutomated})
}

// Delay centers an automated event half a sixteenth late, applies the
// humanizer offset, subtracts drift and clamps the result to [0, sixteenth].
func Delay(sixteenth, offset, drift time.Duration) time.Duration {
	d := sixteenth/2 + offset - drift
	return min(max(d, 0), sixteenth)
}

func (r *Router) emit(ctx context.Context, e model.OutputEvent) {
	if !r.out.Emit(ctx, e) {
		metrics.RecordEventDropped(DropOutputFull)
		r.logger.Debug(ctx, "output queue full, event dropped", logger.String("event", e.String()))
		return
	}
	metrics.RecordEventForwarded(e.Route)
}
