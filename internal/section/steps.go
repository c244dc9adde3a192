package section

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/tomtib/ableton-animator/internal/adapters/output"
	"github.com/tomtib/ableton-animator/internal/domain/model"
	"github.com/tomtib/ableton-animator/pkg/logger"
)

// Writer writes one event to the output device.
type Writer interface {
	Write(e model.Event) error
}

// StepPlayer plays each track as a step pattern spread over one bar.
type StepPlayer struct {
	out    Writer
	bar    time.Duration
	logger logger.Logger
}

// NewStepPlayer creates a StepPlayer writing to out.
func NewStepPlayer(out Writer, bar time.Duration) *StepPlayer {
	return &StepPlayer{out: out, bar: bar, logger: logger.Get().Named("steps")}
}

type cue struct {
	at time.Duration
	e  model.Event
}

// cues lays out the bar. NoteOffs are cut at the bar end and sort before
// NoteOns at the same offset.
func (p *StepPlayer) cues(s Section) []cue {
	step := p.bar / StepsPerBar
	var out []cue
	for _, tr := range s.Tracks {
		for _, st := range tr.Steps {
			length := max(st.Length, 1)
			end := min(st.Index+length, StepsPerBar)
			out = append(out,
				cue{at: time.Duration(st.Index) * step, e: model.Event{Channel: tr.Channel, Kind: model.KindNoteOn, Note: st.Note, Velocity: st.Velocity}},
				cue{at: time.Duration(end) * step, e: model.Event{Channel: tr.Channel, Kind: model.KindNoteOff, Note: st.Note}},
			)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].at != out[j].at {
			return out[i].at < out[j].at
		}
		return out[i].e.Kind == model.KindNoteOff && out[j].e.Kind != model.KindNoteOff
	})
	return out
}

// PlayBar implements BarPlayer. It returns once the bar has elapsed.
func (p *StepPlayer) PlayBar(ctx context.Context, start time.Time, s Section) error {
	for _, c := range p.cues(s) {
		if err := waitUntil(ctx, start.Add(c.at)); err != nil {
			return err
		}
		e := c.e
		e.Arrival = time.Now()
		if err := p.out.Write(e); err != nil {
			if errors.Is(err, output.ErrDeviceLost) {
				return err
			}
			p.logger.Warn(ctx, "step write failed", logger.String("event", e.String()), logger.Error(err))
		}
	}
	return waitUntil(ctx, start.Add(p.bar))
}

func waitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
