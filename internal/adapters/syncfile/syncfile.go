// Package syncfile loads the startup content: sections, LFOs and automated
// performer profiles. Files are strictly decoded YAML; unknown fields are
// rejected.
package syncfile

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tomtib/ableton-animator/internal/domain/humanize"
	"github.com/tomtib/ableton-animator/internal/domain/modulation"
	"github.com/tomtib/ableton-animator/internal/section"
)

// Version is the only supported file version.
const Version = 1

type fileStep struct {
	Step     int `yaml:"step"`
	Note     int `yaml:"note"`
	Velocity int `yaml:"velocity"`
	Length   int `yaml:"length"`
}

type fileTrack struct {
	Name    string     `yaml:"name"`
	Channel int        `yaml:"channel"`
	Steps   []fileStep `yaml:"steps"`
}

type fileSection struct {
	Name   string      `yaml:"name"`
	Tracks []fileTrack `yaml:"tracks"`
}

type fileLFO struct {
	Controller int     `yaml:"controller"`
	PeriodBars float64 `yaml:"period_bars"`
	Shape      string  `yaml:"shape"`
	Min        int     `yaml:"min"`
	Max        *int    `yaml:"max"`
}

type filePerformer struct {
	Channel  int     `yaml:"channel"`
	Follow   float64 `yaml:"follow"`
	JitterMs float64 `yaml:"jitter_ms"`
}

type file struct {
	Version    int             `yaml:"version"`
	Sections   []fileSection   `yaml:"sections"`
	LFOs       []fileLFO       `yaml:"lfos"`
	Performers []filePerformer `yaml:"performers"`
}

// Sync is the decoded content, ready for the engine.
type Sync struct {
	Sections   []section.Section
	LFOs       []modulation.LFO
	Performers []humanize.Profile
}

// Generators returns the LFOs as modulation generators.
func (s *Sync) Generators() []modulation.Generator {
	out := make([]modulation.Generator, len(s.LFOs))
	for i, l := range s.LFOs {
		out[i] = l
	}
	return out
}

// Load reads and decodes path. LFO periods are given in bars and converted
// with bar.
func Load(path string, bar time.Duration) (*Sync, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sync file: %w", err)
	}
	defer f.Close()
	return Decode(f, bar)
}

// Decode reads a sync file from r.
func Decode(r io.Reader, bar time.Duration) (*Sync, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var raw file
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if raw.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, raw.Version)
	}
	return raw.build(bar)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func inRange(v, lo, hi int) bool { return v >= lo && v <= hi }

func (f *file) build(bar time.Duration) (*Sync, error) {
	if len(f.Sections) == 0 {
		return nil, invalid("no sections")
	}

	out := &Sync{}
	for i, fs := range f.Sections {
		s := section.Section{Name: fs.Name}
		if s.Name == "" {
			s.Name = fmt.Sprintf("section %d", i+1)
		}
		for j, ft := range fs.Tracks {
			if !inRange(ft.Channel, 0, 15) {
				return nil, invalid("sections[%d].tracks[%d]: channel %d out of range", i, j, ft.Channel)
			}
			tr := section.Track{Name: ft.Name, Channel: uint8(ft.Channel)}
			for k, st := range ft.Steps {
				at := fmt.Sprintf("sections[%d].tracks[%d].steps[%d]", i, j, k)
				switch {
				case !inRange(st.Step, 0, section.StepsPerBar-1):
					return nil, invalid("%s: step %d out of range", at, st.Step)
				case !inRange(st.Note, 0, 127):
					return nil, invalid("%s: note %d out of range", at, st.Note)
				case !inRange(st.Velocity, 1, 127):
					return nil, invalid("%s: velocity %d out of range", at, st.Velocity)
				case st.Length < 0:
					return nil, invalid("%s: negative length", at)
				}
				tr.Steps = append(tr.Steps, section.Step{
					Index:    st.Step,
					Note:     uint8(st.Note),
					Velocity: uint8(st.Velocity),
					Length:   max(st.Length, 1),
				})
			}
			s.Tracks = append(s.Tracks, tr)
		}
		out.Sections = append(out.Sections, s)
	}

	for i, fl := range f.LFOs {
		shape, err := modulation.ParseShape(fl.Shape)
		if err != nil {
			return nil, invalid("lfos[%d]: %v", i, err)
		}
		hi := 127
		if fl.Max != nil {
			hi = *fl.Max
		}
		switch {
		case !inRange(fl.Controller, 0, 127):
			return nil, invalid("lfos[%d]: controller %d out of range", i, fl.Controller)
		case fl.PeriodBars <= 0:
			return nil, invalid("lfos[%d]: period_bars must be positive", i)
		case !inRange(fl.Min, 0, 127) || !inRange(hi, fl.Min, 127):
			return nil, invalid("lfos[%d]: range %d..%d invalid", i, fl.Min, hi)
		}
		out.LFOs = append(out.LFOs, modulation.LFO{
			Controller: uint8(fl.Controller),
			Period:     time.Duration(fl.PeriodBars * float64(bar)),
			Shape:      shape,
			Min:        uint8(fl.Min),
			Max:        uint8(hi),
		})
	}

	seen := make(map[int]bool, len(f.Performers))
	for i, fp := range f.Performers {
		switch {
		case !inRange(fp.Channel, 0, 15):
			return nil, invalid("performers[%d]: channel %d out of range", i, fp.Channel)
		case seen[fp.Channel]:
			return nil, invalid("performers[%d]: channel %d listed twice", i, fp.Channel)
		case fp.Follow < 0 || fp.Follow > 1:
			return nil, invalid("performers[%d]: follow must be within 0..1", i)
		case fp.JitterMs < 0:
			return nil, invalid("performers[%d]: negative jitter", i)
		}
		seen[fp.Channel] = true
		out.Performers = append(out.Performers, humanize.Profile{
			Channel: uint8(fp.Channel),
			Follow:  fp.Follow,
			Jitter:  time.Duration(fp.JitterMs * float64(time.Millisecond)),
		})
	}

	return out, nil
}
