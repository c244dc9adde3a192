// Package config defines engine configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and ANIMATOR_* env vars.
// - Errors are wrapped with this package's sentinel errors.
package config

import (
	"fmt"
	"runtime"
)

// MIDI channels are 4-bit on the wire.
const maxChannel = 15

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the ops HTTP listen address (metrics and stats).
	Addr string `koanf:"addr"`

	// InputPort and OutputPort name the MIDI ports to open.
	InputPort  string `koanf:"input_port"`
	OutputPort string `koanf:"output_port"`

	// SyncFile points at the versioned YAML sync file loaded at startup.
	SyncFile string `koanf:"sync_file"`

	// BPM and BeatsPerBar drive every derived duration.
	BPM         float64 `koanf:"bpm"`
	BeatsPerBar int     `koanf:"beats_per_bar"`

	// CountInBeats is the number of metronome ticks observed before arming.
	CountInBeats int `koanf:"count_in_beats"`

	// Channel assignments. Every channel not named here is automated.
	MetronomeChannel  int `koanf:"metronome_channel"`
	PerformerChannel  int `koanf:"performer_channel"`
	ControlChannel    int `koanf:"control_channel"`
	ModulationChannel int `koanf:"modulation_channel"`

	// VelocityThreshold: performer NoteOn at or below it is treated as noise.
	VelocityThreshold int `koanf:"velocity_threshold"`

	// ControlNotes is the ordered command table; index i selects section i.
	ControlNotes []int `koanf:"control_notes"`

	// WorkerCount sets the number of routing workers (one lane each).
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds each dispatch lane.
	QueueSize int `koanf:"queue_size"`

	// OutputWorkerCount and OutputQueueSize size the output pipeline.
	OutputWorkerCount int `koanf:"output_worker_count"`
	OutputQueueSize   int `koanf:"output_queue_size"`

	// OutputRetries bounds transient send retries; OutputRetryBackoffMS spaces them.
	OutputRetries        int `koanf:"output_retries"`
	OutputRetryBackoffMS int `koanf:"output_retry_backoff_ms"`

	// TimingHistory is the capacity of each per-channel onset record.
	TimingHistory int `koanf:"timing_history"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":9080",
		InputPort:            "humanizer 2",
		OutputPort:           "loopMIDI Port 4",
		BPM:                  140,
		BeatsPerBar:          4,
		CountInBeats:         4,
		MetronomeChannel:     0,
		PerformerChannel:     1,
		ModulationChannel:    2,
		ControlChannel:       15,
		VelocityThreshold:    10,
		ControlNotes:         []int{1, 4, 7, 10, 13, 16, 19, 22},
		WorkerCount:          runtime.NumCPU(),
		QueueSize:            1024,
		OutputWorkerCount:    16,
		OutputQueueSize:      1024,
		OutputRetries:        3,
		OutputRetryBackoffMS: 2,
		TimingHistory:        5,
	}
}

// Validate checks invariants the engine relies on.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.BPM <= 0 {
		return fmt.Errorf("%w: bpm must be positive, got %v", ErrInvalidConfig, c.BPM)
	}
	if c.BeatsPerBar <= 0 {
		return fmt.Errorf("%w: beats_per_bar must be positive, got %d", ErrInvalidConfig, c.BeatsPerBar)
	}
	if c.CountInBeats < 0 {
		return fmt.Errorf("%w: count_in_beats must not be negative", ErrInvalidConfig)
	}

	channels := map[string]int{
		"metronome_channel":  c.MetronomeChannel,
		"performer_channel":  c.PerformerChannel,
		"control_channel":    c.ControlChannel,
		"modulation_channel": c.ModulationChannel,
	}
	seen := make(map[int]string, len(channels))
	for name, ch := range channels {
		if ch < 0 || ch > maxChannel {
			return fmt.Errorf("%w: %s out of range 0-%d: %d", ErrInvalidConfig, name, maxChannel, ch)
		}
		// The modulation channel is output-only and may share a number with an input role.
		if name == "modulation_channel" {
			continue
		}
		if other, dup := seen[ch]; dup {
			return fmt.Errorf("%w: %s and %s share channel %d", ErrInvalidConfig, name, other, ch)
		}
		seen[ch] = name
	}

	if c.VelocityThreshold < 0 || c.VelocityThreshold > 127 {
		return fmt.Errorf("%w: velocity_threshold out of range: %d", ErrInvalidConfig, c.VelocityThreshold)
	}
	notes := make(map[int]struct{}, len(c.ControlNotes))
	for _, n := range c.ControlNotes {
		if n < 0 || n > 127 {
			return fmt.Errorf("%w: control note out of range: %d", ErrInvalidConfig, n)
		}
		if _, dup := notes[n]; dup {
			return fmt.Errorf("%w: duplicate control note %d", ErrInvalidConfig, n)
		}
		notes[n] = struct{}{}
	}
	if c.TimingHistory < 1 {
		return fmt.Errorf("%w: timing_history must be at least 1", ErrInvalidConfig)
	}
	if c.OutputWorkerCount < maxChannel+1 {
		return fmt.Errorf("%w: output_worker_count must be at least %d (one lane per channel), got %d",
			ErrInvalidConfig, maxChannel+1, c.OutputWorkerCount)
	}
	if c.OutputRetries < 0 {
		return fmt.Errorf("%w: output_retries must not be negative", ErrInvalidConfig)
	}
	return nil
}
