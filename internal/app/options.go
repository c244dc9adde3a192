package service

import (
	"time"

	"github.com/tomtib/ableton-animator/internal/adapters/output"
	"github.com/tomtib/ableton-animator/internal/config"
	"github.com/tomtib/ableton-animator/internal/domain/humanize"
	"github.com/tomtib/ableton-animator/internal/domain/modulation"
	"github.com/tomtib/ableton-animator/internal/domain/routing"
	"github.com/tomtib/ableton-animator/internal/section"
	"github.com/tomtib/ableton-animator/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithSource sets the input port.
func WithSource(src Source) Option {
	return func(s *Service) { s.source = src }
}

// WithDevice sets the output device.
func WithDevice(dev output.Device) Option {
	return func(s *Service) { s.device = dev }
}

// WithSections sets the section content.
func WithSections(sections []section.Section) Option {
	return func(s *Service) { s.sections = sections }
}

// WithGenerators sets the modulation generators.
func WithGenerators(g []modulation.Generator) Option {
	return func(s *Service) { s.generators = g }
}

// WithPerformers sets the automated performer profiles.
func WithPerformers(p []humanize.Profile) Option {
	return func(s *Service) { s.performers = p }
}

// WithStopGesture sets the channel polled by the section player after each bar.
func WithStopGesture(stop <-chan struct{}) Option {
	return func(s *Service) { s.stop = stop }
}

// WithBarPlayer replaces the default step player.
func WithBarPlayer(b section.BarPlayer) Option {
	return func(s *Service) { s.bars = b }
}

// WithTempo sets BPM and meter.
func WithTempo(bpm float64, beatsPerBar int) Option {
	return func(s *Service) {
		if bpm > 0 && beatsPerBar > 0 {
			s.bpm = bpm
			s.beatsPerBar = beatsPerBar
		}
	}
}

// WithCountIn sets the number of count-in ticks.
func WithCountIn(beats int) Option {
	return func(s *Service) {
		if beats >= 0 {
			s.countInBeats = beats
		}
	}
}

// WithChannels sets the channel roles.
func WithChannels(c routing.Channels) Option {
	return func(s *Service) { s.channels = c }
}

// WithVelocityThreshold sets the performer noise gate.
func WithVelocityThreshold(v uint8) Option {
	return func(s *Service) { s.threshold = v }
}

// WithControlNotes sets the command table.
func WithControlNotes(notes []int) Option {
	return func(s *Service) { s.controlNotes = notes }
}

// WithWorkerCount sets the number of routing workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of each dispatch lane.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithOutput sizes the output pipeline.
func WithOutput(workers, queueSize, retries int, backoff time.Duration) Option {
	return func(s *Service) {
		s.outputOpts = []output.Option{
			output.WithWorkers(workers),
			output.WithQueueSize(queueSize),
			output.WithRetries(retries),
			output.WithBackoff(backoff),
		}
	}
}

// WithHistory sets the onset record capacity per channel.
func WithHistory(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.history = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// ConfigOptions maps a validated Config onto options.
func ConfigOptions(cfg *config.Config) []Option {
	return []Option{
		WithTempo(cfg.BPM, cfg.BeatsPerBar),
		WithCountIn(cfg.CountInBeats),
		WithChannels(routing.Channels{
			Metronome:  uint8(cfg.MetronomeChannel),
			Performer:  uint8(cfg.PerformerChannel),
			Modulation: uint8(cfg.ModulationChannel),
			Control:    uint8(cfg.ControlChannel),
		}),
		WithVelocityThreshold(uint8(cfg.VelocityThreshold)),
		WithControlNotes(cfg.ControlNotes),
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithOutput(cfg.OutputWorkerCount, cfg.OutputQueueSize, cfg.OutputRetries,
			time.Duration(cfg.OutputRetryBackoffMS)*time.Millisecond),
		WithHistory(cfg.TimingHistory),
	}
}
