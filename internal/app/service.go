// Package service wires the animator engine: input listener, dispatch queue,
// routing workers, output pipeline and section player.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/tomtib/ableton-animator/internal/adapters/mq/queue"
	"github.com/tomtib/ableton-animator/internal/adapters/mq/worker"
	"github.com/tomtib/ableton-animator/internal/adapters/output"
	"github.com/tomtib/ableton-animator/internal/domain/humanize"
	"github.com/tomtib/ableton-animator/internal/domain/metronome"
	"github.com/tomtib/ableton-animator/internal/domain/model"
	"github.com/tomtib/ableton-animator/internal/domain/modulation"
	"github.com/tomtib/ableton-animator/internal/domain/routing"
	"github.com/tomtib/ableton-animator/internal/domain/timing"
	"github.com/tomtib/ableton-animator/internal/section"
	"github.com/tomtib/ableton-animator/pkg/logger"
	"github.com/tomtib/ableton-animator/pkg/metrics"
)

// Source is an input port.
type Source interface {
	Listen(fn func(model.Event)) (stop func(), err error)
}

// Service runs the engine.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	source     Source
	device     output.Device
	sections   []section.Section
	generators []modulation.Generator
	performers []humanize.Profile
	stop       <-chan struct{}
	bars       section.BarPlayer

	// Configuration
	bpm          float64
	beatsPerBar  int
	countInBeats int
	channels     routing.Channels
	threshold    uint8
	controlNotes []int
	workerCount  int
	queueSize    int
	outputOpts   []output.Option
	history      int

	// Core components
	state      *timing.State
	metro      *metronome.Metronome
	dispatch   *queue.InMemoryQueue[model.Event]
	routers    *worker.Pool[model.Event]
	output     *output.Pipeline
	listener   *Listener
	player     *section.Player
	stopListen func()

	// State
	started bool
	cancel  context.CancelFunc

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		bpm:          140,
		beatsPerBar:  4,
		countInBeats: -1,
		channels:     routing.DefaultChannels(),
		threshold:    10,
		controlNotes: []int{1, 4, 7, 10, 13, 16, 19, 22},
		workerCount:  runtime.NumCPU(),
		queueSize:    1024,
		history:      5,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start builds every component and starts the worker pools. The section
// player only runs inside Run.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	switch {
	case s.source == nil:
		return ErrNoSource
	case s.device == nil:
		return ErrNoDevice
	case len(s.sections) == 0:
		return ErrNoSections
	}

	s.logger.Info(ctx, "starting animator engine...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.state = timing.New(time.Now(), timing.WithHistory(s.history))
	var metroOpts []metronome.Option
	if s.countInBeats >= 0 {
		metroOpts = append(metroOpts, metronome.WithCountIn(s.countInBeats))
	}
	s.metro = metronome.New(s.bpm, s.beatsPerBar, metroOpts...)

	s.output = output.NewPipeline(s.device, append(s.outputOpts, output.WithLogger(s.logger.Named("output")))...)
	s.output.Start(runCtx)

	commands, err := routing.NewCommandTable(s.controlNotes, len(s.sections))
	if err != nil {
		cancel()
		return fmt.Errorf("command table: %w", err)
	}
	router, err := routing.New(s.state, s.metro, s.output,
		routing.WithChannels(s.channels),
		routing.WithVelocityThreshold(s.threshold),
		routing.WithCommands(commands),
		routing.WithHumanizers(humanize.NewEnsemble(s.performers)),
		routing.WithGenerators(s.generators...),
		routing.WithLogger(s.logger.Named("router")),
	)
	if err != nil {
		cancel()
		return fmt.Errorf("router: %w", err)
	}

	s.dispatch = queue.NewInMemoryQueue(func(e model.Event) int { return int(e.Channel) },
		queue.WithName("dispatch"),
		queue.WithLanes(s.workerCount),
		queue.WithCapacity(s.queueSize),
	)
	s.routers = worker.NewPool[model.Event](s.dispatch, router,
		worker.WithName("router-pool"),
		worker.WithLogger(s.logger),
	)
	s.routers.Start(runCtx)

	s.listener = NewListener(s.dispatch, s.channels.Metronome, s.metro.CountInBeats())

	bars := s.bars
	if bars == nil {
		bars = section.NewStepPlayer(s.output.Device(), s.metro.Bar())
	}
	countIn := func(ctx context.Context) error {
		s.listener.ResetCountIn()
		return s.metro.CountIn(ctx, s.listener.Ticks())
	}
	s.player, err = section.NewPlayer(s.state, s.sections, bars, s.metro.Bar(), countIn, s.listener,
		section.WithStop(s.stop),
		section.WithLogger(s.logger.Named("player")),
	)
	if err != nil {
		cancel()
		return err
	}

	stopListen, err := s.source.Listen(s.listener.OnEvent)
	if err != nil {
		cancel()
		return fmt.Errorf("listen: %w", err)
	}
	s.stopListen = stopListen

	s.cancel = cancel
	s.started = true
	metrics.UpdateSectionIndex(0)
	s.logger.Info(ctx, "animator engine started",
		logger.Float64("bpm", s.bpm),
		logger.Duration("bar", s.metro.Bar()),
		logger.Int("sections", len(s.sections)),
		logger.Int("commands", commands.Len()),
		logger.Int("workers", s.routers.Size()),
		logger.Int("queueSize", s.queueSize),
	)

	return nil
}

// Run starts the engine and plays until ctx is done or the output device is
// lost. Cancellation is a clean exit; device loss is returned.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	defer s.Stop()

	s.mu.RLock()
	player, out := s.player, s.output
	s.mu.RUnlock()

	playCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- player.Run(playCtx) }()

	select {
	case <-out.Lost():
		cancel()
		<-done
		return out.Err()
	case err := <-done:
		if lost := out.Err(); lost != nil {
			return lost
		}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil
		}
		return err
	}
}

// Stop gracefully shuts down the service: input first, then the routing
// workers drain the dispatch queue, then the output pipeline drains.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping animator engine...")

	s.listener.Disarm()
	if s.stopListen != nil {
		s.stopListen()
	}

	if err := s.routers.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "router pool shutdown", logger.Error(err))
	}
	if err := s.output.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "output pipeline shutdown", logger.Error(err))
	}
	s.cancel()

	s.started = false
	s.logger.Info(ctx, "animator engine stopped")
}

// State returns the shared timing state.
func (s *Service) State() (*timing.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, ErrNotStarted
	}
	return s.state, nil
}

// Listener returns the input listener.
func (s *Service) Listener() (*Listener, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil, ErrNotStarted
	}
	return s.listener, nil
}

// Healthy reports nil while the engine runs against a live output device.
func (s *Service) Healthy() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return s.output.Err()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"bpm":         s.bpm,
		"beatsPerBar": s.beatsPerBar,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"sections":    len(s.sections),
	}

	if s.started {
		ctx := context.Background()
		stats["timing"] = s.state.Snapshot()
		stats["player"] = s.player.Stats()
		stats["listener"] = s.listener.Stats()
		stats["dispatch"] = map[string]interface{}{
			"queued":  s.dispatch.Len(ctx),
			"dropped": s.dispatch.Dropped(),
			"workers": s.routers.Stats(),
		}
		stats["output"] = s.output.Stats()
	}

	return stats
}
