package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/tomtib/ableton-animator/internal/adapters/http/api"
	"github.com/tomtib/ableton-animator/internal/adapters/http/swagger"
	"github.com/tomtib/ableton-animator/internal/adapters/midi"
	"github.com/tomtib/ableton-animator/internal/adapters/syncfile"
	app "github.com/tomtib/ableton-animator/internal/app"
	"github.com/tomtib/ableton-animator/internal/config"
	"github.com/tomtib/ableton-animator/internal/domain/metronome"
	"github.com/tomtib/ableton-animator/pkg/logger"
	"github.com/tomtib/ableton-animator/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 5 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

type runFlags struct {
	config string
	sync   string
	in     string
	out    string
}

func main() {
	// We collect our own system metrics instead of the default Go collectors.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := newRootCmd().Execute(); err != nil {
		_ = logger.Sync()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "animator",
		Short: "Live MIDI router that keeps backing parts in time with a performer",
		Long: `animator listens to a metronome, a performer and a control surface on one
MIDI input, plays scripted sections on the beat grid, nudges automated parts
toward the performer's timing and forwards everything to one MIDI output.`,
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newPortsCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flags)
		},
	}
	cmd.Flags().StringVarP(&flags.config, "config", "c", "", "config file (overrides "+config.PathEnv+")")
	cmd.Flags().StringVarP(&flags.sync, "sync", "s", "", "sync file with sections, lfos and performers")
	cmd.Flags().StringVar(&flags.in, "in", "", "input port name")
	cmd.Flags().StringVar(&flags.out, "out", "", "output port name")
	return cmd
}

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List the available MIDI ports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer midi.CloseDriver()
			ins, outs := midi.Ports()
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "inputs:")
			for _, name := range ins {
				fmt.Fprintf(w, "  %s\n", name)
			}
			fmt.Fprintln(w, "outputs:")
			for _, name := range outs {
				fmt.Fprintf(w, "  %s\n", name)
			}
			return nil
		},
	}
}

// loadConfig layers the command line flags over the loaded config.
func loadConfig(ctx context.Context, flags runFlags) (*config.Config, error) {
	if flags.config != "" {
		if err := os.Setenv(config.PathEnv, flags.config); err != nil {
			return nil, fmt.Errorf("set config path: %w", err)
		}
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if flags.sync != "" {
		cfg.SyncFile = flags.sync
	}
	if flags.in != "" {
		cfg.InputPort = flags.in
	}
	if flags.out != "" {
		cfg.OutputPort = flags.out
	}
	if cfg.SyncFile == "" {
		return nil, fmt.Errorf("%w: sync_file must be set", config.ErrInvalidConfig)
	}
	return cfg, nil
}

func run(parent context.Context, flags runFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.Get()

	cfg, err := loadConfig(ctx, flags)
	if err != nil {
		log.Error(ctx, "failed to load config", logger.Error(err))
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	bar := metronome.New(cfg.BPM, cfg.BeatsPerBar).Bar()
	content, err := syncfile.Load(cfg.SyncFile, bar)
	if err != nil {
		log.Error(ctx, "failed to load sync file", logger.String("path", cfg.SyncFile), logger.Error(err))
		return err
	}

	defer midi.CloseDriver()
	in, err := midi.OpenInput(cfg.InputPort)
	if err != nil {
		log.Error(ctx, "failed to open input", logger.Error(err))
		return err
	}
	defer in.Close()
	out, err := midi.OpenOutput(cfg.OutputPort)
	if err != nil {
		log.Error(ctx, "failed to open output", logger.Error(err))
		return err
	}
	defer func() {
		if err := out.AllNotesOff(); err != nil {
			log.Warn(ctx, "all notes off failed", logger.Error(err))
		}
		_ = out.Close()
	}()

	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)

	svc := app.New(append(app.ConfigOptions(cfg),
		app.WithLogger(log.Named("engine")),
		app.WithSource(in),
		app.WithDevice(out),
		app.WithSections(content.Sections),
		app.WithGenerators(content.Generators()),
		app.WithPerformers(content.Performers),
		app.WithStopGesture(watchStop(ctx, os.Stdin, usr1)),
	)...)

	go startSystemMetricsUpdater(ctx)

	mux := http.NewServeMux()
	swagger.Register(mux)
	api.NewServer(svc).Register(mux)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(fmt.Errorf("%w: %w", api.ErrServe, err)))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "server shutdown failed", logger.Error(err))
		}
	}()

	log.Info(ctx, "animator running",
		logger.String("input", in.Name()),
		logger.String("output", out.Name()),
		logger.Int("sections", len(content.Sections)),
	)
	if err := svc.Run(ctx); err != nil {
		log.Error(ctx, "engine stopped", logger.Error(err))
		return err
	}
	log.Info(ctx, "animator stopped")
	return nil
}

// startSystemMetricsUpdater refreshes system metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
