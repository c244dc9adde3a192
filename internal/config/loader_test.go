package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/smartystreets/goconvey/convey"
	"github.com/tomtib/ableton-animator/internal/config"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.BPM, convey.ShouldEqual, 140)
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("ANIMATOR_ADDR", ":8080")
			_ = os.Setenv("ANIMATOR_BPM", "120")
			_ = os.Setenv("ANIMATOR_WORKER_COUNT", "16")
			_ = os.Setenv("ANIMATOR_INPUT_PORT", "IAC Bus 1")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.BPM, convey.ShouldEqual, 120)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.InputPort, convey.ShouldEqual, "IAC Bus 1")
			})
		})

		convey.Convey("When the command table comes from the environment", func() {
			_ = os.Setenv("ANIMATOR_CONTROL_NOTES", "1, 4,7")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then the comma separated notes replace the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.ControlNotes, convey.ShouldResemble, []int{1, 4, 7})
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
bpm: 96
beats_per_bar: 3
worker_count: 4
control_notes: [60, 62]
sync_file: "./song.sync.yaml"
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv(config.PathEnv, tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.BPM, convey.ShouldEqual, 96)
				convey.So(cfg.BeatsPerBar, convey.ShouldEqual, 3)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
				convey.So(cfg.SyncFile, convey.ShouldEqual, "./song.sync.yaml")
			})

			convey.Convey("Then the command table is replaced, not merged", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.ControlNotes, convey.ShouldResemble, []int{60, 62})
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
worker_count: 24
output_retries: 5
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv(config.PathEnv, tmpFile)
			_ = os.Setenv("ANIMATOR_WORKER_COUNT", "32")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")    // From file
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)  // Overridden by env
				convey.So(cfg.OutputRetries, convey.ShouldEqual, 5) // From file
				convey.So(cfg.TimingHistory, convey.ShouldEqual, 5) // From defaults
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv(config.PathEnv, tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv(config.PathEnv, "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("ANIMATOR_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with conflicting channels from env", func() {
			_ = os.Setenv("ANIMATOR_CONTROL_CHANNEL", "0")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then validation should reject it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("ANIMATOR_QUEUE_SIZE", "invalid")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		config.PathEnv,
		"ANIMATOR_ADDR",
		"ANIMATOR_BPM",
		"ANIMATOR_WORKER_COUNT",
		"ANIMATOR_INPUT_PORT",
		"ANIMATOR_QUEUE_SIZE",
		"ANIMATOR_CONTROL_CHANNEL",
		"ANIMATOR_CONTROL_NOTES",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "animator-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
