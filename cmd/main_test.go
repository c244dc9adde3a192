package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/tomtib/ableton-animator/internal/config"
	"github.com/tomtib/ableton-animator/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		root := newRootCmd()

		convey.Convey("Then it exposes run and ports", func() {
			names := map[string]bool{}
			for _, c := range root.Commands() {
				names[c.Name()] = true
			}
			convey.So(names["run"], convey.ShouldBeTrue)
			convey.So(names["ports"], convey.ShouldBeTrue)
		})

		convey.Convey("Then run declares its flags", func() {
			run, _, err := root.Find([]string{"run"})
			convey.So(err, convey.ShouldBeNil)
			for _, name := range []string{"config", "sync", "in", "out"} {
				convey.So(run.Flags().Lookup(name), convey.ShouldNotBeNil)
			}
		})

		convey.Convey("Then help renders", func() {
			var buf bytes.Buffer
			root.SetOut(&buf)
			root.SetArgs([]string{"--help"})
			convey.So(root.Execute(), convey.ShouldBeNil)
			convey.So(buf.String(), convey.ShouldContainSubstring, "animator")
		})
	})
}

func TestLoadConfig(t *testing.T) {
	convey.Convey("Given environment overrides", t, func() {
		_ = os.Setenv("ANIMATOR_ADDR", ":8080")
		_ = os.Setenv("ANIMATOR_QUEUE_SIZE", "1000")
		_ = os.Setenv("ANIMATOR_SYNC_FILE", "env.yaml")
		defer func() {
			_ = os.Unsetenv("ANIMATOR_ADDR")
			_ = os.Unsetenv("ANIMATOR_QUEUE_SIZE")
			_ = os.Unsetenv("ANIMATOR_SYNC_FILE")
		}()

		convey.Convey("When no flags are given", func() {
			cfg, err := loadConfig(context.Background(), runFlags{})

			convey.Convey("Then env values apply", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.SyncFile, convey.ShouldEqual, "env.yaml")
			})
		})

		convey.Convey("When flags are given", func() {
			cfg, err := loadConfig(context.Background(), runFlags{sync: "flag.yaml", in: "in 1", out: "out 2"})

			convey.Convey("Then flags win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.SyncFile, convey.ShouldEqual, "flag.yaml")
				convey.So(cfg.InputPort, convey.ShouldEqual, "in 1")
				convey.So(cfg.OutputPort, convey.ShouldEqual, "out 2")
			})
		})
	})

	convey.Convey("Given no sync file anywhere", t, func() {
		_, err := loadConfig(context.Background(), runFlags{})

		convey.Convey("Then loading fails", func() {
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(strings.Contains(err.Error(), "sync_file"), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, config.ErrInvalidConfig.Error())
		})
	})
}

func received(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	case <-time.After(time.Second):
		return false
	}
}

func TestWatchStop(t *testing.T) {
	convey.Convey("Given a stop watcher", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		r, w := io.Pipe()
		defer w.Close()
		sig := make(chan os.Signal, 1)
		stop := watchStop(ctx, r, sig)

		convey.Convey("When q is typed", func() {
			_, _ = io.WriteString(w, "q\n")
			convey.So(received(stop), convey.ShouldBeTrue)
		})

		convey.Convey("When escape is typed", func() {
			_, _ = io.WriteString(w, "\x1b\n")
			convey.So(received(stop), convey.ShouldBeTrue)
		})

		convey.Convey("When a signal arrives", func() {
			sig <- syscall.SIGUSR1
			convey.So(received(stop), convey.ShouldBeTrue)
		})

		convey.Convey("When another line is typed", func() {
			_, _ = io.WriteString(w, "hello\n")
			select {
			case <-stop:
				convey.So("unexpected stop", convey.ShouldBeEmpty)
			case <-time.After(20 * time.Millisecond):
			}
		})
	})

	convey.Convey("Stop lines are recognised", t, func() {
		convey.So(isStopLine(" Q "), convey.ShouldBeTrue)
		convey.So(isStopLine("\x1b[A"), convey.ShouldBeTrue)
		convey.So(isStopLine("quit"), convey.ShouldBeFalse)
	})
}

func TestUpdateSystemMetrics(t *testing.T) {
	convey.Convey("Updating system metrics does not panic", t, func() {
		convey.So(updateSystemMetrics, convey.ShouldNotPanic)
	})
}
