package output

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtib/ableton-animator/internal/domain/model"
	"github.com/tomtib/ableton-animator/pkg/logger"
	"github.com/tomtib/ableton-animator/pkg/metrics"
)

// Sender writes output events at their scheduled time.
type Sender struct {
	device  *SerializedDevice
	retries int
	backoff time.Duration
	logger  logger.Logger
}

// Handle waits until e.At, then writes e with bounded retries. Transient
// failures that exhaust the retries are logged and swallowed; device loss is
// returned.
func (s *Sender) Handle(ctx context.Context, e model.OutputEvent) error {
	if !e.At.IsZero() {
		if !sleep(ctx, time.Until(e.At)) {
			return nil
		}
	}

	start := time.Now()
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			metrics.RecordOutputRetry()
			if !sleep(ctx, s.backoff*time.Duration(attempt)) {
				return nil
			}
		}

		err = s.device.Write(e.Event)
		if err == nil {
			metrics.RecordOutputSent()
			metrics.RecordOutputSendLatency(float64(time.Since(start).Microseconds()) / 1000)
			return nil
		}
		if errors.Is(err, ErrDeviceLost) {
			return err
		}
	}

	metrics.RecordOutputFailure()
	s.logger.Warn(ctx, "dropping output event",
		logger.String("event", e.String()),
		logger.Int("attempts", s.retries+1),
		logger.Error(fmt.Errorf("%w: %w", ErrRetriesExhausted, err)),
	)
	return nil
}

// sleep waits for d. It reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
