package capture

import (
	"context"
	"iter"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/zhouzirui/emotion-dashboard/internal/model/capture"
)

const (
	DefaultFrames   = 10
	DefaultInterval = 100 * time.Millisecond
)

// Burst returns a lazy sequence of at most n snapshots spaced by interval. Failed
// snapshots are logged and skipped; successful frames are numbered 0, 1, ...
// The sequence can be ranged over only once; later iterations yield nothing.
func Burst(ctx context.Context, src Source, n int, interval time.Duration, logger *slog.Logger) iter.Seq[capture.Frame] {
	if logger == nil {
		logger = slog.Default()
	}

	var consumed atomic.Bool
	return func(yield func(capture.Frame) bool) {
		if !consumed.CompareAndSwap(false, true) {
			logger.Warn("burst already consumed")
			return
		}

		index := 0
		for attempt := 0; attempt < n; attempt++ {
			if attempt > 0 && !sleep(ctx, interval) {
				return
			}

			frame, err := src.Snapshot(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("frame capture failed", "attempt", attempt, "err", err)
				continue
			}

			frame.Index = index
			if frame.ContentType == "" {
				frame.ContentType = "image/jpeg"
			}
			if frame.CapturedAt.IsZero() {
				frame.CapturedAt = time.Now()
			}
			index++

			if !yield(frame) {
				return
			}
		}
	}
}

// Collect drains a burst.
func Collect(seq iter.Seq[capture.Frame]) []capture.Frame {
	return slices.Collect(seq)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
