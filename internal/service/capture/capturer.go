package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/emotion-dashboard/internal/model/capture"
	emotionservice "github.com/zhouzirui/emotion-dashboard/internal/service/emotion"
	"github.com/zhouzirui/emotion-dashboard/internal/service/events"
)

var (
	ErrNoFrames       = errors.New("no frames captured")
	ErrWebcamInactive = errors.New("webcam is stopped")
)

// Detector classifies a burst.
type Detector interface {
	Detect(ctx context.Context, frames []capture.Frame) emotionservice.Detection
}

// LabelRecorder remembers the last label seen from a typing burst.
type LabelRecorder interface {
	SetEmotion(label string) error
}

// Options tunes a Capturer.
type Options struct {
	Frames    int
	Interval  time.Duration
	QueueSize int
	Publisher events.Publisher
	Logger    *slog.Logger
}

// Capturer owns the camera feed. Requests are handled one at a time by Run, so
// bursts never overlap.
type Capturer struct {
	source    Source
	detector  Detector
	recorder  LabelRecorder
	frames    int
	interval  time.Duration
	requests  chan capture.Request
	active    atomic.Bool
	busy      atomic.Bool
	publisher events.Publisher
	logger    *slog.Logger
}

// NewCapturer creates an active capturer; start it with Run.
func NewCapturer(source Source, detector Detector, recorder LabelRecorder, opts Options) *Capturer {
	if opts.Frames <= 0 {
		opts.Frames = DefaultFrames
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Discard{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Capturer{
		source:    source,
		detector:  detector,
		recorder:  recorder,
		frames:    opts.Frames,
		interval:  opts.Interval,
		requests:  make(chan capture.Request, opts.QueueSize),
		publisher: opts.Publisher,
		logger:    opts.Logger.With("component", "capture"),
	}
	c.active.Store(true)
	return c
}

// Run processes capture requests until ctx is done.
func (c *Capturer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-c.requests:
			c.handle(ctx, req)
		}
	}
}

// Request sends a capture command and waits for its acknowledgement.
func (c *Capturer) Request(ctx context.Context, reason capture.Reason) (capture.Result, error) {
	req := newRequest(reason)

	select {
	case c.requests <- req:
	case <-ctx.Done():
		return capture.Result{}, ctx.Err()
	}

	select {
	case res := <-req.Reply:
		return res, res.Err
	case <-ctx.Done():
		return capture.Result{}, ctx.Err()
	}
}

// Trigger queues a capture command without waiting. It reports false when the
// queue is full, in which case the trigger is dropped.
func (c *Capturer) Trigger(reason capture.Reason) bool {
	select {
	case c.requests <- newRequest(reason):
		return true
	default:
		c.logger.Debug("capture trigger dropped", "reason", reason)
		return false
	}
}

// SetActive starts or stops the webcam.
func (c *Capturer) SetActive(active bool) {
	if c.active.Swap(active) == active {
		return
	}
	c.logger.Info("webcam toggled", "active", active)
	c.publisher.Publish(events.Event{Type: events.TypeWebcam, WebcamActive: &active})
}

// Active reports whether the webcam is running.
func (c *Capturer) Active() bool {
	return c.active.Load()
}

// Capturing reports whether a burst is in progress.
func (c *Capturer) Capturing() bool {
	return c.busy.Load()
}

func newRequest(reason capture.Reason) capture.Request {
	return capture.Request{
		ID:     uuid.NewString(),
		Reason: reason,
		Reply:  make(chan capture.Result, 1),
	}
}

func (c *Capturer) handle(ctx context.Context, req capture.Request) {
	res := capture.Result{RequestID: req.ID, Reason: req.Reason}
	defer func() { req.Reply <- res }()

	if !c.Active() {
		res.Err = ErrWebcamInactive
		return
	}

	c.busy.Store(true)
	defer c.busy.Store(false)

	started := time.Now()
	res.Frames = Collect(Burst(ctx, c.source, c.frames, c.interval, c.logger))
	c.logger.Debug("burst finished", "request", req.ID, "reason", req.Reason, "frames", len(res.Frames), "elapsed", time.Since(started))

	if len(res.Frames) == 0 {
		res.Err = ErrNoFrames
		return
	}

	if req.Reason != capture.ReasonTyping || c.detector == nil {
		return
	}

	detection := c.detector.Detect(ctx, res.Frames)
	res.Emotion = detection.Label
	if detection.Fallback {
		// A failed upload keeps the last label that came from the backend.
		c.logger.Warn("typing upload failed, keeping last emotion", "request", req.ID, "err", detection.Err)
	} else if c.recorder != nil {
		if err := c.recorder.SetEmotion(detection.Label); err != nil {
			c.logger.Warn("failed to record emotion", "err", err)
		}
	}
	c.publisher.Publish(events.Event{
		Type:            events.TypeEmotion,
		Emotion:         detection.Label,
		EmotionFallback: detection.Fallback,
	})
}
