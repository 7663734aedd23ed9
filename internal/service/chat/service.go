package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	analysis "github.com/zhouzirui/emotion-dashboard/internal/analysis/emotion"
	"github.com/zhouzirui/emotion-dashboard/internal/model/capture"
	"github.com/zhouzirui/emotion-dashboard/internal/model/chat"
	emotionservice "github.com/zhouzirui/emotion-dashboard/internal/service/emotion"
	"github.com/zhouzirui/emotion-dashboard/internal/service/events"
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrSendInProgress = errors.New("a message is already being sent")
	ErrCaptureFailed  = errors.New("frame capture failed")
)

// State is a step of the send workflow.
type State string

const (
	StateIdle           State = "idle"
	StateCapturePending State = "capture_pending"
	StateCapturing      State = "capturing"
	StateUploading      State = "uploading"
	StateDispatching    State = "dispatching"
)

// FrameCapturer is the webcam side of the workflow.
type FrameCapturer interface {
	Request(ctx context.Context, reason capture.Reason) (capture.Result, error)
	Trigger(reason capture.Reason) bool
}

// EmotionDetector turns a burst into a label.
type EmotionDetector interface {
	Detect(ctx context.Context, frames []capture.Frame) emotionservice.Detection
}

// MessageDispatcher sends the user's message to the chat backend.
type MessageDispatcher interface {
	Dispatch(ctx context.Context, token, text, emotion string) (Reply, error)
}

// TokenSource provides the bearer token for the chat backend.
type TokenSource interface {
	Token() string
}

// ConversationLog is where exchanged messages are appended.
type ConversationLog interface {
	Append(entries ...chat.Entry) error
	Entries() []chat.Entry
}

// Options tunes the send workflow.
type Options struct {
	// SettleDelay is waited after requesting a capture, giving the camera time to
	// settle on the user's face.
	SettleDelay     time.Duration
	TypingCooldown  time.Duration
	TimestampLayout string
	// TextFallback derives the label from the message text when the upload fell back.
	TextFallback bool
	Now          func() time.Time
	Publisher    events.Publisher
	Logger       *slog.Logger
}

// Exchange describes one finished (or partially finished) send.
type Exchange struct {
	RunID           string       `json:"runId"`
	Emotion         string       `json:"emotion,omitempty"`
	EmotionFallback bool         `json:"emotionFallback,omitempty"`
	Reply           string       `json:"reply,omitempty"`
	Entries         []chat.Entry `json:"entries"`
}

// Service runs the send workflow:
// idle -> capture_pending -> capturing -> uploading -> dispatching -> idle.
// Any step may fall back to idle; nothing is retried.
type Service struct {
	capturer   FrameCapturer
	detector   EmotionDetector
	dispatcher MessageDispatcher
	tokens     TokenSource
	log        ConversationLog
	opts       Options
	logger     *slog.Logger

	sending atomic.Bool
	state   atomic.Value

	typingMu   sync.Mutex
	lastTyping time.Time
}

// NewService wires the workflow collaborators.
func NewService(capturer FrameCapturer, detector EmotionDetector, dispatcher MessageDispatcher, tokens TokenSource, log ConversationLog, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TimestampLayout == "" {
		opts.TimestampLayout = chat.DefaultTimestampLayout
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Discard{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Service{
		capturer:   capturer,
		detector:   detector,
		dispatcher: dispatcher,
		tokens:     tokens,
		log:        log,
		opts:       opts,
		logger:     opts.Logger.With("component", "chat"),
	}
	s.state.Store(StateIdle)
	return s
}

// State returns the current workflow step.
func (s *Service) State() State {
	return s.state.Load().(State)
}

// InputEnabled reports whether a new message may be sent.
func (s *Service) InputEnabled() bool {
	return !s.sending.Load()
}

// Typing asks for a typing burst unless one was triggered within the cooldown.
func (s *Service) Typing() bool {
	s.typingMu.Lock()
	defer s.typingMu.Unlock()

	now := s.opts.Now()
	if !s.lastTyping.IsZero() && now.Sub(s.lastTyping) < s.opts.TypingCooldown {
		return false
	}
	if !s.capturer.Trigger(capture.ReasonTyping) {
		return false
	}
	s.lastTyping = now
	return true
}

// Send runs the workflow for one message. On a dispatch failure the user's entry
// stays in the log and the error wraps ErrDispatchFailed.
func (s *Service) Send(ctx context.Context, text string) (Exchange, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Exchange{}, ErrEmptyMessage
	}
	if !s.sending.CompareAndSwap(false, true) {
		return Exchange{}, ErrSendInProgress
	}
	defer s.sending.Store(false)

	exchange := Exchange{RunID: uuid.NewString()}
	logger := s.logger.With("run", exchange.RunID)

	err := s.run(ctx, logger, text, &exchange)
	exchange.Entries = s.log.Entries()
	s.transition(exchange.RunID, StateIdle, err)

	if err != nil {
		logger.Warn("send failed", "err", err)
		return exchange, err
	}
	logger.Info("message exchanged", "emotion", exchange.Emotion, "reply_length", len(exchange.Reply))
	return exchange, nil
}

func (s *Service) run(ctx context.Context, logger *slog.Logger, text string, exchange *Exchange) error {
	s.transition(exchange.RunID, StateCapturePending, nil)
	if !wait(ctx, s.opts.SettleDelay) {
		return ctx.Err()
	}

	s.transition(exchange.RunID, StateCapturing, nil)
	result, err := s.capturer.Request(ctx, capture.ReasonSubmit)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}

	s.transition(exchange.RunID, StateUploading, nil)
	detection := s.detector.Detect(ctx, result.Frames)
	exchange.Emotion = detection.Label
	exchange.EmotionFallback = detection.Fallback
	if detection.Fallback {
		logger.Warn("emotion defaulted", "label", detection.Label, "err", detection.Err)
		if s.opts.TextFallback {
			exchange.Emotion = string(analysis.Analyze(text))
			logger.Info("emotion derived from text", "label", exchange.Emotion)
		}
	}

	if err := s.log.Append(chat.NewUserEntry(text, exchange.Emotion, s.opts.Now(), s.opts.TimestampLayout)); err != nil {
		logger.Warn("failed to persist user entry", "err", err)
	}

	s.transition(exchange.RunID, StateDispatching, nil)
	var token string
	if s.tokens != nil {
		token = s.tokens.Token()
	}
	reply, err := s.dispatcher.Dispatch(ctx, token, text, exchange.Emotion)
	if err != nil {
		return err
	}
	exchange.Reply = reply.Message
	logger.Debug("reply received", "summaries", len(reply.ChatHistory))

	if err := s.log.Append(chat.NewBotEntry(text, reply.Message, exchange.Emotion, s.opts.Now(), s.opts.TimestampLayout)); err != nil {
		logger.Warn("failed to persist bot entry", "err", err)
	}
	return nil
}

func (s *Service) transition(runID string, next State, err error) {
	s.state.Store(next)

	evt := events.Event{Type: events.TypeState, RunID: runID, State: string(next)}
	if err != nil {
		evt.Error = err.Error()
	}
	s.opts.Publisher.Publish(evt)
}

func wait(ctx context.Context, d time.Duration) bool {
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
