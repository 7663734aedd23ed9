package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/emotion-dashboard/internal/model/capture"
	chat "github.com/zhouzirui/emotion-dashboard/internal/service/chat"
	"github.com/zhouzirui/emotion-dashboard/internal/service/conversation"
	emotionservice "github.com/zhouzirui/emotion-dashboard/internal/service/emotion"
	"github.com/zhouzirui/emotion-dashboard/internal/service/events"
	"github.com/zhouzirui/emotion-dashboard/internal/storage/cookie"
)

type fakeCapturer struct {
	mu       sync.Mutex
	frames   int
	err      error
	block    chan struct{}
	requests []capture.Reason
	triggers int
	accept   bool
}

func (f *fakeCapturer) Request(ctx context.Context, reason capture.Reason) (capture.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, reason)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return capture.Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return capture.Result{}, f.err
	}

	frames := make([]capture.Frame, f.frames)
	for i := range frames {
		frames[i] = capture.Frame{Index: i, Data: []byte("jpeg"), ContentType: "image/jpeg"}
	}
	return capture.Result{Reason: reason, Frames: frames}, nil
}

func (f *fakeCapturer) Trigger(capture.Reason) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.accept {
		return false
	}
	f.triggers++
	return true
}

type staticToken string

func (s staticToken) Token() string { return string(s) }

type backend struct {
	mu          sync.Mutex
	emotion     string
	chatStatus  int
	reply       string
	auth        string
	gotMessage  string
	gotEmotion  string
	uploadCalls int
}

func (b *backend) router() http.Handler {
	r := chi.NewRouter()
	r.Post("/emotion/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.uploadCalls++
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"final_emotion": b.emotion})
	})
	r.Post("/chat/", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message string `json:"message"`
			Emotion string `json:"emotion"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		b.mu.Lock()
		b.auth = r.Header.Get("Authorization")
		b.gotMessage = req.Message
		b.gotEmotion = req.Emotion
		b.mu.Unlock()

		if b.chatStatus != http.StatusOK {
			http.Error(w, `{"detail":"boom"}`, b.chatStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"message": b.reply, "chat_history": []string{"summary"}})
	})
	return r
}

type observed struct {
	auth        string
	gotMessage  string
	gotEmotion  string
	uploadCalls int
}

func (b *backend) seen() observed {
	b.mu.Lock()
	defer b.mu.Unlock()
	return observed{auth: b.auth, gotMessage: b.gotMessage, gotEmotion: b.gotEmotion, uploadCalls: b.uploadCalls}
}

type harness struct {
	svc      *chat.Service
	store    *conversation.Store
	capturer *fakeCapturer
	backend  *backend
	hub      *events.Hub
}

func newHarness(t *testing.T, b *backend, capturer *fakeCapturer, opts chat.Options) *harness {
	t.Helper()

	srv := httptest.NewServer(b.router())
	t.Cleanup(srv.Close)
	base, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}

	jar, err := cookie.Open(filepath.Join(t.TempDir(), "cookies.json"), base)
	if err != nil {
		t.Fatalf("cookie.Open err: %v", err)
	}
	client := &http.Client{Jar: jar.HTTPJar()}

	hub := events.NewHub(64)
	store := conversation.NewStore(jar, 0, hub, nil)
	detector := emotionservice.NewService(emotionservice.Config{BaseURL: base, HTTPClient: client})
	dispatcher := chat.NewDispatcher(base, client)

	opts.Publisher = hub
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Date(2024, 5, 1, 14, 5, 0, 0, time.UTC) }
	}
	svc := chat.NewService(capturer, detector, dispatcher, staticToken("secret"), store, opts)

	return &harness{svc: svc, store: store, capturer: capturer, backend: b, hub: hub}
}

func TestSendAppendsUserAndBotEntries(t *testing.T) {
	h := newHarness(t,
		&backend{emotion: "happy", chatStatus: http.StatusOK, reply: "hello!"},
		&fakeCapturer{frames: 10},
		chat.Options{},
	)

	exchange, err := h.svc.Send(t.Context(), "hi")
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}

	if exchange.Emotion != "happy" || exchange.Reply != "hello!" {
		t.Fatalf("unexpected exchange: %+v", exchange)
	}
	if len(exchange.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(exchange.Entries))
	}

	user, bot := exchange.Entries[0], exchange.Entries[1]
	if user.UserInput != "hi" || user.BotResponse != "" || user.Emotion != "happy" || user.Timestamp != "02:05 PM" {
		t.Fatalf("unexpected user entry: %+v", user)
	}
	if bot.UserInput != "hi" || bot.BotResponse != "hello!" || bot.Emotion != "happy" {
		t.Fatalf("unexpected bot entry: %+v", bot)
	}

	seen := h.backend.seen()
	if seen.auth != "Bearer secret" {
		t.Fatalf("unexpected authorization header: %q", seen.auth)
	}
	if seen.gotMessage != "hi" || seen.gotEmotion != "happy" {
		t.Fatalf("unexpected dispatch body: %q %q", seen.gotMessage, seen.gotEmotion)
	}
	if got := h.capturer.requests; len(got) != 1 || got[0] != capture.ReasonSubmit {
		t.Fatalf("expected one submit capture, got %v", got)
	}
	if h.svc.State() != chat.StateIdle || !h.svc.InputEnabled() {
		t.Fatal("expected workflow back at idle with input enabled")
	}
}

func TestSendDispatchFailureKeepsUserEntry(t *testing.T) {
	h := newHarness(t,
		&backend{emotion: "sad", chatStatus: http.StatusInternalServerError},
		&fakeCapturer{frames: 10},
		chat.Options{},
	)

	exchange, err := h.svc.Send(t.Context(), "hi")
	if !errors.Is(err, chat.ErrDispatchFailed) {
		t.Fatalf("expected ErrDispatchFailed, got %v", err)
	}
	var statusErr *chat.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected status error 500, got %v", err)
	}

	entries := h.store.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected exactly the user entry, got %d", len(entries))
	}
	if entries[0].BotResponse != "" || entries[0].Emotion != "sad" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
	if len(exchange.Entries) != 1 {
		t.Fatalf("expected exchange to carry the log, got %d entries", len(exchange.Entries))
	}
	if !h.svc.InputEnabled() {
		t.Fatal("input should be re-enabled after a failure")
	}
}

func TestSendWithoutFramesLeavesLogUnchanged(t *testing.T) {
	h := newHarness(t,
		&backend{emotion: "happy", chatStatus: http.StatusOK, reply: "hello!"},
		&fakeCapturer{err: errors.New("no frames captured")},
		chat.Options{},
	)

	if _, err := h.svc.Send(t.Context(), "hi"); !errors.Is(err, chat.ErrCaptureFailed) {
		t.Fatalf("expected ErrCaptureFailed, got %v", err)
	}
	if h.store.Len() != 0 {
		t.Fatalf("expected empty log, got %d entries", h.store.Len())
	}
	if seen := h.backend.seen(); seen.uploadCalls != 0 || seen.gotMessage != "" {
		t.Fatal("expected no upload or dispatch")
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	h := newHarness(t, &backend{chatStatus: http.StatusOK}, &fakeCapturer{frames: 1}, chat.Options{})

	if _, err := h.svc.Send(t.Context(), "   "); !errors.Is(err, chat.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if len(h.capturer.requests) != 0 {
		t.Fatal("expected no capture for an empty message")
	}
}

func TestSendRejectsConcurrentSend(t *testing.T) {
	capturer := &fakeCapturer{frames: 1, block: make(chan struct{})}
	h := newHarness(t, &backend{emotion: "happy", chatStatus: http.StatusOK, reply: "ok"}, capturer, chat.Options{})

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.Send(t.Context(), "first")
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for h.svc.InputEnabled() {
		select {
		case <-deadline:
			t.Fatal("first send never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, err := h.svc.Send(t.Context(), "second"); !errors.Is(err, chat.ErrSendInProgress) {
		t.Fatalf("expected ErrSendInProgress, got %v", err)
	}

	close(capturer.block)
	if err := <-done; err != nil {
		t.Fatalf("first send err: %v", err)
	}
	if h.store.Len() != 2 {
		t.Fatalf("expected 2 entries from the first send, got %d", h.store.Len())
	}
}

func TestSendPublishesStateTransitions(t *testing.T) {
	h := newHarness(t, &backend{emotion: "happy", chatStatus: http.StatusOK, reply: "ok"}, &fakeCapturer{frames: 2}, chat.Options{})
	ch, cancel := h.hub.Subscribe()
	defer cancel()

	if _, err := h.svc.Send(t.Context(), "hello"); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	var states []string
	for len(ch) > 0 {
		if evt := <-ch; evt.Type == events.TypeState {
			states = append(states, evt.State)
		}
	}

	want := []string{"capture_pending", "capturing", "uploading", "dispatching", "idle"}
	if len(states) != len(want) {
		t.Fatalf("unexpected transitions: %v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("unexpected transitions: %v", states)
		}
	}
}

func TestSendTextFallback(t *testing.T) {
	h := newHarness(t,
		&backend{emotion: "", chatStatus: http.StatusOK, reply: "there there"},
		&fakeCapturer{frames: 3},
		chat.Options{TextFallback: true},
	)

	exchange, err := h.svc.Send(t.Context(), "I feel so lonely today")
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if exchange.Emotion != "sad" || !exchange.EmotionFallback {
		t.Fatalf("expected text-derived sad label, got %+v", exchange)
	}
	if got := h.backend.seen().gotEmotion; got != "sad" {
		t.Fatalf("expected dispatch with sad, got %q", got)
	}
}

func TestTypingRespectsCooldown(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	capturer := &fakeCapturer{accept: true}
	h := newHarness(t, &backend{chatStatus: http.StatusOK}, capturer, chat.Options{
		TypingCooldown: 5 * time.Second,
		Now:            func() time.Time { return now },
	})

	if !h.svc.Typing() {
		t.Fatal("expected first typing trigger")
	}
	now = now.Add(2 * time.Second)
	if h.svc.Typing() {
		t.Fatal("expected trigger suppressed within cooldown")
	}
	now = now.Add(4 * time.Second)
	if !h.svc.Typing() {
		t.Fatal("expected trigger after cooldown")
	}
	if capturer.triggers != 2 {
		t.Fatalf("expected 2 triggers, got %d", capturer.triggers)
	}
}

func TestTypingDroppedWhenCapturerBusy(t *testing.T) {
	h := newHarness(t, &backend{chatStatus: http.StatusOK}, &fakeCapturer{accept: false}, chat.Options{})

	if h.svc.Typing() {
		t.Fatal("expected trigger to be dropped")
	}
}
