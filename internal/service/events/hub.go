package events

import (
	"sync"
	"time"

	"github.com/zhouzirui/emotion-dashboard/internal/model/chat"
)

// Type names an event published to dashboard subscribers.
type Type string

const (
	TypeState        Type = "state"
	TypeConversation Type = "conversation"
	TypeEmotion      Type = "emotion"
	TypeTheme        Type = "theme"
	TypeWebcam       Type = "webcam"
)

// Event is pushed to every subscriber (SSE and WebSocket clients).
type Event struct {
	Type            Type         `json:"type"`
	RunID           string       `json:"runId,omitempty"`
	State           string       `json:"state,omitempty"`
	Emotion         string       `json:"emotion,omitempty"`
	EmotionFallback bool         `json:"emotionFallback,omitempty"`
	Entries         []chat.Entry `json:"entries,omitempty"`
	Theme           string       `json:"theme,omitempty"`
	WebcamActive    *bool        `json:"webcamActive,omitempty"`
	Error           string       `json:"error,omitempty"`
	Time            time.Time    `json:"time"`
}

// Publisher is what services need to emit events.
type Publisher interface {
	Publish(Event)
}

// Hub fans events out to subscribers. A subscriber whose buffer is full misses
// the event instead of blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	buffer int
}

// NewHub creates a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 16
	}
	return &Hub{subs: make(map[chan Event]struct{}), buffer: buffer}
}

// Subscribe registers a subscriber; call the returned func to unsubscribe.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers evt to all current subscribers.
func (h *Hub) Publish(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribers returns the number of registered subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(Event) {}
