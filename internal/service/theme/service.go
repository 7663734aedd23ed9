package theme

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/zhouzirui/emotion-dashboard/internal/service/events"
)

// Theme is the dashboard colour scheme.
type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

// Store persists the theme choice.
type Store interface {
	Theme() string
	SetTheme(theme string) error
}

// Service 管理界面主题，默认浅色。
type Service struct {
	mu        sync.Mutex
	store     Store
	publisher events.Publisher
	logger    *slog.Logger
}

func NewService(store Store, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, publisher: publisher, logger: logger.With("component", "theme")}
}

// Current returns the stored theme; anything other than dark reads as light.
func (s *Service) Current() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current()
}

func (s *Service) current() Theme {
	if Theme(s.store.Theme()) == Dark {
		return Dark
	}
	return Light
}

// Toggle flips and persists the theme, returning the new one.
func (s *Service) Toggle() (Theme, error) {
	s.mu.Lock()
	next := Dark
	if s.current() == Dark {
		next = Light
	}
	err := s.store.SetTheme(string(next))
	s.mu.Unlock()

	if err != nil {
		return s.Current(), fmt.Errorf("failed to persist theme: %w", err)
	}

	s.logger.Debug("theme toggled", "theme", next)
	s.publisher.Publish(events.Event{Type: events.TypeTheme, Theme: string(next)})
	return next, nil
}

// ToggleLabel is the caption of the toggle control for the current theme.
func (s *Service) ToggleLabel() string {
	return Label(s.Current())
}

// Label returns the toggle caption shown while t is active.
func Label(t Theme) string {
	if t == Dark {
		return "Switch to light mode"
	}
	return "Switch to dark mode"
}
