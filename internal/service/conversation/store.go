package conversation

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/zhouzirui/emotion-dashboard/internal/model/chat"
	"github.com/zhouzirui/emotion-dashboard/internal/service/events"
)

// CookieName is the cookie holding the serialized conversation log.
const CookieName = "chat_history"

// DefaultTTL is how long the persisted log survives without a new message.
const DefaultTTL = 7 * 24 * time.Hour

var ErrCorruptHistory = errors.New("persisted chat history is corrupt")

// codec matches encoding/json output so histories written by either stay readable.
var codec = sonic.ConfigStd

// CookieStore is the client-side cookie storage the log is persisted to.
type CookieStore interface {
	Get(name string) (string, bool)
	Set(name, value string, ttl time.Duration) error
	Remove(name string) error
	ExpireAll() error
}

// Store is the ordered conversation log. It only grows until Clear.
type Store struct {
	mu        sync.RWMutex
	cookies   CookieStore
	ttl       time.Duration
	entries   []chat.Entry
	publisher events.Publisher
	logger    *slog.Logger
}

// NewStore returns an empty store; call Load to restore a persisted log.
func NewStore(cookies CookieStore, ttl time.Duration, publisher events.Publisher, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if publisher == nil {
		publisher = events.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		cookies:   cookies,
		ttl:       ttl,
		entries:   make([]chat.Entry, 0, 16),
		publisher: publisher,
		logger:    logger.With("component", "conversation"),
	}
}

// Load replaces the in-memory log with the persisted one. A missing cookie means an
// empty log. A corrupt cookie also leaves the log empty and returns ErrCorruptHistory.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = s.entries[:0]

	raw, ok := s.cookies.Get(CookieName)
	if !ok || raw == "" {
		return nil
	}

	entries, err := decode(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptHistory, err)
	}

	s.entries = append(s.entries, entries...)
	s.logger.Debug("restored conversation", "entries", len(s.entries))
	return nil
}

// Entries returns a copy of the log.
func (s *Store) Entries() []chat.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]chat.Entry, len(s.entries))
	copy(copied, s.entries)
	return copied
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Append adds entries and persists the whole log. The in-memory log keeps the new
// entries even when persisting fails.
func (s *Store) Append(entries ...chat.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	s.entries = append(s.entries, entries...)
	snapshot := make([]chat.Entry, len(s.entries))
	copy(snapshot, s.entries)
	err := s.persist(snapshot)
	s.mu.Unlock()

	s.publisher.Publish(events.Event{Type: events.TypeConversation, Entries: snapshot})
	return err
}

// Clear empties the log, removes its cookie and expires every other cookie too.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.entries = s.entries[:0]
	var errs []error
	if err := s.cookies.Remove(CookieName); err != nil {
		errs = append(errs, err)
	}
	if err := s.cookies.ExpireAll(); err != nil {
		errs = append(errs, err)
	}
	s.mu.Unlock()

	s.publisher.Publish(events.Event{Type: events.TypeConversation, Entries: []chat.Entry{}})
	if len(errs) > 0 {
		return fmt.Errorf("failed to clear chat history: %w", errors.Join(errs...))
	}
	return nil
}

func (s *Store) persist(entries []chat.Entry) error {
	value, err := encode(entries)
	if err != nil {
		return err
	}
	if err := s.cookies.Set(CookieName, value, s.ttl); err != nil {
		return fmt.Errorf("failed to persist chat history: %w", err)
	}
	return nil
}

func encode(entries []chat.Entry) (string, error) {
	data, err := codec.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to encode chat history: %w", err)
	}
	return url.QueryEscape(string(data)), nil
}

func decode(raw string) ([]chat.Entry, error) {
	unescaped, err := url.QueryUnescape(raw)
	if err != nil {
		return nil, err
	}

	var entries []chat.Entry
	if err := codec.UnmarshalFromString(unescaped, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
