// Package local persists the small per-user settings a browser would keep in
// local storage: UI theme, bearer token and the last seen emotion label.
package local

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// Values is the on-disk document.
type Values struct {
	Theme   string `toml:"theme"`
	Token   string `toml:"jwt"`
	Emotion string `toml:"emotion"`
}

// Settings is a file-backed Values guarded by a mutex; every write rewrites the file.
type Settings struct {
	mu     sync.RWMutex
	path   string
	values Values
}

// Open reads the settings file. A missing file yields empty settings.
func Open(path string) (*Settings, error) {
	s := &Settings{path: path}

	if _, err := toml.DecodeFile(path, &s.values); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings %q: %w", path, err)
	}
	return s, nil
}

// Snapshot returns a copy of the current values.
func (s *Settings) Snapshot() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values
}

func (s *Settings) Theme() string   { return s.Snapshot().Theme }
func (s *Settings) Token() string   { return s.Snapshot().Token }
func (s *Settings) Emotion() string { return s.Snapshot().Emotion }

func (s *Settings) SetTheme(theme string) error {
	return s.update(func(v *Values) { v.Theme = theme })
}

func (s *Settings) SetToken(token string) error {
	return s.update(func(v *Values) { v.Token = token })
}

func (s *Settings) SetEmotion(emotion string) error {
	return s.update(func(v *Values) { v.Emotion = emotion })
}

func (s *Settings) update(apply func(*Values)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.values
	apply(&next)
	if err := s.write(next); err != nil {
		return err
	}
	s.values = next
	return nil
}

func (s *Settings) write(values Values) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(values); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create settings directory %q: %w", dir, err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}
