// Package cookie keeps the dashboard's client-side cookies in a file-backed jar.
// The same jar is handed to the backend HTTP client so that requests carry
// credentials the way a browser would.
package cookie

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	cookiejar "github.com/juju/persistent-cookiejar"
)

var ErrInvalidName = errors.New("cookie name is required")

// Jar scopes a persistent cookie jar to the dashboard origin.
type Jar struct {
	mu     sync.Mutex
	jar    *cookiejar.Jar
	origin *url.URL
}

// Open loads (or creates) the cookie file at filename.
func Open(filename string, origin *url.URL) (*Jar, error) {
	if origin == nil {
		return nil, fmt.Errorf("cookie origin is required")
	}
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cookie directory %q: %w", dir, err)
		}
	}

	jar, err := cookiejar.New(&cookiejar.Options{Filename: filename})
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie jar %q: %w", filename, err)
	}

	return &Jar{jar: jar, origin: origin}, nil
}

// HTTPJar exposes the underlying jar for use as http.Client.Jar.
func (j *Jar) HTTPJar() http.CookieJar {
	return j.jar
}

// Get returns the value of a live cookie for the dashboard origin.
func (j *Jar) Get(name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, c := range j.jar.Cookies(j.origin) {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// Set stores a cookie that expires after ttl and persists the jar.
func (j *Jar) Set(name, value string, ttl time.Duration) error {
	if name == "" {
		return ErrInvalidName
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(j.origin, []*http.Cookie{{
		Name:    name,
		Value:   value,
		Path:    "/",
		Expires: time.Now().Add(ttl),
	}})
	return j.save()
}

// Remove expires a single cookie and persists the jar.
func (j *Jar) Remove(name string) error {
	if name == "" {
		return ErrInvalidName
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(j.origin, []*http.Cookie{{
		Name:   name,
		Path:   "/",
		MaxAge: -1,
	}})
	return j.save()
}

// ExpireAll drops every cookie in the jar, including ones set by the backend.
func (j *Jar) ExpireAll() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.RemoveAll()
	return j.save()
}

func (j *Jar) save() error {
	if err := j.jar.Save(); err != nil {
		return fmt.Errorf("failed to persist cookies: %w", err)
	}
	return nil
}
