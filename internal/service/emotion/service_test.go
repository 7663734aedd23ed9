package emotion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/emotion-dashboard/internal/model/capture"
	"github.com/zhouzirui/emotion-dashboard/internal/storage/cookie"
)

func makeFrames(n int) []capture.Frame {
	frames := make([]capture.Frame, n)
	for i := range frames {
		frames[i] = capture.Frame{Index: i, Data: []byte(fmt.Sprintf("jpeg-%d", i)), ContentType: "image/jpeg"}
	}
	return frames
}

func TestBuildFormUsesFrameFileNames(t *testing.T) {
	frames := []capture.Frame{{Index: 3, Data: []byte("a")}, {Index: 7, Data: []byte("b")}}

	var body bytes.Buffer
	contentType, err := BuildForm(&body, frames)
	if err != nil {
		t.Fatalf("BuildForm err: %v", err)
	}
	_, params, _ := mime.ParseMediaType(contentType)
	reader := multipart.NewReader(&body, params["boundary"])

	for _, frame := range frames {
		part, err := reader.NextPart()
		if err != nil {
			t.Fatalf("NextPart err: %v", err)
		}
		if part.FileName() != frame.FileName() {
			t.Fatalf("unexpected file name: got %s want %s", part.FileName(), frame.FileName())
		}
		if part.Header.Get("Content-Type") != "image/jpeg" {
			t.Fatalf("unexpected content type: %s", part.Header.Get("Content-Type"))
		}
	}
}

func TestBuildFormHasOnePartPerFrame(t *testing.T) {
	for n := 0; n <= 10; n++ {
		t.Run(fmt.Sprintf("frames=%d", n), func(t *testing.T) {
			var body bytes.Buffer
			contentType, err := BuildForm(&body, makeFrames(n))
			if err != nil {
				t.Fatalf("BuildForm err: %v", err)
			}

			_, params, err := mime.ParseMediaType(contentType)
			if err != nil {
				t.Fatalf("ParseMediaType err: %v", err)
			}

			reader := multipart.NewReader(&body, params["boundary"])
			count := 0
			for {
				part, err := reader.NextPart()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					t.Fatalf("NextPart err: %v", err)
				}
				if part.FormName() != FormField {
					t.Fatalf("unexpected field name: %s", part.FormName())
				}
				if want := fmt.Sprintf("frame_%d.jpg", count); part.FileName() != want {
					t.Fatalf("unexpected file name: got %s want %s", part.FileName(), want)
				}
				data, _ := io.ReadAll(part)
				if string(data) != fmt.Sprintf("jpeg-%d", count) {
					t.Fatalf("unexpected part body: %q", data)
				}
				count++
			}

			if count != n {
				t.Fatalf("expected %d parts, got %d", n, count)
			}
		})
	}
}

type fakeBackend struct {
	status        int
	body          any
	receivedFiles int
	sawCookie     bool
}

func (f *fakeBackend) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/emotion/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"final_emotion": "sad"})
	})
	r.Post("/emotion/", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err == nil {
			f.receivedFiles = len(r.MultipartForm.File[FormField])
		}
		if c, err := r.Cookie("session"); err == nil && c.Value == "abc" {
			f.sawCookie = true
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		json.NewEncoder(w).Encode(f.body)
	})
	return r
}

func newTestService(t *testing.T, backend *fakeBackend) (*Service, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(backend.router())
	t.Cleanup(srv.Close)

	base, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	jar, err := cookie.Open(filepath.Join(t.TempDir(), "cookies.json"), base)
	if err != nil {
		t.Fatalf("cookie.Open err: %v", err)
	}

	svc := NewService(Config{BaseURL: base, HTTPClient: &http.Client{Jar: jar.HTTPJar()}})
	return svc, srv
}

func TestDetectReturnsFinalEmotion(t *testing.T) {
	backend := &fakeBackend{
		status: http.StatusOK,
		body:   map[string]any{"final_emotion": "happy", "detected_emotions": []string{"happy", "neutral"}},
	}
	svc, _ := newTestService(t, backend)

	got := svc.Detect(t.Context(), makeFrames(10))
	if got.Label != "happy" || got.Fallback {
		t.Fatalf("unexpected detection: %+v", got)
	}
	if len(got.Detected) != 2 {
		t.Fatalf("expected detected emotions, got %v", got.Detected)
	}
	if backend.receivedFiles != 10 {
		t.Fatalf("expected 10 uploaded files, got %d", backend.receivedFiles)
	}
}

func TestDetectMissingFinalEmotionDefaultsToNeutral(t *testing.T) {
	backend := &fakeBackend{status: http.StatusOK, body: map[string]any{"detected_emotions": []string{}}}
	svc, _ := newTestService(t, backend)

	got := svc.Detect(t.Context(), makeFrames(3))
	if got.Label != "neutral" {
		t.Fatalf("expected neutral, got %s", got.Label)
	}
	if !got.Fallback || !errors.Is(got.Err, ErrMissingLabel) {
		t.Fatalf("expected missing-label fallback, got %+v", got)
	}
}

func TestDetectServerErrorDefaultsToNeutral(t *testing.T) {
	backend := &fakeBackend{status: http.StatusInternalServerError, body: map[string]string{"detail": "boom"}}
	svc, _ := newTestService(t, backend)

	got := svc.Detect(t.Context(), makeFrames(2))
	if got.Label != "neutral" || !got.Fallback || got.Err == nil {
		t.Fatalf("expected neutral fallback with error, got %+v", got)
	}
}

func TestDetectErrorPayloadDefaultsToNeutral(t *testing.T) {
	backend := &fakeBackend{status: http.StatusOK, body: map[string]string{"error": "Invalid image format"}}
	svc, _ := newTestService(t, backend)

	if got := svc.Detect(t.Context(), makeFrames(2)); got.Label != "neutral" || !got.Fallback {
		t.Fatalf("expected neutral fallback, got %+v", got)
	}
}

func TestDetectUnreachableDefaultsToNeutral(t *testing.T) {
	svc, srv := newTestService(t, &fakeBackend{status: http.StatusOK})
	srv.Close()

	if got := svc.Detect(t.Context(), makeFrames(1)); got.Label != "neutral" || !got.Fallback {
		t.Fatalf("expected neutral fallback, got %+v", got)
	}
}

func TestDetectWithoutFramesSkipsUpload(t *testing.T) {
	backend := &fakeBackend{status: http.StatusOK, body: map[string]string{"final_emotion": "happy"}}
	svc, _ := newTestService(t, backend)

	got := svc.Detect(t.Context(), nil)
	if !errors.Is(got.Err, ErrNoFrames) || got.Label != "neutral" {
		t.Fatalf("expected no-frames fallback, got %+v", got)
	}
	if backend.receivedFiles != 0 {
		t.Fatal("expected no upload")
	}
}

func TestUploadCarriesBackendCookies(t *testing.T) {
	backend := &fakeBackend{status: http.StatusOK, body: map[string]string{"final_emotion": "happy"}}
	svc, _ := newTestService(t, backend)

	if got := svc.Latest(t.Context()); got.Label != "sad" {
		t.Fatalf("expected latest label sad, got %+v", got)
	}
	svc.Detect(t.Context(), makeFrames(1))

	if !backend.sawCookie {
		t.Fatal("expected upload to include the backend session cookie")
	}
}
