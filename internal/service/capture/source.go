package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/emotion-dashboard/internal/model/capture"
)

// ErrVideoNotReady is returned by a source that has nothing to show yet.
var ErrVideoNotReady = errors.New("video not ready")

// Source is a live camera feed that can hand out still images.
type Source interface {
	Snapshot(ctx context.Context) (capture.Frame, error)
}

// ParseSource builds a Source from a "kind:target" spec, e.g. "dir:./frames" or
// "ffmpeg:/dev/video0".
func ParseSource(spec, inputFormat string) (Source, error) {
	kind, target, ok := strings.Cut(strings.TrimSpace(spec), ":")
	if !ok || target == "" {
		return nil, fmt.Errorf("invalid camera source %q: expected kind:target", spec)
	}

	switch kind {
	case "dir":
		return NewDirSource(target), nil
	case "ffmpeg":
		return &FFmpegSource{Device: target, InputFormat: inputFormat}, nil
	default:
		return nil, fmt.Errorf("invalid camera source %q: unknown kind %q", spec, kind)
	}
}

// DirSource replays the JPEG files of a directory in name order, looping forever.
type DirSource struct {
	dir string

	mu    sync.Mutex
	files []string
	next  int
}

// NewDirSource creates a source over dir. The directory is scanned lazily, so
// frames dropped in after startup are picked up.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Snapshot returns the next frame in the directory.
func (s *DirSource) Snapshot(ctx context.Context) (capture.Frame, error) {
	if err := ctx.Err(); err != nil {
		return capture.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.files) == 0 {
		files, err := scanJPEGs(s.dir)
		if err != nil {
			return capture.Frame{}, err
		}
		if len(files) == 0 {
			return capture.Frame{}, fmt.Errorf("%w: no frames in %s", ErrVideoNotReady, s.dir)
		}
		s.files = files
		s.next = 0
	}

	path := s.files[s.next%len(s.files)]
	s.next++

	data, err := os.ReadFile(path)
	if err != nil {
		// 文件被移走时下次重新扫描目录。
		s.files = nil
		return capture.Frame{}, fmt.Errorf("failed to read frame %s: %w", path, err)
	}

	return capture.Frame{Data: data, ContentType: "image/jpeg", CapturedAt: time.Now()}, nil
}

func scanJPEGs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVideoNotReady, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".jpg" || ext == ".jpeg" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// FFmpegSource grabs single MJPEG stills from a capture device or stream URL.
type FFmpegSource struct {
	Device string
	// InputFormat is passed as -f (e.g. v4l2, avfoundation); empty lets ffmpeg probe.
	InputFormat string
	Binary      string
}

// Snapshot runs ffmpeg once and returns the frame it wrote to stdout.
func (s *FFmpegSource) Snapshot(ctx context.Context) (capture.Frame, error) {
	binary := s.Binary
	if binary == "" {
		binary = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, binary, s.args()...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return capture.Frame{}, fmt.Errorf("ffmpeg failed: %v\nOutput: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return capture.Frame{}, fmt.Errorf("%w: ffmpeg produced no image", ErrVideoNotReady)
	}

	return capture.Frame{Data: stdout.Bytes(), ContentType: "image/jpeg", CapturedAt: time.Now()}, nil
}

func (s *FFmpegSource) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if s.InputFormat != "" {
		args = append(args, "-f", s.InputFormat)
	}
	return append(args,
		"-i", s.Device,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)
}
