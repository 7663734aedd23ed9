package capture

import (
	"fmt"
	"time"
)

// Frame is one JPEG still taken from the camera feed. Frames live only for the
// duration of a burst and its upload.
type Frame struct {
	Index       int
	Data        []byte
	ContentType string
	CapturedAt  time.Time
}

// FileName returns the multipart file name used when the frame is uploaded.
func (f Frame) FileName() string {
	return fmt.Sprintf("frame_%d.jpg", f.Index)
}
