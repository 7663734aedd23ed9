package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/google/uuid"

	analysis "github.com/zhouzirui/emotion-dashboard/internal/analysis/emotion"
	"github.com/zhouzirui/emotion-dashboard/internal/model/capture"
)

// FormField is the repeated multipart field carrying the frames.
const FormField = "files"

var (
	ErrNoFrames     = errors.New("no frames to upload")
	ErrMissingLabel = errors.New("response has no final_emotion")
)

// Config 控制情绪推理客户端的行为。
type Config struct {
	BaseURL *url.URL
	// HTTPClient should carry the dashboard cookie jar so uploads include credentials.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Detection is the outcome of an upload. Label is always usable; Fallback reports
// that it is the default substituted for a failed or empty response.
type Detection struct {
	Label    string
	Detected []string
	Fallback bool
	Err      error
}

// Service talks to the remote emotion inference endpoint.
type Service struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewService 创建情绪推理客户端。
func NewService(cfg Config) *Service {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := cfg.BaseURL
	if base == nil {
		base = &url.URL{Scheme: "http", Host: "localhost:8000"}
	}

	return &Service{
		endpoint: base.JoinPath("emotion/").String(),
		client:   client,
		logger:   logger.With("component", "emotion"),
	}
}

// BuildForm writes one part per frame, in order, named by Frame.FileName, and
// returns the multipart content type.
func BuildForm(w io.Writer, frames []capture.Frame) (string, error) {
	writer := multipart.NewWriter(w)

	for i, frame := range frames {
		contentType := frame.ContentType
		if contentType == "" {
			contentType = "image/jpeg"
		}

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FormField, frame.FileName()))
		header.Set("Content-Type", contentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return "", fmt.Errorf("failed to create part for frame %d: %w", i, err)
		}
		if _, err := part.Write(frame.Data); err != nil {
			return "", fmt.Errorf("failed to write frame %d: %w", i, err)
		}
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart form: %w", err)
	}
	return writer.FormDataContentType(), nil
}

type detectResponse struct {
	FinalEmotion     string          `json:"final_emotion"`
	DetectedEmotions json.RawMessage `json:"detected_emotions,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// Detect uploads a burst and returns the final label. It never fails: any error
// is logged and reported through Detection.Fallback with the default label.
func (s *Service) Detect(ctx context.Context, frames []capture.Frame) Detection {
	if len(frames) == 0 {
		return s.fallback(ErrNoFrames)
	}

	var body bytes.Buffer
	contentType, err := BuildForm(&body, frames)
	if err != nil {
		return s.fallback(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, &body)
	if err != nil {
		return s.fallback(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)

	payload, err := s.do(req)
	if err != nil {
		return s.fallback(err)
	}

	detection := s.toDetection(payload)
	s.logger.Debug("frames classified", "frames", len(frames), "label", detection.Label, "detected", detection.Detected)
	return detection
}

// Latest reads the label the backend last computed.
func (s *Service) Latest(ctx context.Context) Detection {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return s.fallback(fmt.Errorf("failed to create request: %w", err))
	}

	payload, err := s.do(req)
	if err != nil {
		return s.fallback(err)
	}
	return s.toDetection(payload)
}

func (s *Service) do(req *http.Request) (*detectResponse, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach emotion endpoint: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read emotion response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("emotion endpoint error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	payload := &detectResponse{}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("failed to parse emotion response: %w", err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("emotion endpoint rejected frames: %s", payload.Error)
	}
	return payload, nil
}

func (s *Service) toDetection(payload *detectResponse) Detection {
	detected := parseDetected(payload.DetectedEmotions)

	label, known := analysis.ParseLabel(payload.FinalEmotion)
	if strings.TrimSpace(payload.FinalEmotion) == "" {
		d := s.fallback(ErrMissingLabel)
		d.Detected = detected
		return d
	}
	if !known {
		s.logger.Debug("unrecognized label passed through", "label", label)
	}

	return Detection{Label: string(label), Detected: detected}
}

func (s *Service) fallback(err error) Detection {
	s.logger.Warn("using default emotion", "label", analysis.Default, "err", err)
	return Detection{Label: string(analysis.Default), Fallback: true, Err: err}
}

func parseDetected(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var labels []string
	if err := json.Unmarshal(raw, &labels); err != nil {
		return nil
	}
	return labels
}
