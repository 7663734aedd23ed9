package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

var ErrDispatchFailed = errors.New("chat dispatch failed")

// StatusError reports a non-2xx answer from the chat endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat endpoint error (status %d): %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrDispatchFailed
}

// Reply is the chat endpoint's answer.
type Reply struct {
	Message     string   `json:"message"`
	ChatHistory []string `json:"chat_history,omitempty"`
}

type dispatchRequest struct {
	Message string `json:"message"`
	Emotion string `json:"emotion"`
}

// Dispatcher posts user messages to the remote chat endpoint.
type Dispatcher struct {
	endpoint string
	client   *http.Client
}

// NewDispatcher creates a dispatcher for {base}/chat/.
func NewDispatcher(base *url.URL, client *http.Client) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	if base == nil {
		base = &url.URL{Scheme: "http", Host: "localhost:8000"}
	}
	return &Dispatcher{
		endpoint: base.JoinPath("chat/").String(),
		client:   client,
	}
}

// Dispatch sends text with its emotion label and returns the reply.
func (d *Dispatcher) Dispatch(ctx context.Context, token, text, emotion string) (Reply, error) {
	payload, err := json.Marshal(dispatchRequest{Message: text, Emotion: emotion})
	if err != nil {
		return Reply{}, fmt.Errorf("%w: failed to marshal request: %w", ErrDispatchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Reply{}, fmt.Errorf("%w: failed to create request: %w", ErrDispatchFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := d.client.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: failed to send request: %w", ErrDispatchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: failed to read response: %w", ErrDispatchFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Reply{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var reply Reply
	if err := json.Unmarshal(body, &reply); err != nil {
		return Reply{}, fmt.Errorf("%w: failed to parse response: %w", ErrDispatchFailed, err)
	}
	return reply, nil
}
