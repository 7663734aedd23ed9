package stream

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/emotion-dashboard/internal/service/events"
	"github.com/zhouzirui/emotion-dashboard/pkg/utils"
)

// Subscriber hands out event subscriptions.
type Subscriber interface {
	Subscribe() (<-chan events.Event, func())
}

// Typist receives typing notifications sent over the WebSocket.
type Typist interface {
	Typing() bool
}

// Handler pushes dashboard events to the page via Server-Sent Events and WebSocket.
type Handler struct {
	hub       Subscriber
	typist    Typist
	heartbeat time.Duration
	logger    *slog.Logger
	ws        *wsConfig
}

// New creates a stream handler. typist may be nil.
func New(hub Subscriber, typist Typist, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:       hub,
		typist:    typist,
		heartbeat: 15 * time.Second,
		logger:    logger.With("handler", "stream"),
		ws:        defaultWSConfig(),
	}
}

// RegisterRoutes 注册事件推送路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleSSE)
	r.Get("/ws", h.handleWebSocket)
}

// handleSSE streams every hub event until the client goes away.
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, cancel := h.hub.Subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEComment(w, flusher, "stream established"); err != nil {
		return
	}

	ctx := r.Context()
	h.logger.Debug("sse client connected", "remote", r.RemoteAddr)
	defer h.logger.Debug("sse client disconnected", "remote", r.RemoteAddr)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(evt.Type), evt); err != nil {
				h.logger.Debug("sse write failed", "err", err)
				return
			}
		case t := <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat "+t.UTC().Format(time.RFC3339)); err != nil {
				return
			}
		}
	}
}
