package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/emotion-dashboard/internal/handler/chat"
	"github.com/zhouzirui/emotion-dashboard/internal/handler/settings"
	"github.com/zhouzirui/emotion-dashboard/internal/handler/stream"
	"github.com/zhouzirui/emotion-dashboard/internal/handler/webcam"
	middlewarePkg "github.com/zhouzirui/emotion-dashboard/internal/middleware"
	"github.com/zhouzirui/emotion-dashboard/internal/service/capture"
	chatService "github.com/zhouzirui/emotion-dashboard/internal/service/chat"
	"github.com/zhouzirui/emotion-dashboard/internal/service/conversation"
	emotionservice "github.com/zhouzirui/emotion-dashboard/internal/service/emotion"
	"github.com/zhouzirui/emotion-dashboard/internal/service/events"
	"github.com/zhouzirui/emotion-dashboard/internal/service/theme"
	"github.com/zhouzirui/emotion-dashboard/internal/storage/local"
	"github.com/zhouzirui/emotion-dashboard/pkg/utils"
)

// Services groups what the dashboard API exposes.
type Services struct {
	Workflow     *chatService.Service
	Conversation *conversation.Store
	Capturer     *capture.Capturer
	Emotion      *emotionservice.Service
	Theme        *theme.Service
	Settings     *local.Settings
	Hub          *events.Hub
	Origin       *url.URL
	Logger       *slog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(svc.Origin))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	chatHandler := chat.New(svc.Workflow, svc.Conversation, svc.Logger)
	settingsHandler := settings.New(svc.Theme, svc.Settings, svc.Logger)
	webcamHandler := webcam.New(svc.Capturer, svc.Emotion, svc.Settings)
	streamHandler := stream.New(svc.Hub, svc.Workflow, svc.Logger)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		settingsHandler.RegisterRoutes(api)
		webcamHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
	})

	return r
}
