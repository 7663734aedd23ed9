package settings

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/emotion-dashboard/internal/service/theme"
	"github.com/zhouzirui/emotion-dashboard/pkg/utils"
)

// ThemeToggler flips the dashboard theme.
type ThemeToggler interface {
	Current() theme.Theme
	Toggle() (theme.Theme, error)
}

// TokenStore keeps the bearer token sent to the chat endpoint.
type TokenStore interface {
	Token() string
	SetToken(token string) error
}

// Handler serves theme and session token settings.
type Handler struct {
	themes ThemeToggler
	tokens TokenStore
	logger *slog.Logger
}

func New(themes ThemeToggler, tokens TokenStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{themes: themes, tokens: tokens, logger: logger.With("handler", "settings")}
}

// RegisterRoutes 注册主题和令牌路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/theme", h.handleTheme)
	r.Post("/theme/toggle", h.handleToggle)
	r.Put("/session/token", h.handleSetToken)
}

type themeResponse struct {
	Theme       theme.Theme `json:"theme"`
	ToggleLabel string      `json:"toggleLabel"`
}

func (h *Handler) handleTheme(w http.ResponseWriter, r *http.Request) {
	current := h.themes.Current()
	utils.RespondJSON(w, http.StatusOK, themeResponse{Theme: current, ToggleLabel: theme.Label(current)})
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	next, err := h.themes.Toggle()
	if err != nil {
		h.logger.Error("failed to toggle theme", "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to save theme")
		return
	}
	utils.RespondJSON(w, http.StatusOK, themeResponse{Theme: next, ToggleLabel: theme.Label(next)})
}

// handleSetToken 保存登录后拿到的令牌，登录流程不在本服务内
func (h *Handler) handleSetToken(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token string `json:"token"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	token := strings.TrimSpace(payload.Token)
	if token == "" {
		utils.RespondError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := h.tokens.SetToken(token); err != nil {
		h.logger.Error("failed to store token", "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to store token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
