package webcam

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	emotionservice "github.com/zhouzirui/emotion-dashboard/internal/service/emotion"
	"github.com/zhouzirui/emotion-dashboard/pkg/utils"
)

// Camera is the capturer's on/off switch.
type Camera interface {
	Active() bool
	SetActive(active bool)
	Capturing() bool
}

// LatestEmotion reads the backend's most recent label.
type LatestEmotion interface {
	Latest(ctx context.Context) emotionservice.Detection
}

// LocalEmotion is the label recorded after the last typing burst.
type LocalEmotion interface {
	Emotion() string
}

// Handler 摄像头与情绪状态处理器
type Handler struct {
	camera Camera
	latest LatestEmotion
	local  LocalEmotion
}

func New(camera Camera, latest LatestEmotion, local LocalEmotion) *Handler {
	return &Handler{camera: camera, latest: latest, local: local}
}

// RegisterRoutes 注册摄像头和情绪路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/webcam", func(r chi.Router) {
		r.Get("/", h.handleStatus)
		r.Post("/start", h.handleSwitch(true))
		r.Post("/stop", h.handleSwitch(false))
	})
	r.Get("/emotion", h.handleEmotion)
}

type webcamResponse struct {
	Active    bool `json:"active"`
	Capturing bool `json:"capturing"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, webcamResponse{Active: h.camera.Active(), Capturing: h.camera.Capturing()})
}

func (h *Handler) handleSwitch(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.camera.SetActive(active)
		h.handleStatus(w, r)
	}
}

type emotionResponse struct {
	Emotion  string `json:"emotion"`
	Fallback bool   `json:"fallback"`
	Local    string `json:"local,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleEmotion 返回后端最近一次计算的情绪，失败时回落到默认值
func (h *Handler) handleEmotion(w http.ResponseWriter, r *http.Request) {
	detection := h.latest.Latest(r.Context())

	resp := emotionResponse{Emotion: detection.Label, Fallback: detection.Fallback}
	if detection.Err != nil {
		resp.Error = detection.Err.Error()
	}
	if h.local != nil {
		resp.Local = h.local.Emotion()
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}
