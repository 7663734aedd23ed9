package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/emotion-dashboard/internal/model/chat"
	chatService "github.com/zhouzirui/emotion-dashboard/internal/service/chat"
	"github.com/zhouzirui/emotion-dashboard/pkg/utils"
)

// Workflow is the send workflow behind the message box.
type Workflow interface {
	Send(ctx context.Context, text string) (chatService.Exchange, error)
	Typing() bool
	State() chatService.State
	InputEnabled() bool
}

// Conversation is the persisted message log.
type Conversation interface {
	Entries() []chat.Entry
	Clear() error
}

// Handler 聊天界面的HTTP处理器
type Handler struct {
	workflow     Workflow
	conversation Conversation
	logger       *slog.Logger
}

// New 创建聊天处理器
func New(workflow Workflow, conversation Conversation, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		workflow:     workflow,
		conversation: conversation,
		logger:       logger.With("handler", "chat"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/conversation", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Delete("/", h.handleClear)
		r.Post("/messages", h.handleSend)
	})
	r.Post("/typing", h.handleTyping)
	r.Get("/state", h.handleState)
}

type conversationResponse struct {
	Entries []chat.Entry `json:"entries"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, conversationResponse{Entries: h.conversation.Entries()})
}

// handleClear 清空聊天记录
func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.conversation.Clear(); err != nil {
		h.logger.Error("failed to clear conversation", "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to clear chat history")
		return
	}
	utils.RespondJSON(w, http.StatusOK, conversationResponse{Entries: []chat.Entry{}})
}

type sendResponse struct {
	chatService.Exchange
	Error string `json:"error,omitempty"`
}

// handleSend 发送消息并等待整个流程结束
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	exchange, err := h.workflow.Send(r.Context(), payload.Message)
	if err == nil {
		utils.RespondJSON(w, http.StatusOK, sendResponse{Exchange: exchange})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chatService.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, chatService.ErrSendInProgress):
		utils.RespondError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, chatService.ErrCaptureFailed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, chatService.ErrDispatchFailed):
		status = http.StatusBadGateway
	}

	if exchange.Entries == nil {
		exchange.Entries = h.conversation.Entries()
	}
	utils.RespondJSON(w, status, sendResponse{Exchange: exchange, Error: err.Error()})
}

// handleTyping 输入时触发一次表情采集
func (h *Handler) handleTyping(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusAccepted, map[string]bool{"triggered": h.workflow.Typing()})
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"state":        h.workflow.State(),
		"inputEnabled": h.workflow.InputEnabled(),
	})
}
