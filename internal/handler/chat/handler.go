// Package chat 把一次董事会运行以 Server-Sent Events 推送给客户端。
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/boardroom/internal/model/chat"
	"github.com/zhouzirui/boardroom/internal/model/event"
	"github.com/zhouzirui/boardroom/internal/service/boardroom"
	chatservice "github.com/zhouzirui/boardroom/internal/service/chat"
	"github.com/zhouzirui/boardroom/pkg/utils"
)

// Boardroom runs one chat turn and streams its events.
type Boardroom interface {
	Chat(ctx context.Context, token, message string) (chat.Session, <-chan event.Event, error)
}

// Request is the body accepted by POST /chat and by websocket frames.
type Request struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	board  Boardroom
	logger *zap.Logger
}

// New 创建聊天处理器
func New(board Boardroom, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{board: board, logger: logger}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

// StatusFor maps a Chat error to the HTTP status and client-facing message.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, boardroom.ErrEmptyMessage):
		return http.StatusBadRequest, "message is required"
	case errors.Is(err, chatservice.ErrInvalidToken):
		return http.StatusBadRequest, "invalid session id"
	case errors.Is(err, chatservice.ErrSessionBusy):
		return http.StatusConflict, "a request for this session is already in progress"
	default:
		return http.StatusInternalServerError, "chat unavailable"
	}
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload Request
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token := strings.TrimSpace(payload.SessionID)
	if token == "" {
		token = strings.TrimSpace(r.Header.Get(utils.SessionHeader))
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// 客户端断开或写失败时取消运行。
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session, events, err := h.board.Chat(ctx, token, payload.Message)
	if session.ID != "" {
		w.Header().Set(utils.SessionHeader, session.ID)
	}
	if err != nil {
		status, msg := StatusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("chat request failed", zap.String("session", token), zap.Error(err))
		}
		utils.RespondError(w, status, msg)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := h.logger.With(zap.String("session", session.ID))
	for ev := range events {
		if ctx.Err() != nil {
			continue
		}
		if err := utils.SendSSEChunk(w, flusher, ev); err != nil {
			logger.Info("client went away, canceling run", zap.Error(err))
			cancel()
		}
	}
}
