// Package session 暴露会话签发、查询与 onboarding 脚本的 HTTP 接口。
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/boardroom/internal/model/chat"
	"github.com/zhouzirui/boardroom/internal/model/onboarding"
	chatservice "github.com/zhouzirui/boardroom/internal/service/chat"
	"github.com/zhouzirui/boardroom/pkg/utils"
)

// Sessions is the part of the boardroom service this handler needs.
type Sessions interface {
	NewSession(ctx context.Context) (chat.Session, onboarding.Question, error)
	Session(ctx context.Context, token string) (chat.Session, error)
	Questions() []onboarding.Question
}

// Handler 会话相关的HTTP处理器
type Handler struct {
	sessions Sessions
	logger   *zap.Logger
}

// New 创建会话处理器
func New(sessions Sessions, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sessions: sessions, logger: logger}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/session", h.handleGetSession)
	r.Get("/onboarding/questions", h.handleQuestions)
}

type sessionView struct {
	SessionID          string              `json:"session_id"`
	Context            map[string]string   `json:"context"`
	Onboarding         onboarding.Progress `json:"onboarding"`
	OnboardingComplete bool                `json:"onboarding_complete"`
	CreatedAt          time.Time           `json:"created_at"`
	LastActiveAt       time.Time           `json:"last_active_at"`
}

func viewOf(s chat.Session) sessionView {
	return sessionView{
		SessionID:          s.ID,
		Context:            s.Context,
		Onboarding:         s.Onboarding,
		OnboardingComplete: s.OnboardingComplete(),
		CreatedAt:          s.CreatedAt,
		LastActiveAt:       s.LastActiveAt,
	}
}

// handleCreateSession 签发新会话，并带上第一个 onboarding 问题。
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, question, err := h.sessions.NewSession(r.Context())
	if err != nil {
		h.logger.Error("create session failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "could not create session")
		return
	}

	w.Header().Set(utils.SessionHeader, session.ID)
	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"session":  viewOf(session),
		"question": question,
	})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.Header.Get(utils.SessionHeader))
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("session_id"))
	}
	if token == "" {
		utils.RespondError(w, http.StatusBadRequest, utils.SessionHeader+" header is required")
		return
	}

	session, err := h.sessions.Session(r.Context(), token)
	switch {
	case errors.Is(err, chatservice.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	case err != nil:
		h.logger.Error("load session failed", zap.String("session", token), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "could not load session")
		return
	}

	utils.RespondJSON(w, http.StatusOK, viewOf(session))
}

func (h *Handler) handleQuestions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"questions": h.sessions.Questions(),
	})
}
