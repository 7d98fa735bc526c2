// Package ws 通过 WebSocket 提供与 SSE 等价的聊天通道：每个入站帧触发一次运行，
// 运行的事件逐个以 JSON 帧返回。
package ws

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	chathandler "github.com/zhouzirui/boardroom/internal/handler/chat"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// controlFrame 为运行之外的通知：连接建立、请求被拒绝等。
type controlFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Status    int    `json:"status,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Handler WebSocket聊天处理器
type Handler struct {
	board    chathandler.Boardroom
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器；allowedOrigins 含 "*" 时接受任意来源。
func New(board chathandler.Boardroom, allowedOrigins []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	anyOrigin := len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")
	return &Handler{
		board:  board,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return anyOrigin || origin == "" || slices.Contains(allowedOrigins, origin)
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/ws", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	token := strings.TrimSpace(r.URL.Query().Get("session_id"))
	logger := h.logger.With(zap.String("remote", r.RemoteAddr))
	logger.Debug("websocket connected")

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	frames := make(chan chathandler.Request)
	go h.readLoop(ctx, cancel, conn, frames, logger)
	go pingLoop(ctx, conn)

	if err := h.write(conn, controlFrame{Type: "connected", SessionID: token}); err != nil {
		return
	}

	for frame := range frames {
		if frame.SessionID != "" {
			token = frame.SessionID
		}
		next, err := h.run(ctx, conn, token, frame.Message)
		if next != "" {
			token = next
		}
		if err != nil {
			logger.Info("websocket write failed, closing", zap.Error(err))
			cancel()
			return
		}
	}
}

// readLoop 读取入站帧；读失败（包括客户端关闭）时取消连接上下文并关闭 frames。
func (h *Handler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, frames chan<- chathandler.Request, logger *zap.Logger) {
	defer close(frames)
	defer cancel()
	for {
		var req chathandler.Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		select {
		case frames <- req:
		case <-ctx.Done():
			return
		}
	}
}

// run 执行一次运行并转发全部事件，返回本次运行使用的会话 id。
// 只有写连接失败才返回错误，业务错误以 rejected 帧告知客户端。
func (h *Handler) run(ctx context.Context, conn *websocket.Conn, token, message string) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session, events, err := h.board.Chat(ctx, token, message)
	if err != nil {
		status, msg := chathandler.StatusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("websocket chat failed", zap.String("session", token), zap.Error(err))
		}
		return session.ID, h.write(conn, controlFrame{Type: "rejected", SessionID: session.ID, Status: status, Content: msg})
	}

	var writeErr error
	for ev := range events {
		if writeErr != nil {
			continue
		}
		if writeErr = h.write(conn, ev); writeErr != nil {
			cancel()
		}
	}
	return session.ID, writeErr
}

func (h *Handler) write(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
