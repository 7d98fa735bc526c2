package chat

import (
	"context"
	"errors"

	"github.com/zhouzirui/boardroom/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionBusy     = errors.New("session already has a run in flight")
	ErrInvalidToken    = errors.New("invalid session token")
)

// Store 持久化会话、消息与记忆。每个会话只有一个写入方，由 Service 的运行锁保证。
type Store interface {
	// CreateSession 以给定 id 创建会话，id 为空时由存储生成。
	CreateSession(ctx context.Context, id string) (chat.Session, error)
	GetSession(ctx context.Context, id string) (chat.Session, error)
	// SaveSession 覆盖会话的上下文与 onboarding 进度。
	SaveSession(ctx context.Context, session chat.Session) error

	SaveMessage(ctx context.Context, message chat.Message) error
	// LoadTranscript 返回最近 limit 条消息，按时间先后排列；limit<=0 表示全部。
	LoadTranscript(ctx context.Context, sessionID string, limit int) ([]chat.Message, error)

	AddMemory(ctx context.Context, memory chat.Memory) error
	// RecentMemories 返回最近 limit 条记忆，按时间先后排列。
	RecentMemories(ctx context.Context, sessionID string, limit int) ([]chat.Memory, error)
	CountMemories(ctx context.Context, sessionID string) (int, error)

	Close() error
}
