// Package chat 管理会话状态：存储、会话令牌解析与单会话运行锁。
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zhouzirui/boardroom/internal/model/chat"
)

const maxTokenLength = 128

// Service 在 Store 之上提供会话解析与每会话一个在途运行的约束。
type Service struct {
	store Store

	mu      sync.Mutex
	running map[string]struct{}
}

// NewService wraps store.
func NewService(store Store) *Service {
	return &Service{store: store, running: make(map[string]struct{})}
}

// Store exposes the underlying store.
func (s *Service) Store() Store { return s.store }

// CreateSession issues a new server-side session.
func (s *Service) CreateSession(ctx context.Context) (chat.Session, error) {
	return s.store.CreateSession(ctx, "")
}

// GetSession retrieves a session by token.
func (s *Service) GetSession(ctx context.Context, token string) (chat.Session, error) {
	return s.store.GetSession(ctx, strings.TrimSpace(token))
}

// GetOrCreate 解析客户端提供的令牌；令牌为空时签发新会话，未知令牌以该令牌创建会话。
func (s *Service) GetOrCreate(ctx context.Context, token string) (chat.Session, bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		session, err := s.store.CreateSession(ctx, "")
		return session, err == nil, err
	}
	if len(token) > maxTokenLength || strings.ContainsAny(token, " \t\r\n") {
		return chat.Session{}, false, ErrInvalidToken
	}

	session, err := s.store.GetSession(ctx, token)
	if err == nil {
		return session, false, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return chat.Session{}, false, err
	}

	session, err = s.store.CreateSession(ctx, token)
	if errors.Is(err, ErrSessionExists) {
		// 并发创建时另一方已经写入。
		session, err = s.store.GetSession(ctx, token)
		return session, false, err
	}
	return session, err == nil, err
}

// Acquire 占用会话的运行权；同一会话已有运行时返回 ErrSessionBusy。
func (s *Service) Acquire(sessionID string) (release func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[sessionID]; busy {
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, sessionID)
	}
	s.running[sessionID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.running, sessionID)
			s.mu.Unlock()
		})
	}, nil
}

// Close closes the store.
func (s *Service) Close() error { return s.store.Close() }
