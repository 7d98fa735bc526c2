package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/boardroom/internal/model/chat"
)

// MemoryStore 为进程内存储，适合开发与测试。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	messages map[string][]chat.Message
	memories map[string][]chat.Memory
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]chat.Session),
		messages: make(map[string][]chat.Message),
		memories: make(map[string][]chat.Memory),
	}
}

// CreateSession provisions a session under id, or a fresh uuid when id is empty.
func (s *MemoryStore) CreateSession(_ context.Context, id string) (chat.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	session := chat.Session{
		ID:           id,
		Context:      map[string]string{},
		CreatedAt:    now,
		LastActiveAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		return chat.Session{}, ErrSessionExists
	}
	s.sessions[id] = session
	s.messages[id] = make([]chat.Message, 0, 16)
	return session.Clone(), nil
}

// GetSession retrieves a session by identifier.
func (s *MemoryStore) GetSession(_ context.Context, id string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// SaveSession replaces the stored session state.
func (s *MemoryStore) SaveSession(_ context.Context, session chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return ErrSessionNotFound
	}
	session.LastActiveAt = time.Now().UTC()
	s.sessions[session.ID] = session.Clone()
	return nil
}

// SaveMessage appends a message to the session history.
func (s *MemoryStore) SaveMessage(_ context.Context, message chat.Message) error {
	if message.SessionID == "" {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[message.SessionID]; !ok {
		return ErrSessionNotFound
	}

	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	s.messages[message.SessionID] = append(s.messages[message.SessionID], message)
	return nil
}

// LoadTranscript returns stored messages for the provided session.
func (s *MemoryStore) LoadTranscript(_ context.Context, sessionID string, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return tail(messages, limit), nil
}

// AddMemory records a memory note.
func (s *MemoryStore) AddMemory(_ context.Context, memory chat.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[memory.SessionID]; !ok {
		return ErrSessionNotFound
	}
	if memory.ID == "" {
		memory.ID = uuid.NewString()
	}
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = time.Now().UTC()
	}
	memory.Agents = append([]string(nil), memory.Agents...)
	s.memories[memory.SessionID] = append(s.memories[memory.SessionID], memory)
	return nil
}

// RecentMemories returns the newest memories, oldest first.
func (s *MemoryStore) RecentMemories(_ context.Context, sessionID string, limit int) ([]chat.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ErrSessionNotFound
	}
	return tail(s.memories[sessionID], limit), nil
}

// CountMemories returns how many memories the session holds.
func (s *MemoryStore) CountMemories(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return 0, ErrSessionNotFound
	}
	return len(s.memories[sessionID]), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func tail[T any](items []T, limit int) []T {
	start := 0
	if limit > 0 && len(items) > limit {
		start = len(items) - limit
	}
	copied := make([]T, len(items)-start)
	copy(copied, items[start:])
	return copied
}
