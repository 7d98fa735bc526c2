package chat

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/zhouzirui/boardroom/internal/model/chat"
)

//go:embed schema.sql
var schema string

// schemaVersion 记录在 PRAGMA user_version 中。
const schemaVersion = 1

// SQLiteStore 基于 SQLite（WAL 模式）的持久化存储。
// 只用一条连接。
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path and creates the schema if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating session directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening session database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}
	return nil
}

// CreateSession inserts a new session row.
func (s *SQLiteStore) CreateSession(ctx context.Context, id string) (chat.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	session := chat.Session{ID: id, Context: map[string]string{}, CreatedAt: now, LastActiveAt: now}

	ctxJSON, progJSON, err := encodeSession(session)
	if err != nil {
		return chat.Session{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, context, onboarding, created_at, last_active_at)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id, ctxJSON, progJSON, formatTime(now), formatTime(now))
	if err != nil {
		return chat.Session{}, fmt.Errorf("inserting session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chat.Session{}, ErrSessionExists
	}
	return session, nil
}

// GetSession loads one session.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (chat.Session, error) {
	var (
		session             chat.Session
		ctxJSON, progJSON   string
		createdAt, activeAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, context, onboarding, created_at, last_active_at FROM sessions WHERE id = ?`, id).
		Scan(&session.ID, &ctxJSON, &progJSON, &createdAt, &activeAt)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return chat.Session{}, fmt.Errorf("querying session: %w", err)
	}
	if err := json.Unmarshal([]byte(ctxJSON), &session.Context); err != nil {
		return chat.Session{}, fmt.Errorf("decoding session context: %w", err)
	}
	if session.Context == nil {
		session.Context = map[string]string{}
	}
	if err := json.Unmarshal([]byte(progJSON), &session.Onboarding); err != nil {
		return chat.Session{}, fmt.Errorf("decoding onboarding progress: %w", err)
	}
	session.CreatedAt = parseTime(createdAt)
	session.LastActiveAt = parseTime(activeAt)
	return session, nil
}

// SaveSession overwrites context and progress.
func (s *SQLiteStore) SaveSession(ctx context.Context, session chat.Session) error {
	ctxJSON, progJSON, err := encodeSession(session)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET context = ?, onboarding = ?, last_active_at = ? WHERE id = ?`,
		ctxJSON, progJSON, formatTime(time.Now().UTC()), session.ID)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// SaveMessage appends one message.
func (s *SQLiteStore) SaveMessage(ctx context.Context, message chat.Message) error {
	if message.SessionID == "" {
		return ErrSessionNotFound
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, agent, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		message.ID, message.SessionID, message.Role, message.Agent, message.Content, formatTime(message.CreatedAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// LoadTranscript returns the newest limit messages, oldest first.
func (s *SQLiteStore) LoadTranscript(ctx context.Context, sessionID string, limit int) ([]chat.Message, error) {
	if err := s.ensureSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, agent, content, created_at FROM (
			SELECT seq, id, session_id, role, agent, content, created_at FROM messages
			WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var (
			m         chat.Message
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Agent, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddMemory records a memory note.
func (s *SQLiteStore) AddMemory(ctx context.Context, memory chat.Memory) error {
	if memory.ID == "" {
		memory.ID = uuid.NewString()
	}
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = time.Now().UTC()
	}
	agents, err := json.Marshal(append([]string{}, memory.Agents...))
	if err != nil {
		return fmt.Errorf("encoding memory agents: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (id, session_id, content, agents, created_at) VALUES (?, ?, ?, ?, ?)`,
		memory.ID, memory.SessionID, memory.Content, string(agents), formatTime(memory.CreatedAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("inserting memory: %w", err)
	}
	return nil
}

// RecentMemories returns the newest limit memories, oldest first.
func (s *SQLiteStore) RecentMemories(ctx context.Context, sessionID string, limit int) ([]chat.Memory, error) {
	if err := s.ensureSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, content, agents, created_at FROM (
			SELECT seq, id, session_id, content, agents, created_at FROM memories
			WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}
	defer rows.Close()

	var out []chat.Memory
	for rows.Next() {
		var (
			m                 chat.Memory
			agents, createdAt string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Content, &agents, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		if err := json.Unmarshal([]byte(agents), &m.Agents); err != nil {
			return nil, fmt.Errorf("decoding memory agents: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMemories counts a session's memories.
func (s *SQLiteStore) CountMemories(ctx context.Context, sessionID string) (int, error) {
	if err := s.ensureSession(ctx, sessionID); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE session_id = ?`, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting memories: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ensureSession(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("checking session: %w", err)
	}
	return nil
}

func encodeSession(session chat.Session) (string, string, error) {
	ctxMap := session.Context
	if ctxMap == nil {
		ctxMap = map[string]string{}
	}
	ctxJSON, err := json.Marshal(ctxMap)
	if err != nil {
		return "", "", fmt.Errorf("encoding session context: %w", err)
	}
	progJSON, err := json.Marshal(session.Onboarding)
	if err != nil {
		return "", "", fmt.Errorf("encoding onboarding progress: %w", err)
	}
	return string(ctxJSON), string(progJSON), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isForeignKeyViolation(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
