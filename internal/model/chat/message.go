package chat

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message persists individual turns for history and audit.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Agent     string    `json:"agent,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Memory is a short note recorded after a successful run and recalled into
// later prompts.
type Memory struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Content   string    `json:"content"`
	Agents    []string  `json:"agents,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
