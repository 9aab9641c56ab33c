package types

import "time"

// ChatSession is the RAG-side memory of one conversation.
type ChatSession struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	TenantID  uint64    `gorm:"index;not null" json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (ChatSession) TableName() string { return "chat_sessions" }

// MessageRole distinguishes the two ChatMessage authors.
type MessageRole string

const (
	RoleUser MessageRole = "user"
	RoleAI   MessageRole = "ai"
)

// ChatMessage is one append-only turn of a ChatSession, ordered by
// CreatedAt. RequestID ties a user turn to its answer turn so the RAG
// engine can reconstruct (query, answer) pairs from ChatMemory.Recent.
type ChatMessage struct {
	ID        string      `gorm:"primaryKey;size:64" json:"id"`
	SessionID string      `gorm:"index:idx_messages_session;not null" json:"session_id"`
	RequestID string      `gorm:"size:64;index" json:"request_id"`
	Role      MessageRole `gorm:"size:8;not null" json:"role"`
	Content   string      `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time   `gorm:"index" json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

// History is one reconstructed (query, answer) conversational round.
type History struct {
	Query    string
	Answer   string
	CreateAt time.Time
}
