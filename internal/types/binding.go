package types

import "time"

// ConversationBinding links an external channel conversation to the
// internal RAG session and pause state. Persisted as bot_sessions; the
// struct name follows the domain vocabulary while the table name follows
// the persisted layout.
type ConversationBinding struct {
	ID            uint64    `gorm:"primaryKey" json:"id"`
	TenantID      uint64    `gorm:"index:idx_binding_tenant_ext,priority:1;not null" json:"tenant_id"`
	ExternalID    string    `gorm:"column:external_session_id;size:255;index:idx_binding_tenant_ext,priority:2,unique;not null" json:"external_id"`
	ChatSessionID *string   `gorm:"column:rag_session_id;size:64" json:"chat_session_id,omitempty"`
	Paused        bool      `gorm:"column:paused_flag;not null;default:false" json:"paused"`
	UsageCount    int       `gorm:"not null;default:0" json:"usage_count"`
	QuotaLimit    int       `gorm:"not null;default:1000" json:"quota_limit"`
	LastMessageID string    `gorm:"size:128" json:"last_message_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
	CreatedAt     time.Time `json:"created_at"`
}

func (ConversationBinding) TableName() string { return "bot_sessions" }
