package repository

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
	"gorm.io/gorm"
)

// chatMemory implements interfaces.ChatMemory against the chat_sessions/
// chat_messages tables.
type chatMemory struct {
	db *gorm.DB
}

var _ interfaces.ChatMemory = (*chatMemory)(nil)

// NewChatMemory builds a ChatMemory backed by db.
func NewChatMemory(db *gorm.DB) interfaces.ChatMemory {
	return &chatMemory{db: db}
}

// CreateSession opens a new ChatSession for tenantID.
func (m *chatMemory) CreateSession(ctx context.Context, tenantID uint64) (string, error) {
	session := types.ChatSession{ID: uuid.NewString(), TenantID: tenantID}
	if err := m.db.WithContext(ctx).Create(&session).Error; err != nil {
		return "", err
	}
	return session.ID, nil
}

// Append writes one message atomically; each call is a single insert, so
// append order matches call order (the database clock is the ordering
// source of truth).
func (m *chatMemory) Append(ctx context.Context, sessionID, requestID string, role types.MessageRole, content string) error {
	msg := types.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		RequestID: requestID,
		Role:      role,
		Content:   content,
	}
	return m.db.WithContext(ctx).Create(&msg).Error
}

// Recent returns the most recent n messages in chronological order: fetch
// descending, then reverse.
func (m *chatMemory) Recent(ctx context.Context, sessionID string, n int) ([]types.ChatMessage, error) {
	var messages []types.ChatMessage
	if err := m.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(n).
		Find(&messages).Error; err != nil {
		return nil, err
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].CreatedAt.Before(messages[j].CreatedAt) })
	return messages, nil
}

// All returns the full transcript in chronological order.
func (m *chatMemory) All(ctx context.Context, sessionID string) ([]types.ChatMessage, error) {
	var messages []types.ChatMessage
	err := m.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

// Delete removes the session and its messages in one transaction, so a
// purge-on-close never leaves orphaned message rows behind.
func (m *chatMemory) Delete(ctx context.Context, sessionID string) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&types.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Delete(&types.ChatSession{}, "id = ?", sessionID).Error
	})
}
