package repository

import (
	"context"
	"errors"

	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
	"gorm.io/gorm"
)

// sessionStore implements interfaces.SessionStore against the bot_sessions
// table. Idempotent creation is achieved by the unique (tenant_id,
// external_session_id) index declared on types.ConversationBinding: a
// racing INSERT that violates it falls back to re-reading the row the
// other writer created.
type sessionStore struct {
	db         *gorm.DB
	quotaLimit int
}

var _ interfaces.SessionStore = (*sessionStore)(nil)

// NewSessionStore builds a SessionStore; defaultQuotaLimit seeds new
// bindings until QuotaGuard's tenant-level limit takes over.
func NewSessionStore(db *gorm.DB, defaultQuotaLimit int) interfaces.SessionStore {
	return &sessionStore{db: db, quotaLimit: defaultQuotaLimit}
}

// GetOrCreateBinding returns the existing binding for (tenantID,
// externalID) or creates one. Concurrent callers racing to create the
// same pair converge on one row via the unique index.
func (s *sessionStore) GetOrCreateBinding(ctx context.Context, tenantID uint64, externalID string) (*types.ConversationBinding, error) {
	var binding types.ConversationBinding
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND external_session_id = ?", tenantID, externalID).
		First(&binding).Error
	if err == nil {
		return &binding, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	binding = types.ConversationBinding{
		TenantID:   tenantID,
		ExternalID: externalID,
		QuotaLimit: s.quotaLimit,
	}
	if err := s.db.WithContext(ctx).Create(&binding).Error; err != nil {
		// Another request won the race on the unique index; the row it
		// created is the one we want.
		var existing types.ConversationBinding
		if findErr := s.db.WithContext(ctx).
			Where("tenant_id = ? AND external_session_id = ?", tenantID, externalID).
			First(&existing).Error; findErr == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &binding, nil
}

// SetPaused flips the binding's pause flag, creating the binding first if
// this is the first event ever seen for (tenantID, externalID) — a pause
// magic word can easily be the very first inbound message a conversation
// ever sends, and the flag must stick rather than be silently dropped by
// an UPDATE that matches no row.
func (s *sessionStore) SetPaused(ctx context.Context, tenantID uint64, externalID string, paused bool) error {
	binding, err := s.GetOrCreateBinding(ctx, tenantID, externalID)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&types.ConversationBinding{}).
		Where("id = ?", binding.ID).
		Update("paused_flag", paused)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		logger.Warnf(ctx, "[SessionStore] SetPaused found no binding row for id=%d after GetOrCreateBinding", binding.ID)
	}
	return nil
}

// SetChatSession attaches the RAG session id to binding the first time a
// RAG call succeeds for it; immutable thereafter.
func (s *sessionStore) SetChatSession(ctx context.Context, binding *types.ConversationBinding, chatSessionID string) error {
	res := s.db.WithContext(ctx).Model(&types.ConversationBinding{}).
		Where("id = ? AND rag_session_id IS NULL", binding.ID).
		Update("rag_session_id", chatSessionID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		binding.ChatSessionID = &chatSessionID
	}
	return nil
}

// Purge deletes the binding row at the end of its lifecycle (after summary
// sync closes the conversation out). Its ChatSession is not deleted here;
// that is a separate ChatMemory.Delete call.
func (s *sessionStore) Purge(ctx context.Context, binding *types.ConversationBinding) error {
	return s.db.WithContext(ctx).Delete(&types.ConversationBinding{}, "id = ?", binding.ID).Error
}
