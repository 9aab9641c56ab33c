package types

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// QueryCacheEntry backs the opt-in semantic cache: reused only when a new
// query's embedding has cosine similarity above a configured threshold to
// a cached entry.
type QueryCacheEntry struct {
	ID         string          `gorm:"primaryKey;size:64" json:"id"`
	TenantID   uint64          `gorm:"index;not null" json:"tenant_id"`
	QueryText  string          `gorm:"type:text;not null" json:"query_text"`
	Embedding  pgvector.Vector `gorm:"type:vector(1536)" json:"-"`
	AnswerText string          `gorm:"type:text;not null" json:"answer_text"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (QueryCacheEntry) TableName() string { return "query_cache" }
