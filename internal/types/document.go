package types

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// Document is one indexable chunk of an ingested file. Invariant: every
// stored row has both a populated Embedding and FTS text derived from the
// same Content.
type Document struct {
	ID           string          `gorm:"primaryKey;size:64" json:"id"`
	TenantID     uint64          `gorm:"index:idx_documents_tenant;not null" json:"tenant_id"`
	Filename     string          `gorm:"size:512;index:idx_documents_tenant_filename;not null" json:"filename"`
	ChunkOrdinal int             `gorm:"not null" json:"chunk_ordinal"`
	Content      string          `gorm:"type:text;not null" json:"content"`
	Embedding    pgvector.Vector `gorm:"type:vector(1536)" json:"-"`
	SourceType   string          `gorm:"size:16;not null;default:'text'" json:"source_type"` // text|image
	CreatedAt    time.Time       `json:"created_at"`
}

func (Document) TableName() string { return "documents" }

// Hit is one ranked hybrid-search result.
type Hit struct {
	ChunkID  string  `json:"chunk_id"`
	Filename string  `json:"filename"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}
