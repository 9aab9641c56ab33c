package repository

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/veridesk/platform/internal/types"
	"gorm.io/gorm"
)

// QueryCache is the opt-in semantic cache: RAGEngine.Query only consults
// it when a tenant's rag.semantic_cache flag is set.
type QueryCache struct {
	db *gorm.DB
}

// NewQueryCache builds a QueryCache over the query_cache table.
func NewQueryCache(db *gorm.DB) *QueryCache {
	return &QueryCache{db: db}
}

// Lookup returns a cached answer for tenantID whose cached query's
// embedding has cosine similarity to embedding above threshold, or false
// if no entry qualifies.
func (c *QueryCache) Lookup(ctx context.Context, tenantID uint64, embedding []float32, threshold float64) (answer string, ok bool, err error) {
	var row struct {
		AnswerText string
		Similarity float64
	}
	vec := pgvector.NewVector(embedding)
	err = c.db.WithContext(ctx).Raw(`
		SELECT answer_text, 1 - (embedding <=> ?) AS similarity
		FROM query_cache
		WHERE tenant_id = ?
		ORDER BY embedding <=> ?
		LIMIT 1
	`, vec, tenantID, vec).Scan(&row).Error
	if err != nil {
		return "", false, err
	}
	if row.AnswerText == "" || row.Similarity < threshold || math.IsNaN(row.Similarity) {
		return "", false, nil
	}
	return row.AnswerText, true, nil
}

// Store persists a new cache entry.
func (c *QueryCache) Store(ctx context.Context, tenantID uint64, queryText string, embedding []float32, answer string) error {
	entry := types.QueryCacheEntry{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		QueryText:  queryText,
		Embedding:  pgvector.NewVector(embedding),
		AnswerText: answer,
	}
	return c.db.WithContext(ctx).Create(&entry).Error
}
