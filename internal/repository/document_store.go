package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
	"gorm.io/gorm"
)

// documentStore implements interfaces.DocumentStore as the primary
// Postgres/pgvector + tsvector backend. The fts_vector column is a
// generated column maintained by Postgres itself (see migrations/), so
// InsertChunk only ever writes Content/Embedding.
type documentStore struct {
	db *gorm.DB
}

var _ interfaces.DocumentStore = (*documentStore)(nil)

// NewDocumentStore builds the Postgres-backed DocumentStore.
func NewDocumentStore(db *gorm.DB) interfaces.DocumentStore {
	return &documentStore{db: db}
}

// InsertChunk stores one chunk's content and embedding. The invariant that
// every row has both a populated embedding and fts_tokens derived from the
// same content holds because fts_vector is a STORED generated column
// computed from content by Postgres itself.
func (s *documentStore) InsertChunk(ctx context.Context, tenantID uint64, filename, content string, embedding []float32, sourceType string) error {
	doc := types.Document{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Filename:   filename,
		Content:    content,
		Embedding:  pgvector.NewVector(embedding),
		SourceType: sourceType,
	}
	return s.db.WithContext(ctx).Create(&doc).Error
}

// DeleteByFilename removes every chunk of filename for tenantID in one
// statement, honoring the all-or-nothing filename-scoped deletion invariant.
func (s *documentStore) DeleteByFilename(ctx context.Context, tenantID uint64, filename string) error {
	return s.db.WithContext(ctx).
		Where("tenant_id = ? AND filename = ?", tenantID, filename).
		Delete(&types.Document{}).Error
}

// hybridSearchRow is the raw-SQL RRF query's result shape.
type hybridSearchRow struct {
	ChunkID  string
	Filename string
	Content  string
	Score    float64
}

// hybridSearchSQL fuses the vector and lexical sub-rankings by Reciprocal
// Rank Fusion: score = 1/(rank_vec+60) + 1/(rank_text+60),
// ties broken by vector distance ascending then insertion time ascending.
const hybridSearchSQL = `
WITH vec AS (
 SELECT id, row_number() OVER (ORDER BY embedding <=> ?) AS rnk, embedding <=> ? AS distance
 FROM documents
 WHERE tenant_id = ?
 ORDER BY embedding <=> ?
 LIMIT ?
),
txt AS (
 SELECT id, row_number() OVER (ORDER BY ts_rank(fts_vector, plainto_tsquery('simple', ?)) DESC) AS rnk
 FROM documents
 WHERE tenant_id = ? AND fts_vector @@ plainto_tsquery('simple', ?)
 ORDER BY ts_rank(fts_vector, plainto_tsquery('simple', ?)) DESC
 LIMIT ?
)
SELECT
 d.id AS chunk_id,
 d.filename AS filename,
 d.content AS content,
 (COALESCE(1.0 / (vec.rnk + 60), 0) + COALESCE(1.0 / (txt.rnk + 60), 0)) AS score
FROM documents d
LEFT JOIN vec ON vec.id = d.id
LEFT JOIN txt ON txt.id = d.id
WHERE d.tenant_id = ? AND (vec.id IS NOT NULL OR txt.id IS NOT NULL)
ORDER BY score DESC, COALESCE(vec.distance, 1e9) ASC, d.created_at ASC
LIMIT ?
`

// HybridSearch runs the RRF-fused vector+lexical retrieval, scoped to
// tenantID; no query may return a row from another tenant.
func (s *documentStore) HybridSearch(ctx context.Context, tenantID uint64, queryEmbedding []float32, queryText string, k int) ([]types.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(queryEmbedding)

	var rows []hybridSearchRow
	err := s.db.WithContext(ctx).Raw(hybridSearchSQL,
		vec, vec, tenantID, vec, k,
		queryText, tenantID, queryText, queryText, k,
		tenantID, k).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	hits := make([]types.Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, types.Hit{ChunkID: r.ChunkID, Filename: r.Filename, Content: r.Content, Score: r.Score})
	}
	return hits, nil
}
