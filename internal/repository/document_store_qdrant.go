package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	qdrantrepo "github.com/veridesk/platform/internal/application/repository/retriever/qdrant"
	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
	"gorm.io/gorm"
)

// qdrantDocumentStore is an alternate DocumentStore backend: the vector
// sub-ranking runs against Qdrant while the lexical sub-ranking still runs
// against Postgres full-text search, and RRF fusion happens in Go over both
// rankings since no single engine produces both here.
type qdrantDocumentStore struct {
	db     *gorm.DB
	vector *qdrantrepo.Repository
}

var _ interfaces.DocumentStore = (*qdrantDocumentStore)(nil)

// NewQdrantDocumentStore builds the Qdrant+Postgres composed DocumentStore.
func NewQdrantDocumentStore(db *gorm.DB, vector *qdrantrepo.Repository) interfaces.DocumentStore {
	return &qdrantDocumentStore{db: db, vector: vector}
}

func (s *qdrantDocumentStore) InsertChunk(ctx context.Context, tenantID uint64, filename, content string, embedding []float32, sourceType string) error {
	id := uuid.NewString()
	doc := types.Document{
		ID:         id,
		TenantID:   tenantID,
		Filename:   filename,
		Content:    content,
		Embedding:  pgvector.NewVector(embedding),
		SourceType: sourceType,
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		return err
	}
	return s.vector.Upsert(ctx, qdrantrepo.ChunkVector{
		ChunkID:   id,
		TenantID:  tenantID,
		Filename:  filename,
		Content:   content,
		Embedding: embedding,
	})
}

func (s *qdrantDocumentStore) DeleteByFilename(ctx context.Context, tenantID uint64, filename string) error {
	if err := s.vector.DeleteByFilename(ctx, tenantID, filename); err != nil {
		return fmt.Errorf("delete qdrant points: %w", err)
	}
	return s.db.WithContext(ctx).
		Where("tenant_id = ? AND filename = ?", tenantID, filename).
		Delete(&types.Document{}).Error
}

// lexicalRow is one candidate from the Postgres full-text sub-ranking.
type lexicalRow struct {
	ChunkID  string
	Filename string
	Content  string
}

const lexicalSearchSQL = `
SELECT id AS chunk_id, filename, content
FROM documents
WHERE tenant_id = ? AND fts_vector @@ plainto_tsquery('simple', ?)
ORDER BY ts_rank(fts_vector, plainto_tsquery('simple', ?)) DESC
LIMIT ?
`

// HybridSearch runs the vector sub-ranking against Qdrant and the lexical
// sub-ranking against Postgres, then fuses them by Reciprocal Rank Fusion,
// scored in Go since the two rankings come from two different engines.
func (s *qdrantDocumentStore) HybridSearch(ctx context.Context, tenantID uint64, queryEmbedding []float32, queryText string, k int) ([]types.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	vecHits, err := s.vector.Search(ctx, tenantID, queryEmbedding, k)
	if err != nil {
		return nil, err
	}

	var lexHits []lexicalRow
	if err := s.db.WithContext(ctx).Raw(lexicalSearchSQL, tenantID, queryText, queryText, k).Scan(&lexHits).Error; err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	type fused struct {
		filename string
		content  string
		score    float64
		distance float64
	}
	byID := make(map[string]*fused)

	for _, v := range vecHits {
		byID[v.ChunkID] = &fused{
			filename: v.Filename,
			content:  v.Content,
			score:    1.0 / float64(v.Rank+60),
			distance: v.Distance,
		}
	}
	for rank, l := range lexHits {
		if f, ok := byID[l.ChunkID]; ok {
			f.score += 1.0 / float64(rank+1+60)
		} else {
			byID[l.ChunkID] = &fused{
				filename: l.Filename,
				content:  l.Content,
				score:    1.0 / float64(rank+1+60),
				distance: 1e9,
			}
		}
	}

	distanceOf := make(map[string]float64, len(byID))
	hits := make([]types.Hit, 0, len(byID))
	for id, f := range byID {
		hits = append(hits, types.Hit{ChunkID: id, Filename: f.filename, Content: f.content, Score: f.score})
		distanceOf[id] = f.distance
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return distanceOf[hits[i].ChunkID] < distanceOf[hits[j].ChunkID]
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
