// Package qdrant is the alternate vector-sub-ranking backend for
// DocumentStore's hybrid search, used when a deployment points the vector
// store at Qdrant instead of pgvector. The lexical sub-ranking still runs
// against Postgres full-text search regardless, since RRF fusion needs a
// lexical ranking either way. Collection-per-dimension initialization is
// cached in a sync.Map keyed by dimension, to avoid re-issuing
// CreateCollection on every request.
package qdrant

import (
	"context"
	"fmt"
	"sync"

	"github.com/qdrant/go-client/qdrant"
)

// Repository wraps a Qdrant client for the one chunk collection per
// embedding dimension this deployment uses.
type Repository struct {
	client             *qdrant.Client
	collectionBaseName string
	// initializedCollections caches which dimension's collection has
	// already been created, avoiding a CreateCollection round-trip per call.
	initializedCollections sync.Map
}

// NewRepository builds a Repository against an already-connected client.
func NewRepository(client *qdrant.Client, collectionBaseName string) *Repository {
	if collectionBaseName == "" {
		collectionBaseName = "veridesk_chunks"
	}
	return &Repository{client: client, collectionBaseName: collectionBaseName}
}

func (r *Repository) collectionName(dim int) string {
	return fmt.Sprintf("%s_%d", r.collectionBaseName, dim)
}

// ensureCollection creates the per-dimension collection the first time it
// is needed, then remembers it for the lifetime of the process.
func (r *Repository) ensureCollection(ctx context.Context, dim int) error {
	if _, ok := r.initializedCollections.Load(dim); ok {
		return nil
	}

	name := r.collectionName(dim)
	exists, err := r.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check qdrant collection %q: %w", name, err)
	}
	if !exists {
		if err := r.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return fmt.Errorf("create qdrant collection %q: %w", name, err)
		}
	}

	r.initializedCollections.Store(dim, true)
	return nil
}

// ChunkVector is one chunk as stored in Qdrant, scoped to a tenant the way
// every DocumentStore row is.
type ChunkVector struct {
	ChunkID   string    `json:"chunk_id"`
	TenantID  uint64    `json:"tenant_id"`
	Filename  string    `json:"filename"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
}

// ChunkVectorWithRank is one vector sub-ranking result: distance and the
// 1-based rank it occupies in that sub-ranking, the two inputs RRF fusion
// needs from this side.
type ChunkVectorWithRank struct {
	ChunkVector
	Distance float64
	Rank     int
}

// Upsert writes one chunk's vector into the collection for its embedding
// dimension, creating the collection on first use.
func (r *Repository) Upsert(ctx context.Context, v ChunkVector) error {
	if err := r.ensureCollection(ctx, len(v.Embedding)); err != nil {
		return err
	}
	_, err := r.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: r.collectionName(len(v.Embedding)),
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(v.ChunkID),
				Vectors: qdrant.NewVectors(v.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					"tenant_id": v.TenantID,
					"filename":  v.Filename,
					"content":   v.Content,
				}),
			},
		},
	})
	return err
}

// DeleteByFilename removes every point tagged with filename for tenantID,
// across every per-dimension collection this process has initialized.
func (r *Repository) DeleteByFilename(ctx context.Context, tenantID uint64, filename string) error {
	var firstErr error
	r.initializedCollections.Range(func(key, _ any) bool {
		dim := key.(int)
		filter := &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchInt("tenant_id", int64(tenantID)),
				qdrant.NewMatch("filename", filename),
			},
		}
		_, err := r.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: r.collectionName(dim),
			Points:         qdrant.NewPointsSelectorFilter(filter),
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// Search runs the vector sub-ranking for tenantID, returning up to k
// candidates ordered by cosine distance ascending with their rank
// attached, ready for RRF fusion against the lexical sub-ranking.
func (r *Repository) Search(ctx context.Context, tenantID uint64, queryEmbedding []float32, k int) ([]ChunkVectorWithRank, error) {
	dim := len(queryEmbedding)
	if err := r.ensureCollection(ctx, dim); err != nil {
		return nil, err
	}

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchInt("tenant_id", int64(tenantID))},
	}
	limit := uint64(k)
	points, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collectionName(dim),
		Query:          qdrant.NewQuery(queryEmbedding...),
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	out := make([]ChunkVectorWithRank, 0, len(points))
	for i, p := range points {
		payload := p.GetPayload()
		out = append(out, ChunkVectorWithRank{
			ChunkVector: ChunkVector{
				ChunkID:  p.GetId().GetUuid(),
				TenantID: tenantID,
				Filename: payload["filename"].GetStringValue(),
				Content:  payload["content"].GetStringValue(),
			},
			Distance: 1 - float64(p.GetScore()),
			Rank:     i + 1,
		})
	}
	return out, nil
}
