package embedding

import (
	"context"
	"fmt"

	"github.com/veridesk/platform/internal/types/interfaces"
)

// Adapter exposes a concrete Embedder as the EmbeddingProvider capability
// surface (EmbedQuery/EmbedBatch/Dimensions), routing batch calls through
// the embedder's pool.
type Adapter struct {
	embedder Embedder
	dim      int
}

var _ interfaces.Embedder = (*Adapter)(nil)

// NewAdapter wraps embedder, fixing dim as the deployment-wide embedding
// dimension a mismatch is checked against.
func NewAdapter(embedder Embedder, dim int) *Adapter {
	if dim <= 0 {
		dim = embedder.GetDimensions()
	}
	return &Adapter{embedder: embedder, dim: dim}
}

// EmbedQuery embeds a single query string.
func (a *Adapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := a.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := a.checkDim(len(vec)); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch embeds many texts at once via the embedder's pooler.
func (a *Adapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := a.embedder.BatchEmbedWithPool(ctx, a.embedder, texts)
	if err != nil {
		return nil, err
	}
	for _, vec := range vecs {
		if err := a.checkDim(len(vec)); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

// Dimensions returns the fixed deployment-wide embedding dimension.
func (a *Adapter) Dimensions() int { return a.dim }

func (a *Adapter) checkDim(got int) error {
	if got != a.dim {
		return fmt.Errorf("embedding dimension mismatch: expected %d, got %d", a.dim, got)
	}
	return nil
}
