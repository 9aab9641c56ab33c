package embedding

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const defaultPoolConcurrency = 4

// workerPool is the default EmbedderPooler: it splits a batch into
// single-text requests and fans them out across a bounded number of
// goroutines.
type workerPool struct {
	concurrency int
}

// NewWorkerPool returns an EmbedderPooler bounded to concurrency
// simultaneous in-flight embed calls.
func NewWorkerPool(concurrency int) EmbedderPooler {
	if concurrency <= 0 {
		concurrency = defaultPoolConcurrency
	}
	return &workerPool{concurrency: concurrency}
}

// BatchEmbedWithPool embeds each text concurrently, bounded by the pool's
// concurrency limit, preserving input order in the result.
func (p *workerPool) BatchEmbedWithPool(ctx context.Context, model Embedder, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := model.Embed(gctx, text)
			if err != nil {
				return err
			}
			out[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
