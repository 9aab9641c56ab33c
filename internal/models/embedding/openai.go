package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder implements Embedder against any OpenAI-compatible
// embeddings endpoint; this is the default adapter for every provider
// except Jina.
type OpenAIEmbedder struct {
	modelName  string
	dimensions int
	modelID    string
	client     *openai.Client
	EmbedderPooler
}

// NewOpenAIEmbedder creates an OpenAI-compatible embedder.
func NewOpenAIEmbedder(apiKey, baseURL, modelName string,
	truncatePromptTokens int, dimensions int, modelID string, pooler EmbedderPooler) (*OpenAIEmbedder, error) {
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	return &OpenAIEmbedder{
		modelName:      modelName,
		dimensions:     dimensions,
		modelID:        modelID,
		client:         openai.NewClientWithConfig(clientConfig),
		EmbedderPooler: pooler,
	}, nil
}

// Embed converts a single text to a vector.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// BatchEmbed converts multiple texts to vectors in one request.
func (e *OpenAIEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(e.modelName),
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// GetModelName returns the model name.
func (e *OpenAIEmbedder) GetModelName() string { return e.modelName }

// GetDimensions returns the vector dimensions.
func (e *OpenAIEmbedder) GetDimensions() int { return e.dimensions }

// GetModelID returns the model ID.
func (e *OpenAIEmbedder) GetModelID() string { return e.modelID }
