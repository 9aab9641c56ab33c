package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/veridesk/platform/internal/models/provider"
)

// Embedder defines the interface for text vectorization.
type Embedder interface {
	// Embed converts text to vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// BatchEmbed converts multiple texts to vectors in batch.
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// GetModelName returns the model name.
	GetModelName() string

	// GetDimensions returns the vector dimensions.
	GetDimensions() int

	// GetModelID returns the model ID.
	GetModelID() string

	EmbedderPooler
}

// EmbedderPooler bounds the concurrency of a batch embed call that has to
// be split into several upstream requests.
type EmbedderPooler interface {
	BatchEmbedWithPool(ctx context.Context, model Embedder, texts []string) ([][]float32, error)
}

// Config represents the embedder configuration; every embedder built from
// it calls a remote HTTP endpoint.
type Config struct {
	BaseURL              string `json:"base_url"`
	ModelName            string `json:"model_name"`
	APIKey               string `json:"api_key"`
	TruncatePromptTokens int    `json:"truncate_prompt_tokens"`
	Dimensions           int    `json:"dimensions"`
	ModelID              string `json:"model_id"`
	Provider             string `json:"provider"`
}

// NewEmbedder creates an embedder for config, routing to a provider-specific
// adapter when config.Provider (or a detected provider from BaseURL) names
// one, and falling back to the OpenAI-compatible adapter otherwise.
func NewEmbedder(config Config, pooler EmbedderPooler) (Embedder, error) {
	if config.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}

	providerName := provider.ProviderName(strings.ToLower(config.Provider))
	if providerName == "" {
		providerName = provider.DetectProvider(config.BaseURL)
	}

	switch providerName {
	case provider.ProviderJina:
		return NewJinaEmbedder(config.APIKey, config.BaseURL, config.ModelName,
			config.TruncatePromptTokens, config.Dimensions, config.ModelID, pooler)
	default:
		return NewOpenAIEmbedder(config.APIKey, config.BaseURL, config.ModelName,
			config.TruncatePromptTokens, config.Dimensions, config.ModelID, pooler)
	}
}
