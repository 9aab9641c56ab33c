package provider

import (
	"fmt"

	"github.com/veridesk/platform/internal/types"
)

const (
	JinaBaseURL = "https://api.jina.ai/v1"
)

// JinaProvider implements the Provider interface for Jina AI's embedding
// and reranking APIs.
type JinaProvider struct{}

func init() {
	Register(&JinaProvider{})
}

// Info returns the Jina AI provider's metadata.
func (p *JinaProvider) Info() ProviderInfo {
	return ProviderInfo{
		Name:        ProviderJina,
		DisplayName: "Jina AI",
		Description: "jina-embeddings-v3, jina-reranker-v2, etc.",
		DefaultURLs: map[types.ModelType]string{
			types.ModelTypeEmbedding: JinaBaseURL,
			types.ModelTypeRerank:    JinaBaseURL,
		},
		ModelTypes: []types.ModelType{
			types.ModelTypeEmbedding,
			types.ModelTypeRerank,
		},
		RequiresAuth: true,
	}
}

// ValidateConfig validates a Jina AI provider configuration.
func (p *JinaProvider) ValidateConfig(config *Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("API key is required for Jina AI provider")
	}
	return nil
}
