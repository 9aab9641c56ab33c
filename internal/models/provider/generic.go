package provider

import (
	"fmt"

	"github.com/veridesk/platform/internal/types"
)

// GenericProvider implements the Provider interface for any
// OpenAI-compatible endpoint that doesn't match a more specific provider.
type GenericProvider struct{}

func init() {
	Register(&GenericProvider{})
}

// Info returns the generic provider's metadata.
func (p *GenericProvider) Info() ProviderInfo {
	return ProviderInfo{
		Name:        ProviderGeneric,
		DisplayName: "Custom (OpenAI-compatible)",
		Description: "Any OpenAI-compatible chat/completions endpoint",
		DefaultURLs: map[types.ModelType]string{},
		ModelTypes: []types.ModelType{
			types.ModelTypeKnowledgeQA,
			types.ModelTypeEmbedding,
			types.ModelTypeRerank,
			types.ModelTypeVLLM,
		},
		RequiresAuth: false,
	}
}

// ValidateConfig validates a generic provider configuration.
func (p *GenericProvider) ValidateConfig(config *Config) error {
	if config.BaseURL == "" {
		return fmt.Errorf("base URL is required for generic provider")
	}
	if config.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	return nil
}
