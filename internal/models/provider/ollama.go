package provider

import (
	"fmt"

	"github.com/veridesk/platform/internal/models/chat"
	"github.com/veridesk/platform/internal/types"
)

// OllamaProvider implements the Provider interface for a self-hosted Ollama
// server, the on-prem alternative to the hosted OpenAI/Anthropic providers
// for tenants that don't want chat or embedding traffic leaving their
// network.
type OllamaProvider struct{}

func init() {
	Register(&OllamaProvider{})
}

// Info returns the Ollama provider's metadata.
func (p *OllamaProvider) Info() ProviderInfo {
	return ProviderInfo{
		Name:        ProviderOllama,
		DisplayName: "Ollama",
		Description: "self-hosted llama3, mistral, qwen, etc.",
		DefaultURLs: map[types.ModelType]string{
			types.ModelTypeKnowledgeQA: chat.OllamaDefaultBaseURL,
			types.ModelTypeEmbedding:   chat.OllamaDefaultBaseURL,
			types.ModelTypeVLLM:        chat.OllamaDefaultBaseURL,
		},
		ModelTypes: []types.ModelType{
			types.ModelTypeKnowledgeQA,
			types.ModelTypeEmbedding,
			types.ModelTypeVLLM,
		},
		RequiresAuth: false,
	}
}

// ValidateConfig validates an Ollama provider configuration. No API key is
// required since Ollama serves unauthenticated by default.
func (p *OllamaProvider) ValidateConfig(config *Config) error {
	if config.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	return nil
}
