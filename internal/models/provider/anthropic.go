package provider

import (
	"fmt"

	"github.com/veridesk/platform/internal/types"
)

const (
	AnthropicBaseURL = "https://api.anthropic.com/v1"
)

// AnthropicProvider implements the Provider interface for Claude models,
// reached through github.com/anthropics/anthropic-sdk-go rather than the
// OpenAI-compatible chat/completions shape the other providers share.
type AnthropicProvider struct{}

func init() {
	Register(&AnthropicProvider{})
}

// Info returns the Anthropic provider's metadata.
func (p *AnthropicProvider) Info() ProviderInfo {
	return ProviderInfo{
		Name:        ProviderAnthropic,
		DisplayName: "Anthropic",
		Description: "claude-opus-4, claude-sonnet-4, etc.",
		DefaultURLs: map[types.ModelType]string{
			types.ModelTypeKnowledgeQA: AnthropicBaseURL,
			types.ModelTypeVLLM:        AnthropicBaseURL,
		},
		ModelTypes: []types.ModelType{
			types.ModelTypeKnowledgeQA,
			types.ModelTypeVLLM,
		},
		RequiresAuth: true,
	}
}

// ValidateConfig validates an Anthropic provider configuration.
func (p *AnthropicProvider) ValidateConfig(config *Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("API key is required for Anthropic provider")
	}
	if config.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	return nil
}
