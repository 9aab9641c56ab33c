package provider

import (
	"testing"

	"github.com/veridesk/platform/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderRegistry(t *testing.T) {
	t.Run("default providers registered", func(t *testing.T) {
		providers := List()
		assert.NotEmpty(t, providers, "should have registered providers")

		for _, name := range []ProviderName{ProviderOpenAI, ProviderAnthropic, ProviderJina, ProviderGeneric} {
			p, ok := Get(name)
			assert.True(t, ok, "provider %s should be registered", name)
			assert.NotNil(t, p, "provider %s should not be nil", name)
		}
	})

	t.Run("GetOrDefault fallback", func(t *testing.T) {
		p := GetOrDefault("nonexistent")
		require.NotNil(t, p)
		assert.Equal(t, ProviderGeneric, p.Info().Name)
	})
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		url      string
		expected ProviderName
	}{
		{"https://api.openai.com/v1", ProviderOpenAI},
		{"https://api.anthropic.com/v1", ProviderAnthropic},
		{"https://api.jina.ai/v1", ProviderJina},
		{"https://custom-endpoint.example.com/v1", ProviderGeneric},
		{"http://localhost:11434/v1", ProviderOllama},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			result := DetectProvider(tt.url)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestOpenAIProviderValidation(t *testing.T) {
	p := &OpenAIProvider{}

	t.Run("valid config", func(t *testing.T) {
		config := &Config{APIKey: "sk-test", ModelName: "gpt-4"}
		assert.NoError(t, p.ValidateConfig(config))
	})

	t.Run("missing API key", func(t *testing.T) {
		config := &Config{ModelName: "gpt-4"}
		err := p.ValidateConfig(config)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "API key")
	})

	t.Run("missing model name", func(t *testing.T) {
		config := &Config{APIKey: "sk-test"}
		err := p.ValidateConfig(config)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "model name")
	})
}

func TestAnthropicProviderValidation(t *testing.T) {
	p := &AnthropicProvider{}

	t.Run("valid config", func(t *testing.T) {
		config := &Config{APIKey: "sk-ant-test", ModelName: "claude-sonnet-4"}
		assert.NoError(t, p.ValidateConfig(config))
	})

	t.Run("info", func(t *testing.T) {
		info := p.Info()
		assert.Equal(t, ProviderAnthropic, info.Name)
		assert.Contains(t, info.ModelTypes, types.ModelTypeKnowledgeQA)
		assert.Equal(t, AnthropicBaseURL, info.GetDefaultURL(types.ModelTypeKnowledgeQA))
	})
}

func TestGenericProviderValidation(t *testing.T) {
	p := &GenericProvider{}

	t.Run("missing base URL", func(t *testing.T) {
		err := p.ValidateConfig(&Config{ModelName: "local-model"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "base URL")
	})

	t.Run("valid config", func(t *testing.T) {
		err := p.ValidateConfig(&Config{BaseURL: "http://localhost:11434/v1", ModelName: "local-model"})
		assert.NoError(t, err)
	})
}

func TestListByModelType(t *testing.T) {
	t.Run("chat models", func(t *testing.T) {
		providers := ListByModelType(types.ModelTypeKnowledgeQA)
		assert.NotEmpty(t, providers)
	})

	t.Run("rerank models", func(t *testing.T) {
		providers := ListByModelType(types.ModelTypeRerank)
		assert.NotEmpty(t, providers)
		found := false
		for _, p := range providers {
			if p.Name == ProviderJina {
				found = true
				break
			}
		}
		assert.True(t, found, "Jina should support rerank")
	})
}
