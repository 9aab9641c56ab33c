// Package chat implements one Chat adapter per backend chat completion API,
// each wrapping a vendor SDK behind the same small interface so the rest of
// the platform never branches on provider.
package chat

import (
	"context"

	"github.com/veridesk/platform/internal/types"
)

// Config is the per-model configuration a Chat adapter is built from.
type Config struct {
	ModelName string
	ModelID   string
	BaseURL   string
	APIKey    string
}

// Chat is implemented by every chat-completion backend adapter.
type Chat interface {
	Chat(ctx context.Context, messages []types.Message, opts *types.ChatOptions) (*types.ChatResult, error)
	GetModelName() string
	GetModelID() string
}

// New builds the Chat adapter for the named provider.
func New(providerName string, config *Config) (Chat, error) {
	switch providerName {
	case "anthropic":
		return NewAnthropicChat(config)
	case "ollama":
		return NewOllamaChat(config)
	default:
		return NewOpenAIChat(config)
	}
}
