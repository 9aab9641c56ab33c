package chat

import (
	"context"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/types"
)

const anthropicDefaultMaxTokens int64 = 4096

// AnthropicChat implements Chat against the Claude Messages API.
type AnthropicChat struct {
	modelName string
	modelID   string
	sdk       anthropic.Client
}

// NewAnthropicChat builds an Anthropic chat client from config.
func NewAnthropicChat(config *Config) (*AnthropicChat, error) {
	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	return &AnthropicChat{
		modelName: config.ModelName,
		modelID:   config.ModelID,
		sdk:       anthropic.NewClient(opts...),
	}, nil
}

func (c *AnthropicChat) convertMessages(messages []types.Message) (system string, out []anthropic.MessageParam) {
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if system != "" {
				system += "\n"
			}
			system += msg.Content
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return system, out
}

// Chat sends a non-streaming message request to Claude.
func (c *AnthropicChat) Chat(ctx context.Context, messages []types.Message, opts *types.ChatOptions) (*types.ChatResult, error) {
	system, converted := c.convertMessages(messages)

	maxTokens := anthropicDefaultMaxTokens
	if opts != nil && opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.modelName),
		Messages:  converted,
		MaxTokens: maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if opts != nil && opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}

	logger.GetLogger(ctx).Infof("sending chat completion request to model %s", c.modelName)

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat request failed: %w", err)
	}

	result := &types.ChatResult{}
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			result.Text += tb.Text
		}
	}
	return result, nil
}

// GetModelName returns the configured model name.
func (c *AnthropicChat) GetModelName() string { return c.modelName }

// GetModelID returns the configured model ID.
func (c *AnthropicChat) GetModelID() string { return c.modelID }
