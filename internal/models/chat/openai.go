package chat

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/types"
)

// OpenAIChat implements Chat against any OpenAI-compatible chat/completions
// endpoint, the default for every provider except Anthropic and Ollama.
type OpenAIChat struct {
	modelName string
	modelID   string
	client    *openai.Client
}

// NewOpenAIChat builds an OpenAI-compatible chat client from config.
func NewOpenAIChat(config *Config) (*OpenAIChat, error) {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &OpenAIChat{
		modelName: config.ModelName,
		modelID:   config.ModelID,
		client:    openai.NewClientWithConfig(clientConfig),
	}, nil
}

func (c *OpenAIChat) convertMessages(messages []types.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		m := openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
			Name:    msg.Name,
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		if msg.Role == "tool" {
			m.ToolCallID = msg.Name
		}
		out = append(out, m)
	}
	return out
}

func (c *OpenAIChat) convertTools(tools []types.ToolSpec) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params map[string]interface{}
		_ = json.Unmarshal(t.Schema, &params)
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

// Chat sends a non-streaming chat completion request.
func (c *OpenAIChat) Chat(ctx context.Context, messages []types.Message, opts *types.ChatOptions) (*types.ChatResult, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.modelName,
		Messages: c.convertMessages(messages),
	}

	if opts != nil {
		req.Temperature = float32(opts.Temperature)
		req.TopP = float32(opts.TopP)
		if opts.MaxTokens > 0 {
			req.MaxTokens = opts.MaxTokens
		}
		if opts.MaxCompletionTokens > 0 {
			req.MaxCompletionTokens = opts.MaxCompletionTokens
		}
		req.FrequencyPenalty = float32(opts.FrequencyPenalty)
		req.PresencePenalty = float32(opts.PresencePenalty)
		req.Tools = c.convertTools(opts.Tools)
	}

	logger.GetLogger(ctx).Infof("sending chat completion request to model %s", c.modelName)

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	result := &types.ChatResult{Text: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return result, nil
}

// GetModelName returns the configured model name.
func (c *OpenAIChat) GetModelName() string { return c.modelName }

// GetModelID returns the configured model ID.
func (c *OpenAIChat) GetModelID() string { return c.modelID }
