package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	ollamaapi "github.com/ollama/ollama/api"
	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/types"
)

// OllamaDefaultBaseURL is Ollama's standard local server address, used when
// a tenant configures the ollama provider without an explicit BaseURL.
const OllamaDefaultBaseURL = "http://localhost:11434"

// OllamaChat implements Chat against a local or self-hosted Ollama server,
// the on-prem alternative to the hosted OpenAI/Anthropic providers.
type OllamaChat struct {
	modelName string
	modelID   string
	client    *ollamaapi.Client
}

// NewOllamaChat builds an Ollama chat client from config.
func NewOllamaChat(config *Config) (*OllamaChat, error) {
	base := config.BaseURL
	if base == "" {
		base = OllamaDefaultBaseURL
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse ollama base url: %w", err)
	}
	return &OllamaChat{
		modelName: config.ModelName,
		modelID:   config.ModelID,
		client:    ollamaapi.NewClient(parsed, http.DefaultClient),
	}, nil
}

func (c *OllamaChat) convertMessages(messages []types.Message) []ollamaapi.Message {
	out := make([]ollamaapi.Message, 0, len(messages))
	for _, msg := range messages {
		m := ollamaapi.Message{
			Role:      msg.Role,
			Content:   msg.Content,
			ToolCalls: c.convertToolCalls(msg.ToolCalls),
		}
		if msg.Role == "tool" {
			m.ToolName = msg.Name
		}
		out = append(out, m)
	}
	return out
}

func (c *OllamaChat) convertToolCalls(toolCalls []types.ToolCall) []ollamaapi.ToolCall {
	if len(toolCalls) == 0 {
		return nil
	}
	out := make([]ollamaapi.ToolCall, 0, len(toolCalls))
	for _, tc := range toolCalls {
		var args map[string]interface{}
		if tc.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Arguments), &args)
		}
		out = append(out, ollamaapi.ToolCall{
			Function: ollamaapi.ToolCallFunction{Name: tc.Name, Arguments: args},
		})
	}
	return out
}

func (c *OllamaChat) convertTools(tools []types.ToolSpec) ollamaapi.Tools {
	if len(tools) == 0 {
		return nil
	}
	out := make(ollamaapi.Tools, 0, len(tools))
	for _, t := range tools {
		function := ollamaapi.ToolFunction{Name: t.Name, Description: t.Description}
		if len(t.Schema) > 0 {
			_ = json.Unmarshal(t.Schema, &function.Parameters)
		}
		out = append(out, ollamaapi.Tool{Type: "function", Function: function})
	}
	return out
}

// Chat sends a non-streaming chat request to the configured Ollama model.
func (c *OllamaChat) Chat(ctx context.Context, messages []types.Message, opts *types.ChatOptions) (*types.ChatResult, error) {
	stream := false
	req := &ollamaapi.ChatRequest{
		Model:    c.modelName,
		Messages: c.convertMessages(messages),
		Stream:   &stream,
		Options:  make(map[string]interface{}),
	}
	if opts != nil {
		if opts.Temperature > 0 {
			req.Options["temperature"] = opts.Temperature
		}
		if opts.TopP > 0 {
			req.Options["top_p"] = opts.TopP
		}
		if opts.MaxTokens > 0 {
			req.Options["num_predict"] = opts.MaxTokens
		}
		req.Tools = c.convertTools(opts.Tools)
	}

	logger.GetLogger(ctx).Infof("sending chat completion request to ollama model %s", c.modelName)

	result := &types.ChatResult{}
	err := c.client.Chat(ctx, req, func(resp ollamaapi.ChatResponse) error {
		result.Text += resp.Message.Content
		for _, tc := range resp.Message.ToolCalls {
			args, _ := json.Marshal(tc.Function.Arguments)
			result.ToolCalls = append(result.ToolCalls, types.ToolCall{
				Name:      tc.Function.Name,
				Arguments: string(args),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat request failed: %w", err)
	}
	return result, nil
}

// GetModelName returns the configured model name.
func (c *OllamaChat) GetModelName() string { return c.modelName }

// GetModelID returns the configured model ID.
func (c *OllamaChat) GetModelID() string { return c.modelID }
