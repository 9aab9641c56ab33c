// Package llmprovider implements the LLMProvider capability surface
// (complete/chat/describe_image/transcribe_audio) as a single step-routed
// adapter: each logical step (hyde, rerank, contextualize, generation,
// small_talk, transcription, image_description, summarization, agent)
// resolves to a (provider, model) pair via the Router's StepTable, and chat
// client instances are cached by (provider, model).
package llmprovider

import (
	"context"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/models/chat"
	"github.com/veridesk/platform/internal/models/provider"
	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
)

// StepTable is a {step -> {provider, model}} configuration, plus a fallback
// default model used when a step has no explicit entry.
type StepTable struct {
	Steps        map[string]types.LLMStepConfig
	DefaultModel string
	Providers    map[string]types.ProviderCredential
}

func (t StepTable) resolve(step interfaces.PipelineStep) types.LLMStepConfig {
	if cfg, ok := t.Steps[string(step)]; ok && cfg.Model != "" {
		return cfg
	}
	return types.LLMStepConfig{Model: t.DefaultModel}
}

func (t StepTable) credential(providerName string) types.ProviderCredential {
	return t.Providers[providerName]
}

// Router is the step-routed LLMProvider: it owns a StepTable and a cache of
// constructed chat.Chat clients keyed by "provider/model".
type Router struct {
	table StepTable

	mu      sync.RWMutex
	clients map[string]chat.Chat

	// openaiClients caches a transcription/vision-capable client per
	// provider credential, since Whisper and vision calls bypass the
	// chat.Chat abstraction and talk to the OpenAI-compatible SDK client
	// directly.
	openaiClients map[string]*openai.Client
}

var _ interfaces.LLMProvider = (*Router)(nil)

// New builds a Router over one step table.
func New(table StepTable) *Router {
	return &Router{
		table:         table,
		clients:       make(map[string]chat.Chat),
		openaiClients: make(map[string]*openai.Client),
	}
}

func (r *Router) clientFor(step interfaces.PipelineStep) (chat.Chat, error) {
	cfg := r.table.resolve(step)
	if cfg.Model == "" {
		return nil, fmt.Errorf("no model configured for step %q and no default_model set", step)
	}
	providerName := cfg.Provider
	if providerName == "" {
		providerName = string(provider.ProviderGeneric)
	}
	cred := r.table.credential(providerName)
	key := providerName + "/" + cfg.Model

	r.mu.RLock()
	c, ok := r.clients[key]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	c, err := chat.New(providerName, &chat.Config{
		ModelName: cfg.Model,
		ModelID:   key,
		BaseURL:   cred.BaseURL,
		APIKey:    cred.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("build chat client for step %q: %w", step, err)
	}

	r.mu.Lock()
	r.clients[key] = c
	r.mu.Unlock()
	return c, nil
}

func (r *Router) openaiClientFor(step interfaces.PipelineStep) *openai.Client {
	cfg := r.table.resolve(step)
	providerName := cfg.Provider
	if providerName == "" {
		providerName = string(provider.ProviderOpenAI)
	}
	cred := r.table.credential(providerName)
	key := providerName

	r.mu.RLock()
	c, ok := r.openaiClients[key]
	r.mu.RUnlock()
	if ok {
		return c
	}

	clientCfg := openai.DefaultConfig(cred.APIKey)
	if cred.BaseURL != "" {
		clientCfg.BaseURL = cred.BaseURL
	}
	c = openai.NewClientWithConfig(clientCfg)

	r.mu.Lock()
	r.openaiClients[key] = c
	r.mu.Unlock()
	return c
}

// Complete issues a single-turn completion for step.
func (r *Router) Complete(ctx context.Context, prompt string, step interfaces.PipelineStep) (string, error) {
	result, err := r.Chat(ctx, []types.Message{{Role: "user", Content: prompt}}, step, nil)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// Chat issues a (possibly tool-using) chat completion for step.
func (r *Router) Chat(ctx context.Context, messages []types.Message, step interfaces.PipelineStep, opts *types.ChatOptions) (*types.ChatResult, error) {
	c, err := r.clientFor(step)
	if err != nil {
		return nil, err
	}
	return c.Chat(ctx, messages, opts)
}

// describeImagePromptText instructs the vision model what to produce; kept
// short since the image bytes themselves carry the content.
const describeImagePromptText = "Describe this image in detail, in plain prose, for use as a searchable knowledge-base passage."

// DescribeImage captions an image via a vision-capable chat completion.
// The ingestion step prefixes the result with `[IMAGE DESCRIPTION for
// <filename>]` before chunking it like any other text.
func (r *Router) DescribeImage(ctx context.Context, data []byte, mime string) (string, error) {
	cfg := r.table.resolve(interfaces.StepImageDescription)
	if cfg.Model == "" {
		return "", fmt.Errorf("no model configured for image_description step")
	}
	client := r.openaiClientFor(interfaces.StepImageDescription)

	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64Encode(data))

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: describeImagePromptText},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
				},
			},
		},
	})
	if err != nil {
		logger.Errorf(ctx, "[LLMProvider] describe_image failed: %v", err)
		return "", fmt.Errorf("describe image: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("describe image: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// TranscribeAudio transcribes audio via the Whisper-compatible endpoint.
func (r *Router) TranscribeAudio(ctx context.Context, data []byte, mime string) (string, error) {
	cfg := r.table.resolve(interfaces.StepTranscription)
	if cfg.Model == "" {
		return "", fmt.Errorf("no model configured for transcription step")
	}
	client := r.openaiClientFor(interfaces.StepTranscription)

	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    cfg.Model,
		Reader:   bytesReader(data),
		FilePath: "audio" + extensionFor(mime),
	})
	if err != nil {
		logger.Errorf(ctx, "[LLMProvider] transcribe_audio failed: %v", err)
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	return resp.Text, nil
}
