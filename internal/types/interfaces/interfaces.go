// Package interfaces collects the service contracts implemented by
// internal/repository and the model, agent, rag, crm and channel packages,
// and consumed by the orchestrator and handler layers.
package interfaces

import (
	"context"

	"github.com/veridesk/platform/internal/types"
)

// TenantRegistry resolves a channel-native identifier to a tenant and
// loads its configuration bundle.
type TenantRegistry interface {
	Resolve(ctx context.Context, channel, channelKey string) (tenantID uint64, ok bool, err error)
	LoadConfig(ctx context.Context, tenantID uint64) (*types.TenantConfig, int64, error)
	InvalidateConfig(tenantID uint64)
}

// SessionStore manages ConversationBinding lifecycle.
type SessionStore interface {
	GetOrCreateBinding(ctx context.Context, tenantID uint64, externalID string) (*types.ConversationBinding, error)
	SetPaused(ctx context.Context, tenantID uint64, externalID string, paused bool) error
	SetChatSession(ctx context.Context, binding *types.ConversationBinding, chatSessionID string) error
	Purge(ctx context.Context, binding *types.ConversationBinding) error
}

// QuotaGuard enforces the per-tenant monthly message quota.
type QuotaGuard interface {
	Admit(ctx context.Context, tenantID uint64) (ok bool, exceeded bool, err error)
}

// DocumentStore is the hybrid vector+text index.
type DocumentStore interface {
	InsertChunk(ctx context.Context, tenantID uint64, filename, content string, embedding []float32, sourceType string) error
	DeleteByFilename(ctx context.Context, tenantID uint64, filename string) error
	HybridSearch(ctx context.Context, tenantID uint64, queryEmbedding []float32, queryText string, k int) ([]types.Hit, error)
}

// ChatMemory is the per-session ordered transcript.
type ChatMemory interface {
	CreateSession(ctx context.Context, tenantID uint64) (string, error)
	Append(ctx context.Context, sessionID, requestID string, role types.MessageRole, content string) error
	Recent(ctx context.Context, sessionID string, n int) ([]types.ChatMessage, error)
	All(ctx context.Context, sessionID string) ([]types.ChatMessage, error)
	Delete(ctx context.Context, sessionID string) error
}

// Embedder is the embedding-provider capability surface.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// PipelineStep names the logical step an LLMProvider call is made on
// behalf of, letting the step-routed provider look up which model serves it.
type PipelineStep string

const (
	StepHyDE             PipelineStep = "hyde"
	StepRerank           PipelineStep = "rerank"
	StepContextualize    PipelineStep = "contextualize"
	StepGeneration       PipelineStep = "generation"
	StepSmallTalk        PipelineStep = "small_talk"
	StepTranscription    PipelineStep = "transcription"
	StepImageDescription PipelineStep = "image_description"
	StepSummarization    PipelineStep = "summarization"
	StepAgent            PipelineStep = "agent"
)

// LLMProvider is the text/chat/multimodal capability surface, routed
// per-step to whichever backend is configured for that step.
type LLMProvider interface {
	Complete(ctx context.Context, prompt string, step PipelineStep) (string, error)
	Chat(ctx context.Context, messages []types.Message, step PipelineStep, opts *types.ChatOptions) (*types.ChatResult, error)
	DescribeImage(ctx context.Context, data []byte, mime string) (string, error)
	TranscribeAudio(ctx context.Context, data []byte, mime string) (string, error)
}

// Reranker scores one candidate passage against a query.
type Reranker interface {
	Score(ctx context.Context, query, passage string) (float64, error)
}

// RAGEngine is the ingestion/query surface of the retrieval-augmented
// generation engine.
type RAGEngine interface {
	IngestText(ctx context.Context, tenantID uint64, filename, content string) error
	IngestImage(ctx context.Context, tenantID uint64, filename string, data []byte, mime string) error
	DeleteDocument(ctx context.Context, tenantID uint64, filename string) error
	Query(ctx context.Context, req RAGQueryRequest) (answer string, referencesUsed bool, err error)
}

// RAGQueryRequest bundles the parameters of one Query call.
type RAGQueryRequest struct {
	TenantID        uint64
	Query           string
	SessionID       string
	UseHyDE         bool
	UseRerank       bool
	Provider        string
	ExternalContext string
	ComplexityScore int
	PricingIntent   bool
}

// AgentRuntime is the bounded tool-using reasoning loop.
type AgentRuntime interface {
	Run(ctx context.Context, tenantID uint64, sessionID string, modelName string, userTurn string) (AgentResult, error)
}

// AgentResult is what one AgentRuntime.Run call produces.
type AgentResult struct {
	Text           string
	RequiresHuman  bool
	ReferencesUsed bool
}

// CRMAdapter is the per-backend capability set a configured CRM integration
// implements.
type CRMAdapter interface {
	Name() string
	SyncLead(ctx context.Context, name, email, phone string) error
	SyncContact(ctx context.Context, contact types.ContactInfo) error
	UpdateLeadSummary(ctx context.Context, email, phone string, summary *types.ConversationSummary) error
}

// ChannelSender is the outbound-reply capability every inbound channel
// adapter implements.
type ChannelSender interface {
	SendText(ctx context.Context, externalID, text string) error
	SetHumanHandoff(ctx context.Context, externalID string, requiresHuman bool) error
}
