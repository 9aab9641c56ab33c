// Package rerank implements the pluggable relevance-scoring step used by
// the RAG query pipeline's rerank stage: given a query and a short list of
// candidate passages, return each passage's relevance score.
package rerank

import (
	"context"
	"strings"

	"github.com/veridesk/platform/internal/models/provider"
	"github.com/veridesk/platform/internal/types/interfaces"
)

// DocumentInfo carries the document text a RankResult refers back to.
type DocumentInfo struct {
	Text string `json:"text"`
}

// RankResult is one reranked candidate, index-addressed back to the input
// slice the caller passed to Rerank.
type RankResult struct {
	Index          int          `json:"index"`
	Document       DocumentInfo `json:"document"`
	RelevanceScore float64      `json:"relevance_score"`
}

// RerankerConfig is the per-model configuration a Reranker is built from.
type RerankerConfig struct {
	ModelName string
	ModelID   string
	BaseURL   string
	APIKey    string
	Provider  string
}

// Reranker scores a batch of candidate documents against a query.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]RankResult, error)
	GetModelName() string
	GetModelID() string
}

// Completer is the minimal LLM capability LLMReranker needs; satisfied by
// interfaces.LLMProvider's Complete method.
type Completer interface {
	Complete(ctx context.Context, prompt string, step interfaces.PipelineStep) (string, error)
}

// NewReranker builds the Reranker for config, routing to Jina's dedicated
// rerank API when that provider is configured and falling back to an
// LLM-prompted reranker otherwise.
func NewReranker(config *RerankerConfig, llm Completer) (Reranker, error) {
	providerName := provider.ProviderName(strings.ToLower(config.Provider))
	if providerName == "" {
		providerName = provider.DetectProvider(config.BaseURL)
	}

	if providerName == provider.ProviderJina {
		return NewJinaReranker(config)
	}
	return NewLLMReranker(config, llm)
}
