package rerank

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/types/interfaces"
)

// rerankPromptTemplate asks the model for a single relevance score in
// [0, 1] for one query/passage pair; the rerank stage calls it once per
// candidate rather than batching, since most chat models have no dedicated
// rerank endpoint.
const rerankPromptTemplate = `Rate how relevant the passage is to the query on a scale from 0.0 (not relevant) to 1.0 (highly relevant).
Respond with only the number, nothing else.

Query: %s

Passage: %s

Relevance score:`

// LLMReranker implements Reranker by prompting a chat model for a relevance
// score per candidate, per the reranking step of the RAG query pipeline.
type LLMReranker struct {
	modelName string
	modelID   string
	llm       Completer
}

// NewLLMReranker builds a prompt-based reranker backed by llm.
func NewLLMReranker(config *RerankerConfig, llm Completer) (*LLMReranker, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm completer is required for LLM-based reranking")
	}
	return &LLMReranker{
		modelName: config.ModelName,
		modelID:   config.ModelID,
		llm:       llm,
	}, nil
}

// Rerank scores every document independently against query.
func (r *LLMReranker) Rerank(ctx context.Context, query string, documents []string) ([]RankResult, error) {
	results := make([]RankResult, 0, len(documents))
	for i, doc := range documents {
		prompt := fmt.Sprintf(rerankPromptTemplate, query, doc)
		resp, err := r.llm.Complete(ctx, prompt, interfaces.StepRerank)
		if err != nil {
			logger.GetLogger(ctx).Warnf("llm rerank scoring failed for document %d: %v", i, err)
			results = append(results, RankResult{Index: i, Document: DocumentInfo{Text: doc}, RelevanceScore: 0})
			continue
		}

		score := parseScore(resp)
		results = append(results, RankResult{
			Index:          i,
			Document:       DocumentInfo{Text: doc},
			RelevanceScore: score,
		})
	}
	return results, nil
}

func parseScore(response string) float64 {
	trimmed := strings.TrimSpace(response)
	if idx := strings.IndexAny(trimmed, " \n\t"); idx > 0 {
		trimmed = trimmed[:idx]
	}
	score, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// GetModelName returns the configured model name.
func (r *LLMReranker) GetModelName() string { return r.modelName }

// GetModelID returns the configured model ID.
func (r *LLMReranker) GetModelID() string { return r.modelID }
