package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/models/rerank"
	"github.com/veridesk/platform/internal/types/interfaces"
)

// jsonRerankScorer implements interfaces.Reranker by prompting the
// configured rerank-step model for a JSON {"score": 0..10} object per
// candidate. Malformed JSON is treated as score 0
// and logged, never aborting the rerank pass.
type jsonRerankScorer struct {
	llm interfaces.LLMProvider
}

var _ interfaces.Reranker = (*jsonRerankScorer)(nil)

func newJSONRerankScorer(llm interfaces.LLMProvider) *jsonRerankScorer {
	return &jsonRerankScorer{llm: llm}
}

func (s *jsonRerankScorer) Score(ctx context.Context, query, passage string) (float64, error) {
	prompt := render(rerankPromptTemplate, map[string]string{"query": query, "passage": passage})
	resp, err := s.llm.Complete(ctx, prompt, interfaces.StepRerank)
	if err != nil {
		return 0, err
	}

	var parsed struct {
		Score float64 `json:"score"`
	}
	raw := extractJSONObject(resp)
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		logger.Warnf(ctx, "[RAGEngine] rerank response was not valid JSON, scoring 0: %q", resp)
		return 0, nil
	}
	return parsed.Score, nil
}

// extractJSONObject pulls the first {...} substring out of resp, since
// chat models sometimes wrap JSON in prose or code fences.
func extractJSONObject(resp string) string {
	start := strings.IndexByte(resp, '{')
	end := strings.LastIndexByte(resp, '}')
	if start < 0 || end < start {
		return resp
	}
	return resp[start : end+1]
}

// dedicatedRerankAdapter implements interfaces.Reranker's one-passage-at-a-
// time Score method over a rerank.Reranker, which scores a batch in one
// call. Used when a tenant deployment points reranking at a dedicated
// rerank API (e.g. Jina) instead of prompting the rerank-step model for a
// JSON score per passage.
type dedicatedRerankAdapter struct {
	reranker rerank.Reranker
}

var _ interfaces.Reranker = (*dedicatedRerankAdapter)(nil)

func newDedicatedRerankAdapter(r rerank.Reranker) *dedicatedRerankAdapter {
	return &dedicatedRerankAdapter{reranker: r}
}

// NewDedicatedReranker adapts a standalone rerank.Reranker (Jina's rerank
// API, or an LLM-prompted one built by rerank.NewReranker) into the
// interfaces.Reranker shape New's reranker parameter expects.
func NewDedicatedReranker(r rerank.Reranker) interfaces.Reranker {
	return newDedicatedRerankAdapter(r)
}

func (a *dedicatedRerankAdapter) Score(ctx context.Context, query, passage string) (float64, error) {
	results, err := a.reranker.Rerank(ctx, query, []string{passage})
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("rerank returned no results for passage")
	}
	return results[0].RelevanceScore, nil
}
