package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/repository"
	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
)

// retrieveMultiplier widens the candidate pool pulled from HybridSearch
// before reranking: reranking needs more raw candidates than it ultimately
// keeps, so k is the post-rerank cap and retrieveMultiplier*k is pulled.
const retrieveMultiplier = 4

// topK is the number of hits the generate stage is shown, after an
// optional rerank pass trims the wider retrieveMultiplier*topK candidate set.
const topK = 5

// defaultHistoryRounds bounds how many (query, answer) rounds are loaded
// as conversational context for contextualize/generate.
const defaultHistoryRounds = 6

// semanticCacheThreshold is the minimum cosine similarity a cached query
// must have to the current one before its cached answer is reused.
const semanticCacheThreshold = 0.97

// Engine implements interfaces.RAGEngine: ingestion (chunk/embed/index) and
// the query pipeline (contextualize, HyDE, hybrid retrieve, rerank,
// generate), run as an ordered chain of stages over one shared
// *types.RAGState, the same way a chat_pipline-style event chain threads a
// shared state object through registered plugins.
type Engine struct {
	embedder interfaces.Embedder
	llm      interfaces.LLMProvider
	docs     interfaces.DocumentStore
	memory   interfaces.ChatMemory
	reranker interfaces.Reranker
	tenants  interfaces.TenantRegistry
	langs    *repository.TenantRepository
	cache    *repository.QueryCache

	historyRounds int
}

var _ interfaces.RAGEngine = (*Engine)(nil)

// New builds the RAG engine. cache may be nil; semantic caching is then
// always skipped regardless of a tenant's rag.semantic_cache setting.
// reranker may be nil, in which case the rerank stage prompts the
// rerank-step model for a JSON relevance score per passage; pass a
// dedicatedRerankAdapter (built via NewDedicatedReranker) to route
// reranking at a standalone rerank API instead.
func New(
	embedder interfaces.Embedder,
	llm interfaces.LLMProvider,
	docs interfaces.DocumentStore,
	memory interfaces.ChatMemory,
	tenants interfaces.TenantRegistry,
	langs *repository.TenantRepository,
	cache *repository.QueryCache,
	historyRounds int,
	reranker interfaces.Reranker,
) *Engine {
	if historyRounds <= 0 {
		historyRounds = defaultHistoryRounds
	}
	if reranker == nil {
		reranker = newJSONRerankScorer(llm)
	}
	return &Engine{
		embedder:      embedder,
		llm:           llm,
		docs:          docs,
		memory:        memory,
		reranker:      reranker,
		tenants:       tenants,
		langs:         langs,
		cache:         cache,
		historyRounds: historyRounds,
	}
}

// IngestText chunks content, embeds each chunk, and indexes it under
// filename for tenantID. A prior version of filename's chunks is not
// removed here; callers that replace a document call DeleteDocument first.
func (e *Engine) IngestText(ctx context.Context, tenantID uint64, filename, content string) error {
	return e.ingest(ctx, tenantID, filename, content, "text")
}

// IngestImage captions data via the configured vision model, prefixes the
// caption with an image marker, and ingests it like any other text chunk.
func (e *Engine) IngestImage(ctx context.Context, tenantID uint64, filename string, data []byte, mime string) error {
	description, err := e.llm.DescribeImage(ctx, data, mime)
	if err != nil {
		return fmt.Errorf("describe image %q: %w", filename, err)
	}
	content := imageDescriptionPrefix(filename) + description
	return e.ingest(ctx, tenantID, filename, content, "image")
}

func (e *Engine) ingest(ctx context.Context, tenantID uint64, filename, content, sourceType string) error {
	chunks := splitIntoChunks(content)
	if len(chunks) == 0 {
		return fmt.Errorf("ingest %q: no content to chunk", filename)
	}

	embeddings, err := e.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embed chunks of %q: %w", filename, err)
	}

	var firstErr error
	inserted := 0
	for i, chunk := range chunks {
		if i >= len(embeddings) {
			break
		}
		if err := e.docs.InsertChunk(ctx, tenantID, filename, chunk, embeddings[i], sourceType); err != nil {
			logger.Errorf(ctx, "[RAGEngine] insert chunk %d/%d of %q failed: %v", i+1, len(chunks), filename, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		inserted++
	}
	if inserted == 0 {
		return fmt.Errorf("ingest %q: every chunk failed to insert: %w", filename, firstErr)
	}
	return nil
}

// DeleteDocument removes every chunk of filename for tenantID.
func (e *Engine) DeleteDocument(ctx context.Context, tenantID uint64, filename string) error {
	return e.docs.DeleteByFilename(ctx, tenantID, filename)
}

// Query runs the full contextualize → HyDE → hybrid-retrieve → rerank →
// generate pipeline, or the lighter small-talk path when the request
// carries neither a pricing intent nor a nonzero complexity score.
func (e *Engine) Query(ctx context.Context, req interfaces.RAGQueryRequest) (string, bool, error) {
	state := &types.RAGState{
		TenantID:        req.TenantID,
		SessionID:       req.SessionID,
		Query:           req.Query,
		ExternalContext: req.ExternalContext,
		UseHyDE:         req.UseHyDE,
		UseRerank:       req.UseRerank,
		ComplexityScore: req.ComplexityScore,
		PricingIntent:   req.PricingIntent,
		Provider:        req.Provider,
		RequiresRAG:     req.PricingIntent || req.ComplexityScore > 0,
	}

	if err := e.loadHistory(ctx, state); err != nil {
		return "", false, fmt.Errorf("load history: %w", err)
	}
	if err := e.contextualize(ctx, state); err != nil {
		return "", false, fmt.Errorf("contextualize: %w", err)
	}
	if err := e.languageInstruction(ctx, state); err != nil {
		logger.Warnf(ctx, "[RAGEngine] language instruction lookup failed, defaulting: %v", err)
	}

	if !state.RequiresRAG {
		if err := e.smallTalk(ctx, state); err != nil {
			return "", false, fmt.Errorf("small talk: %w", err)
		}
		e.persist(ctx, state)
		return state.Answer, false, nil
	}

	cached, ok, err := e.lookupCache(ctx, state)
	if err != nil {
		logger.Warnf(ctx, "[RAGEngine] semantic cache lookup failed: %v", err)
	}
	if ok {
		state.Answer = cached
		e.persist(ctx, state)
		return state.Answer, true, nil
	}

	if err := e.hyde(ctx, state); err != nil {
		return "", false, fmt.Errorf("hyde: %w", err)
	}
	if err := e.retrieve(ctx, state); err != nil {
		return "", false, fmt.Errorf("retrieve: %w", err)
	}
	if err := e.rerank(ctx, state); err != nil {
		logger.Warnf(ctx, "[RAGEngine] rerank failed, falling back to retrieval order: %v", err)
		state.RerankedHits = state.RetrievedHits
	}
	if err := e.generate(ctx, state); err != nil {
		return "", false, fmt.Errorf("generate: %w", err)
	}

	e.persist(ctx, state)
	e.storeCache(ctx, state)
	return state.Answer, state.ReferencesUsed, nil
}

func (e *Engine) loadHistory(ctx context.Context, state *types.RAGState) error {
	if state.SessionID == "" {
		return nil
	}
	messages, err := e.memory.Recent(ctx, state.SessionID, e.historyRounds*2)
	if err != nil {
		return err
	}
	state.History = pairUpHistory(messages)
	return nil
}

// pairUpHistory groups chronological user/ai messages sharing a RequestID
// into (query, answer) rounds, the shape contextualize/generate templating
// expects.
func pairUpHistory(messages []types.ChatMessage) []*types.History {
	byRequest := map[string]*types.History{}
	var order []string
	for _, m := range messages {
		h, ok := byRequest[m.RequestID]
		if !ok {
			h = &types.History{CreateAt: m.CreatedAt}
			byRequest[m.RequestID] = h
			order = append(order, m.RequestID)
		}
		switch m.Role {
		case types.RoleUser:
			h.Query = m.Content
		case types.RoleAI:
			h.Answer = m.Content
		}
	}
	out := make([]*types.History, 0, len(order))
	for _, id := range order {
		h := byRequest[id]
		if h.Query != "" && h.Answer != "" {
			out = append(out, h)
		}
	}
	return out
}

func formatHistory(history []*types.History) string {
	if len(history) == 0 {
		return "(no prior conversation)"
	}
	var sb strings.Builder
	for _, h := range history {
		fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", h.Query, h.Answer)
	}
	return sb.String()
}

func (e *Engine) contextualize(ctx context.Context, state *types.RAGState) error {
	if len(state.History) == 0 {
		state.SearchQuery = state.Query
		return nil
	}
	prompt := render(contextualizePromptTemplate, map[string]string{
		"history": formatHistory(state.History),
		"query":   state.Query,
	})
	rewritten, err := e.llm.Complete(ctx, prompt, interfaces.StepContextualize)
	if err != nil {
		return err
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		rewritten = state.Query
	}
	state.SearchQuery = rewritten
	return nil
}

func (e *Engine) languageInstruction(ctx context.Context, state *types.RAGState) error {
	if e.langs == nil {
		state.LanguageInstruction = languageInstruction(nil)
		return nil
	}
	preferred, err := e.langs.PreferredLanguages(ctx, state.TenantID)
	if err != nil {
		state.LanguageInstruction = languageInstruction(nil)
		return err
	}
	state.LanguageInstruction = languageInstruction(preferred)
	return nil
}

func (e *Engine) smallTalk(ctx context.Context, state *types.RAGState) error {
	prompt := render(smallTalkPromptTemplate, map[string]string{
		"language_instruction": state.LanguageInstruction,
		"history":              formatHistory(state.History),
		"query":                state.Query,
	})
	answer, err := e.llm.Complete(ctx, prompt, interfaces.StepSmallTalk)
	if err != nil {
		return err
	}
	state.Answer = strings.TrimSpace(answer)
	return nil
}

func (e *Engine) hyde(ctx context.Context, state *types.RAGState) error {
	if !state.UseHyDE {
		return nil
	}
	prompt := render(hydePromptTemplate, map[string]string{"query": state.SearchQuery})
	passage, err := e.llm.Complete(ctx, prompt, interfaces.StepHyDE)
	if err != nil {
		return err
	}
	state.HyDEPassage = strings.TrimSpace(passage)
	return nil
}

func (e *Engine) retrieve(ctx context.Context, state *types.RAGState) error {
	embedText := state.SearchQuery
	if state.UseHyDE && state.HyDEPassage != "" {
		embedText = state.HyDEPassage
	}
	vec, err := e.embedder.EmbedQuery(ctx, embedText)
	if err != nil {
		return err
	}

	k := topK
	if state.UseRerank {
		k = topK * retrieveMultiplier
	}
	hits, err := e.docs.HybridSearch(ctx, state.TenantID, vec, state.SearchQuery, k)
	if err != nil {
		return err
	}
	state.RetrievedHits = hits
	return nil
}

func (e *Engine) rerank(ctx context.Context, state *types.RAGState) error {
	if !state.UseRerank || len(state.RetrievedHits) == 0 {
		state.RerankedHits = state.RetrievedHits
		return nil
	}

	type scoredHit struct {
		hit   types.Hit
		score float64
	}
	results := make([]scoredHit, 0, len(state.RetrievedHits))
	for _, hit := range state.RetrievedHits {
		score, err := e.reranker.Score(ctx, state.SearchQuery, hit.Content)
		if err != nil {
			logger.Warnf(ctx, "[RAGEngine] rerank score failed for chunk %s: %v", hit.ChunkID, err)
			score = 0
		}
		results = append(results, scoredHit{hit: hit, score: score})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })

	n := topK
	if n > len(results) {
		n = len(results)
	}
	out := make([]types.Hit, 0, n)
	for _, r := range results[:n] {
		out = append(out, r.hit)
	}
	state.RerankedHits = out
	return nil
}

func formatContexts(hits []types.Hit) string {
	if len(hits) == 0 {
		return "(no relevant passages found)"
	}
	var sb strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&sb, "[%d] (from %s)\n%s\n\n", i+1, h.Filename, h.Content)
	}
	return sb.String()
}

func (e *Engine) generate(ctx context.Context, state *types.RAGState) error {
	hits := state.RerankedHits
	if hits == nil {
		hits = state.RetrievedHits
	}
	prompt := render(ragAnswerPromptTemplate, map[string]string{
		"language_instruction": state.LanguageInstruction,
		"history":              formatHistory(state.History),
		"contexts":             formatContexts(hits),
		"query":                state.Query,
	})
	answer, err := e.llm.Complete(ctx, prompt, interfaces.StepGeneration)
	if err != nil {
		return err
	}
	state.Answer = strings.TrimSpace(answer)
	state.ReferencesUsed = len(hits) > 0
	return nil
}

// persist appends the (query, answer) round to ChatMemory under a shared
// request id; best-effort since a persistence failure should not fail an
// otherwise-successful answer.
func (e *Engine) persist(ctx context.Context, state *types.RAGState) {
	if state.SessionID == "" {
		return
	}
	requestID := uuid.NewString()
	if err := e.memory.Append(ctx, state.SessionID, requestID, types.RoleUser, state.Query); err != nil {
		logger.Errorf(ctx, "[RAGEngine] persist user turn failed: %v", err)
	}
	if err := e.memory.Append(ctx, state.SessionID, requestID, types.RoleAI, state.Answer); err != nil {
		logger.Errorf(ctx, "[RAGEngine] persist assistant turn failed: %v", err)
	}
}

func (e *Engine) lookupCache(ctx context.Context, state *types.RAGState) (string, bool, error) {
	if e.cache == nil || !e.semanticCacheEnabled(ctx, state.TenantID) {
		return "", false, nil
	}
	vec, err := e.embedder.EmbedQuery(ctx, state.Query)
	if err != nil {
		return "", false, err
	}
	return e.cache.Lookup(ctx, state.TenantID, vec, semanticCacheThreshold)
}

func (e *Engine) storeCache(ctx context.Context, state *types.RAGState) {
	if e.cache == nil || !e.semanticCacheEnabled(ctx, state.TenantID) {
		return
	}
	vec, err := e.embedder.EmbedQuery(ctx, state.Query)
	if err != nil {
		logger.Warnf(ctx, "[RAGEngine] cache embed failed, skipping store: %v", err)
		return
	}
	if err := e.cache.Store(ctx, state.TenantID, state.Query, vec, state.Answer); err != nil {
		logger.Warnf(ctx, "[RAGEngine] cache store failed: %v", err)
	}
}

func (e *Engine) semanticCacheEnabled(ctx context.Context, tenantID uint64) bool {
	if e.tenants == nil {
		return false
	}
	cfg, _, err := e.tenants.LoadConfig(ctx, tenantID)
	if err != nil || cfg == nil {
		return false
	}
	return cfg.RAG.SemanticCache
}
