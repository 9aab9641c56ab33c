package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
)

type fakeEmbedder struct {
	dims int
	err  error
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, f.dims), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dims)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

type fakeLLM struct {
	completions map[interfaces.PipelineStep]string
	errs        map[interfaces.PipelineStep]error
	calls       []interfaces.PipelineStep
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string, step interfaces.PipelineStep) (string, error) {
	f.calls = append(f.calls, step)
	if f.errs != nil {
		if err, ok := f.errs[step]; ok {
			return "", err
		}
	}
	if f.completions != nil {
		if out, ok := f.completions[step]; ok {
			return out, nil
		}
	}
	return "", nil
}

func (f *fakeLLM) Chat(ctx context.Context, messages []types.Message, step interfaces.PipelineStep, opts *types.ChatOptions) (*types.ChatResult, error) {
	return nil, nil
}

func (f *fakeLLM) DescribeImage(ctx context.Context, data []byte, mime string) (string, error) {
	return "a photo of a product", nil
}

func (f *fakeLLM) TranscribeAudio(ctx context.Context, data []byte, mime string) (string, error) {
	return "", nil
}

type fakeDocs struct {
	hits          []types.Hit
	insertedChunk []string
	deletedFile   string
	searchErr     error
	insertErr     error
}

func (f *fakeDocs) InsertChunk(ctx context.Context, tenantID uint64, filename, content string, embedding []float32, sourceType string) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.insertedChunk = append(f.insertedChunk, content)
	return nil
}

func (f *fakeDocs) DeleteByFilename(ctx context.Context, tenantID uint64, filename string) error {
	f.deletedFile = filename
	return nil
}

func (f *fakeDocs) HybridSearch(ctx context.Context, tenantID uint64, queryEmbedding []float32, queryText string, k int) ([]types.Hit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

type fakeMemory struct {
	sessionID string
	recent    []types.ChatMessage
	appended  []types.ChatMessage
}

func (f *fakeMemory) CreateSession(ctx context.Context, tenantID uint64) (string, error) {
	return f.sessionID, nil
}

func (f *fakeMemory) Append(ctx context.Context, sessionID, requestID string, role types.MessageRole, content string) error {
	f.appended = append(f.appended, types.ChatMessage{SessionID: sessionID, RequestID: requestID, Role: role, Content: content})
	return nil
}

func (f *fakeMemory) Recent(ctx context.Context, sessionID string, n int) ([]types.ChatMessage, error) {
	return f.recent, nil
}

func (f *fakeMemory) All(ctx context.Context, sessionID string) ([]types.ChatMessage, error) {
	return f.recent, nil
}

func (f *fakeMemory) Delete(ctx context.Context, sessionID string) error { return nil }

type fakeTenants struct {
	config *types.TenantConfig
}

func (f *fakeTenants) Resolve(ctx context.Context, channel, channelKey string) (uint64, bool, error) {
	return 0, false, nil
}

func (f *fakeTenants) LoadConfig(ctx context.Context, tenantID uint64) (*types.TenantConfig, int64, error) {
	return f.config, 1, nil
}

func (f *fakeTenants) InvalidateConfig(tenantID uint64) {}

func newTestEngine(embedder interfaces.Embedder, llm interfaces.LLMProvider, docs interfaces.DocumentStore, memory interfaces.ChatMemory, tenants interfaces.TenantRegistry) *Engine {
	return New(embedder, llm, docs, memory, tenants, nil, nil, 0, nil)
}

func TestEngineIngestText(t *testing.T) {
	t.Run("chunks, embeds, and inserts", func(t *testing.T) {
		docs := &fakeDocs{}
		e := newTestEngine(&fakeEmbedder{dims: 4}, &fakeLLM{}, docs, &fakeMemory{}, nil)
		content := "This is a reasonably long piece of content that should be chunked for indexing purposes across multiple segments of text to exercise the splitter."
		require.NoError(t, e.IngestText(context.Background(), 1, "doc.txt", content))
		assert.NotEmpty(t, docs.insertedChunk)
	})

	t.Run("fails when every chunk insert fails", func(t *testing.T) {
		docs := &fakeDocs{insertErr: errors.New("db down")}
		e := newTestEngine(&fakeEmbedder{dims: 4}, &fakeLLM{}, docs, &fakeMemory{}, nil)
		err := e.IngestText(context.Background(), 1, "doc.txt", "hello world")
		require.Error(t, err)
	})
}

func TestEngineIngestImage(t *testing.T) {
	docs := &fakeDocs{}
	e := newTestEngine(&fakeEmbedder{dims: 4}, &fakeLLM{}, docs, &fakeMemory{}, nil)
	require.NoError(t, e.IngestImage(context.Background(), 1, "photo.png", []byte("binary"), "image/png"))
	require.NotEmpty(t, docs.insertedChunk)
	assert.Contains(t, docs.insertedChunk[0], "a photo of a product")
}

func TestEngineDeleteDocument(t *testing.T) {
	docs := &fakeDocs{}
	e := newTestEngine(&fakeEmbedder{dims: 4}, &fakeLLM{}, docs, &fakeMemory{}, nil)
	require.NoError(t, e.DeleteDocument(context.Background(), 1, "doc.txt"))
	assert.Equal(t, "doc.txt", docs.deletedFile)
}

func TestEngineQuerySmallTalk(t *testing.T) {
	llm := &fakeLLM{completions: map[interfaces.PipelineStep]string{
		interfaces.StepSmallTalk: "Hi, how can I help you today?",
	}}
	memory := &fakeMemory{}
	e := newTestEngine(&fakeEmbedder{dims: 4}, llm, &fakeDocs{}, memory, nil)

	answer, referencesUsed, err := e.Query(context.Background(), interfaces.RAGQueryRequest{
		TenantID: 1,
		Query:    "hey there",
	})
	require.NoError(t, err)
	assert.False(t, referencesUsed)
	assert.Equal(t, "Hi, how can I help you today?", answer)
	assert.Contains(t, llm.calls, interfaces.StepSmallTalk)
}

func TestEngineQueryRAGPath(t *testing.T) {
	t.Run("retrieves and generates an answer with references", func(t *testing.T) {
		llm := &fakeLLM{completions: map[interfaces.PipelineStep]string{
			interfaces.StepGeneration: "Our return policy allows 30 days.",
		}}
		docs := &fakeDocs{hits: []types.Hit{{ChunkID: "c1", Filename: "policy.txt", Content: "30 day returns"}}}
		memory := &fakeMemory{sessionID: "s1"}
		e := newTestEngine(&fakeEmbedder{dims: 4}, llm, docs, memory, nil)

		answer, referencesUsed, err := e.Query(context.Background(), interfaces.RAGQueryRequest{
			TenantID:        1,
			SessionID:       "s1",
			Query:           "what is your return policy",
			ComplexityScore: 1,
		})
		require.NoError(t, err)
		assert.True(t, referencesUsed)
		assert.Equal(t, "Our return policy allows 30 days.", answer)
		require.Len(t, memory.appended, 2)
		assert.Equal(t, types.RoleUser, memory.appended[0].Role)
		assert.Equal(t, types.RoleAI, memory.appended[1].Role)
	})

	t.Run("falls back to retrieval order when rerank fails", func(t *testing.T) {
		llm := &fakeLLM{
			completions: map[interfaces.PipelineStep]string{interfaces.StepGeneration: "ok"},
			errs:        map[interfaces.PipelineStep]error{interfaces.StepRerank: errors.New("rerank model down")},
		}
		docs := &fakeDocs{hits: []types.Hit{{ChunkID: "c1", Filename: "a.txt", Content: "x"}}}
		e := newTestEngine(&fakeEmbedder{dims: 4}, llm, docs, &fakeMemory{}, nil)

		_, referencesUsed, err := e.Query(context.Background(), interfaces.RAGQueryRequest{
			TenantID:        1,
			Query:           "pricing question",
			PricingIntent:   true,
			UseRerank:       true,
		})
		require.NoError(t, err)
		assert.True(t, referencesUsed)
	})

	t.Run("propagates retrieve errors", func(t *testing.T) {
		docs := &fakeDocs{searchErr: errors.New("vector store unavailable")}
		e := newTestEngine(&fakeEmbedder{dims: 4}, &fakeLLM{}, docs, &fakeMemory{}, nil)
		_, _, err := e.Query(context.Background(), interfaces.RAGQueryRequest{
			TenantID:      1,
			Query:         "anything",
			ComplexityScore: 1,
		})
		require.Error(t, err)
	})
}

func TestPairUpHistory(t *testing.T) {
	messages := []types.ChatMessage{
		{RequestID: "r1", Role: types.RoleUser, Content: "hi"},
		{RequestID: "r1", Role: types.RoleAI, Content: "hello"},
		{RequestID: "r2", Role: types.RoleUser, Content: "incomplete round"},
	}
	history := pairUpHistory(messages)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Query)
	assert.Equal(t, "hello", history[0].Answer)
}
