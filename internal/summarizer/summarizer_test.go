package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
)

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string, step interfaces.PipelineStep) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeLLM) Chat(ctx context.Context, messages []types.Message, step interfaces.PipelineStep, opts *types.ChatOptions) (*types.ChatResult, error) {
	return nil, nil
}

func (f *fakeLLM) DescribeImage(ctx context.Context, data []byte, mime string) (string, error) {
	return "", nil
}

func (f *fakeLLM) TranscribeAudio(ctx context.Context, data []byte, mime string) (string, error) {
	return "", nil
}

type fakeMemory struct {
	messages  []types.ChatMessage
	deletedID string
	loadErr   error
}

func (f *fakeMemory) CreateSession(ctx context.Context, tenantID uint64) (string, error) {
	return "", nil
}

func (f *fakeMemory) Append(ctx context.Context, sessionID, requestID string, role types.MessageRole, content string) error {
	return nil
}

func (f *fakeMemory) Recent(ctx context.Context, sessionID string, n int) ([]types.ChatMessage, error) {
	return f.messages, nil
}

func (f *fakeMemory) All(ctx context.Context, sessionID string) ([]types.ChatMessage, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.messages, nil
}

func (f *fakeMemory) Delete(ctx context.Context, sessionID string) error {
	f.deletedID = sessionID
	return nil
}

type fakeTenants struct {
	config *types.TenantConfig
	err    error
}

func (f *fakeTenants) Resolve(ctx context.Context, channel, channelKey string) (uint64, bool, error) {
	return 0, false, nil
}

func (f *fakeTenants) LoadConfig(ctx context.Context, tenantID uint64) (*types.TenantConfig, int64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.config, 1, nil
}

func (f *fakeTenants) InvalidateConfig(tenantID uint64) {}

type fakeSessions struct {
	purgedID uint64
}

func (f *fakeSessions) GetOrCreateBinding(ctx context.Context, tenantID uint64, externalID string) (*types.ConversationBinding, error) {
	return nil, nil
}

func (f *fakeSessions) SetPaused(ctx context.Context, tenantID uint64, externalID string, paused bool) error {
	return nil
}

func (f *fakeSessions) SetChatSession(ctx context.Context, binding *types.ConversationBinding, chatSessionID string) error {
	return nil
}

func (f *fakeSessions) Purge(ctx context.Context, binding *types.ConversationBinding) error {
	f.purgedID = binding.ID
	return nil
}

type fakeCRMAdapter struct {
	name       string
	err        error
	mu         sync.Mutex
	syncedCall bool
}

func (f *fakeCRMAdapter) Name() string { return f.name }

func (f *fakeCRMAdapter) SyncLead(ctx context.Context, name, email, phone string) error { return nil }

func (f *fakeCRMAdapter) SyncContact(ctx context.Context, contact types.ContactInfo) error { return nil }

func (f *fakeCRMAdapter) UpdateLeadSummary(ctx context.Context, email, phone string, summary *types.ConversationSummary) error {
	f.mu.Lock()
	f.syncedCall = true
	f.mu.Unlock()
	return f.err
}

func TestSummarize(t *testing.T) {
	t.Run("returns a neutral placeholder for an empty transcript", func(t *testing.T) {
		s := New(&fakeLLM{}, &fakeMemory{}, &fakeTenants{}, &fakeSessions{}, nil)
		summary, err := s.Summarize(context.Background(), "sess-1")
		require.NoError(t, err)
		assert.Equal(t, types.IntentNone, summary.PurchaseIntent)
		assert.Equal(t, "No conversation history available.", summary.AISummary)
	})

	t.Run("parses a well-formed JSON summary", func(t *testing.T) {
		raw := `{"purchase_intent":"High","urgency_level":"Urgent","sentiment_score":"Positive","ai_summary":"wants a demo","contact_info":{"email":"jane@example.com"}}`
		llm := &fakeLLM{response: raw}
		memory := &fakeMemory{messages: []types.ChatMessage{
			{Role: types.RoleUser, Content: "hi", CreatedAt: time.Now()},
			{Role: types.RoleAI, Content: "hello", CreatedAt: time.Now()},
		}}
		s := New(llm, memory, &fakeTenants{}, &fakeSessions{}, nil)
		summary, err := s.Summarize(context.Background(), "sess-1")
		require.NoError(t, err)
		assert.Equal(t, types.IntentHigh, summary.PurchaseIntent)
		assert.Equal(t, "jane@example.com", summary.ContactInfo.Email)
	})

	t.Run("unwraps a code-fenced JSON response", func(t *testing.T) {
		raw := "```json\n{\"purchase_intent\":\"Low\",\"urgency_level\":\"Low\",\"sentiment_score\":\"Neutral\",\"ai_summary\":\"just browsing\"}\n```"
		llm := &fakeLLM{response: raw}
		memory := &fakeMemory{messages: []types.ChatMessage{{Role: types.RoleUser, Content: "hi", CreatedAt: time.Now()}}}
		s := New(llm, memory, &fakeTenants{}, &fakeSessions{}, nil)
		summary, err := s.Summarize(context.Background(), "sess-1")
		require.NoError(t, err)
		assert.Equal(t, types.IntentLow, summary.PurchaseIntent)
	})

	t.Run("degrades to a neutral summary on malformed JSON", func(t *testing.T) {
		llm := &fakeLLM{response: "not json at all"}
		memory := &fakeMemory{messages: []types.ChatMessage{{Role: types.RoleUser, Content: "hi", CreatedAt: time.Now()}}}
		s := New(llm, memory, &fakeTenants{}, &fakeSessions{}, nil)
		summary, err := s.Summarize(context.Background(), "sess-1")
		require.NoError(t, err)
		assert.Equal(t, types.IntentNone, summary.PurchaseIntent)
		assert.Equal(t, "not json at all", summary.AISummary)
	})

	t.Run("propagates transcript load failures", func(t *testing.T) {
		memory := &fakeMemory{loadErr: errors.New("db down")}
		s := New(&fakeLLM{}, memory, &fakeTenants{}, &fakeSessions{}, nil)
		_, err := s.Summarize(context.Background(), "sess-1")
		require.Error(t, err)
	})
}

func TestHandle(t *testing.T) {
	t.Run("summarizes, syncs crms, and purges memory and binding", func(t *testing.T) {
		memory := &fakeMemory{messages: []types.ChatMessage{
			{Role: types.RoleUser, Content: "hi", CreatedAt: time.Now()},
			{Role: types.RoleAI, Content: "hello", CreatedAt: time.Now()},
		}}
		llm := &fakeLLM{response: `{"purchase_intent":"Medium","urgency_level":"Normal","sentiment_score":"Neutral","ai_summary":"interested"}`}
		crm := &fakeCRMAdapter{name: "espocrm"}
		sessions := &fakeSessions{}
		s := New(llm, memory, &fakeTenants{config: &types.TenantConfig{}}, sessions, func(cfg *types.TenantConfig) []interfaces.CRMAdapter {
			return []interfaces.CRMAdapter{crm}
		})

		payload, err := json.Marshal(TaskPayload{TenantID: 1, BindingID: 9, SessionID: "sess-1", Email: "fallback@example.com"})
		require.NoError(t, err)
		task := asynq.NewTask(TaskTypeSummarizeAndSync, payload)

		require.NoError(t, s.Handle(context.Background(), task))
		assert.Equal(t, "sess-1", memory.deletedID)
		assert.Equal(t, uint64(9), sessions.purgedID)
		crm.mu.Lock()
		defer crm.mu.Unlock()
		assert.True(t, crm.syncedCall)
	})

	t.Run("uses the payload email/phone as a fallback when the summary has none", func(t *testing.T) {
		memory := &fakeMemory{messages: []types.ChatMessage{{Role: types.RoleUser, Content: "hi", CreatedAt: time.Now()}}}
		llm := &fakeLLM{response: `{"purchase_intent":"None","urgency_level":"Low","sentiment_score":"Neutral","ai_summary":"n/a"}`}
		var gotEmail string
		crm := &fakeCRMAdapter{name: "hubspot"}
		sessions := &fakeSessions{}
		s := New(llm, memory, &fakeTenants{config: &types.TenantConfig{}}, sessions, func(cfg *types.TenantConfig) []interfaces.CRMAdapter {
			return []interfaces.CRMAdapter{crm}
		})
		payload, _ := json.Marshal(TaskPayload{TenantID: 1, BindingID: 1, SessionID: "s1", Email: "fallback@example.com"})
		require.NoError(t, s.Handle(context.Background(), asynq.NewTask(TaskTypeSummarizeAndSync, payload)))
		_ = gotEmail
		crm.mu.Lock()
		defer crm.mu.Unlock()
		assert.True(t, crm.syncedCall)
	})

	t.Run("returns an error for an undecodable payload", func(t *testing.T) {
		s := New(&fakeLLM{}, &fakeMemory{}, &fakeTenants{}, &fakeSessions{}, nil)
		task := asynq.NewTask(TaskTypeSummarizeAndSync, []byte("not json"))
		require.Error(t, s.Handle(context.Background(), task))
	})

	t.Run("propagates a summarization failure without purging", func(t *testing.T) {
		memory := &fakeMemory{loadErr: errors.New("db down")}
		sessions := &fakeSessions{}
		s := New(&fakeLLM{}, memory, &fakeTenants{}, sessions, nil)
		payload, _ := json.Marshal(TaskPayload{TenantID: 1, BindingID: 1, SessionID: "s1"})
		err := s.Handle(context.Background(), asynq.NewTask(TaskTypeSummarizeAndSync, payload))
		require.Error(t, err)
		assert.Empty(t, memory.deletedID)
	})
}
