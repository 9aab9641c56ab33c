package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
)

type fakeTenants struct {
	tenantID uint64
	resolved bool
	config   *types.TenantConfig
	err      error
}

func (f *fakeTenants) Resolve(ctx context.Context, channel, channelKey string) (uint64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	return f.tenantID, f.resolved, nil
}

func (f *fakeTenants) LoadConfig(ctx context.Context, tenantID uint64) (*types.TenantConfig, int64, error) {
	return f.config, 1, nil
}

func (f *fakeTenants) InvalidateConfig(tenantID uint64) {}

type fakeSessions struct {
	binding      *types.ConversationBinding
	pausedCalls  []bool
	chatSessions []string
	err          error
}

func (f *fakeSessions) GetOrCreateBinding(ctx context.Context, tenantID uint64, externalID string) (*types.ConversationBinding, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.binding == nil {
		f.binding = &types.ConversationBinding{TenantID: tenantID, ExternalID: externalID}
	}
	return f.binding, nil
}

// SetPaused mirrors sessionStore.SetPaused's upsert-first behavior: a
// binding is created if this is the first event ever seen for (tenantID,
// externalID), so the pause flag always has a row to land on.
func (f *fakeSessions) SetPaused(ctx context.Context, tenantID uint64, externalID string, paused bool) error {
	binding, err := f.GetOrCreateBinding(ctx, tenantID, externalID)
	if err != nil {
		return err
	}
	f.pausedCalls = append(f.pausedCalls, paused)
	binding.Paused = paused
	return nil
}

func (f *fakeSessions) SetChatSession(ctx context.Context, binding *types.ConversationBinding, chatSessionID string) error {
	f.chatSessions = append(f.chatSessions, chatSessionID)
	binding.ChatSessionID = &chatSessionID
	return nil
}

func (f *fakeSessions) Purge(ctx context.Context, binding *types.ConversationBinding) error { return nil }

type fakeQuota struct {
	admitted bool
	exceeded bool
	err      error
}

func (f *fakeQuota) Admit(ctx context.Context, tenantID uint64) (bool, bool, error) {
	return f.admitted, f.exceeded, f.err
}

type fakeMemory struct {
	sessionID string
	err       error
}

func (f *fakeMemory) CreateSession(ctx context.Context, tenantID uint64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.sessionID, nil
}

func (f *fakeMemory) Append(ctx context.Context, sessionID, requestID string, role types.MessageRole, content string) error {
	return nil
}

func (f *fakeMemory) Recent(ctx context.Context, sessionID string, n int) ([]types.ChatMessage, error) {
	return nil, nil
}

func (f *fakeMemory) All(ctx context.Context, sessionID string) ([]types.ChatMessage, error) {
	return nil, nil
}

func (f *fakeMemory) Delete(ctx context.Context, sessionID string) error { return nil }

type fakeAgent struct {
	result interfaces.AgentResult
	err    error
}

func (f *fakeAgent) Run(ctx context.Context, tenantID uint64, sessionID, modelName, userTurn string) (interfaces.AgentResult, error) {
	if f.err != nil {
		return interfaces.AgentResult{}, f.err
	}
	return f.result, nil
}

type fakeLLM struct {
	transcript string
	err        error
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string, step interfaces.PipelineStep) (string, error) {
	return "", nil
}

func (f *fakeLLM) Chat(ctx context.Context, messages []types.Message, step interfaces.PipelineStep, opts *types.ChatOptions) (*types.ChatResult, error) {
	return nil, nil
}

func (f *fakeLLM) DescribeImage(ctx context.Context, data []byte, mime string) (string, error) {
	return "", nil
}

func (f *fakeLLM) TranscribeAudio(ctx context.Context, data []byte, mime string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.transcript, nil
}

type fakeSender struct {
	sentTexts []string
	handoffs  []bool
	sendErr   error
}

func (f *fakeSender) SendText(ctx context.Context, externalID, text string) error {
	f.sentTexts = append(f.sentTexts, text)
	return f.sendErr
}

func (f *fakeSender) SetHumanHandoff(ctx context.Context, externalID string, requiresHuman bool) error {
	f.handoffs = append(f.handoffs, requiresHuman)
	return nil
}

func newOrchestrator(tenants *fakeTenants, sessions *fakeSessions, quota *fakeQuota, memory *fakeMemory, agent *fakeAgent, llm *fakeLLM, sender *fakeSender) *Orchestrator {
	senders := func(channel string, cfg *types.TenantConfig) (interfaces.ChannelSender, error) {
		return sender, nil
	}
	return New(tenants, sessions, quota, memory, agent, llm, senders, nil)
}

func baseEvent() types.InboundEvent {
	return types.InboundEvent{
		Channel:    "evolution",
		TenantKey:  "inst-1",
		ExternalID: "user-1",
		Kind:       types.KindText,
		Text:       "hello there",
	}
}

func TestHandleInbound(t *testing.T) {
	t.Run("ignores events from us", func(t *testing.T) {
		o := newOrchestrator(&fakeTenants{}, &fakeSessions{}, &fakeQuota{}, &fakeMemory{}, &fakeAgent{}, &fakeLLM{}, &fakeSender{})
		event := baseEvent()
		event.FromUs = true
		require.NoError(t, o.HandleInbound(context.Background(), event))
	})

	t.Run("ignores unknown tenant", func(t *testing.T) {
		o := newOrchestrator(&fakeTenants{resolved: false}, &fakeSessions{}, &fakeQuota{}, &fakeMemory{}, &fakeAgent{}, &fakeLLM{}, &fakeSender{})
		require.NoError(t, o.HandleInbound(context.Background(), baseEvent()))
	})

	t.Run("propagates tenant resolution errors", func(t *testing.T) {
		o := newOrchestrator(&fakeTenants{err: errors.New("db down")}, &fakeSessions{}, &fakeQuota{}, &fakeMemory{}, &fakeAgent{}, &fakeLLM{}, &fakeSender{})
		require.Error(t, o.HandleInbound(context.Background(), baseEvent()))
	})

	t.Run("pause magic word replies and skips the pipeline", func(t *testing.T) {
		sender := &fakeSender{}
		sessions := &fakeSessions{binding: &types.ConversationBinding{}}
		o := newOrchestrator(&fakeTenants{tenantID: 1, resolved: true, config: &types.TenantConfig{}}, sessions, &fakeQuota{}, &fakeMemory{}, &fakeAgent{}, &fakeLLM{}, sender)
		event := baseEvent()
		event.Text = "#stop"
		require.NoError(t, o.HandleInbound(context.Background(), event))
		assert.Equal(t, []bool{true}, sessions.pausedCalls)
		require.Len(t, sender.sentTexts, 1)
		assert.Equal(t, pauseConfirmation, sender.sentTexts[0])
	})

	t.Run("pause magic word on a brand-new conversation still creates a paused binding", func(t *testing.T) {
		sender := &fakeSender{}
		sessions := &fakeSessions{}
		o := newOrchestrator(&fakeTenants{tenantID: 1, resolved: true, config: &types.TenantConfig{}}, sessions, &fakeQuota{}, &fakeMemory{}, &fakeAgent{}, &fakeLLM{}, sender)
		event := baseEvent()
		event.Text = "#stop"
		require.NoError(t, o.HandleInbound(context.Background(), event))
		require.NotNil(t, sessions.binding)
		assert.True(t, sessions.binding.Paused)

		agent := &fakeAgent{}
		o2 := newOrchestrator(&fakeTenants{tenantID: 1, resolved: true, config: &types.TenantConfig{}}, sessions, &fakeQuota{admitted: true}, &fakeMemory{}, agent, &fakeLLM{}, sender)
		require.NoError(t, o2.HandleInbound(context.Background(), baseEvent()))
		assert.Empty(t, sender.sentTexts[1:])
	})

	t.Run("resume magic word is case-insensitive and trims whitespace", func(t *testing.T) {
		sender := &fakeSender{}
		sessions := &fakeSessions{binding: &types.ConversationBinding{Paused: true}}
		o := newOrchestrator(&fakeTenants{tenantID: 1, resolved: true, config: &types.TenantConfig{}}, sessions, &fakeQuota{}, &fakeMemory{}, &fakeAgent{}, &fakeLLM{}, sender)
		event := baseEvent()
		event.Text = "  #BOT  "
		require.NoError(t, o.HandleInbound(context.Background(), event))
		assert.Equal(t, []bool{false}, sessions.pausedCalls)
		assert.Equal(t, resumeConfirmation, sender.sentTexts[0])
	})

	t.Run("skips paused bindings", func(t *testing.T) {
		sessions := &fakeSessions{binding: &types.ConversationBinding{Paused: true}}
		agent := &fakeAgent{}
		o := newOrchestrator(&fakeTenants{tenantID: 1, resolved: true, config: &types.TenantConfig{}}, sessions, &fakeQuota{admitted: true}, &fakeMemory{}, agent, &fakeLLM{}, &fakeSender{})
		require.NoError(t, o.HandleInbound(context.Background(), baseEvent()))
	})

	t.Run("drops messages once quota is exceeded", func(t *testing.T) {
		sessions := &fakeSessions{binding: &types.ConversationBinding{}}
		agent := &fakeAgent{}
		o := newOrchestrator(&fakeTenants{tenantID: 1, resolved: true, config: &types.TenantConfig{}}, sessions, &fakeQuota{admitted: false, exceeded: true}, &fakeMemory{}, agent, &fakeLLM{}, &fakeSender{})
		require.NoError(t, o.HandleInbound(context.Background(), baseEvent()))
	})

	t.Run("runs the agent and sends the reply on a fresh session", func(t *testing.T) {
		sender := &fakeSender{}
		sessions := &fakeSessions{binding: &types.ConversationBinding{}}
		memory := &fakeMemory{sessionID: "sess-new"}
		agent := &fakeAgent{result: interfaces.AgentResult{Text: "hi back", RequiresHuman: false}}
		o := newOrchestrator(&fakeTenants{tenantID: 1, resolved: true, config: &types.TenantConfig{}}, sessions, &fakeQuota{admitted: true}, memory, agent, &fakeLLM{}, sender)
		require.NoError(t, o.HandleInbound(context.Background(), baseEvent()))
		assert.Equal(t, []string{"sess-new"}, sessions.chatSessions)
		require.Len(t, sender.sentTexts, 1)
		assert.Equal(t, "hi back", sender.sentTexts[0])
		assert.Equal(t, []bool{false}, sender.handoffs)
	})

	t.Run("reuses an existing chat session without persisting it again", func(t *testing.T) {
		existing := "sess-existing"
		sessions := &fakeSessions{binding: &types.ConversationBinding{ChatSessionID: &existing}}
		agent := &fakeAgent{result: interfaces.AgentResult{Text: "ok"}}
		sender := &fakeSender{}
		o := newOrchestrator(&fakeTenants{tenantID: 1, resolved: true, config: &types.TenantConfig{}}, sessions, &fakeQuota{admitted: true}, &fakeMemory{}, agent, &fakeLLM{}, sender)
		require.NoError(t, o.HandleInbound(context.Background(), baseEvent()))
		assert.Empty(t, sessions.chatSessions)
	})

	t.Run("hands off to a human when the agent fails", func(t *testing.T) {
		sender := &fakeSender{}
		sessions := &fakeSessions{binding: &types.ConversationBinding{}}
		agent := &fakeAgent{err: errors.New("provider timeout")}
		o := newOrchestrator(&fakeTenants{tenantID: 1, resolved: true, config: &types.TenantConfig{}}, sessions, &fakeQuota{admitted: true}, &fakeMemory{sessionID: "s1"}, agent, &fakeLLM{}, sender)
		require.NoError(t, o.HandleInbound(context.Background(), baseEvent()))
		require.Len(t, sender.sentTexts, 1)
		assert.Equal(t, []bool{true}, sender.handoffs)
	})

	t.Run("drops empty text messages", func(t *testing.T) {
		sessions := &fakeSessions{binding: &types.ConversationBinding{}}
		agent := &fakeAgent{}
		o := newOrchestrator(&fakeTenants{tenantID: 1, resolved: true, config: &types.TenantConfig{}}, sessions, &fakeQuota{admitted: true}, &fakeMemory{}, agent, &fakeLLM{}, &fakeSender{})
		event := baseEvent()
		event.Text = "   "
		require.NoError(t, o.HandleInbound(context.Background(), event))
	})

	t.Run("transcribes audio and runs the agent on the transcript", func(t *testing.T) {
		sender := &fakeSender{}
		sessions := &fakeSessions{binding: &types.ConversationBinding{}}
		agent := &fakeAgent{result: interfaces.AgentResult{Text: "got it"}}
		llm := &fakeLLM{transcript: "what are your hours"}
		audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("voice-note-bytes"))
		}))
		defer audio.Close()
		o := newOrchestrator(&fakeTenants{tenantID: 1, resolved: true, config: &types.TenantConfig{}}, sessions, &fakeQuota{admitted: true}, &fakeMemory{sessionID: "s1"}, agent, llm, sender)
		event := baseEvent()
		event.Kind = types.KindAudio
		event.Text = ""
		event.Attachments = []types.Attachment{{URL: audio.URL + "/a.ogg", MimeType: "audio/ogg"}}
		require.NoError(t, o.HandleInbound(context.Background(), event))
		assert.Equal(t, []string{"got it"}, sender.sentTexts)
	})

	t.Run("hands off to a human when transcription fails", func(t *testing.T) {
		sender := &fakeSender{}
		sessions := &fakeSessions{binding: &types.ConversationBinding{}}
		llm := &fakeLLM{err: errors.New("asr unavailable")}
		o := newOrchestrator(&fakeTenants{tenantID: 1, resolved: true, config: &types.TenantConfig{}}, sessions, &fakeQuota{admitted: true}, &fakeMemory{}, &fakeAgent{}, llm, sender)
		event := baseEvent()
		event.Kind = types.KindAudio
		event.Text = ""
		event.Attachments = []types.Attachment{{URL: "http://example.test/a.ogg", MimeType: "audio/ogg"}}
		require.NoError(t, o.HandleInbound(context.Background(), event))
		assert.Equal(t, []bool{true}, sender.handoffs)
	})
}

func TestHandleConversationResolved(t *testing.T) {
	t.Run("does nothing without a chat session", func(t *testing.T) {
		sessions := &fakeSessions{binding: &types.ConversationBinding{ID: 7}}
		o := newOrchestrator(&fakeTenants{}, sessions, &fakeQuota{}, &fakeMemory{}, &fakeAgent{}, &fakeLLM{}, &fakeSender{})
		require.NoError(t, o.HandleConversationResolved(context.Background(), 1, "user-1", types.Sender{}))
	})

	t.Run("skips enqueue without a task client", func(t *testing.T) {
		sessionID := "sess-1"
		sessions := &fakeSessions{binding: &types.ConversationBinding{ID: 7, ChatSessionID: &sessionID}}
		o := newOrchestrator(&fakeTenants{}, sessions, &fakeQuota{}, &fakeMemory{}, &fakeAgent{}, &fakeLLM{}, &fakeSender{})
		require.NoError(t, o.HandleConversationResolved(context.Background(), 1, "user-1", types.Sender{Email: "a@b.com"}))
	})
}

func TestKeyedMutex(t *testing.T) {
	km := newKeyedMutex()
	unlock1 := km.Lock("a")
	unlock2 := km.Lock("b")
	unlock1()
	unlock2()

	unlock3 := km.Lock("a")
	unlock3()
}
