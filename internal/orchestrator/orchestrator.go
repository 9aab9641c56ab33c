// Package orchestrator drives the per-message inbound pipeline shared by
// every channel: normalize (done by the caller before HandleInbound),
// loop-guard, magic-word pause/resume, tenant resolution, pause/quota
// gating, audio transcription, history/session wiring, the bounded agent
// turn, reply + status emission, and usage persistence. Grounded on
// original_source/vdbot/app/controller/evolution.py's process_webhook and
// original_source/veridata/veridata_bot/app/bot/actions.py's
// handle_chatwoot_response/handle_conversation_resolution.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/summarizer"
	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
	"github.com/veridesk/platform/internal/utils"
)

// pauseWords and resumeWords are matched case-insensitively against the
// trimmed message text, after loop prevention and tenant resolution and
// ahead of the pause, quota and content gates.
var (
	pauseWords  = map[string]bool{"#stop": true, "#human": true, "#humano": true, "#parar": true, "#pause": true}
	resumeWords = map[string]bool{"#bot": true, "#start": true, "#iniciar": true, "#resume": true, "#auto": true}
)

const (
	pauseConfirmation    = "A human will take it from here. Send #bot anytime to bring the assistant back."
	resumeConfirmation   = "I'm back. How can I help?"
	audioDownloadTimeout = 60 * time.Second
)

// ChannelSenderFactory builds (or returns a cached) sender for one
// tenant's channel credentials, injected so this package never imports the
// concrete HTTP adapters in internal/channel directly.
type ChannelSenderFactory func(channel string, cfg *types.TenantConfig) (interfaces.ChannelSender, error)

// Orchestrator wires the per-message pipeline over the shared service
// surfaces; one instance serves every tenant and every channel.
type Orchestrator struct {
	tenants  interfaces.TenantRegistry
	sessions interfaces.SessionStore
	quota    interfaces.QuotaGuard
	memory   interfaces.ChatMemory
	agent    interfaces.AgentRuntime
	llm      interfaces.LLMProvider
	senders  ChannelSenderFactory
	tasks    *asynq.Client

	httpClient *http.Client

	locks *keyedMutex
}

// New builds an Orchestrator. tasks may be nil in tests that don't exercise
// the conversation-resolved path.
func New(
	tenants interfaces.TenantRegistry,
	sessions interfaces.SessionStore,
	quota interfaces.QuotaGuard,
	memory interfaces.ChatMemory,
	agent interfaces.AgentRuntime,
	llm interfaces.LLMProvider,
	senders ChannelSenderFactory,
	tasks *asynq.Client,
) *Orchestrator {
	return &Orchestrator{
		tenants:    tenants,
		sessions:   sessions,
		quota:      quota,
		memory:     memory,
		agent:      agent,
		llm:        llm,
		senders:    senders,
		tasks:      tasks,
		httpClient: &http.Client{Timeout: audioDownloadTimeout},
		locks:      newKeyedMutex(),
	}
}

// HandleInbound runs the 11-step pipeline for one normalized event. Every
// early nil return below is an intentional "ignore" per the gating rules;
// only resolution, storage, quota and sender-construction failures are
// returned as errors.
func (o *Orchestrator) HandleInbound(ctx context.Context, event types.InboundEvent) error {
	// Step 2: loop prevention is mandatory before any other gate.
	if event.FromUs {
		return nil
	}

	// Per-conversation turns are serialized so memory appends and the
	// pause/quota/session state transitions they drive never interleave.
	unlock := o.locks.Lock(event.Channel + ":" + event.TenantKey + ":" + event.ExternalID)
	defer unlock()

	// Step 4: tenant resolution happens before magic words so pause state
	// is recorded against the right tenant.
	tenantID, ok, err := o.tenants.Resolve(ctx, event.Channel, event.TenantKey)
	if err != nil {
		return fmt.Errorf("resolve tenant: %w", err)
	}
	if !ok {
		logger.Warnf(ctx, "[Orchestrator] unknown tenant key channel=%s key=%s", event.Channel, event.TenantKey)
		return nil
	}

	// Step 3: magic-word commands bypass every gate below.
	if handled, err := o.handleMagicWord(ctx, tenantID, event); handled || err != nil {
		return err
	}

	cfg, _, err := o.tenants.LoadConfig(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load tenant %d config: %w", tenantID, err)
	}

	binding, err := o.sessions.GetOrCreateBinding(ctx, tenantID, event.ExternalID)
	if err != nil {
		return fmt.Errorf("get or create binding: %w", err)
	}

	// Step 5.
	if binding.Paused {
		return nil
	}

	// Step 6.
	admitted, exceeded, err := o.quota.Admit(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("admit quota: %w", err)
	}
	if !admitted {
		if exceeded {
			logger.Infof(ctx, "[Orchestrator] tenant %d quota exceeded, dropping message", tenantID)
		}
		return nil
	}

	// Step 7.
	userText := event.Text
	if event.Kind == types.KindAudio && userText == "" {
		transcript, err := o.transcribe(ctx, event.Attachments)
		if err != nil {
			logger.Errorf(ctx, "[Orchestrator] transcription failed: %v", err)
			return o.replyWithHumanHandoff(ctx, cfg, event)
		}
		if strings.TrimSpace(transcript) == "" {
			return nil
		}
		userText = transcript
	}
	if strings.TrimSpace(userText) == "" {
		return nil
	}

	// Step 8: lazily provision a ChatMemory session; persisted onto the
	// binding only once the agent turn below actually succeeds.
	sessionID, isNewSession, err := o.sessionFor(ctx, tenantID, binding)
	if err != nil {
		return fmt.Errorf("prepare chat session: %w", err)
	}

	// Step 9.
	modelName := cfg.LLMConfig.DefaultModel
	result, err := o.agent.Run(ctx, tenantID, sessionID, modelName, userText)
	if err != nil {
		logger.Errorf(ctx, "[Orchestrator] agent run failed for tenant %d: %v", tenantID, err)
		return o.replyWithHumanHandoff(ctx, cfg, event)
	}

	if isNewSession {
		if err := o.sessions.SetChatSession(ctx, binding, sessionID); err != nil {
			logger.Warnf(ctx, "[Orchestrator] failed to persist chat session on binding: %v", err)
		}
	}

	// Step 10.
	sender, err := o.senders(event.Channel, cfg)
	if err != nil {
		return fmt.Errorf("build %s sender: %w", event.Channel, err)
	}
	if err := sender.SendText(ctx, event.ExternalID, result.Text); err != nil {
		logger.Errorf(ctx, "[Orchestrator] send reply failed: %v", err)
	}
	if err := sender.SetHumanHandoff(ctx, event.ExternalID, result.RequiresHuman); err != nil {
		logger.Warnf(ctx, "[Orchestrator] set handoff status failed: %v", err)
	}

	// Step 11: usage_count is already persisted atomically by
	// QuotaGuard.Admit against the tenant row; the binding itself only
	// tracks pause state and its chat session, both already persisted
	// above, so there is nothing further to write here.
	return nil
}

// handleMagicWord checks text against the pause/resume command sets,
// applying the corresponding pause flag and confirmation reply. Returns
// handled=true when the event matched and the pipeline should stop here.
func (o *Orchestrator) handleMagicWord(ctx context.Context, tenantID uint64, event types.InboundEvent) (bool, error) {
	word := strings.ToLower(strings.TrimSpace(event.Text))
	if word == "" {
		return false, nil
	}

	var paused bool
	var confirmation string
	switch {
	case pauseWords[word]:
		paused, confirmation = true, pauseConfirmation
	case resumeWords[word]:
		paused, confirmation = false, resumeConfirmation
	default:
		return false, nil
	}

	if err := o.sessions.SetPaused(ctx, tenantID, event.ExternalID, paused); err != nil {
		return true, fmt.Errorf("set paused=%v: %w", paused, err)
	}

	cfg, _, err := o.tenants.LoadConfig(ctx, tenantID)
	if err != nil {
		return true, fmt.Errorf("load tenant %d config: %w", tenantID, err)
	}
	sender, err := o.senders(event.Channel, cfg)
	if err != nil {
		return true, fmt.Errorf("build %s sender: %w", event.Channel, err)
	}
	if err := sender.SendText(ctx, event.ExternalID, confirmation); err != nil {
		logger.Errorf(ctx, "[Orchestrator] magic-word confirmation reply failed: %v", err)
	}
	return true, nil
}

// sessionFor returns the binding's existing ChatMemory session, or creates
// one. isNew tells the caller whether to persist it onto the binding after
// a successful agent turn.
func (o *Orchestrator) sessionFor(ctx context.Context, tenantID uint64, binding *types.ConversationBinding) (sessionID string, isNew bool, err error) {
	if binding.ChatSessionID != nil && *binding.ChatSessionID != "" {
		return *binding.ChatSessionID, false, nil
	}
	sessionID, err = o.memory.CreateSession(ctx, tenantID)
	if err != nil {
		return "", false, err
	}
	return sessionID, true, nil
}

// transcribe downloads every audio attachment and concatenates their
// transcripts; empty input or an empty resulting transcript is the
// caller's signal to drop the message per step 7.
func (o *Orchestrator) transcribe(ctx context.Context, attachments []types.Attachment) (string, error) {
	var parts []string
	for _, att := range attachments {
		data, err := o.download(ctx, att.URL)
		if err != nil {
			return "", fmt.Errorf("download attachment: %w", err)
		}
		text, err := o.llm.TranscribeAudio(ctx, data, att.MimeType)
		if err != nil {
			return "", fmt.Errorf("transcribe attachment: %w", err)
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func (o *Orchestrator) download(ctx context.Context, url string) ([]byte, error) {
	if !utils.IsValidURL(url) {
		return nil, fmt.Errorf("invalid attachment url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("attachment download returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// replyWithHumanHandoff sends the user-visible degraded-service message and
// flips handoff status, per the PROVIDER_TIMEOUT/PROVIDER_FAILURE recovery
// rule: a failed transcription or agent call hands the conversation to a
// human rather than silently dropping it.
func (o *Orchestrator) replyWithHumanHandoff(ctx context.Context, cfg *types.TenantConfig, event types.InboundEvent) error {
	sender, err := o.senders(event.Channel, cfg)
	if err != nil {
		return fmt.Errorf("build %s sender: %w", event.Channel, err)
	}
	const message = "Sorry, I'm having trouble right now. Connecting you to a human."
	if err := sender.SendText(ctx, event.ExternalID, message); err != nil {
		logger.Errorf(ctx, "[Orchestrator] degraded-service reply failed: %v", err)
	}
	return sender.SetHumanHandoff(ctx, event.ExternalID, true)
}

// HandleConversationResolved implements the Chatwoot-style
// conversation-resolved path: fetch the binding, and if a chat session
// exists, enqueue the summarize_and_sync background task rather than
// running SummarizerAndSync inline, so this handler returns within the
// channel's delivery deadline regardless of downstream summarization
// progress.
func (o *Orchestrator) HandleConversationResolved(ctx context.Context, tenantID uint64, externalID string, contact types.Sender) error {
	binding, err := o.sessions.GetOrCreateBinding(ctx, tenantID, externalID)
	if err != nil {
		return fmt.Errorf("fetch binding: %w", err)
	}
	if binding.ChatSessionID == nil || *binding.ChatSessionID == "" {
		return nil
	}
	if o.tasks == nil {
		logger.Warnf(ctx, "[Orchestrator] no task client configured, skipping summarize_and_sync for binding %d", binding.ID)
		return nil
	}

	payload, err := json.Marshal(summarizer.TaskPayload{
		TenantID:  tenantID,
		BindingID: binding.ID,
		SessionID: *binding.ChatSessionID,
		Email:     contact.Email,
		Phone:     contact.Phone,
	})
	if err != nil {
		return fmt.Errorf("marshal summarize task payload: %w", err)
	}

	task := asynq.NewTask(summarizer.TaskTypeSummarizeAndSync, payload)
	if _, err := o.tasks.Enqueue(task); err != nil {
		return fmt.Errorf("enqueue summarize_and_sync: %w", err)
	}
	return nil
}

// keyedMutex serializes operations that share a key without holding one
// global lock. Grounded on the same cached-by-key idiom as the provider
// registry's instance cache, generalized from a read-mostly value cache to
// a pure lock table: entries are never evicted, which is acceptable since
// the key space is bounded by the number of live conversations.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns a function that releases it.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
