// Package summarizer implements SummarizerAndSync: on conversation close,
// it pulls the full ChatMemory transcript, asks the summarization-step
// LLM for a CRM-shaped JSON summary, and fans the result out to every CRM
// adapter configured for the tenant. Grounded on
// original_source/veridata/veridata_bot/app/agent/summarizer.py for the
// prompt/parse shape and app/bot/actions.py's execute_crm_action for the
// per-adapter failure isolation.
package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
)

// TaskTypeSummarizeAndSync is the asynq task type name enqueued by
// Orchestrator.HandleConversationResolved when a conversation-resolved
// event arrives.
const TaskTypeSummarizeAndSync = "summarize_and_sync"

// TaskPayload is the asynq task body: everything the background handler
// needs without re-deriving it from the webhook payload.
type TaskPayload struct {
	TenantID  uint64 `json:"tenant_id"`
	BindingID uint64 `json:"binding_id"`
	SessionID string `json:"session_id"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

const summaryPromptTemplate = `You are an expert CRM analyst. Analyze the following conversation between
a user and an AI assistant. Extract structured information for lead
qualification and CRM updates.

Conversation:
%s

Output must be valid JSON with exactly this shape:
{
  "purchase_intent": "High"|"Medium"|"Low"|"None",
  "urgency_level": "Urgent"|"Normal"|"Low",
  "sentiment_score": "Positive"|"Neutral"|"Negative",
  "detected_budget": number|null,
  "ai_summary": "markdown string",
  "contact_info": {"name": null, "phone": null, "email": null, "address": null, "industry": null},
  "client_description": "string"
}

JSON Output:`

// CRMFactory builds the set of CRM adapters configured for a tenant's
// config bundle; callers inject their own mapping from config blocks to
// concrete crm.*Adapter instances so this package doesn't depend on the
// crm package's HTTP clients directly.
type CRMFactory func(cfg *types.TenantConfig) []interfaces.CRMAdapter

// SummarizerAndSync implements interfaces.TaskHandler for
// TaskTypeSummarizeAndSync tasks.
type SummarizerAndSync struct {
	llm      interfaces.LLMProvider
	memory   interfaces.ChatMemory
	tenants  interfaces.TenantRegistry
	sessions interfaces.SessionStore
	crms     CRMFactory
}

var _ interfaces.TaskHandler = (*SummarizerAndSync)(nil)

// New builds a SummarizerAndSync task handler.
func New(
	llm interfaces.LLMProvider,
	memory interfaces.ChatMemory,
	tenants interfaces.TenantRegistry,
	sessions interfaces.SessionStore,
	crms CRMFactory,
) *SummarizerAndSync {
	return &SummarizerAndSync{llm: llm, memory: memory, tenants: tenants, sessions: sessions, crms: crms}
}

// Handle decodes the task payload, summarizes, fans out to CRMs, then
// purges the session and binding.
func (s *SummarizerAndSync) Handle(ctx context.Context, t *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode summarize_and_sync payload: %w", err)
	}

	summary, err := s.Summarize(ctx, payload.SessionID)
	if err != nil {
		logger.Errorf(ctx, "[SummarizerAndSync] summarize session %s failed: %v", payload.SessionID, err)
		return err
	}

	if summary.ContactInfo.Email == "" {
		summary.ContactInfo.Email = payload.Email
	}
	if summary.ContactInfo.Phone == "" {
		summary.ContactInfo.Phone = payload.Phone
	}

	cfg, _, err := s.tenants.LoadConfig(ctx, payload.TenantID)
	if err != nil {
		logger.Errorf(ctx, "[SummarizerAndSync] load tenant %d config failed: %v", payload.TenantID, err)
	} else {
		s.syncToCRMs(ctx, cfg, summary)
	}

	if err := s.memory.Delete(ctx, payload.SessionID); err != nil {
		logger.Errorf(ctx, "[SummarizerAndSync] purge chat memory for session %s failed: %v", payload.SessionID, err)
	}
	if err := s.sessions.Purge(ctx, &types.ConversationBinding{ID: payload.BindingID}); err != nil {
		logger.Errorf(ctx, "[SummarizerAndSync] purge binding %d failed: %v", payload.BindingID, err)
	}
	return nil
}

// Summarize fetches the full transcript for sessionID and produces a
// ConversationSummary, degrading to a neutral placeholder on malformed
// model output rather than failing the whole flow.
func (s *SummarizerAndSync) Summarize(ctx context.Context, sessionID string) (*types.ConversationSummary, error) {
	messages, err := s.memory.All(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	now := time.Now()
	start, end := now, now
	if len(messages) > 0 {
		start = messages[0].CreatedAt
		end = messages[len(messages)-1].CreatedAt
	}

	if len(messages) == 0 {
		return &types.ConversationSummary{
			PurchaseIntent:    types.IntentNone,
			UrgencyLevel:      types.UrgencyLow,
			SentimentScore:    types.SentimentNeutral,
			AISummary:         "No conversation history available.",
			ConversationStart: formatSummaryTime(start),
			ConversationEnd:   formatSummaryTime(end),
		}, nil
	}

	prompt := fmt.Sprintf(summaryPromptTemplate, formatTranscript(messages))
	raw, err := s.llm.Complete(ctx, prompt, interfaces.StepSummarization)
	if err != nil {
		return nil, fmt.Errorf("summarization call: %w", err)
	}

	summary, parseErr := parseSummaryJSON(raw)
	if parseErr != nil {
		logger.Warnf(ctx, "[SummarizerAndSync] malformed summary JSON, degrading: %v", parseErr)
		summary = &types.ConversationSummary{
			PurchaseIntent: types.IntentNone,
			UrgencyLevel:   types.UrgencyLow,
			SentimentScore: types.SentimentNeutral,
			AISummary:      raw,
		}
	}
	summary.ConversationStart = formatSummaryTime(start)
	summary.ConversationEnd = formatSummaryTime(end)
	return summary, nil
}

func formatTranscript(messages []types.ChatMessage) string {
	var sb strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&sb, "%s: %s\n", strings.ToUpper(string(m.Role)), m.Content)
	}
	return sb.String()
}

func formatSummaryTime(t time.Time) string {
	return t.Format("02/01/2006 15:04")
}

// parseSummaryJSON strips common code fences before decoding, since chat
// models routinely wrap JSON output in ```json ... ``` blocks.
func parseSummaryJSON(raw string) (*types.ConversationSummary, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	var summary types.ConversationSummary
	if err := dec.Decode(&summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// syncToCRMs fans the summary out to every CRM adapter configured for the
// tenant concurrently; one adapter's failure never blocks another's,
// matching execute_crm_action's per-adapter try/except isolation.
func (s *SummarizerAndSync) syncToCRMs(ctx context.Context, cfg *types.TenantConfig, summary *types.ConversationSummary) {
	if summary.ContactInfo.Email == "" && summary.ContactInfo.Phone == "" {
		logger.Infof(ctx, "[SummarizerAndSync] skipping CRM sync: no email or phone to match lead")
		return
	}

	adapters := s.crms(cfg)
	if len(adapters) == 0 {
		logger.Infof(ctx, "[SummarizerAndSync] skipping CRM sync: no CRM configured")
		return
	}

	var wg sync.WaitGroup
	for _, adapter := range adapters {
		wg.Add(1)
		go func(a interfaces.CRMAdapter) {
			defer wg.Done()
			if err := a.UpdateLeadSummary(ctx, summary.ContactInfo.Email, summary.ContactInfo.Phone, summary); err != nil {
				logger.Errorf(ctx, "[SummarizerAndSync] CRM sync failed for %s: %v", a.Name(), err)
				return
			}
			logger.Infof(ctx, "[SummarizerAndSync] summary synced to %s", a.Name())
		}(adapter)
	}
	wg.Wait()
}
