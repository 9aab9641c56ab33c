// Package handler exposes the inbound webhook endpoints as Gin handler
// funcs, following WeKnora's internal/handler shape (a constructor taking
// the handler's dependency, methods as thin Gin-bound wrappers). Each
// handler's only job is normalizing one channel's wire format into a
// types.InboundEvent and handing it to the orchestrator; all pipeline
// logic lives there.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
	"github.com/veridesk/platform/internal/utils"
)

// orchestratorRunner matches orchestrator.Orchestrator's two entry points,
// declared locally so this package's only dependency on the orchestrator
// package is an interface, not the concrete type.
type orchestratorRunner interface {
	HandleInbound(ctx context.Context, event types.InboundEvent) error
	HandleConversationResolved(ctx context.Context, tenantID uint64, externalID string, contact types.Sender) error
}

// CRMFactory builds the set of CRM adapters configured for a tenant's
// config bundle. Declared locally with the same shape as
// summarizer.CRMFactory so main.go's single crmFactory closure wires both.
type CRMFactory func(cfg *types.TenantConfig) []interfaces.CRMAdapter

// WebhookHandler normalizes Evolution/Telegram/Chatwoot payloads and routes
// them to the orchestrator.
type WebhookHandler struct {
	orchestrator orchestratorRunner
	tenants      interfaces.TenantRegistry
	crms         CRMFactory
}

// NewWebhookHandler builds a WebhookHandler bound to orchestrator. tenants
// is the same registry the orchestrator itself resolves tenants through;
// it's needed here too since the Chatwoot conversation-resolved and
// CRM-sync paths must have a tenant id/config before calling into the
// orchestrator or a CRM adapter. crms builds the CRM fan-out list for a
// tenant, mirroring summarizer.CRMFactory.
func NewWebhookHandler(orchestrator orchestratorRunner, tenants interfaces.TenantRegistry, crms CRMFactory) *WebhookHandler {
	return &WebhookHandler{orchestrator: orchestrator, tenants: tenants, crms: crms}
}

// evolutionPayload is the subset of Evolution's messages.upsert webhook
// body this handler reads.
type evolutionPayload struct {
	Event    string `json:"event"`
	Instance string `json:"instance"`
	Data     struct {
		Key struct {
			FromMe    bool   `json:"fromMe"`
			RemoteJid string `json:"remoteJid"`
			ID        string `json:"id"`
		} `json:"key"`
		Message struct {
			Conversation        string `json:"conversation"`
			ExtendedTextMessage struct {
				Text string `json:"text"`
			} `json:"extendedTextMessage"`
			AudioMessage *struct {
				URL      string `json:"url"`
				Mimetype string `json:"mimetype"`
			} `json:"audioMessage"`
		} `json:"message"`
	} `json:"data"`
}

// Evolution handles POST /webhook/evolution.
func (h *WebhookHandler) Evolution(c *gin.Context) {
	ctx := c.Request.Context()

	var payload evolutionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		logger.Warnf(ctx, "[Webhook][Evolution] bad payload: %v", err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "bad_payload"})
		return
	}

	if payload.Event != "messages.upsert" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "not_upsert"})
		return
	}
	if payload.Data.Key.RemoteJid == "" {
		c.JSON(http.StatusOK, gin.H{"status": "error", "reason": "no_jid"})
		return
	}

	phone := strings.SplitN(payload.Data.Key.RemoteJid, "@", 2)[0]
	event := types.InboundEvent{
		Channel:    "evolution",
		TenantKey:  payload.Instance,
		ExternalID: phone,
		FromUs:     payload.Data.Key.FromMe,
		MessageID:  payload.Data.Key.ID,
		Sender:     &types.Sender{Phone: phone},
	}

	text := payload.Data.Message.Conversation
	if text == "" {
		text = payload.Data.Message.ExtendedTextMessage.Text
	}

	switch {
	case payload.Data.Message.AudioMessage != nil:
		event.Kind = types.KindAudio
		event.Attachments = []types.Attachment{{
			URL:      payload.Data.Message.AudioMessage.URL,
			MimeType: payload.Data.Message.AudioMessage.Mimetype,
		}}
	case text != "":
		clean, ok := utils.ValidateInput(text)
		if !ok || clean == "" {
			c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "no_text_found"})
			return
		}
		event.Kind = types.KindText
		event.Text = clean
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "no_text_found"})
		return
	}

	if err := h.orchestrator.HandleInbound(ctx, event); err != nil {
		logger.Errorf(ctx, "[Webhook][Evolution] pipeline error: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

// telegramPayload is the subset of Telegram's sendMessage webhook body this
// handler reads.
type telegramPayload struct {
	Message *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text  string `json:"text"`
		Voice *struct {
			FileID string `json:"file_id"`
		} `json:"voice"`
		From *struct {
			IsBot bool `json:"is_bot"`
		} `json:"from"`
	} `json:"message"`
}

// Telegram handles POST /webhook/telegram/:bot_token.
func (h *WebhookHandler) Telegram(c *gin.Context) {
	ctx := c.Request.Context()
	botToken := c.Param("bot_token")

	var payload telegramPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		logger.Warnf(ctx, "[Webhook][Telegram] bad payload: %v", err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "bad_payload"})
		return
	}
	if payload.Message == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "no_message"})
		return
	}

	event := types.InboundEvent{
		Channel:    "telegram",
		TenantKey:  botToken,
		ExternalID: strconv.FormatInt(payload.Message.Chat.ID, 10),
		FromUs:     payload.Message.From != nil && payload.Message.From.IsBot,
	}

	switch {
	case payload.Message.Voice != nil:
		event.Kind = types.KindAudio
		// Telegram voice notes are addressed by file_id, not a direct URL.
		// The file_id is passed through as the attachment URL as-is; it is
		// not resolved to a download URL via getFile here or in the
		// orchestrator.
		event.Attachments = []types.Attachment{{URL: payload.Message.Voice.FileID, MimeType: "audio/ogg"}}
	case payload.Message.Text != "":
		clean, ok := utils.ValidateInput(payload.Message.Text)
		if !ok || clean == "" {
			c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "no_text_found"})
			return
		}
		event.Kind = types.KindText
		event.Text = clean
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "no_text_found"})
		return
	}

	if err := h.orchestrator.HandleInbound(ctx, event); err != nil {
		logger.Errorf(ctx, "[Webhook][Telegram] pipeline error: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

// chatwootPayload is the subset of Chatwoot's webhook body this handler
// reads across all four event types it cares about.
type chatwootPayload struct {
	Event        string `json:"event"`
	MessageType  string `json:"message_type"`
	Content      string `json:"content"`
	Conversation struct {
		ID     int    `json:"id"`
		Status string `json:"status"`
	} `json:"conversation"`
	Sender struct {
		Name        string `json:"name"`
		Email       string `json:"email"`
		PhoneNumber string `json:"phone_number"`
	} `json:"sender"`
}

// Chatwoot handles POST /webhook/chatwoot/:tenant_slug.
func (h *WebhookHandler) Chatwoot(c *gin.Context) {
	ctx := c.Request.Context()
	tenantSlug := c.Param("tenant_slug")

	var payload chatwootPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		logger.Warnf(ctx, "[Webhook][Chatwoot] bad payload: %v", err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "bad_payload"})
		return
	}

	conversationID := strconv.Itoa(payload.Conversation.ID)
	sender := types.Sender{
		Name:  payload.Sender.Name,
		Email: payload.Sender.Email,
		Phone: payload.Sender.PhoneNumber,
	}

	switch payload.Event {
	case "message_created":
		if payload.MessageType != "incoming" {
			c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "not_incoming"})
			return
		}
		if payload.Conversation.Status != "" && payload.Conversation.Status != "pending" {
			c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "conversation_not_pending"})
			return
		}
		cleanContent, _ := utils.ValidateInput(payload.Content)
		event := types.InboundEvent{
			Channel:    "chatwoot",
			TenantKey:  tenantSlug,
			ExternalID: conversationID,
			Kind:       types.KindText,
			Text:       cleanContent,
			Sender:     &sender,
		}
		if err := h.orchestrator.HandleInbound(ctx, event); err != nil {
			logger.Errorf(ctx, "[Webhook][Chatwoot] pipeline error: %v", err)
		}

	case "conversation_status_changed":
		if payload.Conversation.Status != "resolved" {
			c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "not_resolved"})
			return
		}
		tenantID, ok, err := h.tenants.Resolve(ctx, "chatwoot", tenantSlug)
		if err != nil {
			logger.Errorf(ctx, "[Webhook][Chatwoot] tenant resolution failed: %v", err)
			c.JSON(http.StatusOK, gin.H{"status": "error", "reason": "tenant_resolution_failed"})
			return
		}
		if !ok {
			c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "unknown_tenant"})
			return
		}
		if err := h.orchestrator.HandleConversationResolved(ctx, tenantID, conversationID, sender); err != nil {
			logger.Errorf(ctx, "[Webhook][Chatwoot] conversation-resolved handling failed: %v", err)
		}

	case "conversation_created":
		h.syncLead(ctx, tenantSlug, sender)

	case "contact_created", "contact_updated":
		h.syncContact(ctx, tenantSlug, sender)

	default:
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "unhandled_event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

// tenantConfig resolves a channel-native key to its tenant's config bundle,
// logging and reporting ok=false on any resolution failure or unknown
// tenant rather than erroring the webhook response.
func (h *WebhookHandler) tenantConfig(ctx context.Context, channel, channelKey string) (*types.TenantConfig, bool) {
	tenantID, ok, err := h.tenants.Resolve(ctx, channel, channelKey)
	if err != nil {
		logger.Errorf(ctx, "[Webhook][Chatwoot] tenant resolution failed: %v", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	cfg, _, err := h.tenants.LoadConfig(ctx, tenantID)
	if err != nil {
		logger.Errorf(ctx, "[Webhook][Chatwoot] load config for tenant %d failed: %v", tenantID, err)
		return nil, false
	}
	return cfg, true
}

// syncLead fans a newly created Chatwoot conversation's contact details out
// to every CRM configured for the tenant, as a new lead. Skipped when
// there's no email or phone to match the lead on, the same gate
// summarizer.syncToCRMs applies before its own CRM calls.
func (h *WebhookHandler) syncLead(ctx context.Context, tenantSlug string, sender types.Sender) {
	if sender.Email == "" && sender.Phone == "" {
		logger.Infof(ctx, "[Webhook][Chatwoot] skipping lead sync: no email or phone to match lead")
		return
	}
	cfg, ok := h.tenantConfig(ctx, "chatwoot", tenantSlug)
	if !ok {
		return
	}
	adapters := h.crms(cfg)
	if len(adapters) == 0 {
		logger.Infof(ctx, "[Webhook][Chatwoot] skipping lead sync: no CRM configured")
		return
	}
	for _, adapter := range adapters {
		if err := adapter.SyncLead(ctx, sender.Name, sender.Email, sender.Phone); err != nil {
			logger.Errorf(ctx, "[Webhook][Chatwoot] lead sync failed for %s: %v", adapter.Name(), err)
			continue
		}
		logger.Infof(ctx, "[Webhook][Chatwoot] lead synced to %s", adapter.Name())
	}
}

// syncContact fans a Chatwoot contact_created/contact_updated event out to
// every CRM configured for the tenant.
func (h *WebhookHandler) syncContact(ctx context.Context, tenantSlug string, sender types.Sender) {
	cfg, ok := h.tenantConfig(ctx, "chatwoot", tenantSlug)
	if !ok {
		return
	}
	adapters := h.crms(cfg)
	if len(adapters) == 0 {
		logger.Infof(ctx, "[Webhook][Chatwoot] skipping contact sync: no CRM configured")
		return
	}
	contact := types.ContactInfo{Name: sender.Name, Email: sender.Email, Phone: sender.Phone}
	for _, adapter := range adapters {
		if err := adapter.SyncContact(ctx, contact); err != nil {
			logger.Errorf(ctx, "[Webhook][Chatwoot] contact sync failed for %s: %v", adapter.Name(), err)
			continue
		}
		logger.Infof(ctx, "[Webhook][Chatwoot] contact synced to %s", adapter.Name())
	}
}
