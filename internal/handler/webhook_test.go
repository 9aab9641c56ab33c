package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeOrchestrator struct {
	inboundEvents []types.InboundEvent
	inboundErr    error
	resolvedCalls int
	resolvedErr   error
}

func (f *fakeOrchestrator) HandleInbound(ctx context.Context, event types.InboundEvent) error {
	f.inboundEvents = append(f.inboundEvents, event)
	return f.inboundErr
}

func (f *fakeOrchestrator) HandleConversationResolved(ctx context.Context, tenantID uint64, externalID string, contact types.Sender) error {
	f.resolvedCalls++
	return f.resolvedErr
}

// fakeTenantRegistry stands in for interfaces.TenantRegistry; resolveFn
// defaults to always resolving to tenant 7 when left nil.
type fakeTenantRegistry struct {
	resolveFn func(ctx context.Context, channel, channelKey string) (uint64, bool, error)
	cfg       *types.TenantConfig
	loadErr   error
}

func (f *fakeTenantRegistry) Resolve(ctx context.Context, channel, channelKey string) (uint64, bool, error) {
	if f.resolveFn != nil {
		return f.resolveFn(ctx, channel, channelKey)
	}
	return 7, true, nil
}

func (f *fakeTenantRegistry) LoadConfig(ctx context.Context, tenantID uint64) (*types.TenantConfig, int64, error) {
	if f.loadErr != nil {
		return nil, 0, f.loadErr
	}
	cfg := f.cfg
	if cfg == nil {
		cfg = &types.TenantConfig{}
	}
	return cfg, 1, nil
}

func (f *fakeTenantRegistry) InvalidateConfig(tenantID uint64) {}

var _ interfaces.TenantRegistry = (*fakeTenantRegistry)(nil)

// fakeCRMAdapter records SyncLead/SyncContact calls for assertions.
type fakeCRMAdapter struct {
	name           string
	syncLeadErr    error
	syncContactErr error

	leadCalls     int
	lastLeadName  string
	lastLeadEmail string
	lastLeadPhone string

	contactCalls int
	lastContact  types.ContactInfo
}

func (f *fakeCRMAdapter) Name() string { return f.name }

func (f *fakeCRMAdapter) SyncLead(ctx context.Context, name, email, phone string) error {
	f.leadCalls++
	f.lastLeadName, f.lastLeadEmail, f.lastLeadPhone = name, email, phone
	return f.syncLeadErr
}

func (f *fakeCRMAdapter) SyncContact(ctx context.Context, contact types.ContactInfo) error {
	f.contactCalls++
	f.lastContact = contact
	return f.syncContactErr
}

func (f *fakeCRMAdapter) UpdateLeadSummary(ctx context.Context, email, phone string, summary *types.ConversationSummary) error {
	return nil
}

var _ interfaces.CRMAdapter = (*fakeCRMAdapter)(nil)

func newTestContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, path, bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, rec
}

func TestWebhookHandlerEvolution(t *testing.T) {
	t.Run("ignores a non-upsert event", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		h := NewWebhookHandler(orch, nil, nil)
		c, rec := newTestContext(http.MethodPost, "/webhook/evolution", []byte(`{"event":"connection.update"}`))
		h.Evolution(c)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "not_upsert")
		assert.Empty(t, orch.inboundEvents)
	})

	t.Run("normalizes a text message and forwards it", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		h := NewWebhookHandler(orch, nil, nil)
		payload := `{
			"event": "messages.upsert",
			"instance": "inst-1",
			"data": {
				"key": {"fromMe": false, "remoteJid": "5511999999999@s.whatsapp.net", "id": "ABC"},
				"message": {"conversation": "hello there"}
			}
		}`
		c, rec := newTestContext(http.MethodPost, "/webhook/evolution", []byte(payload))
		h.Evolution(c)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, orch.inboundEvents, 1)
		event := orch.inboundEvents[0]
		assert.Equal(t, "evolution", event.Channel)
		assert.Equal(t, "inst-1", event.TenantKey)
		assert.Equal(t, "5511999999999", event.ExternalID)
		assert.False(t, event.FromUs)
		assert.Equal(t, types.KindText, event.Kind)
		assert.Equal(t, "hello there", event.Text)
	})

	t.Run("normalizes an audio message as an attachment", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		h := NewWebhookHandler(orch, nil, nil)
		payload := `{
			"event": "messages.upsert",
			"instance": "inst-1",
			"data": {
				"key": {"fromMe": false, "remoteJid": "5511999999999@s.whatsapp.net", "id": "ABC"},
				"message": {"audioMessage": {"url": "http://x.test/a.ogg", "mimetype": "audio/ogg"}}
			}
		}`
		c, rec := newTestContext(http.MethodPost, "/webhook/evolution", []byte(payload))
		h.Evolution(c)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, orch.inboundEvents, 1)
		event := orch.inboundEvents[0]
		assert.Equal(t, types.KindAudio, event.Kind)
		require.Len(t, event.Attachments, 1)
		assert.Equal(t, "http://x.test/a.ogg", event.Attachments[0].URL)
	})

	t.Run("ignores a message with no jid", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		h := NewWebhookHandler(orch, nil, nil)
		payload := `{"event":"messages.upsert","data":{"key":{"remoteJid":""}}}`
		c, rec := newTestContext(http.MethodPost, "/webhook/evolution", []byte(payload))
		h.Evolution(c)
		assert.Contains(t, rec.Body.String(), "no_jid")
		assert.Empty(t, orch.inboundEvents)
	})

	t.Run("bad JSON is ignored, not a 400", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		h := NewWebhookHandler(orch, nil, nil)
		c, rec := newTestContext(http.MethodPost, "/webhook/evolution", []byte(`not json`))
		h.Evolution(c)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "bad_payload")
	})
}

func TestWebhookHandlerTelegram(t *testing.T) {
	t.Run("normalizes a text message", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		h := NewWebhookHandler(orch, nil, nil)
		payload := `{"message":{"chat":{"id":123456},"text":"hi"}}`
		c, rec := newTestContext(http.MethodPost, "/webhook/telegram/tok123", []byte(payload))
		c.Params = gin.Params{{Key: "bot_token", Value: "tok123"}}
		h.Telegram(c)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, orch.inboundEvents, 1)
		event := orch.inboundEvents[0]
		assert.Equal(t, "telegram", event.Channel)
		assert.Equal(t, "tok123", event.TenantKey)
		assert.Equal(t, "123456", event.ExternalID)
		assert.Equal(t, "hi", event.Text)
	})

	t.Run("flags messages from a bot sender as from_us", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		h := NewWebhookHandler(orch, nil, nil)
		payload := `{"message":{"chat":{"id":1},"text":"hi","from":{"is_bot":true}}}`
		c, rec := newTestContext(http.MethodPost, "/webhook/telegram/tok", []byte(payload))
		c.Params = gin.Params{{Key: "bot_token", Value: "tok"}}
		h.Telegram(c)
		require.Len(t, orch.inboundEvents, 1)
		assert.True(t, orch.inboundEvents[0].FromUs)
		_ = rec
	})

	t.Run("ignores an update with no message", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		h := NewWebhookHandler(orch, nil, nil)
		c, rec := newTestContext(http.MethodPost, "/webhook/telegram/tok", []byte(`{}`))
		h.Telegram(c)
		assert.Contains(t, rec.Body.String(), "no_message")
		assert.Empty(t, orch.inboundEvents)
	})
}

func TestWebhookHandlerChatwoot(t *testing.T) {
	t.Run("forwards an incoming pending-conversation message", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		h := NewWebhookHandler(orch, nil, nil)
		payload := `{
			"event": "message_created",
			"message_type": "incoming",
			"content": "need help",
			"conversation": {"id": 42, "status": "pending"},
			"sender": {"name": "Jane", "email": "jane@example.com"}
		}`
		c, rec := newTestContext(http.MethodPost, "/webhook/chatwoot/acme", []byte(payload))
		c.Params = gin.Params{{Key: "tenant_slug", Value: "acme"}}
		h.Chatwoot(c)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, orch.inboundEvents, 1)
		assert.Equal(t, "need help", orch.inboundEvents[0].Text)
		assert.Equal(t, "42", orch.inboundEvents[0].ExternalID)
	})

	t.Run("ignores outgoing messages", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		h := NewWebhookHandler(orch, nil, nil)
		payload := `{"event":"message_created","message_type":"outgoing","conversation":{"id":1,"status":"pending"}}`
		c, rec := newTestContext(http.MethodPost, "/webhook/chatwoot/acme", []byte(payload))
		c.Params = gin.Params{{Key: "tenant_slug", Value: "acme"}}
		h.Chatwoot(c)
		assert.Contains(t, rec.Body.String(), "not_incoming")
		assert.Empty(t, orch.inboundEvents)
	})

	t.Run("resolves the tenant and enqueues summarization on conversation resolved", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		tenants := &fakeTenantRegistry{resolveFn: func(ctx context.Context, channel, channelKey string) (uint64, bool, error) {
			assert.Equal(t, "chatwoot", channel)
			assert.Equal(t, "acme", channelKey)
			return 7, true, nil
		}}
		h := NewWebhookHandler(orch, tenants, nil)
		payload := `{"event":"conversation_status_changed","conversation":{"id":42,"status":"resolved"},"sender":{"email":"jane@example.com"}}`
		c, rec := newTestContext(http.MethodPost, "/webhook/chatwoot/acme", []byte(payload))
		c.Params = gin.Params{{Key: "tenant_slug", Value: "acme"}}
		h.Chatwoot(c)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, orch.resolvedCalls)
	})

	t.Run("ignores conversation resolution for an unknown tenant", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		tenants := &fakeTenantRegistry{resolveFn: func(ctx context.Context, channel, channelKey string) (uint64, bool, error) {
			return 0, false, nil
		}}
		h := NewWebhookHandler(orch, tenants, nil)
		payload := `{"event":"conversation_status_changed","conversation":{"id":42,"status":"resolved"}}`
		c, rec := newTestContext(http.MethodPost, "/webhook/chatwoot/acme", []byte(payload))
		c.Params = gin.Params{{Key: "tenant_slug", Value: "acme"}}
		h.Chatwoot(c)
		assert.Contains(t, rec.Body.String(), "unknown_tenant")
		assert.Equal(t, 0, orch.resolvedCalls)
	})

	t.Run("unhandled events are reported but not an error", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		h := NewWebhookHandler(orch, nil, nil)
		payload := `{"event":"message_updated"}`
		c, rec := newTestContext(http.MethodPost, "/webhook/chatwoot/acme", []byte(payload))
		c.Params = gin.Params{{Key: "tenant_slug", Value: "acme"}}
		h.Chatwoot(c)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "unhandled_event")
	})

	t.Run("conversation_created syncs a new lead to every configured CRM", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		tenants := &fakeTenantRegistry{}
		adapter := &fakeCRMAdapter{name: "espocrm"}
		crms := func(cfg *types.TenantConfig) []interfaces.CRMAdapter { return []interfaces.CRMAdapter{adapter} }
		h := NewWebhookHandler(orch, tenants, crms)
		payload := `{"event":"conversation_created","conversation":{"id":42},"sender":{"name":"Jane","email":"jane@example.com"}}`
		c, rec := newTestContext(http.MethodPost, "/webhook/chatwoot/acme", []byte(payload))
		c.Params = gin.Params{{Key: "tenant_slug", Value: "acme"}}
		h.Chatwoot(c)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, adapter.leadCalls)
		assert.Equal(t, "Jane", adapter.lastLeadName)
		assert.Equal(t, "jane@example.com", adapter.lastLeadEmail)
		assert.Equal(t, 0, adapter.contactCalls)
	})

	t.Run("conversation_created skips lead sync with no email or phone", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		tenants := &fakeTenantRegistry{}
		adapter := &fakeCRMAdapter{name: "espocrm"}
		crms := func(cfg *types.TenantConfig) []interfaces.CRMAdapter { return []interfaces.CRMAdapter{adapter} }
		h := NewWebhookHandler(orch, tenants, crms)
		payload := `{"event":"conversation_created","conversation":{"id":42},"sender":{"name":"Jane"}}`
		c, rec := newTestContext(http.MethodPost, "/webhook/chatwoot/acme", []byte(payload))
		c.Params = gin.Params{{Key: "tenant_slug", Value: "acme"}}
		h.Chatwoot(c)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 0, adapter.leadCalls)
	})

	t.Run("contact_created syncs the contact to every configured CRM", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		tenants := &fakeTenantRegistry{}
		adapter := &fakeCRMAdapter{name: "hubspot"}
		crms := func(cfg *types.TenantConfig) []interfaces.CRMAdapter { return []interfaces.CRMAdapter{adapter} }
		h := NewWebhookHandler(orch, tenants, crms)
		payload := `{"event":"contact_created","sender":{"name":"Jane","email":"jane@example.com","phone_number":"+1555"}}`
		c, rec := newTestContext(http.MethodPost, "/webhook/chatwoot/acme", []byte(payload))
		c.Params = gin.Params{{Key: "tenant_slug", Value: "acme"}}
		h.Chatwoot(c)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 1, adapter.contactCalls)
		assert.Equal(t, "Jane", adapter.lastContact.Name)
		assert.Equal(t, "jane@example.com", adapter.lastContact.Email)
		assert.Equal(t, "+1555", adapter.lastContact.Phone)
		assert.Equal(t, 0, adapter.leadCalls)
	})

	t.Run("contact_updated syncs the contact the same as contact_created", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		tenants := &fakeTenantRegistry{}
		adapter := &fakeCRMAdapter{name: "hubspot"}
		crms := func(cfg *types.TenantConfig) []interfaces.CRMAdapter { return []interfaces.CRMAdapter{adapter} }
		h := NewWebhookHandler(orch, tenants, crms)
		payload := `{"event":"contact_updated","sender":{"name":"Jane","email":"jane@example.com"}}`
		c, rec := newTestContext(http.MethodPost, "/webhook/chatwoot/acme", []byte(payload))
		c.Params = gin.Params{{Key: "tenant_slug", Value: "acme"}}
		h.Chatwoot(c)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, adapter.contactCalls)
	})

	t.Run("contact sync is skipped when no CRM is configured", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		tenants := &fakeTenantRegistry{}
		crms := func(cfg *types.TenantConfig) []interfaces.CRMAdapter { return nil }
		h := NewWebhookHandler(orch, tenants, crms)
		payload := `{"event":"contact_created","sender":{"name":"Jane","email":"jane@example.com"}}`
		c, rec := newTestContext(http.MethodPost, "/webhook/chatwoot/acme", []byte(payload))
		c.Params = gin.Params{{Key: "tenant_slug", Value: "acme"}}
		h.Chatwoot(c)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
