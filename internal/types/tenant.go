package types

import (
	"time"

	"gorm.io/datatypes"
)

// Tenant is the root multi-tenancy unit: every Document, ChatSession, and
// ConversationBinding is scoped to one. Preferred languages are an ordered
// list used to derive the RAG answer's language instruction.
type Tenant struct {
	ID                 uint64         `gorm:"primaryKey" json:"id"`
	Name               string         `gorm:"size:255;not null" json:"name"`
	PreferredLanguages datatypes.JSON `gorm:"type:jsonb" json:"preferred_languages"`
	QuotaLimit         int            `gorm:"not null;default:1000" json:"quota_limit"`
	UsageCount         int            `gorm:"not null;default:0" json:"usage_count"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

// TenantChannelKey maps an external channel identifier (Evolution instance
// name, Telegram bot token, Chatwoot tenant slug) to a tenant id. A tenant
// may be reachable from more than one channel, hence the separate table
// instead of a column on Tenant.
type TenantChannelKey struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	TenantID   uint64    `gorm:"index;not null" json:"tenant_id"`
	Channel    string    `gorm:"size:32;not null" json:"channel"`
	ChannelKey string    `gorm:"size:255;not null;uniqueIndex:idx_channel_key" json:"channel_key"`
	CreatedAt  time.Time `json:"created_at"`
}

func (TenantChannelKey) TableName() string { return "tenant_channel_keys" }

// RAGProviderConfig is the `rag` block of a tenant's configuration bundle.
type RAGProviderConfig struct {
	BaseURL         string            `json:"base_url,omitempty"`
	APIKey          string            `json:"api_key,omitempty"`
	TenantID        string            `json:"tenant_id,omitempty"`
	Provider        string            `json:"provider,omitempty"`
	UseHyDE         *bool             `json:"use_hyde,omitempty"`
	UseRerank       *bool             `json:"use_rerank,omitempty"`
	HandoffRules    map[string]string `json:"handoff_rules,omitempty"`
	GoogleSheetsURL string            `json:"google_sheets_url,omitempty"`
	SemanticCache   bool              `json:"semantic_cache,omitempty"`
}

// ChannelAPIConfig covers chatwoot/evolution/telegram outbound credentials.
// AccountID is only meaningful for chatwoot; Instance is only meaningful
// for evolution (its gateway addresses an instance by name in the send URL).
type ChannelAPIConfig struct {
	BaseURL   string `json:"base_url,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	AccountID int    `json:"account_id,omitempty"`
	Instance  string `json:"instance,omitempty"`
}

// CRMConfig covers espocrm/hubspot credentials.
type CRMConfig struct {
	BaseURL     string `json:"base_url,omitempty"`
	APIKey      string `json:"api_key,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

type ClientConfig struct {
	CustomInstructions string `json:"custom_instructions,omitempty"`
	IsEnterprise       bool   `json:"is_enterprise,omitempty"`
}

// PricingItem is one priced item or service a tenant has configured,
// looked up by the AgentRuntime's lookup_pricing tool.
type PricingItem struct {
	Item        string  `json:"item"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency,omitempty"`
	Description string  `json:"description,omitempty"`
}

// LLMStepConfig selects a (provider, model) pair for one logical step.
type LLMStepConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// ProviderCredential carries the API key/base URL used to reach one named
// backend (openai, anthropic, jina, generic) on behalf of a tenant.
type ProviderCredential struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

type LLMConfig struct {
	Steps        map[string]LLMStepConfig      `json:"steps,omitempty"`
	DefaultModel string                        `json:"default_model,omitempty"`
	Providers    map[string]ProviderCredential `json:"providers,omitempty"`
}

// TenantConfig is the full per-tenant configuration bundle keyed by
// section name. It is stored as jsonb and decoded with mapstructure so
// partial/absent blocks leave their Go zero value.
type TenantConfig struct {
	RAG          RAGProviderConfig `json:"rag"`
	Chatwoot     ChannelAPIConfig  `json:"chatwoot"`
	Evolution    ChannelAPIConfig  `json:"evolution"`
	Telegram     ChannelAPIConfig  `json:"telegram"`
	EspoCRM      CRMConfig         `json:"espocrm"`
	HubSpot      CRMConfig         `json:"hubspot"`
	ClientConfig ClientConfig      `json:"client_config"`
	LLMConfig    LLMConfig         `json:"llm_config"`
	Pricing      []PricingItem     `json:"pricing,omitempty"`
}

// TenantConfigRecord is the persisted row backing TenantConfig, with a
// version token bumped on every save so cached config/agent instances can
// be invalidated.
type TenantConfigRecord struct {
	TenantID  uint64         `gorm:"primaryKey" json:"tenant_id"`
	Config    datatypes.JSON `gorm:"type:jsonb;not null" json:"config"`
	Version   int64          `gorm:"not null;default:1" json:"version"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (TenantConfigRecord) TableName() string { return "tenant_configs" }

// GlobalConfig is the single DB-level override row consulted before
// per-tenant config.
type GlobalConfig struct {
	ID        uint64         `gorm:"primaryKey" json:"id"`
	Config    datatypes.JSON `gorm:"type:jsonb;not null" json:"config"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (GlobalConfig) TableName() string { return "global_configs" }
