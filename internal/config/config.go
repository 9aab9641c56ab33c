// Package config loads the process-wide configuration (server ports, DB/
// Redis/MinIO DSNs, conversation tuning) from YAML + environment via viper.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level, immutable, startup-loaded configuration. Per-
// tenant overrides live in the database (global_configs / tenants tables)
// and are merged in by TenantRegistry, not here.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Storage      StorageConfig
	Vector       VectorConfig
	Rerank       RerankConfig
	Conversation ConversationConfig
	Timeouts     TimeoutConfig
	Quota        QuotaConfig
	Admin        AdminConfig
}

type ServerConfig struct {
	Addr string
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// VectorConfig selects and configures the DocumentStore's vector
// sub-ranking backend. Backend "pgvector" (the default) keeps both the
// vector and lexical sub-rankings in Postgres; "qdrant" moves the vector
// sub-ranking out to a Qdrant instance while lexical search stays on
// Postgres full-text search either way.
type VectorConfig struct {
	Backend          string
	QdrantAddr       string
	QdrantAPIKey     string
	QdrantUseTLS     bool
	QdrantCollection string
}

// RerankConfig selects the RAG query pipeline's rerank-stage backend.
// Backend "llm" (the default) prompts the rerank-step chat model for a
// JSON relevance score per candidate; "dedicated" routes reranking to a
// standalone rerank API (Jina's, or any other provider/base_url pair
// models/rerank.NewReranker resolves).
type RerankConfig struct {
	Backend  string
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
}

// ConversationConfig tunes ChatMemory/RAG defaults that are not
// tenant-specific overrides.
type ConversationConfig struct {
	MaxRounds    int
	EmbeddingDim int
}

// TimeoutConfig carries the hard per-call timeouts for outbound calls that
// don't otherwise have a caller-supplied deadline.
type TimeoutConfig struct {
	CRM           time.Duration
	LLM           time.Duration
	Transcription time.Duration
	Channel       time.Duration
}

type QuotaConfig struct {
	DefaultMonthlyLimit int
}

// AdminConfig gates the /admin document-management endpoints. APIKeyHash is
// a bcrypt hash of the key operators must send as X-Admin-Key; left empty,
// the admin group runs unauthenticated, which is only acceptable behind a
// deployment's own network-level access control.
type AdminConfig struct {
	APIKeyHash string
}

// Load reads configuration from (in ascending priority) defaults, a YAML
// file at path (if non-empty and present), and VERIDESK_-prefixed
// environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VERIDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{Addr: v.GetString("server.addr")},
		Database: DatabaseConfig{
			DSN:          v.GetString("database.dsn"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
			MaxIdleConns: v.GetInt("database.max_idle_conns"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Storage: StorageConfig{
			Endpoint:  v.GetString("storage.endpoint"),
			AccessKey: v.GetString("storage.access_key"),
			SecretKey: v.GetString("storage.secret_key"),
			Bucket:    v.GetString("storage.bucket"),
			UseSSL:    v.GetBool("storage.use_ssl"),
		},
		Vector: VectorConfig{
			Backend:          v.GetString("vector.backend"),
			QdrantAddr:       v.GetString("vector.qdrant_addr"),
			QdrantAPIKey:     v.GetString("vector.qdrant_api_key"),
			QdrantUseTLS:     v.GetBool("vector.qdrant_use_tls"),
			QdrantCollection: v.GetString("vector.qdrant_collection"),
		},
		Rerank: RerankConfig{
			Backend:  v.GetString("rerank.backend"),
			Provider: v.GetString("rerank.provider"),
			BaseURL:  v.GetString("rerank.base_url"),
			APIKey:   v.GetString("rerank.api_key"),
			Model:    v.GetString("rerank.model"),
		},
		Conversation: ConversationConfig{
			MaxRounds:    v.GetInt("conversation.max_rounds"),
			EmbeddingDim: v.GetInt("conversation.embedding_dim"),
		},
		Timeouts: TimeoutConfig{
			CRM:           v.GetDuration("timeouts.crm"),
			LLM:           v.GetDuration("timeouts.llm"),
			Transcription: v.GetDuration("timeouts.transcription"),
			Channel:       v.GetDuration("timeouts.channel"),
		},
		Quota: QuotaConfig{
			DefaultMonthlyLimit: v.GetInt("quota.default_monthly_limit"),
		},
		Admin: AdminConfig{
			APIKeyHash: v.GetString("admin.api_key_hash"),
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("redis.db", 0)
	v.SetDefault("storage.bucket", "veridesk-documents")
	v.SetDefault("vector.backend", "pgvector")
	v.SetDefault("vector.qdrant_collection", "veridesk_chunks")
	v.SetDefault("rerank.backend", "llm")
	v.SetDefault("conversation.max_rounds", 10)
	v.SetDefault("conversation.embedding_dim", 1536)
	v.SetDefault("timeouts.crm", 10*time.Second)
	v.SetDefault("timeouts.llm", 30*time.Second)
	v.SetDefault("timeouts.transcription", 60*time.Second)
	v.SetDefault("timeouts.channel", 10*time.Second)
	v.SetDefault("quota.default_monthly_limit", 1000)
}
