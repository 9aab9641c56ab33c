// Command server wires the conversation orchestrator and RAG engine into a
// single Gin process: Postgres for every repository, Redis as both asynq's
// broker and TenantRegistry's cross-replica config cache, an optional
// object store for retained originals, and a global LLMProvider router
// built once at startup. There is no teacher main.go to adapt this from
// directly (WeKnora ships as a library of internal packages); the wiring
// order below follows the dependency graph each package's own constructor
// comments describe.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/veridesk/platform/internal/agent"
	"github.com/veridesk/platform/internal/agent/tools"
	qdrantrepo "github.com/veridesk/platform/internal/application/repository/retriever/qdrant"
	"github.com/veridesk/platform/internal/channel"
	"github.com/veridesk/platform/internal/config"
	"github.com/veridesk/platform/internal/crm"
	"github.com/veridesk/platform/internal/handler"
	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/models/embedding"
	"github.com/veridesk/platform/internal/models/llmprovider"
	"github.com/veridesk/platform/internal/models/rerank"
	"github.com/veridesk/platform/internal/orchestrator"
	"github.com/veridesk/platform/internal/rag"
	"github.com/veridesk/platform/internal/repository"
	"github.com/veridesk/platform/internal/runtime"
	"github.com/veridesk/platform/internal/storage"
	"github.com/veridesk/platform/internal/summarizer"
	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
)

// version is overwritten at build time via -ldflags; left as a default for
// local/dev builds.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfgPath := os.Getenv("VERIDESK_CONFIG_FILE")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer redisClient.Close()

	blobs, err := openBlobStore(ctx, cfg.Storage)
	if err != nil {
		logger.Warnf(ctx, "[Server] object store unavailable, originals will not be retained: %v", err)
	}

	llmRouter := buildLLMRouter()
	embedder, err := buildEmbedder(cfg.Conversation)
	if err != nil {
		return fmt.Errorf("build embedder: %w", err)
	}

	tenants := repository.NewTenantRegistry(db, redisClient, 30*time.Second)
	sessions := repository.NewSessionStore(db, cfg.Quota.DefaultMonthlyLimit)
	quota := repository.NewQuotaGuard(db)
	memory := repository.NewChatMemory(db)
	docs, err := buildDocumentStore(db, cfg.Vector)
	if err != nil {
		return fmt.Errorf("build document store: %w", err)
	}
	queryCache := repository.NewQueryCache(db)
	langs := repository.NewTenantRepository(db)
	reranker, err := buildReranker(cfg.Rerank, llmRouter)
	if err != nil {
		return fmt.Errorf("build reranker: %w", err)
	}

	ragEngine := rag.New(embedder, llmRouter, docs, memory, tenants, langs, queryCache, cfg.Conversation.MaxRounds, reranker)

	toolset := []tools.Tool{
		tools.NewSearchKnowledgeBaseTool(ragEngine),
		tools.NewLookupPricingTool(tenants),
		tools.NewTransferToHumanTool(),
	}
	providers := runtime.Get()
	agentRuntime := agent.New(func(_ context.Context, modelName string) (interfaces.LLMProvider, error) {
		// Every model name resolves to the same process-wide, already
		// step-routed Router; the singleton cache still earns its keep here
		// since modelName varies per tenant/step and this avoids re-running
		// the resolution closure's allocation on every single agent turn.
		key := "llm_router:" + modelName
		return providers.Singleton(key, func() interface{} { return llmRouter }).(interfaces.LLMProvider), nil
	}, toolset)

	crmTimeout := cfg.Timeouts.CRM
	crmFactory := func(tc *types.TenantConfig) []interfaces.CRMAdapter {
		var adapters []interfaces.CRMAdapter
		if tc.EspoCRM.BaseURL != "" && tc.EspoCRM.APIKey != "" {
			adapters = append(adapters, crm.NewEspoCRMAdapter(tc.EspoCRM.BaseURL, tc.EspoCRM.APIKey, crmTimeout))
		}
		if tc.HubSpot.AccessToken != "" {
			adapters = append(adapters, crm.NewHubSpotAdapter(tc.HubSpot.AccessToken, crmTimeout))
		}
		if tc.Chatwoot.BaseURL != "" && tc.Chatwoot.APIKey != "" {
			adapters = append(adapters, crm.NewChatwootAdapter(tc.Chatwoot.BaseURL, tc.Chatwoot.APIKey, tc.Chatwoot.AccountID, crmTimeout))
		}
		return adapters
	}

	senderTimeout := cfg.Timeouts.Channel
	senderFactory := func(channelName string, tc *types.TenantConfig) (interfaces.ChannelSender, error) {
		switch channelName {
		case "evolution":
			if tc.Evolution.BaseURL == "" {
				return nil, fmt.Errorf("tenant has no evolution channel configured")
			}
			return channel.NewEvolutionSender(tc.Evolution.BaseURL, tc.Evolution.APIKey, tc.Evolution.Instance, senderTimeout), nil
		case "telegram":
			if tc.Telegram.APIKey == "" {
				return nil, fmt.Errorf("tenant has no telegram channel configured")
			}
			return channel.NewTelegramSender(tc.Telegram.APIKey, senderTimeout), nil
		case "chatwoot":
			if tc.Chatwoot.BaseURL == "" {
				return nil, fmt.Errorf("tenant has no chatwoot channel configured")
			}
			return channel.NewChatwootSender(tc.Chatwoot.BaseURL, tc.Chatwoot.APIKey, tc.Chatwoot.AccountID, senderTimeout), nil
		default:
			return nil, fmt.Errorf("unknown channel %q", channelName)
		}
	}

	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	orch := orchestrator.New(tenants, sessions, quota, memory, agentRuntime, llmRouter, senderFactory, asynqClient)
	summarizerHandler := summarizer.New(llmRouter, memory, tenants, sessions, crmFactory)

	taskServer := asynq.NewServer(redisOpt, asynq.Config{Concurrency: 10})
	mux := asynq.NewServeMux()
	mux.HandleFunc(summarizer.TaskTypeSummarizeAndSync, summarizerHandler.Handle)

	taskServerErr := make(chan error, 1)
	go func() {
		taskServerErr <- taskServer.Run(mux)
	}()

	engine := buildGinEngine(orch, tenants, crmFactory, ragEngine, blobs, cfg.Admin)
	httpServer := &http.Server{Addr: cfg.Server.Addr, Handler: engine}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()
	logger.Infof(ctx, "[Server] listening on %s", cfg.Server.Addr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case err := <-taskServerErr:
		return fmt.Errorf("task server: %w", err)
	case <-stop:
		logger.Infof(ctx, "[Server] shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf(ctx, "[Server] graceful shutdown failed: %v", err)
	}
	taskServer.Shutdown()
	return nil
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	return db, nil
}

func openBlobStore(ctx context.Context, cfg config.StorageConfig) (*storage.Blobs, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("no storage endpoint configured")
	}
	return storage.New(ctx, storage.Config{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		UseSSL:    cfg.UseSSL,
	})
}

// buildLLMRouter constructs the single process-wide, step-routed
// LLMProvider from VERIDESK_-prefixed environment variables. Per-tenant
// llm_config overrides in TenantConfig are reserved for a future per-tenant
// Router cache (internal/runtime.Container is shaped for exactly that) but
// are not consulted here, matching rag.Engine/agent.Runtime's existing
// single-shared-instance constructors.
func buildLLMRouter() *llmprovider.Router {
	table := llmprovider.StepTable{
		Steps:        map[string]types.LLMStepConfig{},
		DefaultModel: os.Getenv("VERIDESK_LLM_DEFAULT_MODEL"),
		Providers: map[string]types.ProviderCredential{
			"openai":    {APIKey: os.Getenv("VERIDESK_OPENAI_API_KEY"), BaseURL: os.Getenv("VERIDESK_OPENAI_BASE_URL")},
			"anthropic": {APIKey: os.Getenv("VERIDESK_ANTHROPIC_API_KEY"), BaseURL: os.Getenv("VERIDESK_ANTHROPIC_BASE_URL")},
			"generic":   {APIKey: os.Getenv("VERIDESK_LLM_API_KEY"), BaseURL: os.Getenv("VERIDESK_LLM_BASE_URL")},
		},
	}
	for _, step := range []interfaces.PipelineStep{
		interfaces.StepContextualize, interfaces.StepHyDE, interfaces.StepRerank,
		interfaces.StepGeneration, interfaces.StepSmallTalk, interfaces.StepTranscription,
		interfaces.StepImageDescription, interfaces.StepSummarization, interfaces.StepAgent,
	} {
		if model := os.Getenv("VERIDESK_LLM_STEP_" + string(step)); model != "" {
			table.Steps[string(step)] = types.LLMStepConfig{Model: model, Provider: os.Getenv("VERIDESK_LLM_STEP_" + string(step) + "_PROVIDER")}
		}
	}
	return llmprovider.New(table)
}

// buildDocumentStore picks the DocumentStore backend named by cfg.Backend.
// "pgvector" (the default) keeps both sub-rankings in Postgres; "qdrant"
// moves the vector sub-ranking to a Qdrant collection while lexical search
// stays on Postgres full-text search either way, fusing the two in Go.
func buildDocumentStore(db *gorm.DB, cfg config.VectorConfig) (interfaces.DocumentStore, error) {
	if cfg.Backend == "" || cfg.Backend == "pgvector" {
		return repository.NewDocumentStore(db), nil
	}
	if cfg.Backend != "qdrant" {
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}

	host, portStr, err := net.SplitHostPort(cfg.QdrantAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant address %q: %w", cfg.QdrantAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant port in %q: %w", cfg.QdrantAddr, err)
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		UseTLS: cfg.QdrantUseTLS,
		APIKey: cfg.QdrantAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	vector := qdrantrepo.NewRepository(client, cfg.QdrantCollection)
	return repository.NewQdrantDocumentStore(db, vector), nil
}

// buildReranker picks the RAG query pipeline's rerank-stage backend named
// by cfg.Backend. "llm" (the default, signaled by a nil return) prompts the
// rerank-step model directly; "dedicated" routes reranking to a standalone
// rerank API via models/rerank.NewReranker, wrapped to the engine's
// per-passage Reranker shape.
func buildReranker(cfg config.RerankConfig, llm interfaces.LLMProvider) (interfaces.Reranker, error) {
	if cfg.Backend == "" || cfg.Backend == "llm" {
		return nil, nil
	}
	if cfg.Backend != "dedicated" {
		return nil, fmt.Errorf("unknown rerank backend %q", cfg.Backend)
	}
	r, err := rerank.NewReranker(&rerank.RerankerConfig{
		ModelName: cfg.Model,
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Provider:  cfg.Provider,
	}, llm)
	if err != nil {
		return nil, err
	}
	return rag.NewDedicatedReranker(r), nil
}

func buildEmbedder(cfg config.ConversationConfig) (interfaces.Embedder, error) {
	pooler := embedding.NewWorkerPool(4)
	embedderConfig := embedding.Config{
		BaseURL:    os.Getenv("VERIDESK_EMBEDDING_BASE_URL"),
		ModelName:  os.Getenv("VERIDESK_EMBEDDING_MODEL"),
		APIKey:     os.Getenv("VERIDESK_EMBEDDING_API_KEY"),
		Dimensions: cfg.EmbeddingDim,
		Provider:   os.Getenv("VERIDESK_EMBEDDING_PROVIDER"),
	}
	raw, err := embedding.NewEmbedder(embedderConfig, pooler)
	if err != nil {
		return nil, err
	}
	return embedding.NewAdapter(raw, cfg.EmbeddingDim), nil
}

func buildGinEngine(
	orch *orchestrator.Orchestrator,
	tenants interfaces.TenantRegistry,
	crmFactory handler.CRMFactory,
	ragEngine interfaces.RAGEngine,
	blobs *storage.Blobs,
	adminCfg config.AdminConfig,
) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), cors.Default())

	webhooks := handler.NewWebhookHandler(orch, tenants, crmFactory)
	admin := handler.NewAdminHandler(ragEngine, blobs, version)

	webhookGroup := engine.Group("/webhook")
	{
		webhookGroup.POST("/evolution", webhooks.Evolution)
		webhookGroup.POST("/telegram/:bot_token", webhooks.Telegram)
		webhookGroup.POST("/chatwoot/:tenant_slug", webhooks.Chatwoot)
	}

	adminGroup := engine.Group("/admin")
	adminGroup.Use(handler.AdminAuthMiddleware(adminCfg.APIKeyHash))
	{
		adminGroup.POST("/tenants/:tenant_id/documents", admin.IngestDocument)
		adminGroup.DELETE("/tenants/:tenant_id/documents/:filename", admin.DeleteDocument)
	}

	engine.GET("/system/info", admin.SystemInfo)
	engine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	return engine
}
