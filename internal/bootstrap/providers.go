package bootstrap

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"finvisor/internal/adapters/adk"
	"finvisor/internal/adapters/ai"
	"finvisor/internal/adapters/article"
	"finvisor/internal/adapters/assemblyai"
	"finvisor/internal/adapters/cache"
	chclient "finvisor/internal/adapters/clickhouse"
	"finvisor/internal/adapters/config"
	"finvisor/internal/adapters/edgar"
	"finvisor/internal/adapters/embeddings"
	errnoop "finvisor/internal/adapters/errors/noop"
	"finvisor/internal/adapters/errors/sentry"
	"finvisor/internal/adapters/exa"
	"finvisor/internal/adapters/finnhub"
	"finvisor/internal/adapters/kafka"
	pgclient "finvisor/internal/adapters/postgres"
	"finvisor/internal/adapters/ratelimit"
	redisclient "finvisor/internal/adapters/redis"
	"finvisor/internal/adapters/websearch"
	"finvisor/internal/adapters/yahoo"
	"finvisor/internal/agents"
	"finvisor/internal/api"
	"finvisor/internal/api/health"
	"finvisor/internal/api/ingest"
	"finvisor/internal/api/playground"
	"finvisor/internal/api/transcribe"
	"finvisor/internal/consumers"
	kdomain "finvisor/internal/domain/knowledge"
	"finvisor/internal/domain/memory"
	domainsession "finvisor/internal/domain/session"
	"finvisor/internal/events"
	"finvisor/internal/knowledge"
	"finvisor/internal/metrics"
	"finvisor/internal/repository/chromem"
	chrepo "finvisor/internal/repository/clickhouse"
	pgrepo "finvisor/internal/repository/postgres"
	aiusagesvc "finvisor/internal/services/ai_usage"
	"finvisor/internal/services/filings"
	"finvisor/internal/tools"
	"finvisor/internal/tools/shared"
	"finvisor/internal/workers"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
	"finvisor/pkg/templates"
)

const connectTimeout = 15 * time.Second

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s %s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects Postgres and, when enabled, ClickHouse and Redis
func (c *Container) MustInitInfrastructure() {
	var err error
	ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
	defer cancel()

	c.Log.Info("Connecting to PostgreSQL...")
	c.PG, err = pgclient.NewClient(ctx, c.Config.Postgres)
	if err != nil {
		c.Log.Fatalf("failed to connect postgres: %v", err)
	}
	c.Log.Info("✓ PostgreSQL connected")

	if c.Config.Postgres.AutoMigrate {
		applied, err := pgclient.Migrate(ctx, c.PG.DB())
		if err != nil {
			c.Log.Fatalf("failed to migrate postgres: %v", err)
		}
		c.Log.Infow("✓ Migrations applied", "count", len(applied))
	}

	if c.Config.ClickHouse.Enabled {
		c.Log.Info("Connecting to ClickHouse...")
		c.CH, err = chclient.NewClient(ctx, c.Config.ClickHouse)
		if err != nil {
			c.Log.Fatalf("failed to connect clickhouse: %v", err)
		}
		c.Log.Info("✓ ClickHouse connected")
	} else {
		c.Log.Info("ClickHouse disabled, usage logs are kept in metrics only")
	}

	if c.Config.Redis.Enabled {
		c.Log.Info("Connecting to Redis...")
		c.Redis, err = redisclient.NewClient(ctx, c.Config.Redis)
		if err != nil {
			c.Log.Fatalf("failed to connect redis: %v", err)
		}
		c.Log.Info("✓ Redis connected")
	} else {
		c.Log.Info("Redis disabled, using in-process cache and locks")
	}
}

// ========================================
// Phase 3: Domain Layer - Repositories
// ========================================

// MustInitRepositories initializes all domain repositories
func (c *Container) MustInitRepositories() {
	db := c.PG.DB()
	c.Repos.Session = pgrepo.NewSessionRepository(db)
	c.Repos.Memory = pgrepo.NewMemoryRepository(db)
	c.Repos.Filing = pgrepo.NewFilingRepository(db)
	c.Repos.Knowledge = provideVectorStore(c.Config.Knowledge, db, c.Log)

	if c.CH != nil {
		c.Repos.AIUsage = chrepo.NewAIUsageRepository(c.CH.Conn(), chrepo.DefaultUsageTable)
		ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
		defer cancel()
		if err := c.Repos.AIUsage.EnsureSchema(ctx); err != nil {
			c.Log.Fatalf("failed to prepare usage table: %v", err)
		}
	}

	c.Log.Info("✓ Repositories initialized")
}

// ========================================
// Phase 4: External Adapters
// ========================================

// MustInitAdapters initializes Kafka, caches, embeddings and data providers
func (c *Container) MustInitAdapters() {
	var err error
	cfg := c.Config

	if cfg.Kafka.Enabled {
		c.Adapters.KafkaProducer = provideKafkaProducer(cfg, c.Log)
		c.Adapters.IngestConsumer = provideKafkaConsumer(cfg, kafka.TopicFilingsIngest, c.Log)
	}

	if c.Redis != nil {
		c.Adapters.Cache = c.Redis
		c.Adapters.Locker = c.Redis
	} else {
		local := cache.NewLocal()
		c.Adapters.Cache = local
		c.Adapters.Locker = local
	}

	c.Adapters.Embedding, err = provideEmbeddings(c.Context, cfg)
	if err != nil {
		c.Log.Fatalf("failed to create embedding provider: %v", err)
	}
	c.Log.Infof("✓ Embedding provider initialized: %s (%d dimensions)",
		c.Adapters.Embedding.Name(),
		c.Adapters.Embedding.Dimensions(),
	)

	limiters := ratelimit.NewProviderLimiters(cfg.SEC.RequestsPerSecond, c.redisClient())

	c.Adapters.EDGAR, err = edgar.NewClient(edgar.Config{
		UserAgent: cfg.SEC.UserAgent,
		Limiter:   limiters.Get(ratelimit.SEC),
	})
	if err != nil {
		c.Log.Fatalf("failed to create EDGAR client: %v", err)
	}

	if cfg.Finnhub.APIKey != "" {
		c.Adapters.Finnhub, err = finnhub.NewClient(finnhub.Config{
			APIKey:    cfg.Finnhub.APIKey,
			Limiter:   limiters.Get(ratelimit.Finnhub),
			UserAgent: cfg.SEC.UserAgent,
		})
		if err != nil {
			c.Log.Fatalf("failed to create Finnhub client: %v", err)
		}
	} else {
		c.Log.Info("FINNHUB_API_KEY not set, Finnhub tools disabled")
	}

	c.Adapters.Yahoo = yahoo.NewClient(yahoo.Config{
		Limiter:         limiters.Get(ratelimit.Yahoo),
		Cache:           c.Adapters.Cache,
		QuoteTTL:        cfg.Cache.QuoteTTL,
		FundamentalsTTL: cfg.Cache.FundamentalsTTL,
	})

	if cfg.Exa.APIKey != "" {
		c.Adapters.Exa, err = exa.NewClient(exa.Config{
			APIKey:          cfg.Exa.APIKey,
			IncludeDomains:  cfg.Exa.IncludeDomains,
			TextLengthLimit: cfg.Exa.TextLengthLimit,
		})
		if err != nil {
			c.Log.Fatalf("failed to create Exa client: %v", err)
		}
	} else {
		c.Log.Info("EXA_API_KEY not set, news search disabled")
	}

	c.Adapters.WebSearch = websearch.New(websearch.Config{
		GoogleAPIKey: cfg.Search.GoogleAPIKey,
		GoogleCX:     cfg.Search.GoogleCX,
	})
	c.Adapters.Articles = article.NewExtractor(article.Config{})

	if cfg.AssemblyAI.APIKey != "" {
		c.Adapters.AssemblyAI, err = assemblyai.NewClient(assemblyai.Config{
			APIKey:       cfg.AssemblyAI.APIKey,
			PollInterval: cfg.AssemblyAI.PollInterval,
			Timeout:      cfg.AssemblyAI.Timeout,
		})
		if err != nil {
			c.Log.Fatalf("failed to create AssemblyAI client: %v", err)
		}
	} else {
		c.Log.Info("ASSEMBLYAI_API_KEY not set, voice input disabled")
	}

	c.Log.Info("✓ Adapters initialized")
}

// ========================================
// Phase 5: Domain Services
// ========================================

// MustInitServices initializes sessions, memories, filings and usage services
func (c *Container) MustInitServices() {
	var err error
	cfg := c.Config

	c.Services.Session = domainsession.NewService(c.Repos.Session)
	c.Services.ADKSession = adk.NewSessionService(c.Services.Session, adk.WithHistoryRuns(cfg.AI.HistoryRuns))
	c.Services.Memory = memory.NewService(c.Repos.Memory, c.Adapters.Embedding)

	searchType, err := kdomain.ParseSearchType(cfg.Knowledge.SearchType)
	if err != nil {
		c.Log.Fatalf("invalid knowledge search type: %v", err)
	}
	kb := knowledge.Factory{
		Store:        c.Repos.Knowledge,
		Embedder:     c.Adapters.Embedding,
		Chunker:      knowledge.NewChunker(cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap),
		Collection:   cfg.Knowledge.Collection,
		SearchType:   searchType,
		DefaultLimit: cfg.Knowledge.DefaultLimit,
		BatchSize:    cfg.Knowledge.BatchSize,
	}

	c.Services.Filings, err = filings.NewService(filings.Config{
		Downloader: edgar.NewDownloader(c.Adapters.EDGAR, cfg.Knowledge.BaseDir),
		Knowledge:  kb,
		BaseDir:    cfg.Knowledge.BaseDir,
		Index:      c.Repos.Filing,
		Locker:     c.Adapters.Locker,
		LockTTL:    cfg.Cache.LockTTL,
	})
	if err != nil {
		c.Log.Fatalf("failed to create filings service: %v", err)
	}

	if c.Adapters.Finnhub != nil {
		c.Services.Finnhub, err = filings.NewFinnhubService(filings.FinnhubConfig{
			Client:     c.Adapters.Finnhub,
			Knowledge:  kb,
			BaseDir:    cfg.Knowledge.BaseDir,
			MaxFilings: cfg.Finnhub.MaxFilings,
			Workers:    cfg.Finnhub.DownloadLimit,
			Index:      c.Repos.Filing,
			Locker:     c.Adapters.Locker,
			LockTTL:    cfg.Cache.LockTTL,
		})
		if err != nil {
			c.Log.Fatalf("failed to create Finnhub filings service: %v", err)
		}
	}

	c.Services.Ingestor = filings.NewIngestor(c.Services.Filings, c.Services.Finnhub)

	if c.Repos.AIUsage != nil {
		c.Services.AIUsage = aiusagesvc.NewService(c.Repos.AIUsage, c.Log.With("component", "ai_usage"))
	}

	c.Log.Info("✓ Services initialized")
}

// ========================================
// Phase 6: Business Logic
// ========================================

// MustInitBusiness initializes models, tools and agents
func (c *Container) MustInitBusiness() {
	var err error
	cfg := c.Config

	c.Business.AIRegistry, err = provideAIRegistry(cfg, c.redisClient(), c.Log)
	if err != nil {
		c.Log.Fatalf("failed to initialize AI providers: %v", err)
	}

	c.Business.ToolRegistry, err = provideToolRegistry(c, c.Log)
	if err != nil {
		c.Log.Fatalf("failed to register tools: %v", err)
	}

	prompts, err := templates.NewWithOverrides(cfg.AI.PromptDir)
	if err != nil {
		c.Log.Fatalf("failed to load prompt templates: %v", err)
	}

	deps := agents.FactoryDeps{
		AIRegistry:   c.Business.AIRegistry,
		ToolRegistry: c.Business.ToolRegistry,
		Templates:    prompts,
		Memories:     c.Services.Memory,
		PlainText:    !cfg.AI.Markdown,
		Provider:     ai.ProviderNameGoogle.String(),
		DefaultModel: cfg.AI.ModelID,
	}
	if c.Services.AIUsage != nil && cfg.AI.DailyCostLimitUSD > 0 {
		deps.CostCheck = c.Services.AIUsage.BudgetCheck(cfg.AI.DailyCostLimitUSD)
	}

	c.Business.AgentFactory, err = agents.NewFactory(deps)
	if err != nil {
		c.Log.Fatalf("failed to create agent factory: %v", err)
	}

	c.Business.Costs = agents.NewCostTracker()
	runnerDeps := agents.RunnerDeps{
		Factory:    c.Business.AgentFactory,
		Sessions:   c.Services.ADKSession,
		Costs:      c.Business.Costs,
		DebugMode:  cfg.AI.DebugMode,
		MaxRunTime: cfg.AI.RunTimeout,
	}
	if c.Services.AIUsage != nil {
		runnerDeps.Usage = c.Services.AIUsage
	}
	c.Business.AgentRunner, err = agents.NewRunner(runnerDeps)
	if err != nil {
		c.Log.Fatalf("failed to create agent runner: %v", err)
	}

	c.Log.Infow("✓ Business logic initialized",
		"tools", len(c.Business.ToolRegistry.List()),
		"agents", len(agents.Catalog()),
		"model", cfg.AI.ModelID,
	)
}

// ========================================
// Phase 7: Application Layer
// ========================================

// MustInitApplication initializes health checks, metrics and the HTTP server
func (c *Container) MustInitApplication() {
	cfg := c.Config

	c.Application.HealthHandler = provideHealth(c)

	if c.Adapters.KafkaProducer != nil {
		c.Application.IngestPublisher = events.NewPublisher(c.Adapters.KafkaProducer, cfg.App.Name, c.Log)
	}

	pg := playground.Deps{
		Runner:         c.Business.AgentRunner,
		Agents:         c.Business.AgentFactory,
		Sessions:       c.Services.Session,
		Version:        cfg.App.Version,
		DefaultUserID:  cfg.HTTP.DefaultUserID,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}
	if c.Services.AIUsage != nil {
		pg.Usage = c.Services.AIUsage
	}

	var queue ingest.Queue
	if c.Application.IngestPublisher != nil {
		queue = c.Application.IngestPublisher
	}
	var transcriber transcribe.Transcriber
	if c.Adapters.AssemblyAI != nil {
		transcriber = c.Adapters.AssemblyAI
	}

	c.Application.HTTPServer = api.NewServer(api.ServerConfig{
		Port:           cfg.HTTP.Port,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, api.Routes{
		Health:     c.Application.HealthHandler,
		Playground: playground.New(pg, c.Log),
		Ingest:     ingest.New(queue, c.Services.Ingestor, c.Log),
		Transcribe: transcribe.New(transcriber, cfg.HTTP.MaxUploadBytes, c.Log),
	}, c.Log)

	metrics.Init()
	metrics.RegisterCustomCollector(metrics.NewCustomCollector(c.Log, c.PG.DB()))
	c.Log.Info("✓ Metrics initialized")

	c.Log.Info("✓ Application layer initialized")
}

// ========================================
// Phase 8: Background Processing
// ========================================

// MustInitBackground initializes the ingestion consumer when Kafka is enabled
// and the worker scheduler
func (c *Container) MustInitBackground() {
	var queue workers.JobQueue = workers.InlineQueue{Ingestor: c.Services.Ingestor}

	if c.Adapters.IngestConsumer != nil {
		c.Background.IngestSvc = consumers.NewFilingsIngestConsumer(
			c.Adapters.IngestConsumer,
			c.Services.Ingestor,
			c.Application.IngestPublisher,
			c.Log,
		)
	} else {
		c.Log.Info("Kafka disabled, ingestion jobs run inline")
	}
	if c.Application.IngestPublisher != nil {
		queue = c.Application.IngestPublisher
	}

	c.Background.Scheduler = workers.NewScheduler(c.Log)
	wc := c.Config.Workers
	if wc.ShutdownTimeout > 0 {
		c.Lifecycle.workerWait = wc.ShutdownTimeout
	}
	c.Background.Scheduler.Register(workers.NewFilingsRefreshWorker(workers.FilingsRefreshConfig{
		Enabled:    wc.FilingsRefreshEnabled,
		Interval:   wc.FilingsRefreshInterval,
		Tickers:    wc.WatchTickers,
		Source:     filings.SourceEDGAR,
		FilingType: wc.WatchFilingType,
		Limit:      wc.WatchLimit,
	}, queue, c.Adapters.Locker, c.Log))

	c.Log.Info("✓ Background processing initialized")
}

// ========================================
// Helper Provider Functions
// ========================================

// redisClient returns the raw client, or nil when Redis is disabled
func (c *Container) redisClient() *goredis.Client {
	if c.Redis == nil {
		return nil
	}
	return c.Redis.Client()
}

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

func provideVectorStore(cfg config.KnowledgeConfig, db pgrepo.DBTX, log *logger.Logger) kdomain.VectorStore {
	if cfg.Store == "chromem" {
		log.Warn("Knowledge store is in-memory (chromem), ingested filings are lost on restart")
		return chromem.NewKnowledgeStore()
	}
	return pgrepo.NewKnowledgeRepository(db)
}

func provideEmbeddings(ctx context.Context, cfg *config.Config) (embeddings.Provider, error) {
	ecfg := embeddings.Config{
		Provider:   embeddings.ProviderType(cfg.Embeddings.Provider),
		APIKey:     cfg.Embeddings.OpenAIKey,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		Timeout:    30 * time.Second,
	}
	if ecfg.Provider == embeddings.ProviderGemini {
		ecfg.APIKey = cfg.AI.GeminiKey
	}
	return embeddings.NewProvider(ctx, ecfg)
}

func provideKafkaProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	log.Info("Initializing Kafka producer...")
	producer := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
	log.Info("✓ Kafka producer initialized")
	return producer
}

func provideKafkaConsumer(cfg *config.Config, topic string, log *logger.Logger) *kafka.Consumer {
	log.Infow("Initializing Kafka consumer", "topic", topic)
	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topic:   topic,
	})
	log.Infow("✓ Kafka consumer initialized", "topic", topic)
	return consumer
}

// provideAIRegistry registers Gemini; the request quota is shared through Redis when available
func provideAIRegistry(cfg *config.Config, rdb *goredis.Client, log *logger.Logger) (*ai.ProviderRegistry, error) {
	if cfg.AI.GeminiKey == "" {
		return nil, errors.NewValidationError("GOOGLE_API_KEY", "is required", nil)
	}

	factory := ai.NewRateLimiterFactory(rdb)

	registry := ai.NewProviderRegistry()
	limiter := factory.Create(ai.ProviderNameGoogle, ai.DefaultRateLimit())
	if err := registry.Register(ai.NewGeminiProvider(cfg.AI.GeminiKey, limiter)); err != nil {
		return nil, err
	}

	log.Infow("✓ AI providers registered", "provider", ai.ProviderNameGoogle.String())
	return registry, nil
}

func provideToolRegistry(c *Container, log *logger.Logger) (*tools.Registry, error) {
	log.Info("Registering tools...")
	registry := tools.NewRegistry()

	deps := shared.Deps{
		AppName:  agents.AgentFinance,
		Market:   c.Adapters.Yahoo,
		Web:      c.Adapters.WebSearch,
		Articles: c.Adapters.Articles,
		SEC:      c.Services.Filings,
		Memories: c.Services.Memory,
		Sessions: c.Services.Session,
		Log:      log,
	}
	// typed nils would enable the tools of a missing provider
	if c.Adapters.Exa != nil {
		deps.News = c.Adapters.Exa
	}
	if c.Services.Finnhub != nil {
		deps.Finnhub = c.Services.Finnhub
	}

	if err := tools.RegisterAllTools(registry, deps); err != nil {
		return nil, err
	}

	log.Infof("✓ Registered %d tools", len(registry.List()))
	return registry, nil
}

func provideHealth(c *Container) *health.Handler {
	h := health.New(c.Log, c.Config.App.Name, c.Config.App.Version).
		Require("postgres", c.PG.Health)

	if c.CH != nil {
		h.Optional("clickhouse", c.CH.Health)
	}
	if c.Redis != nil {
		h.Optional("redis", c.Redis.Health)
	}
	return h
}
