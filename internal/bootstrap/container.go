package bootstrap

import (
	"context"
	"sync"

	"google.golang.org/adk/session"

	"finvisor/internal/adapters/ai"
	"finvisor/internal/adapters/article"
	"finvisor/internal/adapters/assemblyai"
	"finvisor/internal/adapters/cache"
	chclient "finvisor/internal/adapters/clickhouse"
	"finvisor/internal/adapters/config"
	"finvisor/internal/adapters/edgar"
	"finvisor/internal/adapters/embeddings"
	"finvisor/internal/adapters/exa"
	"finvisor/internal/adapters/finnhub"
	"finvisor/internal/adapters/kafka"
	pgclient "finvisor/internal/adapters/postgres"
	redisclient "finvisor/internal/adapters/redis"
	"finvisor/internal/adapters/websearch"
	"finvisor/internal/adapters/yahoo"
	"finvisor/internal/agents"
	"finvisor/internal/api"
	"finvisor/internal/api/health"
	"finvisor/internal/consumers"
	"finvisor/internal/domain/filing"
	kdomain "finvisor/internal/domain/knowledge"
	"finvisor/internal/domain/memory"
	domainsession "finvisor/internal/domain/session"
	"finvisor/internal/events"
	chrepo "finvisor/internal/repository/clickhouse"
	aiusagesvc "finvisor/internal/services/ai_usage"
	"finvisor/internal/services/filings"
	"finvisor/internal/tools"
	"finvisor/internal/workers"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure Layer (Data stores); CH and Redis are nil when disabled
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	Repos       *Repositories
	Adapters    *Adapters
	Services    *Services
	Business    *Business
	Application *Application
	Background  *Background

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups all domain repositories
type Repositories struct {
	Session   domainsession.Repository
	Memory    memory.Repository
	Knowledge kdomain.VectorStore
	Filing    filing.Repository
	AIUsage   *chrepo.AIUsageRepository
}

// Adapters groups all external adapters
type Adapters struct {
	// Kafka; nil when disabled. The ingest consumer is closed by the consumer service.
	KafkaProducer  *kafka.Producer
	IngestConsumer *kafka.Consumer

	Cache     cache.Cache
	Locker    cache.Locker
	Embedding embeddings.Provider

	EDGAR      *edgar.Client
	Finnhub    *finnhub.Client
	Yahoo      *yahoo.Client
	Exa        *exa.Client
	WebSearch  websearch.Searcher
	Articles   *article.Extractor
	AssemblyAI *assemblyai.Client
}

// Services groups domain and application services
type Services struct {
	Session    *domainsession.Service
	ADKSession session.Service
	Memory     *memory.Service
	Filings    *filings.Service
	Finnhub    *filings.FinnhubService
	Ingestor   *filings.Ingestor
	// AIUsage is nil without ClickHouse
	AIUsage *aiusagesvc.Service
}

// Business groups the agent runtime
type Business struct {
	AIRegistry   *ai.ProviderRegistry
	ToolRegistry *tools.Registry
	AgentFactory *agents.Factory
	AgentRunner  *agents.Runner
	Costs        *agents.CostTracker
}

// Application groups application layer components
type Application struct {
	HTTPServer    *api.Server
	HealthHandler *health.Handler
	// IngestPublisher is nil without Kafka; jobs then run inside the request
	IngestPublisher *events.Publisher
}

// Background groups all background processing components
type Background struct {
	IngestSvc *consumers.FilingsIngestConsumer
	Scheduler *workers.Scheduler
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:       &Repositories{},
		Adapters:    &Adapters{},
		Services:    &Services{},
		Business:    &Business{},
		Application: &Application{},
		Background:  &Background{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes all components in the correct order
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.MustInitCore()
	c.MustInitBusiness()
	c.MustInitApplication()
	c.MustInitBackground()
}

// MustInitCore initializes everything the ingestion command needs
func (c *Container) MustInitCore() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitServices()
}

// Start starts all background components
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	if c.Services.AIUsage != nil {
		c.Services.AIUsage.Start(c.Context)
	}

	if err := c.startConsumers(); err != nil {
		return err
	}

	if err := c.Background.Scheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start workers")
	}

	// Start HTTP server
	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	c.Log.Info("✓ All systems operational")
	return nil
}

// startConsumers starts all Kafka consumers in background goroutines
func (c *Container) startConsumers() error {
	consumers := []struct {
		name string
		svc  interface{ Start(context.Context) error }
	}{}
	if c.Background.IngestSvc != nil {
		consumers = append(consumers, struct {
			name string
			svc  interface{ Start(context.Context) error }
		}{"filings_ingest", c.Background.IngestSvc})
	}

	names := make([]string, 0, len(consumers))
	c.WG.Add(len(consumers))
	for _, consumer := range consumers {
		svc := consumer.svc
		name := consumer.name
		names = append(names, name)
		go func() {
			defer c.WG.Done()
			if err := svc.Start(c.Context); err != nil && c.Context.Err() == nil {
				c.Log.Errorw(name+" consumer failed", "error", err)
			}
		}()
	}

	c.Log.Infow("✓ Event consumers started", "consumers", names)
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	// Cancel application context to signal all other components to stop
	c.Cancel()

	c.Lifecycle.Shutdown(ShutdownTargets{
		WG:            c.WG,
		HTTPServer:    c.Application.HTTPServer,
		Scheduler:     c.Background.Scheduler,
		KafkaProducer: c.Adapters.KafkaProducer,
		AIUsage:       c.Services.AIUsage,
		PG:            c.PG,
		CH:            c.CH,
		Redis:         c.Redis,
		ErrorTracker:  c.ErrorTracker,
	}, c.Log)
}
