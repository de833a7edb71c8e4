package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"finvisor/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	ClickHouse    ClickHouseConfig
	Kafka         KafkaConfig
	AI            AIConfig
	Embeddings    EmbeddingsConfig
	Knowledge     KnowledgeConfig
	SEC           SECConfig
	Finnhub       FinnhubConfig
	Exa           ExaConfig
	Search        SearchConfig
	AssemblyAI    AssemblyAIConfig
	ErrorTracking ErrorTrackingConfig
	Cache         CacheConfig
	Workers       WorkersConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"finvisor"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"true"`
}

type HTTPConfig struct {
	Port            int           `envconfig:"HTTP_PORT" default:"7777"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"5m"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
	AllowedOrigins  []string      `envconfig:"HTTP_ALLOWED_ORIGINS" default:"*"`
	// DefaultUserID is used for runs that do not name a user
	DefaultUserID string `envconfig:"PLAYGROUND_DEFAULT_USER_ID"`
	// MaxUploadBytes limits audio uploads for transcription
	MaxUploadBytes int64 `envconfig:"HTTP_MAX_UPLOAD_BYTES" default:"26214400"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5532"`
	User     string `envconfig:"POSTGRES_USER" default:"ai"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"ai"`
	Database string `envconfig:"POSTGRES_DB" default:"ai"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
	// AutoMigrate applies pending migrations on startup
	AutoMigrate bool `envconfig:"POSTGRES_AUTO_MIGRATE" default:"true"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"finvisor"`
}

type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"finvisor"`
}

type AIConfig struct {
	GeminiKey string `envconfig:"GOOGLE_API_KEY"`
	ModelID   string `envconfig:"AI_MODEL_ID" default:"gemini-2.0-flash"`
	// HistoryRuns is how many previous runs are replayed into the model context
	HistoryRuns int `envconfig:"AI_HISTORY_RUNS" default:"10"`
	// DebugMode logs every model request and tool call
	DebugMode bool `envconfig:"AI_DEBUG_MODE" default:"false"`
	// RunTimeout caps a single agent run
	RunTimeout time.Duration `envconfig:"AI_RUN_TIMEOUT" default:"5m"`
	// DailyCostLimitUSD stops runs of a user once exceeded; 0 disables the check
	DailyCostLimitUSD float64 `envconfig:"AI_DAILY_COST_LIMIT_USD" default:"0"`
	Markdown          bool    `envconfig:"AI_MARKDOWN" default:"true"`
	// PromptDir holds .tmpl files that replace the built-in instructions
	PromptDir string `envconfig:"AI_PROMPT_DIR"`
}

type EmbeddingsConfig struct {
	Provider   string `envconfig:"EMBEDDINGS_PROVIDER" default:"openai"`
	OpenAIKey  string `envconfig:"OPENAI_API_KEY"`
	Model      string `envconfig:"EMBEDDINGS_MODEL" default:"text-embedding-3-small"`
	Dimensions int    `envconfig:"EMBEDDINGS_DIMENSIONS" default:"1536"`
}

type KnowledgeConfig struct {
	// Store is "pgvector" or "chromem"
	Store        string `envconfig:"KNOWLEDGE_STORE" default:"pgvector"`
	BaseDir      string `envconfig:"KNOWLEDGE_BASE_DIR" default:"."`
	Collection   string `envconfig:"KNOWLEDGE_COLLECTION" default:"sec_filings"`
	ChunkSize    int    `envconfig:"KNOWLEDGE_CHUNK_SIZE" default:"500"`
	ChunkOverlap int    `envconfig:"KNOWLEDGE_CHUNK_OVERLAP" default:"50"`
	SearchType   string `envconfig:"KNOWLEDGE_SEARCH_TYPE" default:"hybrid"`
	DefaultLimit int    `envconfig:"KNOWLEDGE_DEFAULT_LIMIT" default:"5"`
	BatchSize    int    `envconfig:"KNOWLEDGE_EMBED_BATCH_SIZE" default:"64"`
}

type SECConfig struct {
	UserAgent         string  `envconfig:"SEC_USER_AGENT" default:"MyCompanyName my.email@domain.com"`
	RequestsPerSecond float64 `envconfig:"SEC_REQUESTS_PER_SECOND" default:"10"`
}

type FinnhubConfig struct {
	APIKey        string `envconfig:"FINNHUB_API_KEY"`
	MaxFilings    int    `envconfig:"FINNHUB_MAX_FILINGS" default:"5"`
	DownloadLimit int    `envconfig:"FINNHUB_DOWNLOAD_CONCURRENCY" default:"3"`
}

type ExaConfig struct {
	APIKey          string   `envconfig:"EXA_API_KEY"`
	IncludeDomains  []string `envconfig:"EXA_INCLUDE_DOMAINS" default:"bloomberg.com,reuters.com,wsj.com,investing.com,cnbc.com"`
	TextLengthLimit int      `envconfig:"EXA_TEXT_LENGTH_LIMIT" default:"1000"`
}

type SearchConfig struct {
	GoogleAPIKey string `envconfig:"GOOGLE_SEARCH_API_KEY"`
	GoogleCX     string `envconfig:"GOOGLE_SEARCH_CX"`
}

type AssemblyAIConfig struct {
	APIKey       string        `envconfig:"ASSEMBLYAI_API_KEY"`
	PollInterval time.Duration `envconfig:"ASSEMBLYAI_POLL_INTERVAL" default:"1s"`
	Timeout      time.Duration `envconfig:"ASSEMBLYAI_TIMEOUT" default:"2m"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

type CacheConfig struct {
	QuoteTTL        time.Duration `envconfig:"CACHE_QUOTE_TTL" default:"1m"`
	FundamentalsTTL time.Duration `envconfig:"CACHE_FUNDAMENTALS_TTL" default:"1h"`
	LockTTL         time.Duration `envconfig:"CACHE_INGEST_LOCK_TTL" default:"10m"`
}

type WorkersConfig struct {
	FilingsRefreshEnabled  bool          `envconfig:"WORKER_FILINGS_REFRESH_ENABLED" default:"false"`
	FilingsRefreshInterval time.Duration `envconfig:"WORKER_FILINGS_REFRESH_INTERVAL" default:"24h"`
	WatchTickers           []string      `envconfig:"WORKER_WATCH_TICKERS"`
	WatchFilingType        string        `envconfig:"WORKER_WATCH_FILING_TYPE" default:"10-K"`
	WatchLimit             int           `envconfig:"WORKER_WATCH_LIMIT" default:"1"`
	ShutdownTimeout        time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"2m"`
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	if c.Knowledge.ChunkOverlap >= c.Knowledge.ChunkSize {
		return errors.NewValidationError("KNOWLEDGE_CHUNK_OVERLAP", "must be smaller than chunk size", c.Knowledge.ChunkOverlap)
	}
	switch c.Knowledge.Store {
	case "pgvector", "chromem":
	default:
		return errors.NewValidationError("KNOWLEDGE_STORE", "must be pgvector or chromem", c.Knowledge.Store)
	}
	switch c.Knowledge.SearchType {
	case "vector", "keyword", "hybrid":
	default:
		return errors.NewValidationError("KNOWLEDGE_SEARCH_TYPE", "must be vector, keyword or hybrid", c.Knowledge.SearchType)
	}
	if c.SEC.RequestsPerSecond <= 0 || c.SEC.RequestsPerSecond > 10 {
		return errors.NewValidationError("SEC_REQUESTS_PER_SECOND", "must be in (0, 10]", c.SEC.RequestsPerSecond)
	}
	return nil
}
