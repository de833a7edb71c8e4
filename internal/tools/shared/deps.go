package shared

import (
	"context"

	"finvisor/internal/adapters/article"
	"finvisor/internal/adapters/exa"
	"finvisor/internal/adapters/websearch"
	"finvisor/internal/adapters/yahoo"
	kdomain "finvisor/internal/domain/knowledge"
	"finvisor/internal/domain/memory"
	"finvisor/internal/domain/session"
	"finvisor/internal/services/filings"
	"finvisor/pkg/logger"
)

// MarketData is the Yahoo Finance surface the market tools use
type MarketData interface {
	Quote(ctx context.Context, symbol string) (yahoo.Quote, error)
	History(ctx context.Context, symbol, period, interval string) ([]yahoo.Bar, error)
	Fundamentals(ctx context.Context, symbol string) (yahoo.Fundamentals, error)
	Recommendations(ctx context.Context, symbol string) ([]yahoo.RecommendationTrend, error)
	Profile(ctx context.Context, symbol string) (yahoo.Profile, error)
	News(ctx context.Context, symbol string, count int) ([]yahoo.NewsItem, error)
}

// NewsSearcher searches curated news domains
type NewsSearcher interface {
	Search(ctx context.Context, query string, numResults int) ([]exa.Result, error)
}

// ArticleReader extracts the readable text of a web page
type ArticleReader interface {
	Read(ctx context.Context, rawURL string) (*article.Article, error)
}

// SECFilings is the EDGAR ingestion and search service
type SECFilings interface {
	FetchAndStoreFilings(ctx context.Context, ticker, filingType string, limit int) (*filings.FetchResult, error)
	SearchFilings(ctx context.Context, query string, limit int) ([]kdomain.SearchResult, error)
}

// FinnhubFilings is the Finnhub ingestion and knowledge search service
type FinnhubFilings interface {
	FetchFilings(ctx context.Context, symbol string) (*filings.FinnhubResult, error)
	SearchKnowledge(ctx context.Context, query string, limit int) ([]kdomain.SearchResult, error)
}

// Memories manages user memories
type Memories interface {
	Add(ctx context.Context, userID, text string, topics []string, input string) (*memory.UserMemory, error)
	Search(ctx context.Context, userID, query string, limit int) ([]*memory.UserMemory, error)
	Delete(ctx context.Context, userID, id string) error
	Clear(ctx context.Context, userID string) (int64, error)
}

// Sessions reads stored conversations
type Sessions interface {
	GetSession(ctx context.Context, appName, userID, sessionID string, opts *session.GetOptions) (*session.Session, error)
}

// Deps bundles dependencies required by concrete tool implementations.
// A nil dependency disables the tools that need it.
type Deps struct {
	AppName  string
	Market   MarketData
	News     NewsSearcher
	Web      websearch.Searcher
	Articles ArticleReader
	SEC      SECFilings
	Finnhub  FinnhubFilings
	Memories Memories
	Sessions Sessions
	Log      *logger.Logger
}

// HasMarketData reports whether the market data client is available
func (d Deps) HasMarketData() bool {
	return d.Market != nil
}

// Logger returns the configured logger or the global one
func (d Deps) Logger() *logger.Logger {
	if d.Log != nil {
		return d.Log
	}
	return logger.Get()
}
