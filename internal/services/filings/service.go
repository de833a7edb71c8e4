// Package filings ingests SEC filings into the knowledge base and searches them.
package filings

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"finvisor/internal/adapters/cache"
	"finvisor/internal/adapters/edgar"
	"finvisor/internal/domain/filing"
	kdomain "finvisor/internal/domain/knowledge"
	"finvisor/internal/knowledge"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

const (
	DefaultFilingType = "10-K"
	DefaultFetchLimit = 3
	DefaultLockTTL    = 10 * time.Minute
)

// Downloader fetches EDGAR filings to disk
type Downloader interface {
	Get(ctx context.Context, form, ticker string, limit int) ([]edgar.Downloaded, error)
	Dir(ticker, form string) string
}

// FetchResult describes a completed EDGAR ingestion
type FetchResult struct {
	Ticker     string            `json:"ticker"`
	FilingType string            `json:"filing_type"`
	Filings    []string          `json:"filings"`
	Stats      kdomain.LoadStats `json:"stats"`
}

// Message is the confirmation shown to the agent
func (r FetchResult) Message() string {
	return fmt.Sprintf("Successfully stored %s filings for %s", r.FilingType, r.Ticker)
}

// Service downloads EDGAR filings and keeps them searchable
type Service struct {
	downloader Downloader
	knowledge  knowledge.Factory
	index      filing.Repository
	locker     cache.Locker
	lockTTL    time.Duration
	search     *knowledge.TextKnowledgeBase
	loaded     atomic.Bool
	log        *logger.Logger
}

// Config wires the EDGAR service
type Config struct {
	Downloader Downloader
	Knowledge  knowledge.Factory
	// BaseDir is the directory holding sec-edgar-filings
	BaseDir string
	// Index records downloaded filings; nil disables indexing
	Index   filing.Repository
	Locker  cache.Locker
	LockTTL time.Duration
}

// NewService creates the EDGAR filings service
func NewService(cfg Config) (*Service, error) {
	if cfg.Downloader == nil {
		return nil, errors.NewValidationError("downloader", "is required", nil)
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.Locker == nil {
		cfg.Locker = cache.NewLocal()
	}
	cfg.Knowledge = cfg.Knowledge.Scoped(string(filing.ProviderEDGAR))

	search, err := cfg.Knowledge.New(filepath.Join(cfg.BaseDir, edgar.FilingsDir), nil)
	if err != nil {
		return nil, err
	}

	return &Service{
		downloader: cfg.Downloader,
		knowledge:  cfg.Knowledge,
		index:      cfg.Index,
		locker:     cfg.Locker,
		lockTTL:    cfg.LockTTL,
		search:     search,
		log:        logger.Get().With("component", "filings_service", "provider", "edgar"),
	}, nil
}

// FetchAndStoreFilings downloads the newest filings of one type and loads them into the knowledge base
func (s *Service) FetchAndStoreFilings(ctx context.Context, ticker, filingType string, limit int) (*FetchResult, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, errors.NewValidationError("ticker", "must not be empty", ticker)
	}
	filingType = strings.ToUpper(strings.TrimSpace(filingType))
	if filingType == "" {
		filingType = DefaultFilingType
	}
	if limit <= 0 {
		limit = DefaultFetchLimit
	}

	result := &FetchResult{Ticker: ticker, FilingType: filingType}
	key := fmt.Sprintf("filings:edgar:%s:%s", ticker, filingType)

	err := withLock(ctx, s.locker, key, s.lockTTL, func() error {
		downloaded, err := s.downloader.Get(ctx, filingType, ticker, limit)
		if err != nil {
			return err
		}

		kb, err := s.knowledge.New(s.downloader.Dir(ticker, filingType), map[string]string{
			"ticker":   ticker,
			"form":     filingType,
			"provider": string(filing.ProviderEDGAR),
		})
		if err != nil {
			return err
		}

		stats, err := kb.Load(ctx, kdomain.LoadOptions{Upsert: true})
		if err != nil {
			return err
		}
		result.Stats = stats

		for _, d := range downloaded {
			result.Filings = append(result.Filings, d.Filing.AccessionNumber)
			s.record(ctx, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.loaded.Store(true)
	s.log.Infow("Stored filings",
		"ticker", ticker,
		"filing_type", filingType,
		"filings", len(result.Filings),
		"chunks", result.Stats.Chunks,
		"skipped", result.Stats.Skipped,
	)
	return result, nil
}

func (s *Service) record(ctx context.Context, d edgar.Downloaded) {
	if s.index == nil {
		return
	}
	err := s.index.Upsert(ctx, &filing.IndexedFiling{
		Provider:        filing.ProviderEDGAR,
		AccessionNumber: d.Filing.AccessionNumber,
		Ticker:          d.Filing.Ticker,
		FormType:        d.Filing.Form,
		FiledAt:         filing.ParseDate(d.Filing.FilingDate),
		URL:             d.Filing.DocumentURL(edgar.DefaultWWWURL),
		LocalPath:       d.Path,
	})
	if err != nil {
		s.log.Warnw("Failed to index filing", "accession", d.Filing.AccessionNumber, "error", err)
	}
}

// SearchFilings searches previously stored filings.
// It fails with ErrKnowledgeNotLoaded until something has been stored.
func (s *Service) SearchFilings(ctx context.Context, query string, limit int) ([]kdomain.SearchResult, error) {
	if !s.loaded.Load() {
		loaded, err := s.search.Loaded(ctx)
		if err != nil {
			return nil, err
		}
		if !loaded {
			return nil, errors.ErrKnowledgeNotLoaded
		}
	}
	if limit <= 0 {
		limit = knowledge.DefaultLimit
	}
	return s.search.Search(ctx, query, limit)
}

// IndexedFilings lists filings recorded for a ticker
func (s *Service) IndexedFilings(ctx context.Context, ticker, form string, limit int) ([]*filing.IndexedFiling, error) {
	if s.index == nil {
		return nil, errors.Wrap(errors.ErrUnavailable, "filings index is not configured")
	}
	return s.index.ListByTicker(ctx, ticker, form, limit)
}
