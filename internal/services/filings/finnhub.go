package filings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"finvisor/internal/adapters/cache"
	"finvisor/internal/adapters/edgar"
	"finvisor/internal/adapters/finnhub"
	"finvisor/internal/domain/filing"
	kdomain "finvisor/internal/domain/knowledge"
	"finvisor/internal/knowledge"
	"finvisor/internal/metrics"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

const (
	DefaultMaxFilings     = 5
	defaultFinnhubWorkers = 3
)

// FinnhubAPI lists filings and downloads their documents
type FinnhubAPI interface {
	Filings(ctx context.Context, symbol string) ([]finnhub.Filing, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FinnhubResult describes a completed Finnhub ingestion
type FinnhubResult struct {
	Symbol string            `json:"symbol"`
	Count  int               `json:"count"`
	Found  int               `json:"found"`
	Stats  kdomain.LoadStats `json:"stats"`
}

// Message is the confirmation shown to the agent
func (r FinnhubResult) Message() string {
	if r.Found == 0 {
		return fmt.Sprintf("No filings found for %s.", r.Symbol)
	}
	return fmt.Sprintf("Successfully added %d filings for %s to the knowledge base.", r.Count, r.Symbol)
}

// FinnhubConfig wires the Finnhub filings service
type FinnhubConfig struct {
	Client     FinnhubAPI
	Knowledge  knowledge.Factory
	BaseDir    string
	MaxFilings int
	Workers    int
	Index      filing.Repository
	Locker     cache.Locker
	LockTTL    time.Duration
}

// FinnhubService stores filings listed by Finnhub as raw text documents
type FinnhubService struct {
	cfg    FinnhubConfig
	search *knowledge.TextKnowledgeBase
	loaded atomic.Bool
	log    *logger.Logger
}

// NewFinnhubService creates the Finnhub filings service
func NewFinnhubService(cfg FinnhubConfig) (*FinnhubService, error) {
	if cfg.Client == nil {
		return nil, errors.NewValidationError("client", "is required", nil)
	}
	if cfg.MaxFilings <= 0 {
		cfg.MaxFilings = DefaultMaxFilings
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultFinnhubWorkers
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.Locker == nil {
		cfg.Locker = cache.NewLocal()
	}
	cfg.Knowledge = cfg.Knowledge.Scoped(string(filing.ProviderFinnhub))

	search, err := cfg.Knowledge.New(filepath.Join(cfg.BaseDir, edgar.FilingsDir), nil)
	if err != nil {
		return nil, err
	}

	return &FinnhubService{
		cfg:    cfg,
		search: search,
		log:    logger.Get().With("component", "filings_service", "provider", "finnhub"),
	}, nil
}

// Dir is where documents of symbol are written
func (s *FinnhubService) Dir(symbol string) string {
	return filepath.Join(s.cfg.BaseDir, edgar.FilingsDir, strings.ToUpper(symbol))
}

// FetchFilings downloads the newest filings for symbol and loads them into the knowledge base.
// Filings without a document URL, non-200 responses and failed downloads are skipped.
func (s *FinnhubService) FetchFilings(ctx context.Context, symbol string) (*FinnhubResult, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, errors.NewValidationError("symbol", "must not be empty", symbol)
	}

	result := &FinnhubResult{Symbol: symbol}
	err := withLock(ctx, s.cfg.Locker, "filings:finnhub:"+symbol, s.cfg.LockTTL, func() error {
		filings, err := s.cfg.Client.Filings(ctx, symbol)
		if err != nil {
			return err
		}
		result.Found = len(filings)
		if len(filings) == 0 {
			return nil
		}
		if len(filings) > s.cfg.MaxFilings {
			filings = filings[:s.cfg.MaxFilings]
		}

		stored := s.download(ctx, symbol, filings)
		result.Count = int(stored)
		if stored == 0 {
			// nothing written, the symbol directory may not exist
			return nil
		}

		kb, err := s.cfg.Knowledge.New(s.Dir(symbol), map[string]string{
			"ticker":   symbol,
			"provider": string(filing.ProviderFinnhub),
		})
		if err != nil {
			return err
		}
		stats, err := kb.Load(ctx, kdomain.LoadOptions{Upsert: true})
		if err != nil {
			return err
		}
		result.Stats = stats
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Count > 0 {
		s.loaded.Store(true)
	}
	s.log.Infow("Fetched filings",
		"symbol", symbol,
		"found", result.Found,
		"stored", result.Count,
		"chunks", result.Stats.Chunks,
	)
	return result, nil
}

func (s *FinnhubService) download(ctx context.Context, symbol string, filings []finnhub.Filing) int32 {
	var stored atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for _, f := range filings {
		url := f.DocumentURL()
		if url == "" || f.AccessNumber == "" {
			metrics.FilingsDownloaded.WithLabelValues("finnhub", "skipped").Inc()
			continue
		}

		g.Go(func() error {
			body, err := s.cfg.Client.Fetch(gctx, url)
			if err != nil {
				metrics.FilingsDownloaded.WithLabelValues("finnhub", "error").Inc()
				s.log.Warnw("Skipping filing", "accession", f.AccessNumber, "url", url, "error", err)
				return nil
			}

			path := filepath.Join(s.Dir(symbol), f.AccessNumber+".txt")
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				s.log.Warnw("Failed to create filings directory", "path", path, "error", err)
				return nil
			}
			if err := os.WriteFile(path, body, 0o644); err != nil {
				s.log.Warnw("Failed to write filing", "path", path, "error", err)
				return nil
			}

			metrics.FilingsDownloaded.WithLabelValues("finnhub", "success").Inc()
			stored.Add(1)
			s.record(gctx, symbol, f, url, path)
			return nil
		})
	}

	_ = g.Wait()
	return stored.Load()
}

func (s *FinnhubService) record(ctx context.Context, symbol string, f finnhub.Filing, url, path string) {
	if s.cfg.Index == nil {
		return
	}
	err := s.cfg.Index.Upsert(ctx, &filing.IndexedFiling{
		Provider:        filing.ProviderFinnhub,
		AccessionNumber: f.AccessNumber,
		Ticker:          symbol,
		FormType:        f.Form,
		FiledAt:         filing.ParseDate(f.FiledDate),
		URL:             url,
		LocalPath:       path,
	})
	if err != nil {
		s.log.Warnw("Failed to index filing", "accession", f.AccessNumber, "error", err)
	}
}

// SearchKnowledge searches the filings knowledge base
func (s *FinnhubService) SearchKnowledge(ctx context.Context, query string, limit int) ([]kdomain.SearchResult, error) {
	if !s.loaded.Load() {
		loaded, err := s.search.Loaded(ctx)
		if err != nil {
			return nil, err
		}
		if !loaded {
			return nil, errors.ErrKnowledgeNotLoaded
		}
	}
	return s.search.Search(ctx, query, limit)
}
