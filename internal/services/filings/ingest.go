package filings

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	kdomain "finvisor/internal/domain/knowledge"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

// Source selects the filings provider of an ingestion job
type Source string

const (
	SourceEDGAR   Source = "edgar"
	SourceFinnhub Source = "finnhub"
)

// IngestJob asks for the filings of one ticker to be loaded into the knowledge base
type IngestJob struct {
	ID          string    `json:"id"`
	Source      Source    `json:"source"`
	Ticker      string    `json:"ticker"`
	FilingType  string    `json:"filing_type,omitempty"`
	Limit       int       `json:"limit,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Normalize validates the job and fills defaults
func (j *IngestJob) Normalize() error {
	j.Ticker = strings.ToUpper(strings.TrimSpace(j.Ticker))
	if j.Ticker == "" {
		return errors.NewValidationError("ticker", "must not be empty", j.Ticker)
	}

	switch Source(strings.ToLower(string(j.Source))) {
	case "", SourceEDGAR:
		j.Source = SourceEDGAR
		if j.FilingType == "" {
			j.FilingType = DefaultFilingType
		}
		if j.Limit <= 0 {
			j.Limit = DefaultFetchLimit
		}
	case SourceFinnhub:
		j.Source = SourceFinnhub
	default:
		return errors.NewValidationError("source", "must be edgar or finnhub", j.Source)
	}

	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.RequestedAt.IsZero() {
		j.RequestedAt = time.Now().UTC()
	}
	return nil
}

// IngestResult reports a finished job
type IngestResult struct {
	JobID      string            `json:"job_id"`
	Source     Source            `json:"source"`
	Ticker     string            `json:"ticker"`
	Message    string            `json:"message"`
	Stats      kdomain.LoadStats `json:"stats"`
	Error      string            `json:"error,omitempty"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Ingestor runs ingestion jobs against the configured providers
type Ingestor struct {
	edgar   *Service
	finnhub *FinnhubService
	log     *logger.Logger
}

// NewIngestor creates an ingestor. Either provider may be nil.
func NewIngestor(edgar *Service, finnhub *FinnhubService) *Ingestor {
	return &Ingestor{
		edgar:   edgar,
		finnhub: finnhub,
		log:     logger.Get().With("component", "filings_ingestor"),
	}
}

// Ingest runs one job to completion. A failed job still returns a result carrying the error text.
func (i *Ingestor) Ingest(ctx context.Context, job IngestJob) (*IngestResult, error) {
	if err := job.Normalize(); err != nil {
		return nil, err
	}

	result := &IngestResult{JobID: job.ID, Source: job.Source, Ticker: job.Ticker}
	start := time.Now()

	var err error
	switch job.Source {
	case SourceEDGAR:
		err = i.ingestEDGAR(ctx, job, result)
	case SourceFinnhub:
		err = i.ingestFinnhub(ctx, job, result)
	}
	result.FinishedAt = time.Now().UTC()

	if err != nil {
		result.Error = err.Error()
		i.log.Errorw("Filings ingestion failed", "job_id", job.ID, "source", job.Source, "ticker", job.Ticker, "error", err)
		return result, err
	}

	i.log.Infow("Filings ingested",
		"job_id", job.ID,
		"source", job.Source,
		"ticker", job.Ticker,
		"documents", result.Stats.Documents,
		"chunks", result.Stats.Chunks,
		"duration", time.Since(start),
	)
	return result, nil
}

func (i *Ingestor) ingestEDGAR(ctx context.Context, job IngestJob, result *IngestResult) error {
	if i.edgar == nil {
		return errors.Wrap(errors.ErrUnavailable, "EDGAR ingestion is not configured")
	}
	res, err := i.edgar.FetchAndStoreFilings(ctx, job.Ticker, job.FilingType, job.Limit)
	if err != nil {
		return err
	}
	result.Message = res.Message()
	result.Stats = res.Stats
	return nil
}

func (i *Ingestor) ingestFinnhub(ctx context.Context, job IngestJob, result *IngestResult) error {
	if i.finnhub == nil {
		return errors.Wrap(errors.ErrUnavailable, "Finnhub ingestion is not configured")
	}
	res, err := i.finnhub.FetchFilings(ctx, job.Ticker)
	if err != nil {
		return err
	}
	result.Message = res.Message()
	result.Stats = res.Stats
	return nil
}
