package workers

import (
	"context"
	"strings"
	"time"

	"finvisor/internal/adapters/cache"
	"finvisor/internal/services/filings"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

const FilingsRefreshName = "filings_refresh"

// JobQueue accepts ingestion jobs
type JobQueue interface {
	Enqueue(ctx context.Context, job filings.IngestJob) (filings.IngestJob, error)
}

// Ingestor runs a job to completion
type Ingestor interface {
	Ingest(ctx context.Context, job filings.IngestJob) (*filings.IngestResult, error)
}

// InlineQueue runs jobs immediately instead of publishing them
type InlineQueue struct {
	Ingestor Ingestor
}

func (q InlineQueue) Enqueue(ctx context.Context, job filings.IngestJob) (filings.IngestJob, error) {
	_, err := q.Ingestor.Ingest(ctx, job)
	return job, err
}

// FilingsRefreshConfig selects the tickers kept current in the knowledge base
type FilingsRefreshConfig struct {
	Enabled    bool
	Interval   time.Duration
	Tickers    []string
	Source     filings.Source
	FilingType string
	Limit      int
}

// FilingsRefreshWorker periodically queues ingestion for a fixed watchlist.
// The round lock is held until it expires, slightly before the next tick, so
// replicas ticking at other offsets skip the round. It is released early only
// when nothing could be queued.
type FilingsRefreshWorker struct {
	*BaseWorker
	cfg    FilingsRefreshConfig
	queue  JobQueue
	locker cache.Locker
}

func NewFilingsRefreshWorker(cfg FilingsRefreshConfig, queue JobQueue, locker cache.Locker, log *logger.Logger) *FilingsRefreshWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &FilingsRefreshWorker{
		BaseWorker: NewBaseWorker(FilingsRefreshName, cfg.Interval, cfg.Enabled && len(cfg.Tickers) > 0, log),
		cfg:        cfg,
		queue:      queue,
		locker:     locker,
	}
}

// roundTTL covers one round and expires before the owner's next tick
func (w *FilingsRefreshWorker) roundTTL() time.Duration {
	return w.cfg.Interval - w.cfg.Interval/10
}

func (w *FilingsRefreshWorker) Run(ctx context.Context) error {
	release := func(context.Context) error { return nil }
	if w.locker != nil {
		var err error
		release, err = w.locker.AcquireLock(ctx, "worker:"+FilingsRefreshName, w.roundTTL())
		if errors.Is(err, errors.ErrLocked) {
			w.Log().Debug("Refresh round owned by another instance")
			return nil
		}
		if err != nil {
			return err
		}
	}

	errs := &errors.MultiError{}
	queued := 0
	for _, ticker := range w.cfg.Tickers {
		if ctx.Err() != nil {
			errs.Add(ctx.Err())
			break
		}

		job := filings.IngestJob{
			Source:     w.cfg.Source,
			Ticker:     strings.TrimSpace(ticker),
			FilingType: w.cfg.FilingType,
			Limit:      w.cfg.Limit,
		}
		if err := job.Normalize(); err != nil {
			errs.Add(err)
			continue
		}
		if _, err := w.queue.Enqueue(ctx, job); err != nil {
			errs.Add(errors.Wrapf(err, "refresh %s", job.Ticker))
			continue
		}
		queued++
	}

	if queued == 0 && errs.HasErrors() {
		// let another replica retry the round
		if err := release(context.WithoutCancel(ctx)); err != nil {
			w.Log().Warnw("Failed to release refresh lock", "error", err)
		}
	}

	w.Log().Infow("Filings refresh round finished", "queued", queued, "tickers", len(w.cfg.Tickers))
	return errs.ToError()
}
