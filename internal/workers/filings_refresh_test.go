package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/internal/adapters/cache"
	"finvisor/internal/services/filings"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

type recordingQueue struct {
	mu   sync.Mutex
	jobs []filings.IngestJob
	fail map[string]bool
}

func (q *recordingQueue) Enqueue(_ context.Context, job filings.IngestJob) (filings.IngestJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail[job.Ticker] {
		return job, errors.Wrap(errors.ErrUnavailable, "broker down")
	}
	q.jobs = append(q.jobs, job)
	return job, nil
}

type stubIngestor struct{ calls int }

func (s *stubIngestor) Ingest(_ context.Context, job filings.IngestJob) (*filings.IngestResult, error) {
	s.calls++
	return &filings.IngestResult{JobID: job.ID, Ticker: job.Ticker}, nil
}

func refreshConfig(tickers ...string) FilingsRefreshConfig {
	return FilingsRefreshConfig{
		Enabled:  true,
		Interval: time.Hour,
		Tickers:  tickers,
		Source:   filings.SourceEDGAR,
	}
}

func TestFilingsRefresh_QueuesWatchlist(t *testing.T) {
	q := &recordingQueue{}
	w := NewFilingsRefreshWorker(refreshConfig("aapl", " msft "), q, cache.NewLocal(), logger.Nop())

	require.NoError(t, w.Run(context.Background()))

	require.Len(t, q.jobs, 2)
	assert.Equal(t, "AAPL", q.jobs[0].Ticker)
	assert.Equal(t, "MSFT", q.jobs[1].Ticker)
	assert.Equal(t, filings.DefaultFilingType, q.jobs[0].FilingType)
	assert.NotEmpty(t, q.jobs[0].ID)
}

func TestFilingsRefresh_CollectsErrors(t *testing.T) {
	q := &recordingQueue{fail: map[string]bool{"MSFT": true}}
	w := NewFilingsRefreshWorker(refreshConfig("AAPL", "MSFT", ""), q, nil, logger.Nop())

	err := w.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnavailable))

	var verr *errors.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Len(t, q.jobs, 1)
}

func TestFilingsRefresh_SkipsWhenLocked(t *testing.T) {
	locker := cache.NewLocal()
	release, err := locker.AcquireLock(context.Background(), "worker:"+FilingsRefreshName, time.Minute)
	require.NoError(t, err)
	defer func() { _ = release(context.Background()) }()

	q := &recordingQueue{}
	w := NewFilingsRefreshWorker(refreshConfig("AAPL"), q, locker, logger.Nop())

	require.NoError(t, w.Run(context.Background()))
	assert.Empty(t, q.jobs)
}

func TestFilingsRefresh_DisabledWithoutTickers(t *testing.T) {
	w := NewFilingsRefreshWorker(refreshConfig(), &recordingQueue{}, nil, logger.Nop())
	assert.False(t, w.Enabled())
	assert.Equal(t, time.Hour, w.Interval())
}

func TestInlineQueue(t *testing.T) {
	ing := &stubIngestor{}
	job, err := InlineQueue{Ingestor: ing}.Enqueue(context.Background(), filings.IngestJob{ID: "j1", Ticker: "NVDA"})
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, 1, ing.calls)
}

func TestFilingsRefresh_OneReplicaPerRound(t *testing.T) {
	locker := cache.NewLocal()
	qa, qb := &recordingQueue{}, &recordingQueue{}
	a := NewFilingsRefreshWorker(refreshConfig("AAPL"), qa, locker, logger.Nop())
	b := NewFilingsRefreshWorker(refreshConfig("AAPL"), qb, locker, logger.Nop())

	require.NoError(t, a.Run(context.Background()))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Run(context.Background()))

	assert.Len(t, qa.jobs, 1)
	assert.Empty(t, qb.jobs, "the second replica skips a round already queued")
}

func TestFilingsRefresh_FailedRoundReleasesLock(t *testing.T) {
	locker := cache.NewLocal()
	down := &recordingQueue{fail: map[string]bool{"AAPL": true}}
	up := &recordingQueue{}

	a := NewFilingsRefreshWorker(refreshConfig("AAPL"), down, locker, logger.Nop())
	b := NewFilingsRefreshWorker(refreshConfig("AAPL"), up, locker, logger.Nop())

	require.Error(t, a.Run(context.Background()))
	require.NoError(t, b.Run(context.Background()))
	assert.Len(t, up.jobs, 1)
}
