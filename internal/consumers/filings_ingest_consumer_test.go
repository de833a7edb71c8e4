package consumers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	kafkaadapter "finvisor/internal/adapters/kafka"
	"finvisor/internal/events"
	"finvisor/internal/services/filings"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// chanSource delivers queued messages, then blocks until cancelled
type chanSource struct {
	msgs   chan kafka.Message
	errs   []error
	closed bool
	mu     sync.Mutex
}

func (s *chanSource) Consume(ctx context.Context, handler kafkaadapter.MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-s.msgs:
			err := handler(ctx, msg)
			s.mu.Lock()
			s.errs = append(s.errs, err)
			s.mu.Unlock()
		}
	}
}

func (s *chanSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *chanSource) handled() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

type stubIngestor struct {
	mu   sync.Mutex
	jobs []filings.IngestJob
	err  error
}

func (s *stubIngestor) Ingest(_ context.Context, job filings.IngestJob) (*filings.IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	res := &filings.IngestResult{JobID: job.ID, Ticker: job.Ticker, Message: "ok"}
	if s.err != nil {
		res.Error = s.err.Error()
	}
	return res, s.err
}

type resultSink struct {
	mu      sync.Mutex
	results []*filings.IngestResult
}

func (r *resultSink) PublishResult(_ context.Context, res *filings.IngestResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

func jobMessage(t *testing.T, job filings.IngestJob) kafka.Message {
	t.Helper()
	data, err := json.Marshal(events.NewEnvelope(events.TypeIngestRequested, "test", job))
	require.NoError(t, err)
	return kafka.Message{Key: []byte(job.Ticker), Value: data}
}

func TestFilingsIngestConsumerRunsJobs(t *testing.T) {
	source := &chanSource{msgs: make(chan kafka.Message, 3)}
	ingestor := &stubIngestor{}
	sink := &resultSink{}
	consumer := NewFilingsIngestConsumer(source, ingestor, sink, logger.Nop())

	source.msgs <- jobMessage(t, filings.IngestJob{ID: "j1", Ticker: "AAPL", Source: filings.SourceEDGAR})
	source.msgs <- kafka.Message{Value: []byte("not json")}
	source.msgs <- jobMessage(t, filings.IngestJob{ID: "j2", Ticker: "MSFT", Source: filings.SourceFinnhub})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()

	require.Eventually(t, func() bool { return len(source.handled()) == 3 }, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	handled := source.handled()
	assert.NoError(t, handled[0])
	assert.Error(t, handled[1])
	assert.NoError(t, handled[2])

	require.Len(t, ingestor.jobs, 2)
	assert.Equal(t, "AAPL", ingestor.jobs[0].Ticker)
	assert.Equal(t, filings.SourceFinnhub, ingestor.jobs[1].Source)
	assert.Len(t, sink.results, 2)
	assert.True(t, source.closed)
}

func TestFilingsIngestConsumerReportsFailures(t *testing.T) {
	source := &chanSource{msgs: make(chan kafka.Message, 1)}
	sink := &resultSink{}
	consumer := NewFilingsIngestConsumer(source, &stubIngestor{err: errors.ErrNoFilings}, sink, logger.Nop())

	err := consumer.handle(context.Background(), jobMessage(t, filings.IngestJob{ID: "j1", Ticker: "ZZZZ"}))
	assert.ErrorIs(t, err, errors.ErrNoFilings)
	require.Len(t, sink.results, 1)
	assert.NotEmpty(t, sink.results[0].Error)
}

func TestFilingsIngestConsumerFinishesJobOnShutdown(t *testing.T) {
	consumer := NewFilingsIngestConsumer(&chanSource{}, &stubIngestor{}, nil, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, consumer.handle(ctx, jobMessage(t, filings.IngestJob{ID: "j1", Ticker: "AAPL"})))
}
