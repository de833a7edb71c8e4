package consumers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	kafkaadapter "finvisor/internal/adapters/kafka"
	"finvisor/internal/events"
	"finvisor/internal/services/filings"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

const defaultJobTimeout = 10 * time.Minute

// MessageSource is a Kafka consumer of one topic
type MessageSource interface {
	Consume(ctx context.Context, handler kafkaadapter.MessageHandler) error
	Close() error
}

// Ingestor runs ingestion jobs
type Ingestor interface {
	Ingest(ctx context.Context, job filings.IngestJob) (*filings.IngestResult, error)
}

// ResultPublisher reports finished jobs
type ResultPublisher interface {
	PublishResult(ctx context.Context, result *filings.IngestResult) error
}

// FilingsIngestConsumer runs filings ingestion jobs read from Kafka
type FilingsIngestConsumer struct {
	source     MessageSource
	ingestor   Ingestor
	results    ResultPublisher
	jobTimeout time.Duration
	log        *logger.Logger
}

// NewFilingsIngestConsumer creates the consumer. results may be nil.
func NewFilingsIngestConsumer(source MessageSource, ingestor Ingestor, results ResultPublisher, log *logger.Logger) *FilingsIngestConsumer {
	return &FilingsIngestConsumer{
		source:     source,
		ingestor:   ingestor,
		results:    results,
		jobTimeout: defaultJobTimeout,
		log:        log,
	}
}

// Start consumes jobs until ctx is cancelled
func (c *FilingsIngestConsumer) Start(ctx context.Context) error {
	c.log.Info("Starting filings ingest consumer...")

	defer func() {
		if err := c.source.Close(); err != nil {
			c.log.Errorw("Failed to close filings ingest consumer", "error", err)
		} else {
			c.log.Info("✓ Filings ingest consumer closed")
		}
	}()

	err := c.source.Consume(ctx, c.handle)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// handle runs one job. A job already started is finished even when shutdown begins.
func (c *FilingsIngestConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var env events.Envelope[filings.IngestJob]
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return errors.Wrap(err, "unmarshal ingest job")
	}

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.jobTimeout)
	defer cancel()

	c.log.Debugw("Processing ingest job",
		"job_id", env.Payload.ID,
		"ticker", env.Payload.Ticker,
		"partition", msg.Partition,
		"offset", msg.Offset,
	)

	result, err := c.ingestor.Ingest(jobCtx, env.Payload)
	if result != nil && c.results != nil {
		if pubErr := c.results.PublishResult(jobCtx, result); pubErr != nil {
			c.log.Warnw("Failed to publish ingestion result", "job_id", result.JobID, "error", pubErr)
		}
	}
	return err
}
