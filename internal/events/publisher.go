package events

import (
	"context"

	"finvisor/internal/adapters/kafka"
	"finvisor/internal/services/filings"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

// Producer is the Kafka producer surface the publisher needs
type Producer interface {
	Publish(ctx context.Context, topic, key string, event interface{}) error
}

// Publisher publishes filings ingestion events to Kafka
type Publisher struct {
	producer Producer
	source   string
	log      *logger.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(producer Producer, source string, log *logger.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		source:   source,
		log:      log,
	}
}

// Enqueue validates a job and publishes it for the ingest consumer.
// Jobs of one ticker share a partition so they run in order.
func (p *Publisher) Enqueue(ctx context.Context, job filings.IngestJob) (filings.IngestJob, error) {
	if err := job.Normalize(); err != nil {
		return job, err
	}

	env := NewEnvelope(TypeIngestRequested, p.source, job)
	if err := p.producer.Publish(ctx, kafka.TopicFilingsIngest, job.Ticker, env); err != nil {
		return job, errors.Wrapf(err, "enqueue ingestion of %s", job.Ticker)
	}

	p.log.Infow("Filings ingestion enqueued", "job_id", job.ID, "source", job.Source, "ticker", job.Ticker)
	return job, nil
}

// PublishResult reports a finished job
func (p *Publisher) PublishResult(ctx context.Context, result *filings.IngestResult) error {
	eventType := TypeIngestCompleted
	if result.Error != "" {
		eventType = TypeIngestFailed
		result.Error = SanitizeUTF8(result.Error)
	}

	env := NewEnvelope(eventType, p.source, *result)
	return errors.Wrap(
		p.producer.Publish(ctx, kafka.TopicFilingsIngested, result.Ticker, env),
		"publish ingestion result",
	)
}
