package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"finvisor/internal/metrics"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

const headerContentType = "content-type"

// Producer publishes JSON events. A single writer serves every topic; the
// topic travels on each message.
type Producer struct {
	writer *kafka.Writer
	log    *logger.Logger
}

type ProducerConfig struct {
	Brokers []string
	// BatchTimeout bounds how long a message waits for batch peers; defaults to 10ms
	BatchTimeout time.Duration
}

func NewProducer(cfg ProducerConfig) *Producer {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           cfg.BatchTimeout,
			Compression:            kafka.Snappy,
			AllowAutoTopicCreation: true,
		},
		log: logger.Get().With("component", "kafka_producer"),
	}
}

// Publish JSON-encodes event onto topic. Messages with the same key land on
// the same partition, so per-ticker ordering holds.
func (p *Producer) Publish(ctx context.Context, topic, key string, event interface{}) error {
	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "encode %s event", topic)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: headerContentType, Value: []byte("application/json")}},
	})
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.KafkaMessages.WithLabelValues(topic, "produced", status).Inc()
	if err != nil {
		return errors.Wrapf(err, "failed to publish to %s", topic)
	}

	p.log.Debugw("Published event", "topic", topic, "key", key, "bytes", len(value))
	return nil
}

// Close flushes pending messages
func (p *Producer) Close() error {
	return errors.Wrap(p.writer.Close(), "close kafka writer")
}
