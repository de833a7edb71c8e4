package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/internal/adapters/kafka"
	"finvisor/internal/services/filings"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "valid UTF-8 string unchanged",
			input:    "Hello, World! 你好世界",
			expected: "Hello, World! 你好世界",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "invalid UTF-8 bytes removed",
			input:    "Hello\xffWorld",
			expected: "HelloWorld",
		},
		{
			name:     "EDGAR error with invalid UTF-8",
			input:    "GET submissions\xfe returned 403",
			expected: "GET submissions returned 403",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeUTF8(tt.input))
		})
	}
}

type published struct {
	topic string
	key   string
	event interface{}
}

type fakeProducer struct {
	sent []published
	err  error
}

func (f *fakeProducer) Publish(_ context.Context, topic, key string, event interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{topic: topic, key: key, event: event})
	return nil
}

func TestPublisherEnqueue(t *testing.T) {
	producer := &fakeProducer{}
	p := NewPublisher(producer, "api", logger.Nop())

	job, err := p.Enqueue(context.Background(), filings.IngestJob{Ticker: "aapl"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)

	require.Len(t, producer.sent, 1)
	sent := producer.sent[0]
	assert.Equal(t, kafka.TopicFilingsIngest, sent.topic)
	assert.Equal(t, "AAPL", sent.key)

	env, ok := sent.event.(Envelope[filings.IngestJob])
	require.True(t, ok)
	assert.Equal(t, TypeIngestRequested, env.Type)
	assert.Equal(t, "api", env.Source)
	assert.Equal(t, filings.SourceEDGAR, env.Payload.Source)

	_, err = p.Enqueue(context.Background(), filings.IngestJob{})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.Len(t, producer.sent, 1)
}

func TestPublisherResult(t *testing.T) {
	producer := &fakeProducer{}
	p := NewPublisher(producer, "worker", logger.Nop())

	require.NoError(t, p.PublishResult(context.Background(), &filings.IngestResult{JobID: "j", Ticker: "AAPL", Error: "boom\xff"}))
	env := producer.sent[0].event.(Envelope[filings.IngestResult])
	assert.Equal(t, TypeIngestFailed, env.Type)
	assert.Equal(t, "boom", env.Payload.Error)
	assert.Equal(t, kafka.TopicFilingsIngested, producer.sent[0].topic)

	producer.err = errors.New("broker down")
	assert.Error(t, p.PublishResult(context.Background(), &filings.IngestResult{Ticker: "AAPL"}))
}
