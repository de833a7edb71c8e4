package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"finvisor/internal/domain/ai_usage"
	"finvisor/pkg/clickhouse"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

var _ ai_usage.Repository = (*AIUsageRepository)(nil)

const DefaultUsageTable = "agent_usage"

// AIUsageRepository implements ai_usage.Repository for ClickHouse.
// Writes go through a batch writer.
type AIUsageRepository struct {
	conn        driver.Conn
	table       string
	batchWriter *clickhouse.BatchWriter[*ai_usage.UsageLog]
	log         *logger.Logger
}

// NewAIUsageRepository creates a new AI usage repository with batch writer
func NewAIUsageRepository(conn driver.Conn, table string) *AIUsageRepository {
	if table == "" {
		table = DefaultUsageTable
	}
	repo := &AIUsageRepository{
		conn:  conn,
		table: table,
		log:   logger.Get().With("component", "ai_usage_batch"),
	}

	repo.batchWriter = clickhouse.NewBatchWriter(clickhouse.BatchWriterConfig[*ai_usage.UsageLog]{
		FlushFunc:    repo.flushBatch,
		TableName:    table,
		MaxBatchSize: 500,
		MaxAge:       5 * time.Second,
	})

	return repo
}

// EnsureSchema creates the usage table when missing
func (r *AIUsageRepository) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			timestamp         DateTime64(3),
			event_id          String,
			user_id           String,
			session_id        String,
			run_id            String,
			agent_name        LowCardinality(String),
			provider          LowCardinality(String),
			model_id          LowCardinality(String),
			prompt_tokens     UInt32,
			completion_tokens UInt32,
			total_tokens      UInt32,
			input_cost_usd    Float64,
			output_cost_usd   Float64,
			total_cost_usd    Float64,
			tool_calls_count  UInt16,
			latency_ms        UInt32,
			streamed          Bool,
			status            LowCardinality(String),
			error             String
		) ENGINE = MergeTree
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (user_id, timestamp)`, r.table)

	return errors.Wrap(r.conn.Exec(ctx, ddl), "failed to create usage table")
}

// Start begins the background flush loop
func (r *AIUsageRepository) Start(ctx context.Context) {
	r.batchWriter.Start(ctx)
}

// Stop flushes pending rows and shuts down the batch writer
func (r *AIUsageRepository) Stop(ctx context.Context) error {
	return r.batchWriter.Stop(ctx)
}

// Store saves a usage log entry (buffered, not immediate)
func (r *AIUsageRepository) Store(ctx context.Context, log *ai_usage.UsageLog) error {
	return r.batchWriter.Add(ctx, log)
}

// Flush writes buffered rows now
func (r *AIUsageRepository) Flush(ctx context.Context) error {
	return r.batchWriter.Flush(ctx)
}

// flushBatch sends one native batch INSERT for all buffered rows
func (r *AIUsageRepository) flushBatch(ctx context.Context, batch []*ai_usage.UsageLog) error {
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()

	stmt, err := r.conn.PrepareBatch(ctx, "INSERT INTO "+r.table)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}
	defer stmt.Close()

	for _, u := range batch {
		if err := stmt.AppendStruct(u); err != nil {
			return errors.Wrap(err, "failed to append to batch")
		}
	}

	if err := stmt.Send(); err != nil {
		return errors.Wrap(err, "failed to send batch")
	}

	r.log.Debugf("Batch inserted %d usage records in %v", len(batch), time.Since(start))
	return nil
}

// UserCost returns the total cost of a user's runs in [from, to)
func (r *AIUsageRepository) UserCost(ctx context.Context, userID string, from, to time.Time) (float64, error) {
	query := fmt.Sprintf(`
		SELECT sum(total_cost_usd)
		FROM %s
		WHERE user_id = ? AND timestamp >= ? AND timestamp < ?`, r.table)

	var total float64
	if err := r.conn.QueryRow(ctx, query, userID, from, to).Scan(&total); err != nil {
		return 0, errors.Wrap(err, "failed to get user cost")
	}
	return total, nil
}

// ModelCosts returns usage grouped by model in [from, to)
func (r *AIUsageRepository) ModelCosts(ctx context.Context, from, to time.Time) ([]ai_usage.ModelCost, error) {
	query := fmt.Sprintf(`
		SELECT
			model_id,
			count() AS runs,
			sum(toUInt64(total_tokens)) AS total_tokens,
			sum(total_cost_usd) AS total_cost_usd
		FROM %s
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY model_id
		ORDER BY total_cost_usd DESC`, r.table)

	var costs []ai_usage.ModelCost
	if err := r.conn.Select(ctx, &costs, query, from, to); err != nil {
		return nil, errors.Wrap(err, "failed to query model costs")
	}
	return costs, nil
}
