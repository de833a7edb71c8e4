package metrics

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"finvisor/pkg/logger"
)

// CustomCollector reports table sizes from Postgres at scrape time
type CustomCollector struct {
	log      *logger.Logger
	postgres *sqlx.DB

	sessions       *prometheus.Desc
	chunks         *prometheus.Desc
	memories       *prometheus.Desc
	indexedFilings *prometheus.Desc
}

// NewCustomCollector creates a new custom metrics collector
func NewCustomCollector(log *logger.Logger, postgres *sqlx.DB) *CustomCollector {
	return &CustomCollector{
		log:      log,
		postgres: postgres,

		sessions: prometheus.NewDesc(
			"finvisor_sessions",
			"Stored chat sessions per app",
			[]string{"app"}, nil,
		),
		chunks: prometheus.NewDesc(
			"finvisor_knowledge_chunks",
			"Stored knowledge chunks per collection",
			[]string{"collection"}, nil,
		),
		memories: prometheus.NewDesc(
			"finvisor_user_memories",
			"Stored user memories",
			nil, nil,
		),
		indexedFilings: prometheus.NewDesc(
			"finvisor_indexed_filings",
			"Filings recorded in the filings index per provider",
			[]string{"provider"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *CustomCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessions
	ch <- c.chunks
	ch <- c.memories
	ch <- c.indexedFilings
}

// Collect implements prometheus.Collector
func (c *CustomCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectGrouped(ctx, ch, c.sessions, `SELECT app_name AS label, COUNT(*) AS count FROM finance_agent_sessions GROUP BY app_name`)
	c.collectGrouped(ctx, ch, c.chunks, `SELECT collection AS label, COUNT(*) AS count FROM knowledge_chunks GROUP BY collection`)
	c.collectGrouped(ctx, ch, c.indexedFilings, `SELECT provider AS label, COUNT(*) AS count FROM sec_filings_index GROUP BY provider`)

	var count int
	if err := c.postgres.GetContext(ctx, &count, `SELECT COUNT(*) FROM user_memories`); err != nil {
		c.log.Errorw("Failed to collect memory count", "error", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.memories, prometheus.GaugeValue, float64(count))
}

func (c *CustomCollector) collectGrouped(ctx context.Context, ch chan<- prometheus.Metric, desc *prometheus.Desc, query string) {
	type stat struct {
		Label string `db:"label"`
		Count int    `db:"count"`
	}

	var stats []stat
	if err := c.postgres.SelectContext(ctx, &stats, query); err != nil {
		c.log.Errorw("Failed to collect metric", "metric", desc.String(), "error", err)
		return
	}

	for _, s := range stats {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(s.Count), s.Label)
	}
}

// RegisterCustomCollector registers the custom collector
func RegisterCustomCollector(collector *CustomCollector) {
	prometheus.MustRegister(collector)
}
