package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Agent metrics
	AgentRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finvisor_agent_runs_total",
			Help: "Total number of agent runs",
		},
		[]string{"agent", "model", "status"}, // status: success|error
	)

	AgentCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finvisor_agent_cost_usd",
			Help: "Total AI cost in USD",
		},
		[]string{"agent", "model"},
	)

	AgentLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finvisor_agent_latency_seconds",
			Help:    "Agent run latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"agent", "model"},
	)

	AgentTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finvisor_agent_tokens_total",
			Help: "Total tokens used by agents",
		},
		[]string{"agent", "model", "type"}, // type: input|output
	)

	// Tool metrics
	ToolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finvisor_tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"}, // status: success|error
	)

	ToolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finvisor_tool_latency_seconds",
			Help:    "Tool execution latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tool"},
	)

	// External API metrics
	ExternalAPICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finvisor_external_api_calls_total",
			Help: "Total number of third-party API calls",
		},
		[]string{"service", "endpoint", "status"},
	)

	ExternalAPILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finvisor_external_api_latency_seconds",
			Help:    "Third-party API latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"service", "endpoint"},
	)

	// Ingestion and knowledge metrics
	FilingsDownloaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finvisor_filings_downloaded_total",
			Help: "Filing documents downloaded",
		},
		[]string{"provider", "status"}, // status: success|error|skipped
	)

	ChunksStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finvisor_knowledge_chunks_stored_total",
			Help: "Knowledge chunks written to the vector store",
		},
		[]string{"collection"},
	)

	KnowledgeSearches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finvisor_knowledge_searches_total",
			Help: "Knowledge base searches",
		},
		[]string{"collection", "search_type", "status"},
	)

	KnowledgeSearchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finvisor_knowledge_search_latency_seconds",
			Help:    "Knowledge search latency including query embedding",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"collection"},
	)

	// HTTP metrics
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finvisor_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finvisor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finvisor_kafka_messages_total",
			Help: "Total Kafka messages produced/consumed",
		},
		[]string{"topic", "direction", "status"}, // direction: produced|consumed
	)

	WebSocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "finvisor_websocket_connections",
			Help: "Current number of open chat WebSocket connections",
		},
	)

	WorkerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finvisor_worker_runs_total",
			Help: "Background worker runs",
		},
		[]string{"worker", "status"},
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finvisor_worker_duration_seconds",
			Help:    "Background worker run duration",
			Buckets: []float64{0.1, 1, 5, 15, 60, 300, 900},
		},
		[]string{"worker"},
	)
)

var initOnce sync.Once

// Init registers all metrics with Prometheus
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			AgentRuns, AgentCost, AgentLatency, AgentTokens,
			ToolExecutions, ToolLatency,
			ExternalAPICalls, ExternalAPILatency,
			FilingsDownloaded, ChunksStored, KnowledgeSearches, KnowledgeSearchLatency,
			HTTPRequests, HTTPDuration,
			KafkaMessages, WebSocketConnections,
			WorkerRuns, WorkerDuration,
		)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordAgentRun records a completed agent run
func RecordAgentRun(agent, model string, latency time.Duration, inputTokens, outputTokens int, cost float64, err error) {
	AgentRuns.WithLabelValues(agent, model, status(err)).Inc()
	AgentLatency.WithLabelValues(agent, model).Observe(latency.Seconds())

	if cost > 0 {
		AgentCost.WithLabelValues(agent, model).Add(cost)
	}
	if inputTokens > 0 {
		AgentTokens.WithLabelValues(agent, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		AgentTokens.WithLabelValues(agent, model, "output").Add(float64(outputTokens))
	}
}

// RecordToolExecution records a tool execution
func RecordToolExecution(tool string, latency time.Duration, err error) {
	ToolExecutions.WithLabelValues(tool, status(err)).Inc()
	ToolLatency.WithLabelValues(tool).Observe(latency.Seconds())
}

// RecordExternalAPICall records a call to a data provider
func RecordExternalAPICall(service, endpoint string, latency time.Duration, err error) {
	ExternalAPICalls.WithLabelValues(service, endpoint, status(err)).Inc()
	ExternalAPILatency.WithLabelValues(service, endpoint).Observe(latency.Seconds())
}

// RecordKnowledgeSearch records one knowledge base search
func RecordKnowledgeSearch(collection, searchType string, latency time.Duration, err error) {
	KnowledgeSearches.WithLabelValues(collection, searchType, status(err)).Inc()
	KnowledgeSearchLatency.WithLabelValues(collection).Observe(latency.Seconds())
}

// RecordHTTPRequest records a served request
func RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, statusClass(code)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordWorkerRun records one background worker iteration
func RecordWorkerRun(worker string, duration time.Duration, err error) {
	WorkerRuns.WithLabelValues(worker, status(err)).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
