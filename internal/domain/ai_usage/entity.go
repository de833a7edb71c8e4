package ai_usage

import "time"

// UsageLog is one completed agent run as stored in ClickHouse
type UsageLog struct {
	Timestamp time.Time `ch:"timestamp"`
	EventID   string    `ch:"event_id"`

	// Caller context
	UserID    string `ch:"user_id"`
	SessionID string `ch:"session_id"`
	RunID     string `ch:"run_id"`

	AgentName string `ch:"agent_name"`

	// Model details
	Provider string `ch:"provider"` // google
	ModelID  string `ch:"model_id"` // gemini-2.0-flash

	// Token usage
	PromptTokens     uint32 `ch:"prompt_tokens"`
	CompletionTokens uint32 `ch:"completion_tokens"`
	TotalTokens      uint32 `ch:"total_tokens"`

	// Cost
	InputCostUSD  float64 `ch:"input_cost_usd"`
	OutputCostUSD float64 `ch:"output_cost_usd"`
	TotalCostUSD  float64 `ch:"total_cost_usd"`

	ToolCallsCount uint16 `ch:"tool_calls_count"`
	LatencyMs      uint32 `ch:"latency_ms"`
	Streamed       bool   `ch:"streamed"`

	// Status is success or error; Error holds the message of a failed run
	Status string `ch:"status"`
	Error  string `ch:"error"`
}

// ModelCost aggregates usage for one model
type ModelCost struct {
	ModelID      string  `ch:"model_id" json:"model_id"`
	Runs         uint64  `ch:"runs" json:"runs"`
	TotalTokens  uint64  `ch:"total_tokens" json:"total_tokens"`
	TotalCostUSD float64 `ch:"total_cost_usd" json:"total_cost_usd"`
}
