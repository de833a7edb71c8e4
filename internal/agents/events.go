package agents

import "time"

// RunEventType names the events a run emits
type RunEventType string

const (
	EventRunStarted        RunEventType = "RunStarted"
	EventRunContent        RunEventType = "RunResponseContent"
	EventToolCallStarted   RunEventType = "ToolCallStarted"
	EventToolCallCompleted RunEventType = "ToolCallCompleted"
	EventRunCompleted      RunEventType = "RunCompleted"
	EventRunError          RunEventType = "RunError"
)

// RunEvent is one step of an agent run as seen by clients
type RunEvent struct {
	Event     RunEventType `json:"event"`
	RunID     string       `json:"run_id"`
	AgentID   string       `json:"agent_id"`
	SessionID string       `json:"session_id"`
	// Content is a text delta for RunResponseContent and the full answer for RunCompleted
	Content   string      `json:"content,omitempty"`
	Tool      *ToolCall   `json:"tool,omitempty"`
	Metrics   *RunMetrics `json:"metrics,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt int64       `json:"created_at"`
}

// ToolCall is a tool invocation requested by the model
type ToolCall struct {
	ID     string         `json:"tool_call_id,omitempty"`
	Name   string         `json:"tool_name"`
	Args   map[string]any `json:"tool_args,omitempty"`
	Result map[string]any `json:"result,omitempty"`
}

// RunMetrics summarizes the cost of a finished run
type RunMetrics struct {
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	ToolCalls    int     `json:"tool_calls"`
	DurationMs   int64   `json:"duration_ms"`
}

// RunResult is a completed non-streaming run
type RunResult struct {
	RunID     string      `json:"run_id"`
	AgentID   string      `json:"agent_id"`
	SessionID string      `json:"session_id"`
	Content   string      `json:"content"`
	Tools     []ToolCall  `json:"tools,omitempty"`
	Metrics   *RunMetrics `json:"metrics,omitempty"`
	CreatedAt int64       `json:"created_at"`
}

func (e RunEvent) with(t RunEventType) RunEvent {
	e.Event = t
	e.CreatedAt = time.Now().Unix()
	return e
}
