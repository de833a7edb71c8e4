package callbacks

import (
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/tool"

	"finvisor/internal/agents/state"
	"finvisor/pkg/logger"
)

// AuditLogAfterToolCallback logs all tool executions and counts them in temp state.
// Tools report failures as an "error" key in their result, so both paths are checked.
func AuditLogAfterToolCallback() llmagent.AfterToolCallback {
	return func(ctx tool.Context, t tool.Tool, args, result map[string]any, err error) (map[string]any, error) {
		toolName := t.Name()
		log := logger.Get().With(
			"component", "tool_audit",
			"tool", toolName,
			"user", ctx.UserID(),
			"session", ctx.SessionID(),
		)

		switch {
		case err != nil:
			log.Errorw("Tool failed", "args", args, "error", err)
		case result["error"] != nil:
			log.Warnw("Tool returned an error result", "args", args, "result_error", result["error"])
		default:
			log.Debugw("Tool executed", "args", args)
		}

		if stateErr := state.IncrementToolCallCount(ctx.State()); stateErr != nil {
			log.Debugw("Failed to count tool call", "error", stateErr)
		}

		return result, err
	}
}

// ToolCallLimitBeforeCallback stops tool use once an invocation made limit calls.
// The model gets a result telling it to answer with what it has.
func ToolCallLimitBeforeCallback(limit int) llmagent.BeforeToolCallback {
	return func(ctx tool.Context, t tool.Tool, args map[string]any) (map[string]any, error) {
		if limit <= 0 {
			return nil, nil
		}
		if n := state.GetToolCallCount(ctx.ReadonlyState()); n >= limit {
			logger.Get().Warnw("Tool call limit reached",
				"tool", t.Name(),
				"user", ctx.UserID(),
				"calls", n,
			)
			return map[string]any{
				"error": "Tool call limit reached for this request. Answer with the information gathered so far.",
			}, nil
		}
		return nil, nil
	}
}
