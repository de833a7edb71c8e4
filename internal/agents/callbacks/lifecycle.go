package callbacks

import (
	"context"
	"time"

	"google.golang.org/adk/agent"
	"google.golang.org/genai"

	"finvisor/internal/agents/state"
	"finvisor/pkg/logger"
)

// CostLimitMessage is returned instead of running the agent when a user is over budget
const CostLimitMessage = "Daily cost limit exceeded. Please try again tomorrow."

// CostCheckFunc checks if user has exceeded cost limits
// Returns true if limit exceeded, false otherwise
type CostCheckFunc func(ctx context.Context, userID string) (bool, error)

// CostTrackingBeforeCallback stamps the start time and validates the user's budget
func CostTrackingBeforeCallback(checkLimit CostCheckFunc) agent.BeforeAgentCallback {
	return func(ctx agent.CallbackContext) (*genai.Content, error) {
		log := logger.Get().With(
			"agent", ctx.AgentName(),
			"user", ctx.UserID(),
			"session", ctx.SessionID(),
		)

		if err := state.SetTempStartTime(ctx.State(), time.Now()); err != nil {
			log.Debugw("Failed to store start time", "error", err)
		}

		if checkLimit != nil {
			exceeded, err := checkLimit(ctx, ctx.UserID())
			if err != nil {
				// a failed check must not block the user
				log.Warnw("Failed to check cost limit", "error", err)
			} else if exceeded {
				log.Warn("User exceeded daily cost limit")
				return genai.NewContentFromText(CostLimitMessage, genai.RoleModel), nil
			}
		}

		_ = state.SetUserLastActivity(ctx.State(), time.Now())
		_ = state.SetUserRunCount(ctx.State(), state.GetUserRunCount(ctx.ReadonlyState())+1)

		log.Debug("Agent run started")
		return nil, nil
	}
}

// LoggingAfterCallback logs duration, tool calls and tokens of the finished invocation
func LoggingAfterCallback() agent.AfterAgentCallback {
	return func(ctx agent.CallbackContext) (*genai.Content, error) {
		log := logger.Get().With("agent", ctx.AgentName(), "session", ctx.SessionID())

		start, ok := state.GetTempStartTime(ctx.ReadonlyState())
		if !ok {
			log.Debug("Start time not found in state")
			return nil, nil
		}

		prompt, completion := state.GetTempTokens(ctx.ReadonlyState())
		log.Infow("Agent run finished",
			"duration", time.Since(start),
			"tool_calls", state.GetToolCallCount(ctx.ReadonlyState()),
			"prompt_tokens", prompt,
			"completion_tokens", completion,
		)
		return nil, nil
	}
}
