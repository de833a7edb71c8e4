package callbacks

import (
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"

	"finvisor/internal/agents/state"
	"finvisor/pkg/logger"
)

// DebugBeforeModelCallback logs every request sent to the model
func DebugBeforeModelCallback() llmagent.BeforeModelCallback {
	return func(ctx agent.CallbackContext, req *model.LLMRequest) (*model.LLMResponse, error) {
		if req == nil {
			return nil, nil
		}

		toolNames := make([]string, 0, len(req.Tools))
		for name := range req.Tools {
			toolNames = append(toolNames, name)
		}

		logger.Get().With("component", "model_debug").Debugw("Model request",
			"agent", ctx.AgentName(),
			"model", req.Model,
			"contents", len(req.Contents),
			"tools", toolNames,
		)
		return nil, nil
	}
}

// TokenCountingCallback accumulates token usage of the invocation in temp state
func TokenCountingCallback() llmagent.AfterModelCallback {
	return func(ctx agent.CallbackContext, resp *model.LLMResponse, respErr error) (*model.LLMResponse, error) {
		if respErr != nil || resp == nil || resp.UsageMetadata == nil || resp.Partial {
			return resp, respErr
		}

		log := logger.Get().With("component", "token_counter")

		log.Debugf("Tokens used: prompt=%d completion=%d total=%d",
			resp.UsageMetadata.PromptTokenCount,
			resp.UsageMetadata.CandidatesTokenCount,
			resp.UsageMetadata.TotalTokenCount,
		)

		if err := state.AddTempTokens(ctx.State(),
			int(resp.UsageMetadata.PromptTokenCount),
			int(resp.UsageMetadata.CandidatesTokenCount),
		); err != nil {
			log.Debugw("Failed to store token counts", "error", err)
		}

		return resp, nil
	}
}
