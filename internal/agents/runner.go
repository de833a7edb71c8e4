package agents

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"finvisor/internal/domain/ai_usage"
	"finvisor/internal/metrics"
	"finvisor/internal/tools/shared"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

// UsageRecorder stores one usage log per run
type UsageRecorder interface {
	Record(ctx context.Context, log *ai_usage.UsageLog) error
}

// RunInput is one user message sent to an agent
type RunInput struct {
	AgentID   string
	UserID    string
	SessionID string
	Message   string
	Stream    bool
	ModelID   string
}

// RunnerDeps wires the runner
type RunnerDeps struct {
	Factory  *Factory
	Sessions session.Service
	// Usage is optional; without it runs are only counted in metrics
	Usage     UsageRecorder
	Costs     *CostTracker
	DebugMode bool
	// MaxRunTime caps the per-agent timeout; 0 keeps the agent's own
	MaxRunTime time.Duration
}

// Runner executes agents through the ADK runner and reports what happens as RunEvents.
type Runner struct {
	factory    *Factory
	sessions   session.Service
	usage      UsageRecorder
	costs      *CostTracker
	debugMode  bool
	maxRunTime time.Duration
	log        *logger.Logger
}

// NewRunner creates an agent runner
func NewRunner(deps RunnerDeps) (*Runner, error) {
	if deps.Factory == nil {
		return nil, errors.NewValidationError("factory", "is required", nil)
	}
	if deps.Sessions == nil {
		return nil, errors.NewValidationError("sessions", "is required", nil)
	}
	if deps.Costs == nil {
		deps.Costs = NewCostTracker()
	}
	return &Runner{
		factory:    deps.Factory,
		sessions:   deps.Sessions,
		usage:      deps.Usage,
		costs:      deps.Costs,
		debugMode:  deps.DebugMode,
		maxRunTime: deps.MaxRunTime,
		log:        logger.Get().With("component", "agent_runner"),
	}, nil
}

// Costs returns the in-process usage totals
func (r *Runner) Costs() *CostTracker { return r.costs }

// Run streams the events of one run. Failures end the stream with a RunError event.
func (r *Runner) Run(ctx context.Context, in RunInput) iter.Seq[RunEvent] {
	return func(yield func(RunEvent) bool) {
		stopped := false
		emit := func(e RunEvent) bool {
			if stopped {
				return false
			}
			stopped = !yield(e)
			return !stopped
		}

		base, err := r.run(ctx, in, emit)
		if err != nil && !stopped {
			ev := base.with(EventRunError)
			ev.Error = err.Error()
			yield(ev)
		}
	}
}

// RunSync runs to completion and returns the final answer
func (r *Runner) RunSync(ctx context.Context, in RunInput) (*RunResult, error) {
	in.Stream = false

	var result RunResult
	base, err := r.run(ctx, in, func(e RunEvent) bool {
		switch e.Event {
		case EventToolCallStarted:
			result.Tools = append(result.Tools, *e.Tool)
		case EventToolCallCompleted:
			for i := len(result.Tools) - 1; i >= 0; i-- {
				if result.Tools[i].Name == e.Tool.Name && result.Tools[i].Result == nil {
					result.Tools[i].Result = e.Tool.Result
					break
				}
			}
		case EventRunCompleted:
			result.Content = e.Content
			result.Metrics = e.Metrics
			result.CreatedAt = e.CreatedAt
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	result.RunID = base.RunID
	result.AgentID = base.AgentID
	result.SessionID = base.SessionID
	return &result, nil
}

type runUsage struct {
	inputTokens  int
	outputTokens int
	toolCalls    int
}

func (r *Runner) run(ctx context.Context, in RunInput, emit func(RunEvent) bool) (RunEvent, error) {
	in, err := normalize(in)
	base := RunEvent{RunID: uuid.NewString(), AgentID: in.AgentID, SessionID: in.SessionID}
	if err != nil {
		return base, err
	}

	log := r.log.With("agent", in.AgentID, "user_id", in.UserID, "session_id", in.SessionID, "run_id", base.RunID)
	ctx = shared.WithInvocationMetadata(ctx, shared.InvocationMetadata{
		UserID:    in.UserID,
		AgentID:   in.AgentID,
		SessionID: in.SessionID,
	})

	inst, err := r.factory.Create(ctx, in.AgentID, Options{
		ModelID:   in.ModelID,
		UserID:    in.UserID,
		SessionID: in.SessionID,
		DebugMode: r.debugMode,
	})
	if err != nil {
		return base, err
	}

	if timeout := r.timeout(inst.Config); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := r.ensureSession(ctx, in); err != nil {
		return base, err
	}

	adkRunner, err := runner.New(runner.Config{
		AppName:        in.AgentID,
		Agent:          inst.Agent,
		SessionService: r.sessions,
	})
	if err != nil {
		return base, errors.Wrap(err, "failed to create ADK runner")
	}

	start := time.Now()
	var usage runUsage
	var content strings.Builder

	runErr := func() error {
		if !emit(base.with(EventRunStarted)) {
			return nil
		}

		mode := agent.StreamingModeNone
		if in.Stream {
			mode = agent.StreamingModeSSE
		}
		msg := genai.NewContentFromText(in.Message, genai.RoleUser)

		// text already streamed as partial deltas is not sent again with the aggregated event
		streamedText := false
		for event, err := range adkRunner.Run(ctx, in.UserID, in.SessionID, msg, agent.RunConfig{StreamingMode: mode}) {
			if err != nil {
				return errors.Wrap(err, "agent execution failed")
			}
			if event == nil || event.Author == "user" {
				continue
			}

			if event.Partial {
				if delta := textOf(event.Content); delta != "" {
					streamedText = true
					ev := base.with(EventRunContent)
					ev.Content = delta
					if !emit(ev) {
						return nil
					}
				}
				continue
			}

			if event.UsageMetadata != nil {
				usage.inputTokens += int(event.UsageMetadata.PromptTokenCount)
				usage.outputTokens += int(event.UsageMetadata.CandidatesTokenCount)
			}
			if event.Content == nil {
				continue
			}

			for _, part := range event.Content.Parts {
				var ev RunEvent
				switch {
				case part.FunctionCall != nil:
					usage.toolCalls++
					ev = base.with(EventToolCallStarted)
					ev.Tool = &ToolCall{ID: part.FunctionCall.ID, Name: part.FunctionCall.Name, Args: part.FunctionCall.Args}
					log.Debugw("Tool call", "tool", part.FunctionCall.Name)
				case part.FunctionResponse != nil:
					ev = base.with(EventToolCallCompleted)
					ev.Tool = &ToolCall{ID: part.FunctionResponse.ID, Name: part.FunctionResponse.Name, Result: part.FunctionResponse.Response}
				case part.Text != "" && !part.Thought:
					content.WriteString(part.Text)
					if streamedText {
						continue
					}
					ev = base.with(EventRunContent)
					ev.Content = part.Text
				default:
					continue
				}
				if !emit(ev) {
					return nil
				}
			}
			streamedText = false
		}
		return nil
	}()

	m := r.record(ctx, in, inst, base.RunID, usage, time.Since(start), runErr)
	if runErr != nil {
		scoped := errors.WithScope(ctx, errors.Scope{
			UserID:    in.UserID,
			SessionID: in.SessionID,
			AgentID:   in.AgentID,
			RunID:     base.RunID,
		})
		log.ErrorWithContext(scoped, "Agent run failed", runErr, map[string]string{"model": inst.Model.Name})
		return base, runErr
	}

	done := base.with(EventRunCompleted)
	done.Content = content.String()
	done.Metrics = m
	emit(done)

	log.Infow("Agent run complete",
		"duration", time.Duration(m.DurationMs)*time.Millisecond,
		"tokens", m.TotalTokens,
		"cost_usd", m.CostUSD,
		"tool_calls", m.ToolCalls,
	)
	return base, nil
}

func (r *Runner) timeout(cfg AgentConfig) time.Duration {
	if r.maxRunTime > 0 && (cfg.Timeout <= 0 || r.maxRunTime < cfg.Timeout) {
		return r.maxRunTime
	}
	return cfg.Timeout
}

func normalize(in RunInput) (RunInput, error) {
	in.Message = strings.TrimSpace(in.Message)
	in.UserID = strings.TrimSpace(in.UserID)
	if in.AgentID == "" {
		in.AgentID = AgentFinance
	}
	if in.SessionID == "" {
		in.SessionID = uuid.NewString()
	}
	if in.Message == "" {
		return in, errors.NewValidationError("message", "must not be empty", in.Message)
	}
	if in.UserID == "" {
		return in, errors.NewValidationError("user_id", "is required", in.UserID)
	}
	if _, err := LookupConfig(in.AgentID); err != nil {
		return in, err
	}
	return in, nil
}

// ensureSession creates the session on the first message
func (r *Runner) ensureSession(ctx context.Context, in RunInput) error {
	_, err := r.sessions.Get(ctx, &session.GetRequest{
		AppName:         in.AgentID,
		UserID:          in.UserID,
		SessionID:       in.SessionID,
		NumRecentEvents: 1,
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return errors.Wrap(err, "load session")
	}

	_, err = r.sessions.Create(ctx, &session.CreateRequest{
		AppName:   in.AgentID,
		UserID:    in.UserID,
		SessionID: in.SessionID,
	})
	return errors.Wrap(err, "create session")
}

func (r *Runner) record(ctx context.Context, in RunInput, inst *Instance, runID string, u runUsage, latency time.Duration, runErr error) *RunMetrics {
	inputCost, outputCost := inst.Model.Cost(u.inputTokens, u.outputTokens)
	r.costs.RecordUsage(inst.Model, u.inputTokens, u.outputTokens)
	metrics.RecordAgentRun(in.AgentID, inst.Model.Name, latency, u.inputTokens, u.outputTokens, inputCost+outputCost, runErr)

	m := &RunMetrics{
		Model:        inst.Model.Name,
		InputTokens:  u.inputTokens,
		OutputTokens: u.outputTokens,
		TotalTokens:  u.inputTokens + u.outputTokens,
		CostUSD:      inputCost + outputCost,
		ToolCalls:    u.toolCalls,
		DurationMs:   latency.Milliseconds(),
	}

	if r.usage == nil {
		return m
	}

	entry := &ai_usage.UsageLog{
		Timestamp:        time.Now().UTC(),
		EventID:          uuid.NewString(),
		UserID:           in.UserID,
		SessionID:        in.SessionID,
		RunID:            runID,
		AgentName:        in.AgentID,
		Provider:         inst.Model.Provider.String(),
		ModelID:          inst.Model.Name,
		PromptTokens:     uint32(u.inputTokens),
		CompletionTokens: uint32(u.outputTokens),
		TotalTokens:      uint32(u.inputTokens + u.outputTokens),
		InputCostUSD:     inputCost,
		OutputCostUSD:    outputCost,
		TotalCostUSD:     inputCost + outputCost,
		ToolCallsCount:   uint16(min(u.toolCalls, 1<<16-1)),
		LatencyMs:        uint32(latency.Milliseconds()),
		Streamed:         in.Stream,
		Status:           "success",
	}
	if runErr != nil {
		entry.Status = "error"
		entry.Error = runErr.Error()
	}

	// the run context may already be cancelled by the client
	if err := r.usage.Record(context.WithoutCancel(ctx), entry); err != nil {
		r.log.Warnw("Failed to record AI usage", "run_id", runID, "error", err)
	}
	return m
}

func textOf(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range content.Parts {
		if p.Text != "" && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
