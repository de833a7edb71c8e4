// Package agents builds the ADK agents served by FinVisor and runs them.
package agents

import (
	"context"
	"strings"
	"time"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"

	"finvisor/internal/adapters/ai"
	"finvisor/internal/agents/callbacks"
	"finvisor/internal/domain/memory"
	"finvisor/internal/tools"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
	"finvisor/pkg/templates"
)

// MemoryLister reads stored user memories for the instructions
type MemoryLister interface {
	Search(ctx context.Context, userID, query string, limit int) ([]*memory.UserMemory, error)
}

// FactoryDeps gathers external dependencies needed to instantiate agents.
type FactoryDeps struct {
	AIRegistry   *ai.ProviderRegistry
	ToolRegistry *tools.Registry
	Templates    *templates.Registry
	// Memories is optional; without it the instructions list no memories
	Memories MemoryLister
	// CostCheck is optional; it refuses runs of users over their daily budget
	CostCheck callbacks.CostCheckFunc
	// PlainText drops the markdown formatting instruction from every agent
	PlainText bool

	Provider     string
	DefaultModel string
}

// Options select the model and the user an agent is built for.
type Options struct {
	ModelID   string
	UserID    string
	SessionID string
	// DebugMode logs every model request and tool call
	DebugMode bool
}

// Instance is a built agent with the model it runs on
type Instance struct {
	Agent  agent.Agent
	Config AgentConfig
	Model  ai.ModelInfo
}

// Factory creates configured agents.
type Factory struct {
	aiRegistry   *ai.ProviderRegistry
	toolRegistry *tools.Registry
	templates    *templates.Registry
	memories     MemoryLister
	costCheck    callbacks.CostCheckFunc
	plainText    bool
	provider     string
	defaultModel string
	now          func() time.Time
	log          *logger.Logger
}

// NewFactory builds an agent factory with required dependencies.
func NewFactory(deps FactoryDeps) (*Factory, error) {
	if deps.ToolRegistry == nil {
		return nil, errors.NewValidationError("tool_registry", "is required", nil)
	}
	if deps.AIRegistry == nil {
		return nil, errors.NewValidationError("ai_registry", "is required", nil)
	}
	if deps.Templates == nil {
		deps.Templates = templates.Get()
	}
	if deps.Provider == "" {
		deps.Provider = ai.ProviderNameGoogle.String()
	}
	if deps.DefaultModel == "" {
		deps.DefaultModel = ai.DefaultModel
	}

	return &Factory{
		aiRegistry:   deps.AIRegistry,
		toolRegistry: deps.ToolRegistry,
		templates:    deps.Templates,
		memories:     deps.Memories,
		costCheck:    deps.CostCheck,
		plainText:    deps.PlainText,
		provider:     deps.Provider,
		defaultModel: deps.DefaultModel,
		now:          time.Now,
		log:          logger.Get().With("component", "agent_factory"),
	}, nil
}

// NewFinanceAgent builds the FinVisor finance agent for one user.
func NewFinanceAgent(ctx context.Context, deps FactoryDeps, opts Options) (agent.Agent, error) {
	f, err := NewFactory(deps)
	if err != nil {
		return nil, err
	}
	inst, err := f.Create(ctx, AgentFinance, opts)
	if err != nil {
		return nil, err
	}
	return inst.Agent, nil
}

// Create builds the agent registered under id
func (f *Factory) Create(ctx context.Context, id string, opts Options) (*Instance, error) {
	cfg, err := LookupConfig(id)
	if err != nil {
		return nil, err
	}
	return f.CreateAgent(ctx, cfg, opts)
}

// ResolveModel returns metadata of the model an agent would run on
func (f *Factory) ResolveModel(ctx context.Context, modelID string) (ai.ModelInfo, error) {
	if modelID == "" {
		modelID = f.defaultModel
	}
	return f.aiRegistry.ResolveModel(ctx, f.provider, modelID)
}

// CreateAgent constructs a single ADK agent instance from a config.
func (f *Factory) CreateAgent(ctx context.Context, cfg AgentConfig, opts Options) (*Instance, error) {
	if opts.UserID == "" {
		return nil, errors.NewValidationError("user_id", "is required", opts.UserID)
	}
	modelID := opts.ModelID
	if modelID == "" {
		modelID = f.defaultModel
	}

	info, llm, err := f.aiRegistry.ResolveLLM(ctx, f.provider, modelID)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve model %s/%s", f.provider, modelID)
	}

	return f.build(ctx, cfg, opts, info, llm)
}

func (f *Factory) build(ctx context.Context, cfg AgentConfig, opts Options, info ai.ModelInfo, llm model.LLM) (*Instance, error) {
	agentTools := f.toolRegistry.Select(cfg.Categories...)
	if len(agentTools) == 0 {
		return nil, errors.Wrapf(errors.ErrUnavailable, "no tools available for agent %s", cfg.ID)
	}

	instruction, err := f.templates.Render(cfg.Template, promptData{
		UserID:   opts.UserID,
		Now:      f.now(),
		Markdown: cfg.Markdown && !f.plainText,
		Memories: f.loadMemories(ctx, opts.UserID, cfg.MemoriesInPrompt),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "render prompt for %s", cfg.ID)
	}

	llmCfg := llmagent.Config{
		Name:        cfg.ID,
		Description: cfg.Description,
		Model:       llm,
		Tools:       agentTools,
		Instruction: escapePlaceholders(instruction),

		BeforeAgentCallbacks: []agent.BeforeAgentCallback{callbacks.CostTrackingBeforeCallback(f.costCheck)},
		AfterAgentCallbacks:  []agent.AfterAgentCallback{callbacks.LoggingAfterCallback()},
		AfterModelCallbacks:  []llmagent.AfterModelCallback{callbacks.TokenCountingCallback()},
		BeforeToolCallbacks:  []llmagent.BeforeToolCallback{callbacks.ToolCallLimitBeforeCallback(cfg.MaxToolCalls)},
		AfterToolCallbacks:   []llmagent.AfterToolCallback{callbacks.AuditLogAfterToolCallback()},
	}
	if opts.DebugMode {
		llmCfg.BeforeModelCallbacks = append(llmCfg.BeforeModelCallbacks, callbacks.DebugBeforeModelCallback())
	}

	ag, err := llmagent.New(llmCfg)
	if err != nil {
		return nil, errors.Wrapf(err, "create agent %s", cfg.ID)
	}

	f.log.Debugw("Agent created",
		"agent", cfg.ID,
		"model", info.Name,
		"user_id", opts.UserID,
		"session_id", opts.SessionID,
		"tools", len(agentTools),
		"debug", opts.DebugMode,
	)
	return &Instance{Agent: ag, Config: cfg, Model: info}, nil
}

type promptData struct {
	UserID   string
	Now      time.Time
	Markdown bool
	Memories []string
}

// loadMemories lists the newest memories of the user; failures only drop them from the prompt
func (f *Factory) loadMemories(ctx context.Context, userID string, limit int) []string {
	if f.memories == nil || limit <= 0 {
		return nil
	}

	mems, err := f.memories.Search(ctx, userID, "", limit)
	if err != nil {
		f.log.Warnw("Failed to load user memories", "user_id", userID, "error", err)
		return nil
	}

	out := make([]string, 0, len(mems))
	for _, m := range mems {
		out = append(out, m.Memory)
	}
	return out
}

// ADK substitutes {name} with session state, so literal braces in the
// instructions (user ids, remembered facts) must not reach it.
var placeholderEscaper = strings.NewReplacer("{", "(", "}", ")")

func escapePlaceholders(s string) string {
	return placeholderEscaper.Replace(s)
}

// AgentInfo describes a configured agent for clients
type AgentInfo struct {
	AgentConfig
	Model string   `json:"model"`
	Tools []string `json:"tools"`
}

// Describe lists the catalog with the default model and the tools each agent would receive
func (f *Factory) Describe() []AgentInfo {
	catalog := Catalog()
	out := make([]AgentInfo, 0, len(catalog))
	for _, cfg := range catalog {
		info := AgentInfo{AgentConfig: cfg, Model: f.defaultModel}
		for _, t := range f.toolRegistry.Select(cfg.Categories...) {
			info.Tools = append(info.Tools, t.Name())
		}
		out = append(out, info)
	}
	return out
}
