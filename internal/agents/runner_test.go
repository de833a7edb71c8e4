package agents

import (
	"context"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/adk/model"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
	"google.golang.org/genai"

	"finvisor/internal/adapters/adk"
	"finvisor/internal/adapters/ai"
	"finvisor/internal/agents/callbacks"
	"finvisor/internal/domain/ai_usage"
	"finvisor/internal/domain/memory"
	domainsession "finvisor/internal/domain/session"
	memrepo "finvisor/internal/repository/memory"
	"finvisor/internal/tools"
	"finvisor/pkg/errors"
)

// scriptedLLM answers each model call with the next scripted turn
type scriptedLLM struct {
	mu       sync.Mutex
	turns    [][]*model.LLMResponse
	requests []*model.LLMRequest
}

func (s *scriptedLLM) Name() string { return "fake-model" }

func (s *scriptedLLM) GenerateContent(_ context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	s.mu.Lock()
	idx := len(s.requests)
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	return func(yield func(*model.LLMResponse, error) bool) {
		if idx >= len(s.turns) {
			yield(&model.LLMResponse{Content: genai.NewContentFromText("done", genai.RoleModel)}, nil)
			return
		}
		for _, resp := range s.turns[idx] {
			if !yield(resp, nil) {
				return
			}
		}
	}
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptedLLM) systemInstruction(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.requests[i]
	if req.Config == nil || req.Config.SystemInstruction == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range req.Config.SystemInstruction.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// fakeProvider serves one model backed by a scriptedLLM
type fakeProvider struct {
	llm model.LLM
}

func (p *fakeProvider) Name() string { return "google" }

func (p *fakeProvider) GetModel(_ context.Context, name string) (ai.ModelInfo, error) {
	if name != ai.ModelGemini20Flash {
		return ai.ModelInfo{}, errors.Wrapf(errors.ErrNotFound, "model %s", name)
	}
	return ai.ModelInfo{
		Provider:        ai.ProviderNameGoogle,
		Name:            ai.ModelGemini20Flash,
		InputCostPer1K:  0.0001,
		OutputCostPer1K: 0.0004,
	}, nil
}

func (p *fakeProvider) ListModels(ctx context.Context) ([]ai.ModelInfo, error) {
	m, _ := p.GetModel(ctx, ai.ModelGemini20Flash)
	return []ai.ModelInfo{m}, nil
}

func (p *fakeProvider) LLM(_ context.Context, _ string) (model.LLM, error) { return p.llm, nil }

type recordedUsage struct {
	mu   sync.Mutex
	logs []*ai_usage.UsageLog
}

func (r *recordedUsage) Record(_ context.Context, log *ai_usage.UsageLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return nil
}

type staticMemories struct {
	userID string
	items  []*memory.UserMemory
}

func (m *staticMemories) Search(_ context.Context, userID, _ string, limit int) ([]*memory.UserMemory, error) {
	m.userID = userID
	if limit < len(m.items) {
		return m.items[:limit], nil
	}
	return m.items, nil
}

type priceArgs struct {
	Symbol string `json:"symbol" jsonschema:"Ticker symbol"`
}

func priceTool(t *testing.T) tool.Tool {
	t.Helper()
	pt, err := functiontool.New(functiontool.Config{
		Name:        "get_current_stock_price",
		Description: "Latest price",
	}, func(_ tool.Context, args priceArgs) (map[string]any, error) {
		return map[string]any{"symbol": args.Symbol, "price": "123.40"}, nil
	})
	require.NoError(t, err)
	return pt
}

type harness struct {
	llm      *scriptedLLM
	runner   *Runner
	factory  *Factory
	sessions session.Service
	usage    *recordedUsage
}

func newHarness(t *testing.T, llm *scriptedLLM, deps FactoryDeps) *harness {
	t.Helper()

	registry := ai.NewProviderRegistry()
	require.NoError(t, registry.Register(&fakeProvider{llm: llm}))

	toolRegistry := tools.NewRegistry()
	toolRegistry.Register(priceTool(t))

	deps.AIRegistry = registry
	deps.ToolRegistry = toolRegistry
	factory, err := NewFactory(deps)
	require.NoError(t, err)
	factory.now = func() time.Time { return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC) }

	sessions := adk.NewSessionService(domainsession.NewService(memrepo.NewSessionRepository()))
	usage := &recordedUsage{}

	runner, err := NewRunner(RunnerDeps{Factory: factory, Sessions: sessions, Usage: usage})
	require.NoError(t, err)

	return &harness{llm: llm, runner: runner, factory: factory, sessions: sessions, usage: usage}
}

func TestRunSyncWithToolCall(t *testing.T) {
	llm := &scriptedLLM{turns: [][]*model.LLMResponse{
		{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{
				FunctionCall: &genai.FunctionCall{Name: "get_current_stock_price", Args: map[string]any{"symbol": "AAPL"}},
			}}},
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 100, CandidatesTokenCount: 10},
		}},
		{{
			Content:       genai.NewContentFromText("AAPL trades at $123.40.", genai.RoleModel),
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 150, CandidatesTokenCount: 20},
		}},
	}}
	h := newHarness(t, llm, FactoryDeps{})

	result, err := h.runner.RunSync(context.Background(), RunInput{
		UserID:    "u1",
		SessionID: "s1",
		Message:   "What is Apple trading at?",
	})
	require.NoError(t, err)

	assert.Equal(t, AgentFinance, result.AgentID)
	assert.Equal(t, "s1", result.SessionID)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "AAPL trades at $123.40.", result.Content)

	require.Len(t, result.Tools, 1)
	assert.Equal(t, "get_current_stock_price", result.Tools[0].Name)
	assert.Equal(t, "AAPL", result.Tools[0].Args["symbol"])
	assert.Equal(t, "123.40", result.Tools[0].Result["price"])

	require.NotNil(t, result.Metrics)
	assert.Equal(t, 250, result.Metrics.InputTokens)
	assert.Equal(t, 30, result.Metrics.OutputTokens)
	assert.Equal(t, 1, result.Metrics.ToolCalls)
	assert.InDelta(t, 0.25*0.0001+0.03*0.0004, result.Metrics.CostUSD, 1e-12)

	require.Len(t, h.usage.logs, 1)
	entry := h.usage.logs[0]
	assert.Equal(t, "success", entry.Status)
	assert.Equal(t, "u1", entry.UserID)
	assert.Equal(t, result.RunID, entry.RunID)
	assert.Equal(t, uint32(280), entry.TotalTokens)
	assert.Equal(t, uint16(1), entry.ToolCallsCount)
	assert.False(t, entry.Streamed)

	cost, ok := h.runner.Costs().GetCost(ai.ModelGemini20Flash)
	require.True(t, ok)
	assert.Equal(t, int64(1), cost.CallCount)

	// the conversation was stored under the agent's app
	resp, err := h.sessions.Get(context.Background(), &session.GetRequest{AppName: AgentFinance, UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, resp.Session.Events().Len(), 4)
}

func TestRunStreamsDeltasOnce(t *testing.T) {
	llm := &scriptedLLM{turns: [][]*model.LLMResponse{{
		{Content: genai.NewContentFromText("Hello ", genai.RoleModel), Partial: true},
		{Content: genai.NewContentFromText("world", genai.RoleModel), Partial: true},
		{
			Content:       genai.NewContentFromText("Hello world", genai.RoleModel),
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 40, CandidatesTokenCount: 4},
		},
	}}}
	h := newHarness(t, llm, FactoryDeps{})

	var events []RunEvent
	for ev := range h.runner.Run(context.Background(), RunInput{UserID: "u1", Message: "hi", Stream: true}) {
		events = append(events, ev)
	}

	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, EventRunStarted, events[0].Event)

	var deltas []string
	for _, ev := range events {
		if ev.Event == EventRunContent {
			deltas = append(deltas, ev.Content)
		}
	}
	assert.Equal(t, []string{"Hello ", "world"}, deltas)

	last := events[len(events)-1]
	assert.Equal(t, EventRunCompleted, last.Event)
	assert.Equal(t, "Hello world", last.Content)
	assert.Equal(t, 44, last.Metrics.TotalTokens)
	assert.NotEmpty(t, last.SessionID)

	require.Len(t, h.usage.logs, 1)
	assert.True(t, h.usage.logs[0].Streamed)
}

func TestRunStopsWhenConsumerStops(t *testing.T) {
	llm := &scriptedLLM{}
	h := newHarness(t, llm, FactoryDeps{})

	count := 0
	for range h.runner.Run(context.Background(), RunInput{UserID: "u1", Message: "hi"}) {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestRunValidation(t *testing.T) {
	h := newHarness(t, &scriptedLLM{}, FactoryDeps{})

	var events []RunEvent
	for ev := range h.runner.Run(context.Background(), RunInput{UserID: "u1", Message: "  "}) {
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	assert.Equal(t, EventRunError, events[0].Event)
	assert.Contains(t, events[0].Error, "message")

	_, err := h.runner.RunSync(context.Background(), RunInput{Message: "hi"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = h.runner.RunSync(context.Background(), RunInput{AgentID: "trader", UserID: "u1", Message: "hi"})
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = h.runner.RunSync(context.Background(), RunInput{UserID: "u1", Message: "hi", ModelID: "gpt-4o"})
	assert.ErrorIs(t, err, errors.ErrNotFound)

	assert.Zero(t, h.llm.calls())
	assert.Empty(t, h.usage.logs)
}

func TestInstructionsCarryUserAndMemories(t *testing.T) {
	llm := &scriptedLLM{}
	memories := &staticMemories{items: []*memory.UserMemory{
		{Memory: "Prefers dividend stocks"},
		{Memory: "Uses {braces} in notes"},
	}}
	h := newHarness(t, llm, FactoryDeps{Memories: memories})

	_, err := h.runner.RunSync(context.Background(), RunInput{UserID: "u-42", Message: "hi"})
	require.NoError(t, err)
	require.Equal(t, 1, llm.calls())

	instruction := llm.systemInstruction(0)
	assert.Contains(t, instruction, "user_id: u-42")
	assert.Contains(t, instruction, "2025-03-14 09:30 UTC")
	assert.Contains(t, instruction, "Use markdown")
	assert.Contains(t, instruction, "Prefers dividend stocks")
	assert.Contains(t, instruction, "Uses (braces) in notes")
	assert.Equal(t, "u-42", memories.userID)
}

func TestRunRefusedOverBudget(t *testing.T) {
	llm := &scriptedLLM{}
	h := newHarness(t, llm, FactoryDeps{
		CostCheck: func(context.Context, string) (bool, error) { return true, nil },
	})

	result, err := h.runner.RunSync(context.Background(), RunInput{UserID: "u1", Message: "hi"})
	require.NoError(t, err)

	assert.Equal(t, callbacks.CostLimitMessage, result.Content)
	assert.Zero(t, llm.calls())
}

func TestRunReportsModelErrors(t *testing.T) {
	h := newHarness(t, &scriptedLLM{}, FactoryDeps{})
	h.runner.factory.aiRegistry = ai.NewProviderRegistry()
	require.NoError(t, h.runner.factory.aiRegistry.Register(&fakeProvider{llm: failingLLM{}}))

	var last RunEvent
	for ev := range h.runner.Run(context.Background(), RunInput{UserID: "u1", Message: "hi"}) {
		last = ev
	}
	assert.Equal(t, EventRunError, last.Event)
	assert.Contains(t, last.Error, "quota exhausted")

	require.Len(t, h.usage.logs, 1)
	assert.Equal(t, "error", h.usage.logs[0].Status)
}

type failingLLM struct{}

func (failingLLM) Name() string { return "failing" }

func (failingLLM) GenerateContent(context.Context, *model.LLMRequest, bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		yield(nil, errors.New("quota exhausted"))
	}
}
