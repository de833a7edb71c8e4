package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/internal/adapters/ai"
	"finvisor/internal/tools"
	"finvisor/pkg/errors"
)

func TestNewFactoryRequiresRegistries(t *testing.T) {
	_, err := NewFactory(FactoryDeps{AIRegistry: ai.NewProviderRegistry()})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = NewFactory(FactoryDeps{ToolRegistry: tools.NewRegistry()})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestNewFinanceAgent(t *testing.T) {
	registry := ai.NewProviderRegistry()
	require.NoError(t, registry.Register(&fakeProvider{llm: &scriptedLLM{}}))
	toolRegistry := tools.NewRegistry()
	toolRegistry.Register(priceTool(t))

	ag, err := NewFinanceAgent(context.Background(), FactoryDeps{
		AIRegistry:   registry,
		ToolRegistry: toolRegistry,
	}, Options{ModelID: ai.ModelGemini20Flash, UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, AgentFinance, ag.Name())
	assert.Contains(t, ag.Description(), "FinVisor")
}

func TestCreateAgentErrors(t *testing.T) {
	registry := ai.NewProviderRegistry()
	require.NoError(t, registry.Register(&fakeProvider{llm: &scriptedLLM{}}))

	f, err := NewFactory(FactoryDeps{AIRegistry: registry, ToolRegistry: tools.NewRegistry()})
	require.NoError(t, err)

	_, err = f.Create(context.Background(), AgentFinance, Options{UserID: "u1"})
	assert.ErrorIs(t, err, errors.ErrUnavailable, "no tools registered")

	_, err = f.Create(context.Background(), AgentFinance, Options{})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = f.Create(context.Background(), "unknown", Options{UserID: "u1"})
	assert.ErrorIs(t, err, errors.ErrNotFound)

	info, err := f.ResolveModel(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, ai.ModelGemini20Flash, info.Name)
}

func TestCatalogOrder(t *testing.T) {
	catalog := Catalog()
	require.Len(t, catalog, 2)
	assert.Equal(t, AgentFinance, catalog[0].ID)
	assert.Equal(t, AgentFilingsAnalyst, catalog[1].ID)

	assert.Contains(t, catalog[0].Categories, tools.CategoryMarketData)
	assert.Contains(t, catalog[1].Categories, tools.CategoryKnowledge)
}

func TestEscapePlaceholders(t *testing.T) {
	assert.Equal(t, "user (id) and (state?)", escapePlaceholders("user {id} and {state?}"))
}

func TestCostTracker(t *testing.T) {
	tracker := NewCostTracker()
	flash := ai.ModelInfo{Name: "flash", InputCostPer1K: 0.0001, OutputCostPer1K: 0.0004}
	pro := ai.ModelInfo{Name: "pro", InputCostPer1K: 0.00125, OutputCostPer1K: 0.01}

	cost := tracker.RecordUsage(flash, 1000, 1000)
	assert.InDelta(t, 0.0005, cost, 1e-12)
	tracker.RecordUsage(flash, 2000, 0)
	tracker.RecordUsage(pro, 1000, 100)

	got, ok := tracker.GetCost("flash")
	require.True(t, ok)
	assert.Equal(t, int64(3000), got.InputTokens)
	assert.Equal(t, int64(2), got.CallCount)

	snapshot := tracker.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "flash", snapshot[0].ModelID)
	assert.InDelta(t, 0.0007+0.00225, tracker.TotalCost(), 1e-12)

	_, ok = tracker.GetCost("missing")
	assert.False(t, ok)
}

func TestDescribe(t *testing.T) {
	toolRegistry := tools.NewRegistry()
	toolRegistry.Register(priceTool(t))
	f, err := NewFactory(FactoryDeps{AIRegistry: ai.NewProviderRegistry(), ToolRegistry: toolRegistry})
	require.NoError(t, err)

	infos := f.Describe()
	require.Len(t, infos, 2)
	assert.Equal(t, AgentFinance, infos[0].ID)
	assert.Equal(t, ai.DefaultModel, infos[0].Model)
	assert.Equal(t, []string{"get_current_stock_price"}, infos[0].Tools)
	assert.Empty(t, infos[1].Tools)
}
