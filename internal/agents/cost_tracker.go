package agents

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"finvisor/internal/adapters/ai"
)

// ModelCost is the per-model usage total shown on the playground status page
type ModelCost struct {
	ModelID      string  `json:"model_id"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	CallCount    int64   `json:"runs"`
}

// modelTotals sums cost as a decimal so thousands of tiny per-call amounts
// do not drift
type modelTotals struct {
	input, output, calls int64
	usd                  decimal.Decimal
}

func (t modelTotals) view(model string) ModelCost {
	return ModelCost{
		ModelID:      model,
		InputTokens:  t.input,
		OutputTokens: t.output,
		TotalCostUSD: t.usd.InexactFloat64(),
		CallCount:    t.calls,
	}
}

// CostTracker keeps usage totals per model since process start. The durable
// usage log lives in ClickHouse.
type CostTracker struct {
	mu     sync.RWMutex
	totals map[string]modelTotals
}

func NewCostTracker() *CostTracker {
	return &CostTracker{totals: map[string]modelTotals{}}
}

// RecordUsage adds one call and returns its cost in USD
func (ct *CostTracker) RecordUsage(model ai.ModelInfo, inputTokens, outputTokens int) float64 {
	in, out := model.Cost(inputTokens, outputTokens)
	cost := decimal.NewFromFloat(in).Add(decimal.NewFromFloat(out))

	ct.mu.Lock()
	t := ct.totals[model.Name]
	t.input += int64(inputTokens)
	t.output += int64(outputTokens)
	t.calls++
	t.usd = t.usd.Add(cost)
	ct.totals[model.Name] = t
	ct.mu.Unlock()

	return cost.InexactFloat64()
}

func (ct *CostTracker) GetCost(modelID string) (ModelCost, bool) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	t, ok := ct.totals[modelID]
	if !ok {
		return ModelCost{}, false
	}
	return t.view(modelID), true
}

// Snapshot lists every model ordered by id
func (ct *CostTracker) Snapshot() []ModelCost {
	ct.mu.RLock()
	out := make([]ModelCost, 0, len(ct.totals))
	for model, t := range ct.totals {
		out = append(out, t.view(model))
	}
	ct.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

func (ct *CostTracker) TotalCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	sum := decimal.Zero
	for _, t := range ct.totals {
		sum = sum.Add(t.usd)
	}
	return sum.InexactFloat64()
}
