package indicators

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/internal/adapters/yahoo"
	"finvisor/internal/tools/shared"
	"finvisor/internal/tools/shared/sharedtest"
	"finvisor/pkg/logger"
)

type historyOnly struct {
	shared.MarketData
	bars []yahoo.Bar
}

func (h historyOnly) History(context.Context, string, string, string) ([]yahoo.Bar, error) {
	return h.bars, nil
}

func risingBars(n int) []yahoo.Bar {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]yahoo.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = yahoo.Bar{Time: start.AddDate(0, 0, i), Open: c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 1000}
	}
	return bars
}

func TestTechnicalIndicatorsUptrend(t *testing.T) {
	deps := shared.Deps{Market: historyOnly{bars: risingBars(80)}, Log: logger.Nop()}
	h := technicalIndicators(deps).Handler()

	out, err := h(sharedtest.NewToolContext(context.Background(), "u1", "s1"), Args{Symbol: "aapl"})
	require.NoError(t, err)
	require.NotContains(t, out, "error")

	assert.Equal(t, "AAPL", out["symbol"])
	assert.Equal(t, 179.0, out["close"])

	values := out["indicators"].(map[string]any)
	assert.InDelta(t, 169.5, values["sma"], 0.01)
	assert.InDelta(t, 100.0, values["rsi"], 0.01)
	assert.InDelta(t, 2.0, values["atr"], 0.01)
	assert.Contains(t, values, "macd")
	assert.Contains(t, values, "bollinger")

	summary := out["summary"].(string)
	assert.Contains(t, summary, "above the average")
	assert.Contains(t, summary, "overbought")
}

func TestTechnicalIndicatorsSubset(t *testing.T) {
	deps := shared.Deps{Market: historyOnly{bars: risingBars(60)}, Log: logger.Nop()}
	h := technicalIndicators(deps).Handler()

	out, err := h(sharedtest.NewToolContext(context.Background(), "u1", "s1"), Args{Symbol: "MSFT", Indicators: []string{"RSI", "rsi"}})
	require.NoError(t, err)

	values := out["indicators"].(map[string]any)
	assert.Len(t, values, 1)
	assert.Contains(t, values, "rsi")
}

func TestTechnicalIndicatorsErrors(t *testing.T) {
	tests := []struct {
		name string
		deps shared.Deps
		args Args
		want string
	}{
		{"no market data", shared.Deps{Log: logger.Nop()}, Args{Symbol: "AAPL"}, "not configured"},
		{"unknown indicator", shared.Deps{Market: historyOnly{bars: risingBars(60)}, Log: logger.Nop()}, Args{Symbol: "AAPL", Indicators: []string{"ichimoku"}}, "unsupported indicator"},
		{"short history", shared.Deps{Market: historyOnly{bars: risingBars(10)}, Log: logger.Nop()}, Args{Symbol: "AAPL"}, "requires at least"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := technicalIndicators(tt.deps).Handler()(sharedtest.NewToolContext(context.Background(), "u1", "s1"), tt.args)
			require.NoError(t, err)
			assert.Contains(t, out["error"], tt.want)
		})
	}
}
