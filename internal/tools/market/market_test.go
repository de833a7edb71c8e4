package market

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/internal/adapters/yahoo"
	"finvisor/internal/tools/shared"
	"finvisor/internal/tools/shared/sharedtest"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

type fakeMarket struct {
	quoteCalls int
}

func (f *fakeMarket) Quote(_ context.Context, symbol string) (yahoo.Quote, error) {
	f.quoteCalls++
	if symbol == "NOPE" {
		return yahoo.Quote{}, errors.Wrapf(errors.ErrNotFound, "symbol %s", symbol)
	}
	return yahoo.Quote{
		Symbol:           symbol,
		Name:             "Apple Inc.",
		Currency:         "USD",
		Price:            decimal.RequireFromString("210.5"),
		PreviousClose:    decimal.RequireFromString("200"),
		Change:           decimal.RequireFromString("10.5"),
		ChangePercent:    decimal.RequireFromString("5.25"),
		FiftyTwoWeekHigh: decimal.RequireFromString("260.1"),
		FiftyTwoWeekLow:  decimal.RequireFromString("164.08"),
		Volume:           51234567,
	}, nil
}

func (f *fakeMarket) History(context.Context, string, string, string) ([]yahoo.Bar, error) {
	return []yahoo.Bar{
		{Time: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Time: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), Open: 1.5, High: 2.5, Low: 1, Close: 2.25, Volume: 20},
	}, nil
}

func (f *fakeMarket) Fundamentals(_ context.Context, symbol string) (yahoo.Fundamentals, error) {
	pe, mc := 32.1, 2.95e12
	return yahoo.Fundamentals{Symbol: symbol, Name: "Apple Inc.", Sector: "Technology", TrailingPE: &pe, MarketCap: &mc}, nil
}

func (f *fakeMarket) Recommendations(context.Context, string) ([]yahoo.RecommendationTrend, error) {
	return []yahoo.RecommendationTrend{
		{Period: "0m", StrongBuy: 10, Buy: 20, Hold: 5},
		{Period: "-1m", Hold: 2, Sell: 8},
	}, nil
}

func (f *fakeMarket) Profile(_ context.Context, symbol string) (yahoo.Profile, error) {
	return yahoo.Profile{Symbol: symbol, Name: "Apple Inc.", Employees: 164000, Summary: "Designs phones."}, nil
}

func (f *fakeMarket) News(context.Context, string, int) ([]yahoo.NewsItem, error) {
	return []yahoo.NewsItem{{Title: "Apple beats", Publisher: "Reuters", Link: "https://example.com/a", PublishedAt: time.Now().Add(-2 * time.Hour)}}, nil
}

func testDeps(m shared.MarketData) shared.Deps {
	return shared.Deps{Market: m, Log: logger.Nop()}
}

func toolCtx() *sharedtest.ToolContext {
	return sharedtest.NewToolContext(context.Background(), "u1", "s1")
}

func TestCurrentPrice(t *testing.T) {
	m := &fakeMarket{}
	out, err := currentPrice(testDeps(m)).Handler()(toolCtx(), SymbolArgs{Symbol: "AAPL"})
	require.NoError(t, err)

	assert.Equal(t, "210.50", out["price"])
	assert.Equal(t, "10.50", out["change"])
	assert.Equal(t, "5.25", out["change_percent"])
	assert.Equal(t, "260.10", out["fifty_two_week_high"])
	assert.Equal(t, "51,234,567", out["volume"])
}

func TestCurrentPriceNotFoundIsNotRetried(t *testing.T) {
	m := &fakeMarket{}
	out, err := currentPrice(testDeps(m)).Handler()(toolCtx(), SymbolArgs{Symbol: "NOPE"})
	require.NoError(t, err)

	assert.Contains(t, out["error"], "not found")
	assert.Equal(t, 1, m.quoteCalls)
}

func TestMissingMarketData(t *testing.T) {
	out, err := fundamentals(testDeps(nil)).Handler()(toolCtx(), SymbolArgs{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Contains(t, out["error"], "not configured")
}

func TestHistoricalPrices(t *testing.T) {
	out, err := historicalPrices(testDeps(&fakeMarket{})).Handler()(toolCtx(), HistoryArgs{Symbol: "AAPL", Period: "5d"})
	require.NoError(t, err)

	assert.Equal(t, 2, out["count"])
	bars := out["bars"].([]map[string]any)
	assert.Equal(t, "2.25", bars[1]["close"])
	assert.Equal(t, "2025-01-03T00:00:00Z", bars[1]["time"])
}

func TestFundamentals(t *testing.T) {
	out, err := fundamentals(testDeps(&fakeMarket{})).Handler()(toolCtx(), SymbolArgs{Symbol: "AAPL"})
	require.NoError(t, err)

	assert.Equal(t, 32.1, out["trailing_pe"])
	assert.Equal(t, "2.95 T", out["market_cap_display"])
	assert.NotContains(t, out, "eps")
}

func TestAnalystRecommendations(t *testing.T) {
	out, err := analystRecommendations(testDeps(&fakeMarket{})).Handler()(toolCtx(), SymbolArgs{Symbol: "AAPL"})
	require.NoError(t, err)

	rows := out["recommendations"].([]map[string]any)
	require.Len(t, rows, 2)
	assert.Equal(t, "buy", rows[0]["consensus"])
	assert.Equal(t, "sell", rows[1]["consensus"])
}

func TestConsensusWithoutRatings(t *testing.T) {
	assert.Equal(t, "none", consensus(yahoo.RecommendationTrend{Period: "0m"}))
}

func TestCompanyInfoAndNews(t *testing.T) {
	info, err := companyInfo(testDeps(&fakeMarket{})).Handler()(toolCtx(), SymbolArgs{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, "164,000", info["employees"])

	news, err := companyNews(testDeps(&fakeMarket{})).Handler()(toolCtx(), NewsArgs{Symbol: "AAPL"})
	require.NoError(t, err)
	items := news["news"].([]map[string]any)
	require.Len(t, items, 1)
	assert.Equal(t, "2 hours ago", items[0]["published"])
}
