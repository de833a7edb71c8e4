// Package market exposes Yahoo Finance data as agent tools.
package market

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"google.golang.org/adk/tool"

	"finvisor/internal/tools/shared"
	"finvisor/pkg/errors"
)

// SymbolArgs selects one ticker
type SymbolArgs struct {
	Symbol string `json:"symbol" jsonschema:"Stock ticker symbol, e.g. AAPL"`
}

// HistoryArgs selects a price window
type HistoryArgs struct {
	Symbol   string `json:"symbol" jsonschema:"Stock ticker symbol, e.g. AAPL"`
	Period   string `json:"period,omitempty" jsonschema:"Window: 1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y, ytd or max. Default 1mo"`
	Interval string `json:"interval,omitempty" jsonschema:"Bar size: 1d, 5d, 1wk, 1mo, 3mo or intraday 1m..90m. Default 1d"`
}

// NewsArgs selects headlines for a ticker
type NewsArgs struct {
	Symbol     string `json:"symbol" jsonschema:"Stock ticker symbol, e.g. AAPL"`
	NumStories int    `json:"num_stories,omitempty" jsonschema:"Number of stories to return. Default 3"`
}

func requireMarket(deps shared.Deps) error {
	if !deps.HasMarketData() {
		return errors.Wrapf(errors.ErrUnavailable, "market data client not configured")
	}
	return nil
}

// NewCurrentPriceTool returns the latest price with change and 52-week range
func NewCurrentPriceTool(deps shared.Deps) (tool.Tool, error) {
	return currentPrice(deps).Build()
}

func currentPrice(deps shared.Deps) *shared.ToolBuilder[SymbolArgs] {
	return shared.NewToolBuilder(
		"get_current_stock_price",
		"Get the current stock price of a company with the daily change and 52-week high/low.",
		func(ctx tool.Context, args SymbolArgs) (map[string]any, error) {
			if err := requireMarket(deps); err != nil {
				return nil, err
			}

			q, err := deps.Market.Quote(ctx, args.Symbol)
			if err != nil {
				return nil, errors.Wrap(err, "get_current_stock_price")
			}

			return map[string]any{
				"symbol":              q.Symbol,
				"name":                q.Name,
				"currency":            q.Currency,
				"price":               q.Price.StringFixed(2),
				"previous_close":      q.PreviousClose.StringFixed(2),
				"change":              q.Change.StringFixed(2),
				"change_percent":      q.ChangePercent.String(),
				"day_high":            q.DayHigh.StringFixed(2),
				"day_low":             q.DayLow.StringFixed(2),
				"fifty_two_week_high": q.FiftyTwoWeekHigh.StringFixed(2),
				"fifty_two_week_low":  q.FiftyTwoWeekLow.StringFixed(2),
				"volume":              humanize.Comma(q.Volume),
				"market_time":         q.MarketTime.Format(time.RFC3339),
			}, nil
		},
		deps,
	).
		WithTimeout(15*time.Second).
		WithRetry(3, 500*time.Millisecond).
		WithStats()
}

// NewHistoricalPricesTool returns OHLCV bars for a window
func NewHistoricalPricesTool(deps shared.Deps) (tool.Tool, error) {
	return historicalPrices(deps).Build()
}

func historicalPrices(deps shared.Deps) *shared.ToolBuilder[HistoryArgs] {
	return shared.NewToolBuilder(
		"get_historical_stock_prices",
		"Get historical OHLCV prices of a stock for a period and interval.",
		func(ctx tool.Context, args HistoryArgs) (map[string]any, error) {
			if err := requireMarket(deps); err != nil {
				return nil, err
			}

			bars, err := deps.Market.History(ctx, args.Symbol, args.Period, args.Interval)
			if err != nil {
				return nil, errors.Wrap(err, "get_historical_stock_prices")
			}

			data := make([]map[string]any, 0, len(bars))
			for _, b := range bars {
				data = append(data, map[string]any{
					"time":   b.Time.Format(time.RFC3339),
					"open":   round2(b.Open),
					"high":   round2(b.High),
					"low":    round2(b.Low),
					"close":  round2(b.Close),
					"volume": b.Volume,
				})
			}

			return map[string]any{
				"symbol": args.Symbol,
				"bars":   data,
				"count":  len(data),
			}, nil
		},
		deps,
	).
		WithTimeout(20*time.Second).
		WithRetry(3, 500*time.Millisecond).
		WithStats()
}

// NewCompanyNewsTool returns recent headlines for a ticker
func NewCompanyNewsTool(deps shared.Deps) (tool.Tool, error) {
	return companyNews(deps).Build()
}

func companyNews(deps shared.Deps) *shared.ToolBuilder[NewsArgs] {
	return shared.NewToolBuilder(
		"get_company_news",
		"Get the latest news headlines for a company.",
		func(ctx tool.Context, args NewsArgs) (map[string]any, error) {
			if err := requireMarket(deps); err != nil {
				return nil, err
			}

			count := args.NumStories
			if count <= 0 {
				count = 3
			}

			items, err := deps.Market.News(ctx, args.Symbol, count)
			if err != nil {
				return nil, errors.Wrap(err, "get_company_news")
			}

			news := make([]map[string]any, 0, len(items))
			for _, n := range items {
				news = append(news, map[string]any{
					"title":     n.Title,
					"publisher": n.Publisher,
					"link":      n.Link,
					"published": humanize.Time(n.PublishedAt),
				})
			}

			return map[string]any{"symbol": args.Symbol, "news": news}, nil
		},
		deps,
	).
		WithTimeout(15*time.Second).
		WithRetry(2, 500*time.Millisecond).
		WithStats()
}

func round2(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
