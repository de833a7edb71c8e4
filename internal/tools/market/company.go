package market

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"google.golang.org/adk/tool"

	"finvisor/internal/adapters/yahoo"
	"finvisor/internal/tools/shared"
	"finvisor/pkg/errors"
)

// NewFundamentalsTool returns valuation and profitability metrics
func NewFundamentalsTool(deps shared.Deps) (tool.Tool, error) {
	return fundamentals(deps).Build()
}

func fundamentals(deps shared.Deps) *shared.ToolBuilder[SymbolArgs] {
	return shared.NewToolBuilder(
		"get_stock_fundamentals",
		"Get fundamental data for a stock: market cap, P/E, EPS, price to book, dividend yield, beta, margins and sector.",
		func(ctx tool.Context, args SymbolArgs) (map[string]any, error) {
			if err := requireMarket(deps); err != nil {
				return nil, err
			}

			f, err := deps.Market.Fundamentals(ctx, args.Symbol)
			if err != nil {
				return nil, errors.Wrap(err, "get_stock_fundamentals")
			}
			return fundamentalsResult(f), nil
		},
		deps,
	).
		WithTimeout(15*time.Second).
		WithRetry(3, 500*time.Millisecond).
		WithStats()
}

func fundamentalsResult(f yahoo.Fundamentals) map[string]any {
	out := map[string]any{
		"symbol":   f.Symbol,
		"name":     f.Name,
		"sector":   f.Sector,
		"industry": f.Industry,
		"currency": f.Currency,
	}

	if f.MarketCap != nil {
		out["market_cap"] = *f.MarketCap
		out["market_cap_display"] = strings.TrimSpace(humanize.SIWithDigits(*f.MarketCap, 2, ""))
	}
	set := func(key string, v *float64) {
		if v != nil {
			out[key] = *v
		}
	}
	set("trailing_pe", f.TrailingPE)
	set("forward_pe", f.ForwardPE)
	set("eps", f.EPS)
	set("price_to_book", f.PriceToBook)
	set("dividend_yield", f.DividendYield)
	set("beta", f.Beta)
	set("profit_margin", f.ProfitMargin)
	set("revenue_growth", f.RevenueGrowth)
	set("fifty_two_week_high", f.FiftyTwoWeekHigh)
	set("fifty_two_week_low", f.FiftyTwoWeekLow)
	set("target_mean_price", f.TargetMeanPrice)
	if f.Recommendation != "" {
		out["recommendation"] = f.Recommendation
	}
	return out
}

// NewAnalystRecommendationsTool returns analyst rating counts per month
func NewAnalystRecommendationsTool(deps shared.Deps) (tool.Tool, error) {
	return analystRecommendations(deps).Build()
}

func analystRecommendations(deps shared.Deps) *shared.ToolBuilder[SymbolArgs] {
	return shared.NewToolBuilder(
		"get_analyst_recommendations",
		"Get analyst recommendations (strong buy, buy, hold, sell, strong sell counts) for a stock over recent months.",
		func(ctx tool.Context, args SymbolArgs) (map[string]any, error) {
			if err := requireMarket(deps); err != nil {
				return nil, err
			}

			trends, err := deps.Market.Recommendations(ctx, args.Symbol)
			if err != nil {
				return nil, errors.Wrap(err, "get_analyst_recommendations")
			}

			rows := make([]map[string]any, 0, len(trends))
			for _, tr := range trends {
				rows = append(rows, map[string]any{
					"period":      tr.Period,
					"strong_buy":  tr.StrongBuy,
					"buy":         tr.Buy,
					"hold":        tr.Hold,
					"sell":        tr.Sell,
					"strong_sell": tr.StrongSell,
					"consensus":   consensus(tr),
				})
			}

			return map[string]any{"symbol": args.Symbol, "recommendations": rows}, nil
		},
		deps,
	).
		WithTimeout(15*time.Second).
		WithRetry(3, 500*time.Millisecond).
		WithStats()
}

// consensus maps the weighted average rating (1 strong buy .. 5 strong sell) to a label
func consensus(tr yahoo.RecommendationTrend) string {
	total := tr.StrongBuy + tr.Buy + tr.Hold + tr.Sell + tr.StrongSell
	if total == 0 {
		return "none"
	}

	score := float64(tr.StrongBuy*1+tr.Buy*2+tr.Hold*3+tr.Sell*4+tr.StrongSell*5) / float64(total)
	switch {
	case score < 1.5:
		return "strong_buy"
	case score < 2.5:
		return "buy"
	case score < 3.5:
		return "hold"
	case score < 4.5:
		return "sell"
	default:
		return "strong_sell"
	}
}

// NewCompanyInfoTool returns the company profile
func NewCompanyInfoTool(deps shared.Deps) (tool.Tool, error) {
	return companyInfo(deps).Build()
}

func companyInfo(deps shared.Deps) *shared.ToolBuilder[SymbolArgs] {
	return shared.NewToolBuilder(
		"get_company_info",
		"Get company profile and overview: sector, industry, location, headcount, website and business summary.",
		func(ctx tool.Context, args SymbolArgs) (map[string]any, error) {
			if err := requireMarket(deps); err != nil {
				return nil, err
			}

			p, err := deps.Market.Profile(ctx, args.Symbol)
			if err != nil {
				return nil, errors.Wrap(err, "get_company_info")
			}

			out := map[string]any{
				"symbol":   p.Symbol,
				"name":     p.Name,
				"sector":   p.Sector,
				"industry": p.Industry,
				"website":  p.Website,
				"country":  p.Country,
				"city":     p.City,
				"summary":  p.Summary,
			}
			if p.Employees > 0 {
				out["employees"] = humanize.Comma(int64(p.Employees))
			}
			return out, nil
		},
		deps,
	).
		WithTimeout(15*time.Second).
		WithRetry(3, 500*time.Millisecond).
		WithStats()
}
