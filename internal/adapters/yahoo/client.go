// Package yahoo reads quotes, history, fundamentals and news from Yahoo Finance's public JSON endpoints.
package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"finvisor/internal/adapters/cache"
	"finvisor/internal/adapters/ratelimit"
	"finvisor/internal/metrics"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

const (
	DefaultChartURL  = "https://query1.finance.yahoo.com"
	DefaultQueryURL  = "https://query2.finance.yahoo.com"
	DefaultCookieURL = "https://fc.yahoo.com"

	browserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Config configures the Yahoo Finance client
type Config struct {
	ChartURL        string
	QueryURL        string
	CookieURL       string
	Timeout         time.Duration
	Limiter         ratelimit.Waiter
	Cache           cache.Cache
	QuoteTTL        time.Duration
	FundamentalsTTL time.Duration
}

// Client is a cached, rate-limited Yahoo Finance client
type Client struct {
	chart *resty.Client
	query *resty.Client
	cfg   Config
	log   *logger.Logger

	crumbMu sync.Mutex
	crumb   string
}

// NewClient creates a Yahoo Finance client
func NewClient(cfg Config) *Client {
	if cfg.ChartURL == "" {
		cfg.ChartURL = DefaultChartURL
	}
	if cfg.QueryURL == "" {
		cfg.QueryURL = DefaultQueryURL
	}
	if cfg.CookieURL == "" {
		cfg.CookieURL = DefaultCookieURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.NewLimiter("yahoo", 2, 4)
	}
	if cfg.QuoteTTL == 0 {
		cfg.QuoteTTL = time.Minute
	}
	if cfg.FundamentalsTTL == 0 {
		cfg.FundamentalsTTL = time.Hour
	}

	// both clients share one cookie jar so the crumb cookie reaches query2
	query := resty.New().
		SetBaseURL(cfg.QueryURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", browserAgent)
	chart := resty.New().
		SetBaseURL(cfg.ChartURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(1).
		SetHeader("User-Agent", browserAgent).
		SetCookieJar(query.GetClient().Jar)

	return &Client{
		chart: chart,
		query: query,
		cfg:   cfg,
		log:   logger.Get().With("component", "yahoo"),
	}
}

func normalize(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", errors.NewValidationError("symbol", "must not be empty", symbol)
	}
	return symbol, nil
}

func (c *Client) do(ctx context.Context, endpoint string, req *resty.Request, path string) (*resty.Response, error) {
	if err := c.cfg.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := req.SetContext(ctx).Get(path)
	if err == nil {
		switch {
		case resp.StatusCode() == http.StatusNotFound:
			err = errors.Wrapf(errors.ErrNotFound, "yahoo %s", endpoint)
		case resp.StatusCode() == http.StatusTooManyRequests:
			err = errors.Wrapf(errors.ErrRateLimitExceeded, "yahoo %s", endpoint)
		case resp.StatusCode() == http.StatusUnauthorized:
			err = errors.Wrapf(errors.ErrUnauthorized, "yahoo %s", endpoint)
		case resp.IsError():
			err = errors.Wrapf(errors.ErrExternal, "yahoo %s returned %d", endpoint, resp.StatusCode())
		}
	}
	metrics.RecordExternalAPICall("yahoo", endpoint, time.Since(start), err)
	if err != nil {
		return nil, errors.Wrapf(err, "yahoo %s", endpoint)
	}
	return resp, nil
}

func (c *Client) chartData(ctx context.Context, symbol, rng, interval string) (*chartResult, error) {
	var out chartResponse
	req := c.chart.R().
		SetQueryParams(map[string]string{"range": rng, "interval": interval}).
		SetResult(&out)
	if _, err := c.do(ctx, "chart", req, "/v8/finance/chart/"+symbol); err != nil {
		return nil, err
	}
	if out.Chart.Error != nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "%s: %s", symbol, out.Chart.Error.Description)
	}
	if len(out.Chart.Result) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "no chart data for %s", symbol)
	}
	return &out.Chart.Result[0], nil
}

// Quote returns the current price snapshot
func (c *Client) Quote(ctx context.Context, symbol string) (Quote, error) {
	symbol, err := normalize(symbol)
	if err != nil {
		return Quote{}, err
	}

	return cache.GetOrLoad(ctx, c.cfg.Cache, "yahoo:quote:"+symbol, c.cfg.QuoteTTL, func(ctx context.Context) (Quote, error) {
		res, err := c.chartData(ctx, symbol, "5d", "1d")
		if err != nil {
			return Quote{}, err
		}
		m := res.Meta

		prev := m.PreviousClose
		if prev == 0 {
			prev = m.ChartPreviousClose
		}
		price := decimal.NewFromFloat(m.RegularMarketPrice)
		prevClose := decimal.NewFromFloat(prev)
		change := price.Sub(prevClose)
		pct := decimal.Zero
		if !prevClose.IsZero() {
			pct = change.Div(prevClose).Mul(decimal.NewFromInt(100)).Round(2)
		}

		name := m.LongName
		if name == "" {
			name = m.ShortName
		}

		return Quote{
			Symbol:           m.Symbol,
			Name:             name,
			Currency:         m.Currency,
			Exchange:         m.ExchangeName,
			Price:            price,
			PreviousClose:    prevClose,
			Change:           change,
			ChangePercent:    pct,
			DayHigh:          decimal.NewFromFloat(m.RegularMarketDayHigh),
			DayLow:           decimal.NewFromFloat(m.RegularMarketDayLow),
			FiftyTwoWeekHigh: decimal.NewFromFloat(m.FiftyTwoWeekHigh),
			FiftyTwoWeekLow:  decimal.NewFromFloat(m.FiftyTwoWeekLow),
			Volume:           m.RegularMarketVolume,
			MarketTime:       time.Unix(m.RegularMarketTime, 0).UTC(),
		}, nil
	})
}

var validPeriods = map[string]bool{
	"1d": true, "5d": true, "1mo": true, "3mo": true, "6mo": true,
	"1y": true, "2y": true, "5y": true, "10y": true, "ytd": true, "max": true,
}

var validIntervals = map[string]bool{
	"1m": true, "2m": true, "5m": true, "15m": true, "30m": true, "60m": true, "90m": true,
	"1h": true, "1d": true, "5d": true, "1wk": true, "1mo": true, "3mo": true,
}

// History returns candles for a period ("1mo", "1y", ...) at an interval ("1d", "1wk", ...).
// Candles with missing prices are dropped.
func (c *Client) History(ctx context.Context, symbol, period, interval string) ([]Bar, error) {
	symbol, err := normalize(symbol)
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = "1mo"
	}
	if interval == "" {
		interval = "1d"
	}
	if !validPeriods[period] {
		return nil, errors.NewValidationError("period", "unsupported period", period)
	}
	if !validIntervals[interval] {
		return nil, errors.NewValidationError("interval", "unsupported interval", interval)
	}

	key := fmt.Sprintf("yahoo:history:%s:%s:%s", symbol, period, interval)
	return cache.GetOrLoad(ctx, c.cfg.Cache, key, c.cfg.QuoteTTL, func(ctx context.Context) ([]Bar, error) {
		res, err := c.chartData(ctx, symbol, period, interval)
		if err != nil {
			return nil, err
		}
		if len(res.Indicators.Quote) == 0 {
			return nil, nil
		}
		q := res.Indicators.Quote[0]

		bars := make([]Bar, 0, len(res.Timestamp))
		for i, ts := range res.Timestamp {
			closePrice := at(q.Close, i)
			if closePrice == nil {
				continue
			}
			bar := Bar{Time: time.Unix(ts, 0).UTC(), Close: *closePrice}
			if v := at(q.Open, i); v != nil {
				bar.Open = *v
			}
			if v := at(q.High, i); v != nil {
				bar.High = *v
			}
			if v := at(q.Low, i); v != nil {
				bar.Low = *v
			}
			if v := at(q.Volume, i); v != nil {
				bar.Volume = *v
			}
			bars = append(bars, bar)
		}
		return bars, nil
	})
}

func at[T any](xs []*T, i int) *T {
	if i < len(xs) {
		return xs[i]
	}
	return nil
}

// ensureCrumb fetches the session cookie and crumb quoteSummary requires
func (c *Client) ensureCrumb(ctx context.Context, refresh bool) (string, error) {
	c.crumbMu.Lock()
	defer c.crumbMu.Unlock()

	if c.crumb != "" && !refresh {
		return c.crumb, nil
	}

	c.log.Debugw("Fetching Yahoo crumb", "refresh", refresh)

	// fc.yahoo.com answers 404 but sets the A3 cookie
	_, _ = c.query.R().SetContext(ctx).Get(c.cfg.CookieURL)

	resp, err := c.do(ctx, "crumb", c.query.R(), "/v1/test/getcrumb")
	if err != nil {
		return "", err
	}
	crumb := strings.TrimSpace(resp.String())
	if crumb == "" || strings.Contains(crumb, "<") {
		return "", errors.Wrap(errors.ErrExternal, "yahoo returned an invalid crumb")
	}
	c.crumb = crumb
	return crumb, nil
}

func (c *Client) summary(ctx context.Context, symbol string, modules ...string) (*quoteSummaryResult, error) {
	fetch := func(refresh bool) (*quoteSummaryResult, error) {
		crumb, err := c.ensureCrumb(ctx, refresh)
		if err != nil {
			return nil, err
		}
		var out quoteSummaryResponse
		req := c.query.R().
			SetQueryParams(map[string]string{"modules": strings.Join(modules, ","), "crumb": crumb}).
			SetResult(&out)
		if _, err := c.do(ctx, "quote_summary", req, "/v10/finance/quoteSummary/"+symbol); err != nil {
			return nil, err
		}
		if out.QuoteSummary.Error != nil || len(out.QuoteSummary.Result) == 0 {
			return nil, errors.Wrapf(errors.ErrNotFound, "no summary for %s", symbol)
		}
		return &out.QuoteSummary.Result[0], nil
	}

	res, err := fetch(false)
	if errors.Is(err, errors.ErrUnauthorized) {
		// crumbs expire with the cookie; fetch a new pair once
		res, err = fetch(true)
	}
	return res, err
}

// Fundamentals returns valuation metrics and the analyst consensus
func (c *Client) Fundamentals(ctx context.Context, symbol string) (Fundamentals, error) {
	symbol, err := normalize(symbol)
	if err != nil {
		return Fundamentals{}, err
	}

	return cache.GetOrLoad(ctx, c.cfg.Cache, "yahoo:fundamentals:"+symbol, c.cfg.FundamentalsTTL, func(ctx context.Context) (Fundamentals, error) {
		r, err := c.summary(ctx, symbol, "price", "summaryDetail", "defaultKeyStatistics", "financialData", "assetProfile")
		if err != nil {
			return Fundamentals{}, err
		}

		name := r.Price.LongName
		if name == "" {
			name = r.Price.ShortName
		}
		return Fundamentals{
			Symbol:           symbol,
			Name:             name,
			Sector:           r.AssetProfile.Sector,
			Industry:         r.AssetProfile.Industry,
			Currency:         r.Price.Currency,
			MarketCap:        r.Price.MarketCap.Raw,
			TrailingPE:       r.SummaryDetail.TrailingPE.Raw,
			ForwardPE:        r.SummaryDetail.ForwardPE.Raw,
			EPS:              r.DefaultKeyStatistics.TrailingEps.Raw,
			PriceToBook:      r.DefaultKeyStatistics.PriceToBook.Raw,
			DividendYield:    r.SummaryDetail.DividendYield.Raw,
			Beta:             r.SummaryDetail.Beta.Raw,
			ProfitMargin:     r.FinancialData.ProfitMargins.Raw,
			RevenueGrowth:    r.FinancialData.RevenueGrowth.Raw,
			FiftyTwoWeekHigh: r.SummaryDetail.FiftyTwoWeekHigh.Raw,
			FiftyTwoWeekLow:  r.SummaryDetail.FiftyTwoWeekLow.Raw,
			TargetMeanPrice:  r.FinancialData.TargetMeanPrice.Raw,
			Recommendation:   r.FinancialData.RecommendationKey,
		}, nil
	})
}

// Recommendations returns analyst rating counts, current month first
func (c *Client) Recommendations(ctx context.Context, symbol string) ([]RecommendationTrend, error) {
	symbol, err := normalize(symbol)
	if err != nil {
		return nil, err
	}

	return cache.GetOrLoad(ctx, c.cfg.Cache, "yahoo:recommendations:"+symbol, c.cfg.FundamentalsTTL, func(ctx context.Context) ([]RecommendationTrend, error) {
		r, err := c.summary(ctx, symbol, "recommendationTrend")
		if err != nil {
			return nil, err
		}
		out := make([]RecommendationTrend, 0, len(r.RecommendationTrend.Trend))
		for _, t := range r.RecommendationTrend.Trend {
			out = append(out, RecommendationTrend{
				Period:     t.Period,
				StrongBuy:  t.StrongBuy,
				Buy:        t.Buy,
				Hold:       t.Hold,
				Sell:       t.Sell,
				StrongSell: t.StrongSell,
			})
		}
		return out, nil
	})
}

// Profile returns the company description
func (c *Client) Profile(ctx context.Context, symbol string) (Profile, error) {
	symbol, err := normalize(symbol)
	if err != nil {
		return Profile{}, err
	}

	return cache.GetOrLoad(ctx, c.cfg.Cache, "yahoo:profile:"+symbol, c.cfg.FundamentalsTTL, func(ctx context.Context) (Profile, error) {
		r, err := c.summary(ctx, symbol, "price", "assetProfile")
		if err != nil {
			return Profile{}, err
		}
		name := r.Price.LongName
		if name == "" {
			name = r.Price.ShortName
		}
		return Profile{
			Symbol:    symbol,
			Name:      name,
			Sector:    r.AssetProfile.Sector,
			Industry:  r.AssetProfile.Industry,
			Website:   r.AssetProfile.Website,
			Country:   r.AssetProfile.Country,
			City:      r.AssetProfile.City,
			Employees: r.AssetProfile.FullTimeEmployees,
			Summary:   r.AssetProfile.LongBusinessSummary,
		}, nil
	})
}

// News returns recent headlines for symbol
func (c *Client) News(ctx context.Context, symbol string, count int) ([]NewsItem, error) {
	symbol, err := normalize(symbol)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 10
	}

	key := fmt.Sprintf("yahoo:news:%s:%d", symbol, count)
	return cache.GetOrLoad(ctx, c.cfg.Cache, key, c.cfg.QuoteTTL, func(ctx context.Context) ([]NewsItem, error) {
		var out searchResponse
		req := c.query.R().
			SetQueryParams(map[string]string{
				"q":           symbol,
				"newsCount":   fmt.Sprint(count),
				"quotesCount": "0",
			}).
			SetResult(&out)
		if _, err := c.do(ctx, "search", req, "/v1/finance/search"); err != nil {
			return nil, err
		}

		items := make([]NewsItem, 0, len(out.News))
		for _, n := range out.News {
			items = append(items, NewsItem{
				Title:       n.Title,
				Publisher:   n.Publisher,
				Link:        n.Link,
				PublishedAt: time.Unix(n.ProviderPublishTime, 0).UTC(),
			})
		}
		return items, nil
	})
}
