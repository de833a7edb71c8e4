package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/internal/adapters/cache"
	"finvisor/internal/adapters/ratelimit"
	"finvisor/pkg/errors"
)

const chartJSON = `{"chart":{"result":[{
	"meta":{"symbol":"AAPL","currency":"USD","exchangeName":"NMS","longName":"Apple Inc.",
		"regularMarketPrice":210.5,"regularMarketTime":1718000000,"chartPreviousClose":200,
		"regularMarketDayHigh":212,"regularMarketDayLow":205,"regularMarketVolume":5000000,
		"fiftyTwoWeekHigh":230,"fiftyTwoWeekLow":160},
	"timestamp":[1717900000,1718000000,1718100000],
	"indicators":{"quote":[{
		"open":[199,201,null],"high":[202,213,null],"low":[198,205,null],
		"close":[200,210.5,null],"volume":[100,200,null]}]}}],"error":null}}`

const summaryJSON = `{"quoteSummary":{"result":[{
	"price":{"longName":"Apple Inc.","currency":"USD","marketCap":{"raw":3200000000000}},
	"summaryDetail":{"trailingPE":{"raw":32.1},"forwardPE":{},"beta":{"raw":1.2}},
	"defaultKeyStatistics":{"trailingEps":{"raw":6.5}},
	"financialData":{"recommendationKey":"buy","targetMeanPrice":{"raw":240}},
	"assetProfile":{"sector":"Technology","industry":"Consumer Electronics","fullTimeEmployees":161000,
		"longBusinessSummary":"Apple designs smartphones."},
	"recommendationTrend":{"trend":[{"period":"0m","strongBuy":10,"buy":20,"hold":5,"sell":1,"strongSell":0}]}
}],"error":null}}`

type fakeYahoo struct {
	*httptest.Server
	chartCalls atomic.Int32
	crumbCalls atomic.Int32
	expired    atomic.Bool
}

func newFakeYahoo(t *testing.T) *fakeYahoo {
	f := &fakeYahoo{}
	mux := http.NewServeMux()
	mux.HandleFunc("/cookie", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "A3", Value: "session", Path: "/"})
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/v1/test/getcrumb", func(w http.ResponseWriter, r *http.Request) {
		f.crumbCalls.Add(1)
		_, _ = w.Write([]byte("abc123"))
	})
	mux.HandleFunc("/v8/finance/chart/", func(w http.ResponseWriter, r *http.Request) {
		f.chartCalls.Add(1)
		if r.URL.Path != "/v8/finance/chart/AAPL" {
			_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
			return
		}
		_, _ = w.Write([]byte(chartJSON))
	})
	mux.HandleFunc("/v10/finance/quoteSummary/AAPL", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("crumb") != "abc123" || f.expired.Swap(false) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(summaryJSON))
	})
	mux.HandleFunc("/v1/finance/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL", r.URL.Query().Get("q"))
		assert.Equal(t, "0", r.URL.Query().Get("quotesCount"))
		_, _ = w.Write([]byte(`{"news":[{"title":"Apple ships","publisher":"Reuters","link":"https://x/1","providerPublishTime":1718000000}]}`))
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeYahoo) client(c cache.Cache) *Client {
	return NewClient(Config{
		ChartURL:  f.URL,
		QueryURL:  f.URL,
		CookieURL: f.URL + "/cookie",
		Limiter:   ratelimit.NewLimiter("yahoo-test", 1000, 100),
		Cache:     c,
	})
}

func TestQuote(t *testing.T) {
	f := newFakeYahoo(t)
	c := f.client(nil)

	q, err := c.Quote(context.Background(), " aapl ")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, "Apple Inc.", q.Name)
	assert.Equal(t, "210.5", q.Price.String())
	assert.Equal(t, "10.5", q.Change.String())
	assert.Equal(t, "5.25", q.ChangePercent.String())
	assert.Equal(t, int64(5000000), q.Volume)
}

func TestQuoteIsCached(t *testing.T) {
	f := newFakeYahoo(t)
	c := f.client(cache.NewLocal())

	for i := 0; i < 3; i++ {
		_, err := c.Quote(context.Background(), "AAPL")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.chartCalls.Load())
}

func TestQuoteUnknownSymbol(t *testing.T) {
	f := newFakeYahoo(t)

	_, err := f.client(nil).Quote(context.Background(), "NOPE")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = f.client(nil).Quote(context.Background(), "  ")
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestHistorySkipsMissingBars(t *testing.T) {
	f := newFakeYahoo(t)

	bars, err := f.client(nil).History(context.Background(), "AAPL", "", "")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 210.5, bars[1].Close)
	assert.Equal(t, 213.0, bars[1].High)
	assert.Equal(t, int64(200), bars[1].Volume)

	_, err = f.client(nil).History(context.Background(), "AAPL", "7y", "1d")
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestFundamentalsRefreshesCrumb(t *testing.T) {
	f := newFakeYahoo(t)
	c := f.client(nil)

	fund, err := c.Fundamentals(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Technology", fund.Sector)
	require.NotNil(t, fund.TrailingPE)
	assert.Equal(t, 32.1, *fund.TrailingPE)
	assert.Nil(t, fund.ForwardPE)
	assert.Equal(t, "buy", fund.Recommendation)
	assert.Equal(t, int32(1), f.crumbCalls.Load())

	f.expired.Store(true)
	_, err = c.Profile(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.crumbCalls.Load())
}

func TestRecommendationsAndProfile(t *testing.T) {
	f := newFakeYahoo(t)
	c := f.client(nil)

	recs, err := c.Recommendations(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, RecommendationTrend{Period: "0m", StrongBuy: 10, Buy: 20, Hold: 5, Sell: 1}, recs[0])

	p, err := c.Profile(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 161000, p.Employees)
	assert.Equal(t, "Apple designs smartphones.", p.Summary)
}

func TestNews(t *testing.T) {
	f := newFakeYahoo(t)

	news, err := f.client(nil).News(context.Background(), "AAPL", 5)
	require.NoError(t, err)
	require.Len(t, news, 1)
	assert.Equal(t, "Reuters", news[0].Publisher)
	assert.Equal(t, int64(1718000000), news[0].PublishedAt.Unix())
}
