package edgar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/pkg/errors"
)

const userAgent = "Finvisor test@example.com"

type fakeSEC struct {
	*httptest.Server
	downloads  atomic.Int32
	tickerHits atomic.Int32
}

func newFakeSEC(t *testing.T) *fakeSEC {
	t.Helper()
	f := &fakeSEC{}
	mux := http.NewServeMux()

	mux.HandleFunc("/files/company_tickers.json", func(w http.ResponseWriter, r *http.Request) {
		f.tickerHits.Add(1)
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"0":{"cik_str":320193,"ticker":"AAPL","title":"Apple Inc."},"1":{"cik_str":789019,"ticker":"MSFT","title":"MICROSOFT CORP"}}`))
	})
	mux.HandleFunc("/submissions/CIK0000320193.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cik":"320193","name":"Apple Inc.","filings":{"recent":{
			"accessionNumber":["0000320193-24-000123","0000320193-24-000100","0000320193-23-000106","0000320193-22-000108"],
			"filingDate":["2024-11-01","2024-08-02","2023-11-03","2022-10-28"],
			"reportDate":["2024-09-28","2024-06-29","2023-09-30","2022-09-24"],
			"form":["10-K","10-Q","10-K","10-K/A"],
			"primaryDocument":["aapl-20240928.htm","aapl-20240629.htm","aapl-20230930.htm","aapl-20220924.htm"]}}}`))
	})
	mux.HandleFunc("/Archives/edgar/data/320193/", func(w http.ResponseWriter, r *http.Request) {
		f.downloads.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>" + r.URL.Path + "</p></body></html>"))
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func newTestClient(t *testing.T, srv *fakeSEC) *Client {
	t.Helper()
	c, err := NewClient(Config{UserAgent: userAgent, WWWURL: srv.URL, DataURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestClientCompany(t *testing.T) {
	srv := newFakeSEC(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	company, err := c.Company(ctx, "aapl")
	require.NoError(t, err)
	assert.Equal(t, int64(320193), company.CIK)
	assert.Equal(t, "0000320193", company.PaddedCIK())

	_, err = c.Company(ctx, "MSFT")
	require.NoError(t, err)

	_, err = c.Company(ctx, "ZZZZ")
	assert.True(t, errors.Is(err, errors.ErrUnknownTicker))
	assert.Equal(t, int32(1), srv.tickerHits.Load())
}

func TestClientRecentFilings(t *testing.T) {
	srv := newFakeSEC(t)
	c := newTestClient(t, srv)

	filings, err := c.RecentFilings(context.Background(), "AAPL", "10-k", 3)
	require.NoError(t, err)
	require.Len(t, filings, 2)
	assert.Equal(t, "0000320193-24-000123", filings[0].AccessionNumber)
	assert.Equal(t, "2024-11-01", filings[0].FilingDate)
	assert.Equal(t, "https://www.sec.gov/Archives/edgar/data/320193/000032019324000123/aapl-20240928.htm",
		filings[0].DocumentURL(DefaultWWWURL))

	amends, err := c.RecentFilings(context.Background(), "AAPL", "10-K/A", 3)
	require.NoError(t, err)
	assert.Len(t, amends, 1)
}

func TestNewClientRequiresUserAgent(t *testing.T) {
	_, err := NewClient(Config{})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestDownloaderGet(t *testing.T) {
	srv := newFakeSEC(t)
	base := t.TempDir()
	d := NewDownloader(newTestClient(t, srv), base)
	ctx := context.Background()

	got, err := d.Get(ctx, "10-K", "AAPL", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	want := filepath.Join(base, "sec-edgar-filings", "AAPL", "10-K", "0000320193-24-000123", "primary-document.htm")
	assert.Equal(t, want, got[0].Path)
	assert.False(t, got[0].Cached)

	body, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Contains(t, string(body), "/Archives/edgar/data/320193/000032019324000123/aapl-20240928.htm")

	again, err := d.Get(ctx, "10-K", "AAPL", 1)
	require.NoError(t, err)
	assert.True(t, again[0].Cached)
	assert.Equal(t, int32(1), srv.downloads.Load())
}

func TestDownloaderNoFilings(t *testing.T) {
	srv := newFakeSEC(t)
	d := NewDownloader(newTestClient(t, srv), t.TempDir())

	_, err := d.Get(context.Background(), "8-K", "AAPL", 3)
	assert.True(t, errors.Is(err, errors.ErrNoFilings))
}
