package filings

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/internal/adapters/cache"
	"finvisor/internal/adapters/edgar"
	"finvisor/internal/adapters/finnhub"
	"finvisor/internal/domain/filing"
	kdomain "finvisor/internal/domain/knowledge"
	"finvisor/internal/knowledge"
	"finvisor/internal/repository/chromem"
	"finvisor/pkg/errors"
)

type hashEmbedder struct{}

func (hashEmbedder) vector(text string) []float32 {
	v := make([]float32, 32)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(w, ".,")))
		v[h.Sum32()%32]++
	}
	v[31] += 0.01
	return v
}

func (e hashEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e hashEmbedder) GenerateBatchEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func testFactory() knowledge.Factory {
	return knowledge.Factory{
		Store:      chromem.NewKnowledgeStore(),
		Embedder:   hashEmbedder{},
		Chunker:    knowledge.NewRuneChunker(200, 20),
		Collection: "sec_filings",
		SearchType: kdomain.SearchHybrid,
	}
}

type fakeDownloader struct {
	base  string
	docs  map[string]string
	err   error
	calls int
	mu    sync.Mutex
}

func (f *fakeDownloader) Dir(ticker, form string) string {
	return filepath.Join(f.base, edgar.FilingsDir, ticker, form)
}

func (f *fakeDownloader) Get(_ context.Context, form, ticker string, limit int) ([]edgar.Downloaded, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	var out []edgar.Downloaded
	for acc, text := range f.docs {
		path := filepath.Join(f.Dir(ticker, form), acc, "primary-document.htm")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte("<html><body><p>"+text+"</p></body></html>"), 0o644); err != nil {
			return nil, err
		}
		out = append(out, edgar.Downloaded{
			Filing: edgar.Filing{Ticker: ticker, Form: form, AccessionNumber: acc, FilingDate: "2024-11-01", CIK: 320193, PrimaryDocument: "a.htm"},
			Path:   path,
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type memoryIndex struct {
	mu      sync.Mutex
	filings map[string]*filing.IndexedFiling
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{filings: make(map[string]*filing.IndexedFiling)}
}

func (m *memoryIndex) Upsert(_ context.Context, f *filing.IndexedFiling) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filings[string(f.Provider)+"/"+f.AccessionNumber] = f
	return nil
}

func (m *memoryIndex) ListByTicker(_ context.Context, ticker, form string, _ int) ([]*filing.IndexedFiling, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*filing.IndexedFiling
	for _, f := range m.filings {
		if f.Ticker == ticker && (form == "" || f.FormType == form) {
			out = append(out, f)
		}
	}
	return out, nil
}

func TestServiceFetchAndSearch(t *testing.T) {
	base := t.TempDir()
	dl := &fakeDownloader{base: base, docs: map[string]string{
		"0001": "Net sales of iPhone increased during fiscal 2024.",
		"0002": "The Company depends on component suppliers in Asia.",
	}}
	index := newMemoryIndex()

	svc, err := NewService(Config{Downloader: dl, Knowledge: testFactory(), BaseDir: base, Index: index})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.SearchFilings(ctx, "iPhone", 5)
	assert.True(t, errors.Is(err, errors.ErrKnowledgeNotLoaded))

	res, err := svc.FetchAndStoreFilings(ctx, "aapl", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "Successfully stored 10-K filings for AAPL", res.Message())
	assert.Equal(t, 2, res.Stats.Documents)
	assert.Equal(t, 2, res.Stats.Chunks)

	results, err := svc.SearchFilings(ctx, "iPhone net sales", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Chunk.Content, "iPhone")
	assert.Equal(t, "AAPL", results[0].Chunk.Metadata["ticker"])

	indexed, err := svc.IndexedFilings(ctx, "AAPL", "10-K", 10)
	require.NoError(t, err)
	assert.Len(t, indexed, 2)

	// second fetch reuses stored chunks
	res, err = svc.FetchAndStoreFilings(ctx, "AAPL", "10-K", 3)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stats.Chunks)
	assert.Equal(t, 2, res.Stats.Skipped)
}

func TestServiceFetchError(t *testing.T) {
	dl := &fakeDownloader{base: t.TempDir(), err: errors.Wrap(errors.ErrNoFilings, "AAPL 10-K")}
	svc, err := NewService(Config{Downloader: dl, Knowledge: testFactory(), BaseDir: dl.base})
	require.NoError(t, err)

	_, err = svc.FetchAndStoreFilings(context.Background(), "AAPL", "10-K", 3)
	assert.True(t, errors.Is(err, errors.ErrNoFilings))

	_, err = svc.FetchAndStoreFilings(context.Background(), " ", "10-K", 3)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestWithLockWaitsForHolder(t *testing.T) {
	locker := cache.NewLocal()
	ctx := context.Background()

	release, err := locker.AcquireLock(ctx, "k", time.Minute)
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = release(ctx)
	}()

	ran := false
	require.NoError(t, withLock(ctx, locker, "k", time.Minute, func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)

	// lock released after fn
	rel, err := locker.AcquireLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	_ = rel(ctx)
}

func TestWithLockGivesUpOnCancel(t *testing.T) {
	locker := cache.NewLocal()
	_, err := locker.AcquireLock(context.Background(), "k", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = withLock(ctx, locker, "k", time.Minute, func() error { return nil })
	assert.True(t, errors.Is(err, errors.ErrLocked))
}

type fakeFinnhub struct {
	filings []finnhub.Filing
	bodies  map[string]string
}

func (f *fakeFinnhub) Filings(context.Context, string) ([]finnhub.Filing, error) {
	return f.filings, nil
}

func (f *fakeFinnhub) Fetch(_ context.Context, url string) ([]byte, error) {
	body, ok := f.bodies[url]
	if !ok {
		return nil, errors.Wrapf(errors.ErrExternal, "GET %s returned 404", url)
	}
	return []byte(body), nil
}

func TestFinnhubServiceFetchFilings(t *testing.T) {
	base := t.TempDir()
	api := &fakeFinnhub{
		filings: []finnhub.Filing{
			{AccessNumber: "a1", Form: "10-K", ReportURL: "https://x/a1"},
			{AccessNumber: "a2", Form: "10-Q", FormURL: "https://x/a2"},
			// no url
			{AccessNumber: "a3", Form: "8-K"},
			// download fails
			{AccessNumber: "a4", Form: "8-K", ReportURL: "https://x/404"},
			{AccessNumber: "a5", Form: "10-Q", ReportURL: "https://x/a5"},
			// beyond the first five
			{AccessNumber: "a6", Form: "10-Q", ReportURL: "https://x/a6"},
		},
		bodies: map[string]string{
			"https://x/a1": "Annual report: services revenue reached a record.",
			"https://x/a2": "<html><body><p>Quarterly report on wearables.</p></body></html>",
			"https://x/a5": "Quarterly report on Mac sales.",
			"https://x/a6": "never fetched",
		},
	}
	index := newMemoryIndex()

	svc, err := NewFinnhubService(FinnhubConfig{Client: api, Knowledge: testFactory(), BaseDir: base, Index: index})
	require.NoError(t, err)
	ctx := context.Background()

	res, err := svc.FetchFilings(ctx, "aapl")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, "Successfully added 3 filings for AAPL to the knowledge base.", res.Message())
	assert.FileExists(t, filepath.Join(base, "sec-edgar-filings", "AAPL", "a1.txt"))
	assert.NoFileExists(t, filepath.Join(base, "sec-edgar-filings", "AAPL", "a6.txt"))
	assert.Len(t, index.filings, 3)

	results, err := svc.SearchKnowledge(ctx, "wearables quarterly", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Chunk.Content, "wearables")
}

func TestFinnhubServiceNoFilings(t *testing.T) {
	svc, err := NewFinnhubService(FinnhubConfig{Client: &fakeFinnhub{}, Knowledge: testFactory(), BaseDir: t.TempDir()})
	require.NoError(t, err)

	res, err := svc.FetchFilings(context.Background(), "ZZZZ")
	require.NoError(t, err)
	assert.Equal(t, "No filings found for ZZZZ.", res.Message())

	_, err = svc.SearchKnowledge(context.Background(), "anything", 3)
	assert.True(t, errors.Is(err, errors.ErrKnowledgeNotLoaded))
}

func TestFinnhubServiceAllFilingsSkipped(t *testing.T) {
	base := t.TempDir()
	api := &fakeFinnhub{filings: []finnhub.Filing{
		{AccessNumber: "b1", Form: "10-K"},
		{AccessNumber: "b2", Form: "10-Q", ReportURL: "https://x/404"},
	}}

	svc, err := NewFinnhubService(FinnhubConfig{Client: api, Knowledge: testFactory(), BaseDir: base})
	require.NoError(t, err)

	res, err := svc.FetchFilings(context.Background(), "msft")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Found)
	assert.Equal(t, "Successfully added 0 filings for MSFT to the knowledge base.", res.Message())
	assert.NoDirExists(t, filepath.Join(base, edgar.FilingsDir, "MSFT"))

	_, err = svc.SearchKnowledge(context.Background(), "anything", 3)
	assert.True(t, errors.Is(err, errors.ErrKnowledgeNotLoaded))
}

func TestProvidersKeepSeparateKnowledge(t *testing.T) {
	base := t.TempDir()
	shared := testFactory()
	ctx := context.Background()

	fh, err := NewFinnhubService(FinnhubConfig{
		Client: &fakeFinnhub{
			filings: []finnhub.Filing{{AccessNumber: "c1", Form: "10-K", ReportURL: "https://x/c1"}},
			bodies:  map[string]string{"https://x/c1": "Annual report on cloud revenue."},
		},
		Knowledge: shared,
		BaseDir:   base,
	})
	require.NoError(t, err)
	_, err = fh.FetchFilings(ctx, "MSFT")
	require.NoError(t, err)

	sec, err := NewService(Config{Downloader: &fakeDownloader{base: base}, Knowledge: shared, BaseDir: base})
	require.NoError(t, err)
	_, err = sec.SearchFilings(ctx, "cloud revenue", 3)
	assert.True(t, errors.Is(err, errors.ErrKnowledgeNotLoaded), "finnhub chunks do not count as loaded EDGAR filings")

	// a restarted finnhub service finds its own stored chunks
	again, err := NewFinnhubService(FinnhubConfig{Client: &fakeFinnhub{}, Knowledge: shared, BaseDir: base})
	require.NoError(t, err)
	results, err := again.SearchKnowledge(ctx, "cloud revenue", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Chunk.Content, "cloud")
}
