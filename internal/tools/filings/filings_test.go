package filings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kdomain "finvisor/internal/domain/knowledge"
	filingsvc "finvisor/internal/services/filings"
	"finvisor/internal/tools/shared"
	"finvisor/internal/tools/shared/sharedtest"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

type fakeSEC struct {
	loaded   bool
	fetchErr error
	gotLimit int
}

func (f *fakeSEC) FetchAndStoreFilings(_ context.Context, ticker, filingType string, _ int) (*filingsvc.FetchResult, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if filingType == "" {
		filingType = "10-K"
	}
	f.loaded = true
	return &filingsvc.FetchResult{Ticker: ticker, FilingType: filingType}, nil
}

func (f *fakeSEC) SearchFilings(_ context.Context, query string, limit int) ([]kdomain.SearchResult, error) {
	f.gotLimit = limit
	if !f.loaded {
		return nil, errors.ErrKnowledgeNotLoaded
	}
	return []kdomain.SearchResult{{
		Chunk: kdomain.Chunk{Name: "primary-document", Content: "Revenue grew 8%", Metadata: map[string]string{"ticker": "AAPL"}},
		Score: 0.03,
	}}, nil
}

type fakeFinnhub struct {
	found  int
	loaded bool
	err    error
}

func (f *fakeFinnhub) FetchFilings(_ context.Context, symbol string) (*filingsvc.FinnhubResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.loaded = f.found > 0
	return &filingsvc.FinnhubResult{Symbol: symbol, Found: f.found, Count: min(f.found, 5)}, nil
}

func (f *fakeFinnhub) SearchKnowledge(context.Context, string, int) ([]kdomain.SearchResult, error) {
	if !f.loaded {
		return nil, errors.ErrKnowledgeNotLoaded
	}
	return []kdomain.SearchResult{{Chunk: kdomain.Chunk{Name: "0000320193-24-000123", Content: "Risk factors"}, Score: 0.9}}, nil
}

func toolCtx() *sharedtest.ToolContext {
	return sharedtest.NewToolContext(context.Background(), "u1", "s1")
}

func TestSearchBeforeFetch(t *testing.T) {
	deps := shared.Deps{SEC: &fakeSEC{}, Log: logger.Nop()}

	out, err := searchFilings(deps).Handler()(toolCtx(), SearchArgs{Query: "revenue"})
	require.NoError(t, err)
	assert.Equal(t, "No filings loaded yet. Please fetch filings first.", out["result"])
}

func TestFetchThenSearch(t *testing.T) {
	sec := &fakeSEC{}
	deps := shared.Deps{SEC: sec, Log: logger.Nop()}

	out, err := fetchAndStore(deps).Handler()(toolCtx(), FetchArgs{Ticker: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, "Successfully stored 10-K filings for AAPL", out["result"])

	out, err = searchFilings(deps).Handler()(toolCtx(), SearchArgs{Query: "revenue"})
	require.NoError(t, err)
	results := out["results"].([]map[string]any)
	require.Len(t, results, 1)
	assert.Equal(t, "Revenue grew 8%", results[0]["content"])
	assert.Equal(t, 0, sec.gotLimit)
}

func TestFetchErrorIsStringified(t *testing.T) {
	deps := shared.Deps{SEC: &fakeSEC{fetchErr: errors.Wrap(errors.ErrUnknownTicker, "ZZZZ")}, Log: logger.Nop()}

	out, err := fetchAndStore(deps).Handler()(toolCtx(), FetchArgs{Ticker: "ZZZZ"})
	require.NoError(t, err)
	assert.Equal(t, "Error processing filings: ZZZZ: unknown ticker", out["result"])
}

func TestFinnhubFetchFilings(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeFinnhub
		want string
	}{
		{"stored", &fakeFinnhub{found: 7}, "Successfully added 5 filings for MSFT to the knowledge base."},
		{"none", &fakeFinnhub{}, "No filings found for MSFT."},
		{"error", &fakeFinnhub{err: errors.New("finnhub: 403")}, "Error fetching filings: finnhub: 403"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := shared.Deps{Finnhub: tt.fake, Log: logger.Nop()}
			out, err := fetchFilings(deps).Handler()(toolCtx(), SymbolArgs{Symbol: "MSFT"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out["result"])
		})
	}
}

func TestSearchKnowledge(t *testing.T) {
	fh := &fakeFinnhub{found: 2}
	deps := shared.Deps{Finnhub: fh, Log: logger.Nop()}
	h := searchKnowledge(deps).Handler()

	out, err := h(toolCtx(), KnowledgeArgs{Query: "risk"})
	require.NoError(t, err)
	assert.Equal(t, NotLoadedMessage, out["result"])

	_, err = fetchFilings(deps).Handler()(toolCtx(), SymbolArgs{Symbol: "MSFT"})
	require.NoError(t, err)

	out, err = h(toolCtx(), KnowledgeArgs{Query: "risk"})
	require.NoError(t, err)
	assert.Len(t, out["results"], 1)
}

func TestThinkAndAnalyzeUseSessionState(t *testing.T) {
	deps := shared.Deps{Log: logger.Nop()}
	ctx := toolCtx()

	_, err := think(deps).Handler()(ctx, ThinkArgs{Thought: "look for revenue by segment"})
	require.NoError(t, err)
	out, err := think(deps).Handler()(ctx, ThinkArgs{Thought: "then margins"})
	require.NoError(t, err)
	assert.Len(t, out["thoughts"], 2)

	out, err = analyze(deps).Handler()(ctx, AnalyzeArgs{Analysis: "segment table found"})
	require.NoError(t, err)
	assert.Len(t, out["analysis"], 1)

	state := ctx.StateValues()
	assert.Len(t, state[ThoughtsStateKey], 2)
	assert.Contains(t, state[AnalysisStateKey].([]string)[0], "segment table found")

	out, err = think(deps).Handler()(ctx, ThinkArgs{Thought: "  "})
	require.NoError(t, err)
	assert.Contains(t, out["error"], "thought")
}

func TestToStringsAcceptsDecodedJSON(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, toStrings([]any{"a", 1, "b"}))
	assert.Nil(t, toStrings("nope"))
}
