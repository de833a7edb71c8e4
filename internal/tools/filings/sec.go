// Package filings exposes SEC filings ingestion and retrieval as agent tools.
package filings

import (
	"time"

	"google.golang.org/adk/tool"

	kdomain "finvisor/internal/domain/knowledge"
	"finvisor/internal/knowledge"
	"finvisor/internal/tools/shared"
	"finvisor/pkg/errors"
)

// NotLoadedMessage is returned by searches that run before any filings were stored
const NotLoadedMessage = "No filings loaded yet. Please fetch filings first."

// FetchArgs selects EDGAR filings to download
type FetchArgs struct {
	Ticker     string `json:"ticker" jsonschema:"Stock ticker symbol, e.g. AAPL"`
	FilingType string `json:"filing_type,omitempty" jsonschema:"SEC form type such as 10-K, 10-Q or 8-K. Default 10-K"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Number of most recent filings to download. Default 3"`
}

// SearchArgs is a query over stored filings
type SearchArgs struct {
	Query string `json:"query" jsonschema:"What to look for in the filings"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of passages. Default 5"`
}

// NewFetchAndStoreFilingsTool downloads EDGAR filings and loads them into the knowledge base
func NewFetchAndStoreFilingsTool(deps shared.Deps) (tool.Tool, error) {
	return fetchAndStore(deps).Build()
}

func fetchAndStore(deps shared.Deps) *shared.ToolBuilder[FetchArgs] {
	return shared.NewToolBuilder(
		"fetch_and_store_filings",
		"Download recent SEC EDGAR filings for a ticker and store them in the filings knowledge base so they can be searched.",
		func(ctx tool.Context, args FetchArgs) (map[string]any, error) {
			if deps.SEC == nil {
				return nil, errors.Wrapf(errors.ErrUnavailable, "EDGAR filings service not configured")
			}

			result, err := deps.SEC.FetchAndStoreFilings(ctx, args.Ticker, args.FilingType, args.Limit)
			if err != nil {
				return nil, err
			}
			return shared.Result(result.Message()), nil
		},
		deps,
	).
		WithTimeout(5*time.Minute).
		WithStats().
		WithErrorMessage("Error processing filings")
}

// NewSearchFilingsTool searches stored EDGAR filings with hybrid search
func NewSearchFilingsTool(deps shared.Deps) (tool.Tool, error) {
	return searchFilings(deps).Build()
}

func searchFilings(deps shared.Deps) *shared.ToolBuilder[SearchArgs] {
	return shared.NewToolBuilder(
		"search_filings",
		"Search stored SEC filings. Fetch the filings with fetch_and_store_filings first.",
		func(ctx tool.Context, args SearchArgs) (map[string]any, error) {
			if deps.SEC == nil {
				return nil, errors.Wrapf(errors.ErrUnavailable, "EDGAR filings service not configured")
			}

			results, err := deps.SEC.SearchFilings(ctx, args.Query, args.Limit)
			if errors.Is(err, errors.ErrKnowledgeNotLoaded) {
				return shared.Result(NotLoadedMessage), nil
			}
			if err != nil {
				return nil, err
			}
			return passages(args.Query, results), nil
		},
		deps,
	).
		WithTimeout(30*time.Second).
		WithRetry(2, 500*time.Millisecond).
		WithStats().
		WithErrorMessage("Error searching filings")
}

func passages(query string, results []kdomain.SearchResult) map[string]any {
	items := make([]map[string]any, 0, len(results))
	for _, r := range results {
		item := map[string]any{
			"name":    r.Chunk.Name,
			"content": r.Chunk.Content,
			"score":   r.Score,
		}
		if len(r.Chunk.Metadata) > 0 {
			item["metadata"] = r.Chunk.Metadata
		}
		items = append(items, item)
	}
	return map[string]any{"query": query, "results": items}
}

func searchLimit(limit int) int {
	if limit <= 0 {
		return knowledge.DefaultLimit
	}
	return limit
}
