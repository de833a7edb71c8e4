package filings

import (
	"time"

	"google.golang.org/adk/tool"

	"finvisor/internal/tools/shared"
	"finvisor/pkg/errors"
)

// SymbolArgs selects a company
type SymbolArgs struct {
	Symbol string `json:"symbol" jsonschema:"Stock ticker symbol, e.g. AAPL"`
}

// KnowledgeArgs is a query over the Finnhub filings knowledge base
type KnowledgeArgs struct {
	Query string `json:"query" jsonschema:"What to look for in the filings knowledge base"`
}

// NewFetchFilingsTool downloads the latest Finnhub filings into the knowledge base
func NewFetchFilingsTool(deps shared.Deps) (tool.Tool, error) {
	return fetchFilings(deps).Build()
}

func fetchFilings(deps shared.Deps) *shared.ToolBuilder[SymbolArgs] {
	return shared.NewToolBuilder(
		"fetch_filings",
		"Fetch recent SEC filings from Finnhub and store them in the knowledge base",
		func(ctx tool.Context, args SymbolArgs) (map[string]any, error) {
			if deps.Finnhub == nil {
				return nil, errors.Wrapf(errors.ErrUnavailable, "Finnhub filings service not configured")
			}

			result, err := deps.Finnhub.FetchFilings(ctx, args.Symbol)
			if err != nil {
				return nil, err
			}
			return shared.Result(result.Message()), nil
		},
		deps,
	).
		WithTimeout(5*time.Minute).
		WithStats().
		WithErrorMessage("Error fetching filings")
}

// NewSearchKnowledgeTool searches the Finnhub filings knowledge base
func NewSearchKnowledgeTool(deps shared.Deps) (tool.Tool, error) {
	return searchKnowledge(deps).Build()
}

func searchKnowledge(deps shared.Deps) *shared.ToolBuilder[KnowledgeArgs] {
	return shared.NewToolBuilder(
		"search_knowledge",
		"Search the filings knowledge base for passages relevant to a query. Use focused queries and search again with different wording when results are thin.",
		func(ctx tool.Context, args KnowledgeArgs) (map[string]any, error) {
			if deps.Finnhub == nil {
				return nil, errors.Wrapf(errors.ErrUnavailable, "Finnhub filings service not configured")
			}

			results, err := deps.Finnhub.SearchKnowledge(ctx, args.Query, searchLimit(0))
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
		WithErrorMessage("Error searching knowledge")
}
