// Package web holds the news, search and article reading tools.
package web

import (
	"time"

	"google.golang.org/adk/tool"

	"finvisor/internal/tools/shared"
	"finvisor/pkg/errors"
)

// SearchArgs is a free text query
type SearchArgs struct {
	Query      string `json:"query" jsonschema:"Search query"`
	NumResults int    `json:"num_results,omitempty" jsonschema:"Number of results to return. Default 5"`
}

// ArticleArgs points at a web page
type ArticleArgs struct {
	URL string `json:"url" jsonschema:"Absolute http or https URL of the article"`
}

// NewExaSearchTool searches curated financial news sites
func NewExaSearchTool(deps shared.Deps) (tool.Tool, error) {
	return exaSearch(deps).Build()
}

func exaSearch(deps shared.Deps) *shared.ToolBuilder[SearchArgs] {
	return shared.NewToolBuilder(
		"search_exa",
		"Search recent financial news from Bloomberg, Reuters, WSJ, Investing.com and CNBC. Returns titles, links, dates and text excerpts.",
		func(ctx tool.Context, args SearchArgs) (map[string]any, error) {
			if deps.News == nil {
				return nil, errors.Wrapf(errors.ErrUnavailable, "news search not configured")
			}

			results, err := deps.News.Search(ctx, args.Query, args.NumResults)
			if err != nil {
				return nil, errors.Wrap(err, "search_exa")
			}

			items := make([]map[string]any, 0, len(results))
			for _, r := range results {
				items = append(items, map[string]any{
					"title":          r.Title,
					"url":            r.URL,
					"published_date": r.PublishedDate,
					"author":         r.Author,
					"text":           r.Text,
				})
			}
			return map[string]any{"query": args.Query, "results": items}, nil
		},
		deps,
	).
		WithTimeout(30*time.Second).
		WithRetry(2, time.Second).
		WithStats()
}

// NewGoogleSearchTool searches the web
func NewGoogleSearchTool(deps shared.Deps) (tool.Tool, error) {
	return webSearch(deps).Build()
}

func webSearch(deps shared.Deps) *shared.ToolBuilder[SearchArgs] {
	return shared.NewToolBuilder(
		"google_search",
		"Search the web for a query. Returns titles, links and snippets.",
		func(ctx tool.Context, args SearchArgs) (map[string]any, error) {
			if deps.Web == nil {
				return nil, errors.Wrapf(errors.ErrUnavailable, "web search not configured")
			}

			results, err := deps.Web.Search(ctx, args.Query, args.NumResults)
			if err != nil {
				return nil, errors.Wrap(err, "google_search")
			}

			items := make([]map[string]any, 0, len(results))
			for _, r := range results {
				items = append(items, map[string]any{
					"title":   r.Title,
					"url":     r.URL,
					"snippet": r.Snippet,
				})
			}
			return map[string]any{"query": args.Query, "results": items}, nil
		},
		deps,
	).
		WithTimeout(20*time.Second).
		WithRetry(2, time.Second).
		WithStats()
}

// NewReadArticleTool extracts the readable text of a page
func NewReadArticleTool(deps shared.Deps) (tool.Tool, error) {
	return readArticle(deps).Build()
}

func readArticle(deps shared.Deps) *shared.ToolBuilder[ArticleArgs] {
	return shared.NewToolBuilder(
		"read_article",
		"Read a news article or web page and return its title and main text.",
		func(ctx tool.Context, args ArticleArgs) (map[string]any, error) {
			if deps.Articles == nil {
				return nil, errors.Wrapf(errors.ErrUnavailable, "article reader not configured")
			}

			a, err := deps.Articles.Read(ctx, args.URL)
			if err != nil {
				return nil, errors.Wrap(err, "read_article")
			}

			return map[string]any{
				"url":       a.URL,
				"title":     a.Title,
				"text":      a.Text,
				"truncated": a.Truncated,
			}, nil
		},
		deps,
	).
		WithTimeout(30*time.Second).
		WithRetry(2, time.Second).
		WithStats()
}
