package tools

import (
	"google.golang.org/adk/tool"

	"finvisor/internal/tools/filings"
	"finvisor/internal/tools/history"
	"finvisor/internal/tools/indicators"
	"finvisor/internal/tools/market"
	toolmemory "finvisor/internal/tools/memory"
	"finvisor/internal/tools/shared"
	"finvisor/internal/tools/web"
	"finvisor/pkg/errors"
)

type constructor func(shared.Deps) (tool.Tool, error)

// RegisterAllTools registers every tool whose dependencies are configured
func RegisterAllTools(registry *Registry, deps shared.Deps) error {
	log := deps.Logger().With("component", "tool_registration")

	// All tools use shared.NewToolBuilder() with built-in middleware:
	// - WithRetry(attempts, backoff) - retries transient failures
	// - WithTimeout(duration) - execution timeout enforcement
	// - WithStats() - Prometheus metrics and logging
	// - WithErrorMessage(prefix) - failure text shown to the agent

	groups := []struct {
		name    string
		enabled bool
		tools   []constructor
	}{
		{"market data", deps.Market != nil, []constructor{
			market.NewCurrentPriceTool,
			market.NewFundamentalsTool,
			market.NewAnalystRecommendationsTool,
			market.NewHistoricalPricesTool,
			market.NewCompanyInfoTool,
			market.NewCompanyNewsTool,
			indicators.NewTechnicalIndicatorsTool,
		}},
		{"news", deps.News != nil, []constructor{web.NewExaSearchTool}},
		{"web search", deps.Web != nil, []constructor{web.NewGoogleSearchTool}},
		{"articles", deps.Articles != nil, []constructor{web.NewReadArticleTool}},
		{"EDGAR filings", deps.SEC != nil, []constructor{
			filings.NewFetchAndStoreFilingsTool,
			filings.NewSearchFilingsTool,
		}},
		{"Finnhub knowledge", deps.Finnhub != nil, []constructor{
			filings.NewFetchFilingsTool,
			filings.NewThinkTool,
			filings.NewSearchKnowledgeTool,
			filings.NewAnalyzeTool,
		}},
		{"memory", deps.Memories != nil, []constructor{
			toolmemory.NewAddMemoryTool,
			toolmemory.NewSearchMemoriesTool,
			toolmemory.NewDeleteMemoryTool,
			toolmemory.NewClearMemoriesTool,
		}},
		{"history", deps.Sessions != nil, []constructor{history.NewChatHistoryTool}},
	}

	for _, g := range groups {
		if !g.enabled {
			log.Warnw("Skipping tools, dependency not configured", "group", g.name)
			continue
		}
		for _, build := range g.tools {
			t, err := build(deps)
			if err != nil {
				return errors.Wrapf(err, "register %s tools", g.name)
			}
			registry.Register(t)
		}
		log.Debugw("Registered tools", "group", g.name, "count", len(g.tools))
	}

	log.Infof("Tool registration complete: %d tools available", len(registry.List()))
	return nil
}
