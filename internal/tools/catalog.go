package tools

// Category groups tools by the concern they cover
type Category string

const (
	CategoryMarketData Category = "market_data"
	CategoryNews       Category = "news"
	CategoryFilings    Category = "filings"
	CategoryKnowledge  Category = "knowledge"
	CategoryMemory     Category = "memory"
	CategoryHistory    Category = "history"
)

// Definition describes a tool's metadata for registration and documentation.
type Definition struct {
	Name        string
	Description string
	Category    Category
}

// toolDefinitions enumerates every tool in the order agents receive them.
var toolDefinitions = []Definition{
	{Name: "get_current_stock_price", Description: "Latest price, daily change and 52-week range", Category: CategoryMarketData},
	{Name: "get_stock_fundamentals", Description: "Market cap, P/E, EPS and other fundamentals", Category: CategoryMarketData},
	{Name: "get_analyst_recommendations", Description: "Analyst rating counts by month", Category: CategoryMarketData},
	{Name: "get_historical_stock_prices", Description: "OHLCV history for a period and interval", Category: CategoryMarketData},
	{Name: "get_company_info", Description: "Company profile and business summary", Category: CategoryMarketData},
	{Name: "get_company_news", Description: "Latest headlines for a ticker", Category: CategoryMarketData},
	{Name: "technical_indicators", Description: "SMA, EMA, RSI, MACD, Bollinger bands and ATR", Category: CategoryMarketData},

	{Name: "search_exa", Description: "Curated financial news search", Category: CategoryNews},
	{Name: "google_search", Description: "General web search", Category: CategoryNews},
	{Name: "read_article", Description: "Extract the main text of a web page", Category: CategoryNews},

	{Name: "fetch_and_store_filings", Description: "Download EDGAR filings into the knowledge base", Category: CategoryFilings},
	{Name: "search_filings", Description: "Hybrid search over stored EDGAR filings", Category: CategoryFilings},

	{Name: "fetch_filings", Description: "Download Finnhub filings into the knowledge base", Category: CategoryKnowledge},
	{Name: "think", Description: "Reasoning scratchpad kept in session state", Category: CategoryKnowledge},
	{Name: "search_knowledge", Description: "Search the Finnhub filings knowledge base", Category: CategoryKnowledge},
	{Name: "analyze", Description: "Evaluate retrieved passages", Category: CategoryKnowledge},

	{Name: "add_memory", Description: "Remember a fact about the user", Category: CategoryMemory},
	{Name: "search_memories", Description: "Recall facts about the user", Category: CategoryMemory},
	{Name: "delete_memory", Description: "Forget one fact about the user", Category: CategoryMemory},
	{Name: "clear_memories", Description: "Forget everything about the user", Category: CategoryMemory},

	{Name: "get_chat_history", Description: "Full history of the current conversation", Category: CategoryHistory},
}

// Definitions returns a copy of the tool catalog
func Definitions() []Definition {
	out := make([]Definition, len(toolDefinitions))
	copy(out, toolDefinitions)
	return out
}

// DefinitionsByCategory returns the catalog entries of one category
func DefinitionsByCategory(category Category) []Definition {
	var out []Definition
	for _, def := range toolDefinitions {
		if def.Category == category {
			out = append(out, def)
		}
	}
	return out
}
