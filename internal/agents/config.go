package agents

import (
	"time"

	"finvisor/internal/tools"
	"finvisor/pkg/errors"
)

// Agent identifiers. Each agent is served as its own ADK app, so the id is also
// the app name its sessions are stored under.
const (
	AgentFinance        = "finance_agent"
	AgentFilingsAnalyst = "filings_analyst"
)

// AgentConfig captures runtime settings for an agent instance.
type AgentConfig struct {
	ID          string           `json:"agent_id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Template    string           `json:"-"`
	Categories  []tools.Category `json:"tool_categories"`

	// Markdown asks the model to format answers as markdown
	Markdown bool `json:"markdown"`
	// MemoriesInPrompt is how many stored user memories are listed in the instructions
	MemoriesInPrompt int `json:"-"`

	MaxToolCalls int           `json:"-"`
	Timeout      time.Duration `json:"-"`
}

// DefaultAgentConfigs lists the agents served by the playground.
var DefaultAgentConfigs = map[string]AgentConfig{
	AgentFinance: {
		ID:          AgentFinance,
		Name:        "Finance Agent",
		Description: "FinVisor, a seasoned Wall Street analyst who answers with live market data, news and SEC filings.",
		Template:    "agents/finance_agent",
		Categories: []tools.Category{
			tools.CategoryMarketData,
			tools.CategoryNews,
			tools.CategoryFilings,
			tools.CategoryMemory,
			tools.CategoryHistory,
		},
		Markdown:         true,
		MemoriesInPrompt: 5,
		MaxToolCalls:     25,
		Timeout:          3 * time.Minute,
	},
	AgentFilingsAnalyst: {
		ID:          AgentFilingsAnalyst,
		Name:        "Filings Analyst",
		Description: "Research analyst answering questions from a company's SEC filings.",
		Template:    "agents/filings_analyst",
		Categories: []tools.Category{
			tools.CategoryFilings,
			tools.CategoryKnowledge,
			tools.CategoryHistory,
		},
		Markdown:     true,
		MaxToolCalls: 30,
		Timeout:      5 * time.Minute,
	},
}

// agentOrder is the order agents are listed in
var agentOrder = []string{AgentFinance, AgentFilingsAnalyst}

// Catalog returns the agent configs in display order
func Catalog() []AgentConfig {
	out := make([]AgentConfig, 0, len(agentOrder))
	for _, id := range agentOrder {
		out = append(out, DefaultAgentConfigs[id])
	}
	return out
}

// LookupConfig returns the config of an agent id
func LookupConfig(id string) (AgentConfig, error) {
	cfg, ok := DefaultAgentConfigs[id]
	if !ok {
		return AgentConfig{}, errors.Wrapf(errors.ErrNotFound, "agent %s", id)
	}
	return cfg, nil
}
