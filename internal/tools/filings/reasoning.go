package filings

import (
	"strings"
	"time"

	"google.golang.org/adk/tool"

	"finvisor/internal/tools/shared"
	"finvisor/pkg/errors"
)

// Session state keys for the knowledge scratchpad
const (
	ThoughtsStateKey = "knowledge_thoughts"
	AnalysisStateKey = "knowledge_analysis"
)

// ThinkArgs is one reasoning step
type ThinkArgs struct {
	Thought string `json:"thought" jsonschema:"A thought to record: the plan, search terms to try or gaps in what was found"`
}

// AnalyzeArgs is one evaluation of retrieved passages
type AnalyzeArgs struct {
	Analysis string `json:"analysis" jsonschema:"Your evaluation of the search results: are they relevant and sufficient to answer the question"`
}

// NewThinkTool records a scratchpad entry in session state
func NewThinkTool(deps shared.Deps) (tool.Tool, error) {
	return think(deps).Build()
}

func think(deps shared.Deps) *shared.ToolBuilder[ThinkArgs] {
	return shared.NewToolBuilder(
		"think",
		"Use this tool as a scratchpad to reason about the question, refine your approach, brainstorm search terms or revise your plan before searching the knowledge base.",
		func(ctx tool.Context, args ThinkArgs) (map[string]any, error) {
			entries, err := appendEntry(ctx, ThoughtsStateKey, "thought", args.Thought)
			if err != nil {
				return nil, err
			}
			return map[string]any{"thoughts": entries}, nil
		},
		deps,
	).WithStats()
}

// NewAnalyzeTool records an evaluation of retrieved results in session state
func NewAnalyzeTool(deps shared.Deps) (tool.Tool, error) {
	return analyze(deps).Build()
}

func analyze(deps shared.Deps) *shared.ToolBuilder[AnalyzeArgs] {
	return shared.NewToolBuilder(
		"analyze",
		"Use this tool to evaluate whether the returned documents are correct and sufficient. If not, go back to thinking or searching.",
		func(ctx tool.Context, args AnalyzeArgs) (map[string]any, error) {
			entries, err := appendEntry(ctx, AnalysisStateKey, "analysis", args.Analysis)
			if err != nil {
				return nil, err
			}
			return map[string]any{"analysis": entries}, nil
		},
		deps,
	).WithStats()
}

// appendEntry adds a timestamped line to a list in session state and returns the whole list
func appendEntry(ctx tool.Context, key, field, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.NewValidationError(field, "must not be empty", text)
	}

	state := ctx.State()
	var entries []string
	if raw, err := state.Get(key); err == nil {
		entries = toStrings(raw)
	}

	entries = append(entries, time.Now().UTC().Format(time.TimeOnly)+" "+text)
	if err := state.Set(key, entries); err != nil {
		return nil, errors.Wrapf(err, "failed to record %s", field)
	}
	return entries, nil
}

// toStrings accepts both the in-memory form and the JSON-decoded form of a stored list
func toStrings(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
