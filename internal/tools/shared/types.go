package shared

import "google.golang.org/adk/tool"

// ToolFunc is the typed handler behind a tool. The argument struct defines the
// JSON schema the model sees.
type ToolFunc[T any] func(ctx tool.Context, args T) (map[string]any, error)

// Result wraps a plain text answer the way the agent expects it
func Result(text string) map[string]any {
	return map[string]any{"result": text}
}
