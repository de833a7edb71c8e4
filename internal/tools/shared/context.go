package shared

import (
	"context"
	"strings"

	"google.golang.org/adk/tool"
)

type contextKey struct{}

// InvocationMetadata captures request-scoped identifiers for tool telemetry.
type InvocationMetadata struct {
	UserID    string
	AgentID   string
	SessionID string
}

// WithInvocationMetadata injects tool invocation metadata into a context.
func WithInvocationMetadata(ctx context.Context, meta InvocationMetadata) context.Context {
	return context.WithValue(ctx, contextKey{}, meta)
}

// MetadataFromContext extracts invocation metadata if present.
func MetadataFromContext(ctx context.Context) (InvocationMetadata, bool) {
	meta, ok := ctx.Value(contextKey{}).(InvocationMetadata)
	return meta, ok
}

// CurrentUser resolves the invoking user: the ADK invocation first, then metadata
// injected by the runner.
func CurrentUser(ctx tool.Context) string {
	if id := ctx.UserID(); id != "" {
		return id
	}
	if meta, ok := MetadataFromContext(ctx); ok {
		return meta.UserID
	}
	return ""
}

// CurrentSession resolves the session the tool runs in
func CurrentSession(ctx tool.Context) string {
	if id := ctx.SessionID(); id != "" {
		return id
	}
	if meta, ok := MetadataFromContext(ctx); ok {
		return meta.SessionID
	}
	return ""
}

// CurrentApp resolves the application the session belongs to. Each agent is its own app.
func CurrentApp(ctx tool.Context, fallback string) string {
	if name := ctx.AppName(); name != "" {
		return name
	}
	if meta, ok := MetadataFromContext(ctx); ok && meta.AgentID != "" {
		return meta.AgentID
	}
	return fallback
}

// UserMessage returns the text of the user message that started the invocation
func UserMessage(ctx tool.Context) string {
	content := ctx.UserContent()
	if content == nil {
		return ""
	}

	var parts []string
	for _, p := range content.Parts {
		if p != nil && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}
