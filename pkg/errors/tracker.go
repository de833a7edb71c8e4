package errors

import (
	"context"
)

// Tracker reports errors to an external service such as Sentry
type Tracker interface {
	CaptureError(ctx context.Context, err error, tags map[string]string) error
	// Flush waits for queued events until ctx ends
	Flush(ctx context.Context) error
}

// Scope identifies the conversation an error happened in
type Scope struct {
	UserID    string
	SessionID string
	AgentID   string
	RunID     string
}

// Tags returns the non-empty fields keyed the way trackers expect
func (s Scope) Tags() map[string]string {
	tags := make(map[string]string, 4)
	for k, v := range map[string]string{
		"user_id":    s.UserID,
		"session_id": s.SessionID,
		"agent_id":   s.AgentID,
		"run_id":     s.RunID,
	} {
		if v != "" {
			tags[k] = v
		}
	}
	return tags
}

type scopeKey struct{}

// WithScope attaches s so captured errors carry the conversation ids
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFromContext returns the scope attached by WithScope
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}
