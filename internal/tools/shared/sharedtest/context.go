// Package sharedtest provides a tool.Context for calling tool handlers in tests.
package sharedtest

import (
	"context"
	"iter"
	"maps"
	"sync"
	"time"

	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"
)

// ToolContext satisfies tool.Context for handler tests. Only identity, state and
// the context.Context methods are implemented; anything else panics.
type ToolContext struct {
	tool.Context

	ctx       context.Context
	userID    string
	sessionID string
	state     *State

	// Message is returned by UserContent when set
	Message string
}

// NewToolContext returns a context for userID and sessionID with empty state
func NewToolContext(ctx context.Context, userID, sessionID string) *ToolContext {
	return &ToolContext{
		ctx:       ctx,
		userID:    userID,
		sessionID: sessionID,
		state:     &State{values: map[string]any{}},
	}
}

func (c *ToolContext) Deadline() (time.Time, bool) { return c.ctx.Deadline() }
func (c *ToolContext) Done() <-chan struct{} { return c.ctx.Done() }
func (c *ToolContext) Err() error { return c.ctx.Err() }
func (c *ToolContext) Value(key any) any { return c.ctx.Value(key) }

func (c *ToolContext) UserID() string { return c.userID }
func (c *ToolContext) SessionID() string { return c.sessionID }
func (c *ToolContext) AppName() string { return "finvisor" }
func (c *ToolContext) AgentName() string { return "finance_agent" }
func (c *ToolContext) InvocationID() string { return "test-invocation" }
func (c *ToolContext) State() session.State { return c.state }

func (c *ToolContext) UserContent() *genai.Content {
	if c.Message == "" {
		return nil
	}
	return genai.NewContentFromText(c.Message, genai.RoleUser)
}

// StateValues returns a copy of everything written to session state
func (c *ToolContext) StateValues() map[string]any {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	return maps.Clone(c.state.values)
}

// State is a map-backed session.State
type State struct {
	mu     sync.Mutex
	values map[string]any
}

func (s *State) Get(key string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, session.ErrStateKeyNotExist
	}
	return v, nil
}

func (s *State) Set(key string, val any) error {
	s.mu.Lock()
	s.values[key] = val
	s.mu.Unlock()
	return nil
}

func (s *State) All() iter.Seq2[string, any] {
	s.mu.Lock()
	snapshot := maps.Clone(s.values)
	s.mu.Unlock()

	return func(yield func(string, any) bool) {
		for k, v := range snapshot {
			if !yield(k, v) {
				return
			}
		}
	}
}
