package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session is one conversation thread between a user and an agent app
type Session struct {
	ID        uuid.UUID
	AppName   string
	UserID    string
	SessionID string
	// Title is the first user message, filled by List only
	Title     string
	State     map[string]interface{}
	Events    []Event
	UpdatedAt time.Time
	CreatedAt time.Time
}

// Event is a persisted agent event (user message, model reply, tool call or response)
type Event struct {
	ID            uuid.UUID
	SessionID     uuid.UUID
	EventID       string
	InvocationID  string
	Author        string
	Content       map[string]interface{}
	Timestamp     time.Time
	Branch        string
	Partial       bool
	TurnComplete  bool
	Actions       EventActions
	UsageMetadata *UsageMetadata
}

// Role is "user" for user input and "model" for everything the agent produced
func (e Event) Role() string {
	if role, ok := e.Content["role"].(string); ok && role != "" {
		return role
	}
	if e.Author == "user" {
		return "user"
	}
	return "model"
}

// Text joins all text parts of the event content
func (e Event) Text() string {
	parts, ok := e.Content["parts"].([]interface{})
	if !ok {
		return ""
	}

	var sb strings.Builder
	for _, p := range parts {
		part, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		if thought, _ := part["thought"].(bool); thought {
			continue
		}
		if text, ok := part["text"].(string); ok {
			sb.WriteString(text)
		}
	}
	return sb.String()
}

// FunctionCalls returns the names of tools requested in this event
func (e Event) FunctionCalls() []string {
	parts, ok := e.Content["parts"].([]interface{})
	if !ok {
		return nil
	}

	var names []string
	for _, p := range parts {
		part, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		if call, ok := part["functionCall"].(map[string]interface{}); ok {
			if name, ok := call["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names
}

// EventActions contains actions that can be performed with an event
type EventActions struct {
	TransferToAgent   string
	Escalate          bool
	SkipSummarization bool
	StateDelta        map[string]interface{}
}

// UsageMetadata tracks token usage for an event
type UsageMetadata struct {
	PromptTokenCount     int32
	CandidatesTokenCount int32
	TotalTokenCount      int32
}

// AppState represents application-level state shared across all users
type AppState struct {
	AppName string
	State   map[string]interface{}
}

// UserState represents user-level state shared across all user's sessions
type UserState struct {
	AppName string
	UserID  string
	State   map[string]interface{}
}

// State key prefixes, matching the agent runtime conventions
const (
	KeyPrefixApp  = "app:"
	KeyPrefixUser = "user:"
	KeyPrefixTemp = "temp:"
)
