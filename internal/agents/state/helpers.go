package state

import (
	"time"

	"google.golang.org/adk/session"
)

// State key prefixes (from ADK)
const (
	KeyPrefixApp  = "app:"  // Application-level (shared across all users)
	KeyPrefixUser = "user:" // User-level (shared across user's sessions)
	KeyPrefixTemp = "temp:" // Temporary (not persisted)
)

// ========================================
// User-Level State (shared across user's sessions)
// ========================================

// SetUserLastActivity records when the user last talked to an agent
func SetUserLastActivity(state session.State, t time.Time) error {
	return state.Set(KeyPrefixUser+"last_activity", t.UTC().Format(time.RFC3339))
}

// GetUserLastActivity returns the last activity time, zero when unknown
func GetUserLastActivity(state session.ReadonlyState) (time.Time, error) {
	val, err := state.Get(KeyPrefixUser + "last_activity")
	if err != nil {
		return time.Time{}, nil
	}
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case string:
		return time.Parse(time.RFC3339, v)
	}
	return time.Time{}, nil
}

// SetUserRunCount stores how many runs the user made
func SetUserRunCount(state session.State, n int) error {
	return state.Set(KeyPrefixUser+"run_count", n)
}

// GetUserRunCount returns the stored run count, 0 when unset
func GetUserRunCount(state session.ReadonlyState) int {
	val, err := state.Get(KeyPrefixUser + "run_count")
	if err != nil {
		return 0
	}
	return toInt(val)
}

// ========================================
// Temporary State (not persisted to database)
// ========================================

// IncrementToolCallCount counts tool calls of the current invocation
func IncrementToolCallCount(state session.State) error {
	count := GetToolCallCount(state)
	return state.Set(KeyPrefixTemp+"tool_call_count", count+1)
}

// GetToolCallCount returns the tool calls counted so far
func GetToolCallCount(state session.ReadonlyState) int {
	val, err := state.Get(KeyPrefixTemp + "tool_call_count")
	if err != nil {
		return 0
	}
	return toInt(val)
}

// SetTempStartTime sets temporary execution start time
func SetTempStartTime(state session.State, t time.Time) error {
	return state.Set(KeyPrefixTemp+"start_time", t)
}

// GetTempStartTime gets temporary execution start time
func GetTempStartTime(state session.ReadonlyState) (time.Time, bool) {
	val, err := state.Get(KeyPrefixTemp + "start_time")
	if err != nil {
		return time.Time{}, false
	}
	t, ok := val.(time.Time)
	return t, ok
}

// AddTempTokens accumulates token counts of the current invocation
func AddTempTokens(state session.State, prompt, completion int) error {
	p, c := GetTempTokens(state)
	if err := state.Set(KeyPrefixTemp+"prompt_tokens", p+prompt); err != nil {
		return err
	}
	return state.Set(KeyPrefixTemp+"completion_tokens", c+completion)
}

// GetTempTokens retrieves temporary token counts
func GetTempTokens(state session.ReadonlyState) (promptTokens, completionTokens int) {
	if val, err := state.Get(KeyPrefixTemp + "prompt_tokens"); err == nil {
		promptTokens = toInt(val)
	}
	if val, err := state.Get(KeyPrefixTemp + "completion_tokens"); err == nil {
		completionTokens = toInt(val)
	}
	return promptTokens, completionTokens
}

// state round-trips through JSON when persisted, so numbers may come back as float64
func toInt(val any) int {
	switch v := val.(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
