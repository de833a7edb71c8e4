// Package memory lets the agent manage what it remembers about the current user.
package memory

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"google.golang.org/adk/tool"

	memorydomain "finvisor/internal/domain/memory"
	"finvisor/internal/tools/shared"
	"finvisor/pkg/errors"
)

// AddArgs is a new memory
type AddArgs struct {
	Memory string   `json:"memory" jsonschema:"A short fact about the user written in the third person, e.g. The user holds a large position in NVDA"`
	Topics []string `json:"topics,omitempty" jsonschema:"Short topic labels such as portfolio, risk tolerance, name"`
}

// SearchArgs is a recall query
type SearchArgs struct {
	Query string `json:"query,omitempty" jsonschema:"What to recall. Leave empty to list the most recent memories"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of memories. Default 10"`
}

// DeleteArgs identifies one memory
type DeleteArgs struct {
	MemoryID string `json:"memory_id" jsonschema:"ID of the memory to delete, as returned by search_memories"`
}

// ClearArgs confirms a full wipe
type ClearArgs struct {
	Confirm bool `json:"confirm" jsonschema:"Must be true. Only clear memories when the user explicitly asks to forget everything"`
}

func requireMemories(ctx tool.Context, deps shared.Deps) (string, error) {
	if deps.Memories == nil {
		return "", errors.Wrapf(errors.ErrUnavailable, "memory store not configured")
	}
	userID := shared.CurrentUser(ctx)
	if userID == "" {
		return "", errors.NewValidationError("user_id", "is required", userID)
	}
	return userID, nil
}

// NewAddMemoryTool stores a fact about the current user
func NewAddMemoryTool(deps shared.Deps) (tool.Tool, error) {
	return addMemory(deps).Build()
}

func addMemory(deps shared.Deps) *shared.ToolBuilder[AddArgs] {
	return shared.NewToolBuilder(
		"add_memory",
		"Remember a fact about the user (name, holdings, goals, preferences) for future conversations.",
		func(ctx tool.Context, args AddArgs) (map[string]any, error) {
			userID, err := requireMemories(ctx, deps)
			if err != nil {
				return nil, err
			}

			m, err := deps.Memories.Add(ctx, userID, args.Memory, args.Topics, shared.UserMessage(ctx))
			if err != nil {
				return nil, err
			}

			return map[string]any{
				"status":    "saved",
				"memory_id": m.ID.String(),
				"message":   "Memory added successfully",
			}, nil
		},
		deps,
	).
		WithTimeout(10*time.Second).
		WithRetry(2, 500*time.Millisecond).
		WithStats()
}

// NewSearchMemoriesTool recalls memories about the current user
func NewSearchMemoriesTool(deps shared.Deps) (tool.Tool, error) {
	return searchMemories(deps).Build()
}

func searchMemories(deps shared.Deps) *shared.ToolBuilder[SearchArgs] {
	return shared.NewToolBuilder(
		"search_memories",
		"Recall what you remember about the user. Returns the most related memories, or the newest ones when no query is given.",
		func(ctx tool.Context, args SearchArgs) (map[string]any, error) {
			userID, err := requireMemories(ctx, deps)
			if err != nil {
				return nil, err
			}

			found, err := deps.Memories.Search(ctx, userID, args.Query, args.Limit)
			if err != nil {
				return nil, err
			}
			if len(found) == 0 {
				return shared.Result("No memories found for this user."), nil
			}

			items := make([]map[string]any, 0, len(found))
			for _, m := range found {
				items = append(items, view(m))
			}
			return map[string]any{"memories": items}, nil
		},
		deps,
	).
		WithTimeout(10*time.Second).
		WithRetry(2, 500*time.Millisecond).
		WithStats()
}

func view(m *memorydomain.UserMemory) map[string]any {
	item := map[string]any{
		"memory_id": m.ID.String(),
		"memory":    m.Memory,
		"created":   humanize.Time(m.CreatedAt),
	}
	if len(m.Topics) > 0 {
		item["topics"] = m.Topics
	}
	if m.Score > 0 {
		item["relevance"] = fmt.Sprintf("%.2f", m.Score)
	}
	return item
}

// NewDeleteMemoryTool forgets one memory
func NewDeleteMemoryTool(deps shared.Deps) (tool.Tool, error) {
	return deleteMemory(deps).Build()
}

func deleteMemory(deps shared.Deps) *shared.ToolBuilder[DeleteArgs] {
	return shared.NewToolBuilder(
		"delete_memory",
		"Forget one memory about the user, e.g. when it is outdated or the user asks you to.",
		func(ctx tool.Context, args DeleteArgs) (map[string]any, error) {
			userID, err := requireMemories(ctx, deps)
			if err != nil {
				return nil, err
			}

			if err := deps.Memories.Delete(ctx, userID, args.MemoryID); err != nil {
				return nil, err
			}
			return shared.Result("Memory deleted successfully"), nil
		},
		deps,
	).
		WithTimeout(10*time.Second).
		WithStats()
}

// NewClearMemoriesTool forgets everything about the user
func NewClearMemoriesTool(deps shared.Deps) (tool.Tool, error) {
	return clearMemories(deps).Build()
}

func clearMemories(deps shared.Deps) *shared.ToolBuilder[ClearArgs] {
	return shared.NewToolBuilder(
		"clear_memories",
		"Forget everything you remember about the user. Only use when the user explicitly asks for it.",
		func(ctx tool.Context, args ClearArgs) (map[string]any, error) {
			userID, err := requireMemories(ctx, deps)
			if err != nil {
				return nil, err
			}
			if !args.Confirm {
				return nil, errors.NewValidationError("confirm", "must be true to clear memories", args.Confirm)
			}

			n, err := deps.Memories.Clear(ctx, userID)
			if err != nil {
				return nil, err
			}
			return shared.Result(fmt.Sprintf("Cleared %d memories", n)), nil
		},
		deps,
	).
		WithTimeout(10*time.Second).
		WithStats()
}
