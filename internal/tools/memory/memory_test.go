package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memorydomain "finvisor/internal/domain/memory"
	memrepo "finvisor/internal/repository/memory"
	"finvisor/internal/tools/shared"
	"finvisor/internal/tools/shared/sharedtest"
	"finvisor/pkg/logger"
)

type wordEmbedder struct{}

func (wordEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	words := []string{"nvda", "dividend", "name"}
	v := make([]float32, len(words)+1)
	v[len(words)] = 0.01
	for i, w := range words {
		if strings.Contains(strings.ToLower(text), w) {
			v[i] = 1
		}
	}
	return v, nil
}

func testDeps() shared.Deps {
	svc := memorydomain.NewService(memrepo.NewUserMemoryRepository(), wordEmbedder{})
	return shared.Deps{Memories: svc, Log: logger.Nop()}
}

func TestAddAndSearchScopedToUser(t *testing.T) {
	deps := testDeps()
	alice := sharedtest.NewToolContext(context.Background(), "alice", "s1")
	alice.Message = "I hold a lot of NVDA"
	bob := sharedtest.NewToolContext(context.Background(), "bob", "s2")

	out, err := addMemory(deps).Handler()(alice, AddArgs{Memory: "The user holds a large NVDA position", Topics: []string{"Portfolio"}})
	require.NoError(t, err)
	assert.Equal(t, "saved", out["status"])

	_, err = addMemory(deps).Handler()(alice, AddArgs{Memory: "The user's name is Alice", Topics: []string{"name"}})
	require.NoError(t, err)

	out, err = searchMemories(deps).Handler()(alice, SearchArgs{Query: "nvda exposure", Limit: 1})
	require.NoError(t, err)
	items := out["memories"].([]map[string]any)
	require.Len(t, items, 1)
	assert.Equal(t, "The user holds a large NVDA position", items[0]["memory"])
	assert.Equal(t, []string{"portfolio"}, items[0]["topics"])

	out, err = searchMemories(deps).Handler()(bob, SearchArgs{})
	require.NoError(t, err)
	assert.Equal(t, "No memories found for this user.", out["result"])
}

func TestDeleteAndClear(t *testing.T) {
	deps := testDeps()
	ctx := sharedtest.NewToolContext(context.Background(), "alice", "s1")

	out, err := addMemory(deps).Handler()(ctx, AddArgs{Memory: "Likes dividend stocks"})
	require.NoError(t, err)
	id := out["memory_id"].(string)

	out, err = deleteMemory(deps).Handler()(sharedtest.NewToolContext(context.Background(), "mallory", "s9"), DeleteArgs{MemoryID: id})
	require.NoError(t, err)
	assert.Contains(t, out["error"], "not found")

	out, err = deleteMemory(deps).Handler()(ctx, DeleteArgs{MemoryID: id})
	require.NoError(t, err)
	assert.Equal(t, "Memory deleted successfully", out["result"])

	out, err = deleteMemory(deps).Handler()(ctx, DeleteArgs{MemoryID: "not-a-uuid"})
	require.NoError(t, err)
	assert.Contains(t, out["error"], "memory_id")

	for _, text := range []string{"one dividend", "two nvda"} {
		_, err = addMemory(deps).Handler()(ctx, AddArgs{Memory: text})
		require.NoError(t, err)
	}

	out, err = clearMemories(deps).Handler()(ctx, ClearArgs{})
	require.NoError(t, err)
	assert.Contains(t, out["error"], "confirm")

	out, err = clearMemories(deps).Handler()(ctx, ClearArgs{Confirm: true})
	require.NoError(t, err)
	assert.Equal(t, "Cleared 2 memories", out["result"])
}

func TestMemoryToolsNeedUser(t *testing.T) {
	out, err := searchMemories(testDeps()).Handler()(sharedtest.NewToolContext(context.Background(), "", ""), SearchArgs{})
	require.NoError(t, err)
	assert.Contains(t, out["error"], "user_id")
}
