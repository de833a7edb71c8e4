package chromem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/internal/domain/knowledge"
)

func chunk(source, content string, vec ...float32) knowledge.Chunk {
	return knowledge.Chunk{
		Name:        source,
		Source:      source,
		DocumentID:  source,
		Content:     content,
		ContentHash: knowledge.ContentHash(source, content),
		Metadata:    map[string]string{"ticker": "AAPL"},
		Embedding:   vec,
	}
}

func TestKnowledgeStoreUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewKnowledgeStore()

	chunks := []knowledge.Chunk{
		chunk("a.txt", "revenue grew", 1, 0, 0),
		chunk("a.txt", "risk factors", 0, 1, 0),
	}

	n, err := s.Upsert(ctx, "filings", chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Upsert(ctx, "filings", chunks)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	count, err := s.Count(ctx, "filings")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	found, err := s.HasHashes(ctx, "filings", []string{chunks[0].ContentHash, "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{chunks[0].ContentHash: true}, found)
}

func TestKnowledgeStoreSearch(t *testing.T) {
	ctx := context.Background()
	s := NewKnowledgeStore()

	_, err := s.Upsert(ctx, "filings", []knowledge.Chunk{
		chunk("a.txt", "revenue grew", 1, 0, 0),
		chunk("b.txt", "risk factors", 0, 1, 0),
	})
	require.NoError(t, err)

	// limit above collection size is clamped
	results, err := s.Search(ctx, "filings", "revenue", []float32{0.9, 0.1, 0}, 10, knowledge.SearchHybrid)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "revenue grew", results[0].Chunk.Content)
	assert.Equal(t, "a.txt", results[0].Chunk.Source)
	assert.Equal(t, "AAPL", results[0].Chunk.Metadata["ticker"])
	assert.Greater(t, results[0].Score, results[1].Score)

	empty, err := s.Search(ctx, "other", "q", []float32{1, 0, 0}, 3, knowledge.SearchVector)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestKnowledgeStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewKnowledgeStore()

	_, err := s.Upsert(ctx, "filings", []knowledge.Chunk{
		chunk("a.txt", "one", 1, 0),
		chunk("b.txt", "two", 0, 1),
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteBySource(ctx, "filings", "a.txt"))
	count, _ := s.Count(ctx, "filings")
	assert.Equal(t, 1, count)

	require.NoError(t, s.Drop(ctx, "filings"))
	exists, err := s.Exists(ctx, "filings")
	require.NoError(t, err)
	assert.False(t, exists)
}
