package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/internal/domain/knowledge"
	"finvisor/internal/testsupport"
)

// oneHot builds a 1536-dim vector matching the knowledge_chunks column
func oneHot(i int) []float32 {
	v := make([]float32, 1536)
	v[i] = 1
	return v
}

func testChunk(source, content string, hot int) knowledge.Chunk {
	return knowledge.Chunk{
		DocumentID:  source,
		Name:        source,
		Source:      source,
		Content:     content,
		ContentHash: knowledge.ContentHash(source, content),
		Metadata:    map[string]string{"ticker": "AAPL"},
		Embedding:   oneHot(hot),
	}
}

func TestKnowledgeRepository_UpsertSkipsDuplicates(t *testing.T) {
	testDB := testsupport.NewTestPostgres(t)
	repo := NewKnowledgeRepository(testDB.Tx())
	ctx := context.Background()

	chunks := []knowledge.Chunk{
		testChunk("10k.txt", "Net sales increased due to iPhone revenue", 0),
		testChunk("10k.txt", "Risk factors include supply chain disruption", 1),
	}

	n, err := repo.Upsert(ctx, "test_filings", chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.Upsert(ctx, "test_filings", chunks)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	count, err := repo.Count(ctx, "test_filings")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	found, err := repo.HasHashes(ctx, "test_filings", []string{chunks[1].ContentHash, "nope"})
	require.NoError(t, err)
	assert.True(t, found[chunks[1].ContentHash])
	assert.False(t, found["nope"])
}

func TestKnowledgeRepository_Search(t *testing.T) {
	testDB := testsupport.NewTestPostgres(t)
	repo := NewKnowledgeRepository(testDB.Tx())
	ctx := context.Background()

	_, err := repo.Upsert(ctx, "test_filings", []knowledge.Chunk{
		testChunk("10k.txt", "Net sales increased due to iPhone revenue", 0),
		testChunk("10k.txt", "Risk factors include supply chain disruption", 1),
	})
	require.NoError(t, err)

	vector, err := repo.Search(ctx, "test_filings", "", oneHot(1), 1, knowledge.SearchVector)
	require.NoError(t, err)
	require.Len(t, vector, 1)
	assert.Contains(t, vector[0].Chunk.Content, "supply chain")
	assert.Equal(t, "AAPL", vector[0].Chunk.Metadata["ticker"])

	keyword, err := repo.Search(ctx, "test_filings", "iphone sales", nil, 5, knowledge.SearchKeyword)
	require.NoError(t, err)
	require.Len(t, keyword, 1)
	assert.Contains(t, keyword[0].Chunk.Content, "iPhone")

	hybrid, err := repo.Search(ctx, "test_filings", "supply chain", oneHot(1), 2, knowledge.SearchHybrid)
	require.NoError(t, err)
	require.NotEmpty(t, hybrid)
	assert.Contains(t, hybrid[0].Chunk.Content, "supply chain")
}

func TestKnowledgeRepository_DeleteAndDrop(t *testing.T) {
	testDB := testsupport.NewTestPostgres(t)
	repo := NewKnowledgeRepository(testDB.Tx())
	ctx := context.Background()

	_, err := repo.Upsert(ctx, "test_filings", []knowledge.Chunk{
		testChunk("a.txt", "alpha", 0),
		testChunk("b.txt", "beta", 1),
	})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteBySource(ctx, "test_filings", "a.txt"))
	count, err := repo.Count(ctx, "test_filings")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, repo.Drop(ctx, "test_filings"))
	exists, err := repo.Exists(ctx, "test_filings")
	require.NoError(t, err)
	assert.False(t, exists)
}
