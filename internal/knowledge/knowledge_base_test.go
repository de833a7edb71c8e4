package knowledge

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kdomain "finvisor/internal/domain/knowledge"
	"finvisor/internal/repository/chromem"
	"finvisor/pkg/errors"
)

// bagOfWords embeds text by hashing words into a small vector
type bagOfWords struct {
	batches atomic.Int32
}

func (b *bagOfWords) vector(text string) []float32 {
	v := make([]float32, 16)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(w, ".,")))
		v[h.Sum32()%16]++
	}
	v[15] += 0.01
	return v
}

func (b *bagOfWords) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	return b.vector(text), nil
}

func (b *bagOfWords) GenerateBatchEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	b.batches.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = b.vector(t)
	}
	return out, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestKB(t *testing.T, dir string, embedder Embedder) *TextKnowledgeBase {
	t.Helper()
	kb, err := NewTextKnowledgeBase(Config{
		Path:       dir,
		Collection: "filings",
		Store:      chromem.NewKnowledgeStore(),
		Embedder:   embedder,
		Chunker:    NewRuneChunker(500, 50),
		SearchType: kdomain.SearchHybrid,
		BatchSize:  1,
		Metadata:   map[string]string{"ticker": "AAPL"},
	})
	require.NoError(t, err)
	return kb
}

func TestTextKnowledgeBaseLoadAndSearch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "10-K", "0001", "primary-document.htm"),
		`<html><body><p>Revenue from iPhone sales increased.</p></body></html>`)
	writeFile(t, filepath.Join(dir, "10-K", "0002", "primary-document.txt"),
		`Supply chain risks may affect margins.`)
	writeFile(t, filepath.Join(dir, "10-K", "0002", "image.png"), "binary")

	embedder := &bagOfWords{}
	kb := newTestKB(t, dir, embedder)
	ctx := context.Background()

	loaded, err := kb.Loaded(ctx)
	require.NoError(t, err)
	assert.False(t, loaded)

	stats, err := kb.Load(ctx, kdomain.LoadOptions{Upsert: true})
	require.NoError(t, err)
	assert.Equal(t, kdomain.LoadStats{Documents: 2, Chunks: 2}, stats)
	assert.Equal(t, int32(2), embedder.batches.Load())

	loaded, err = kb.Loaded(ctx)
	require.NoError(t, err)
	assert.True(t, loaded)

	results, err := kb.Search(ctx, "iPhone revenue", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Chunk.Content, "iPhone")
	assert.Equal(t, "AAPL", results[0].Chunk.Metadata["ticker"])
	assert.Equal(t, "10-K/0001/primary-document.htm", results[0].Chunk.DocumentID)

	// reloading skips everything already stored
	stats, err = kb.Load(ctx, kdomain.LoadOptions{Upsert: true})
	require.NoError(t, err)
	assert.Equal(t, kdomain.LoadStats{Documents: 2, Chunks: 0, Skipped: 2}, stats)
}

func TestTextKnowledgeBaseEdgeCases(t *testing.T) {
	ctx := context.Background()

	missing := newTestKB(t, filepath.Join(t.TempDir(), "nope"), &bagOfWords{})
	_, err := missing.Load(ctx, kdomain.LoadOptions{Upsert: true})
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	empty := newTestKB(t, t.TempDir(), &bagOfWords{})
	stats, err := empty.Load(ctx, kdomain.LoadOptions{Upsert: true})
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)

	_, err = empty.Search(ctx, "   ", 3)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	results, err := empty.Search(ctx, "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTextKnowledgeBaseRecreate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "first version")

	kb := newTestKB(t, dir, &bagOfWords{})
	ctx := context.Background()

	_, err := kb.Load(ctx, kdomain.LoadOptions{Upsert: true})
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "a.txt"), "second version")
	stats, err := kb.Load(ctx, kdomain.LoadOptions{Recreate: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Chunks)

	results, err := kb.Search(ctx, "version", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "second version", results[0].Chunk.Content)
}

func TestNewTextKnowledgeBaseValidates(t *testing.T) {
	_, err := NewTextKnowledgeBase(Config{Collection: "x", Embedder: &bagOfWords{}})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}
