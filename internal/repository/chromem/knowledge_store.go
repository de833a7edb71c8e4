package chromem

import (
	"context"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"finvisor/internal/domain/knowledge"
	"finvisor/pkg/errors"
)

var _ knowledge.VectorStore = (*KnowledgeStore)(nil)

// KnowledgeStore keeps knowledge chunks in an embedded chromem database.
// Only cosine similarity is available, so keyword and hybrid searches run as vector searches.
type KnowledgeStore struct {
	db *chromem.DB

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewKnowledgeStore creates an in-memory store
func NewKnowledgeStore() *KnowledgeStore {
	return &KnowledgeStore{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

// precomputed rejects embedding inside chromem; chunks always arrive embedded
func precomputed(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem embedding function called for a chunk without embedding")
}

func (s *KnowledgeStore) collection(name string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[name]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection(name, nil, precomputed)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get collection %q", name)
	}
	s.collections[name] = col
	return col, nil
}

// Upsert adds chunks keyed by content hash, skipping hashes already present
func (s *KnowledgeStore) Upsert(ctx context.Context, collection string, chunks []knowledge.Chunk) (int, error) {
	col, err := s.collection(collection)
	if err != nil {
		return 0, err
	}

	docs := make([]chromem.Document, 0, len(chunks))
	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		if seen[c.ContentHash] {
			continue
		}
		seen[c.ContentHash] = true
		if _, err := col.GetByID(ctx, c.ContentHash); err == nil {
			continue
		}
		if len(c.Embedding) == 0 {
			return 0, errors.NewValidationError("embedding", "chunk has no embedding", c.ContentHash)
		}
		docs = append(docs, chromem.Document{
			ID:        c.ContentHash,
			Content:   c.Content,
			Metadata:  toMetadata(c),
			Embedding: c.Embedding,
		})
	}

	if len(docs) == 0 {
		return 0, nil
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, errors.Wrap(err, "failed to add documents")
	}
	return len(docs), nil
}

// Search returns the nearest chunks; the search type is ignored
func (s *KnowledgeStore) Search(ctx context.Context, collection, _ string, embedding []float32, limit int, _ knowledge.SearchType) ([]knowledge.SearchResult, error) {
	if limit <= 0 {
		return nil, errors.NewValidationError("limit", "must be positive", limit)
	}
	if len(embedding) == 0 {
		return nil, errors.NewValidationError("embedding", "required for vector search", nil)
	}

	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects n larger than the collection
	n := min(limit, col.Count())
	if n == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "chromem query failed")
	}

	out := make([]knowledge.SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, knowledge.SearchResult{
			Chunk: fromMetadata(collection, r.ID, r.Content, r.Metadata),
			Score: float64(r.Similarity),
		})
	}
	return out, nil
}

// Exists reports whether the collection holds any chunk
func (s *KnowledgeStore) Exists(ctx context.Context, collection string) (bool, error) {
	n, err := s.Count(ctx, collection)
	return n > 0, err
}

// Count returns the number of chunks in a collection
func (s *KnowledgeStore) Count(_ context.Context, collection string) (int, error) {
	col, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// HasHashes returns which hashes are stored
func (s *KnowledgeStore) HasHashes(ctx context.Context, collection string, hashes []string) (map[string]bool, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	found := make(map[string]bool)
	for _, h := range hashes {
		if _, err := col.GetByID(ctx, h); err == nil {
			found[h] = true
		}
	}
	return found, nil
}

// DeleteBySource removes chunks of one source file
func (s *KnowledgeStore) DeleteBySource(ctx context.Context, collection, source string) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	if col.Count() == 0 {
		return nil
	}
	return errors.Wrap(col.Delete(ctx, map[string]string{"source": source}, nil), "failed to delete by source")
}

// Drop deletes the collection
func (s *KnowledgeStore) Drop(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, collection)
	if err := s.db.DeleteCollection(collection); err != nil {
		return errors.Wrapf(err, "failed to drop collection %q", collection)
	}
	return nil
}

func toMetadata(c knowledge.Chunk) map[string]string {
	md := make(map[string]string, len(c.Metadata)+4)
	for k, v := range c.Metadata {
		md[k] = v
	}
	md["name"] = c.Name
	md["source"] = c.Source
	md["document_id"] = c.DocumentID
	md["chunk_index"] = strconv.Itoa(c.Index)
	return md
}

func fromMetadata(collection, id, content string, md map[string]string) knowledge.Chunk {
	c := knowledge.Chunk{
		Collection:  collection,
		ContentHash: id,
		Content:     content,
		Name:        md["name"],
		Source:      md["source"],
		DocumentID:  md["document_id"],
		Metadata:    make(map[string]string),
	}
	c.Index, _ = strconv.Atoi(md["chunk_index"])
	for k, v := range md {
		switch k {
		case "name", "source", "document_id", "chunk_index":
		default:
			c.Metadata[k] = v
		}
	}
	return c
}
