package knowledge

import "context"

// VectorStore persists chunks per collection and retrieves them
type VectorStore interface {
	// Upsert stores chunks, ignoring ones whose (collection, content hash) exists.
	// It returns how many chunks were newly inserted.
	Upsert(ctx context.Context, collection string, chunks []Chunk) (int, error)

	// Search ranks chunks for a query. Stores without full-text support
	// fall back to vector search for keyword and hybrid.
	Search(ctx context.Context, collection, query string, embedding []float32, limit int, searchType SearchType) ([]SearchResult, error)

	// Exists reports whether the collection holds at least one chunk
	Exists(ctx context.Context, collection string) (bool, error)

	// Count returns the number of chunks in the collection
	Count(ctx context.Context, collection string) (int, error)

	// HasHashes returns the subset of hashes already stored in the collection
	HasHashes(ctx context.Context, collection string, hashes []string) (map[string]bool, error)

	// DeleteBySource removes all chunks loaded from one source path
	DeleteBySource(ctx context.Context, collection, source string) error

	// Drop removes the whole collection
	Drop(ctx context.Context, collection string) error
}
