package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"finvisor/pkg/errors"
)

// Document is one source file read from disk before chunking
type Document struct {
	ID       string
	Name     string
	Source   string
	Content  string
	Metadata map[string]string
}

// Chunk is a searchable slice of a document with its embedding
type Chunk struct {
	ID          uuid.UUID         `db:"id"`
	Collection  string            `db:"collection"`
	DocumentID  string            `db:"document_id"`
	Name        string            `db:"name"`
	Source      string            `db:"source"`
	Content     string            `db:"content"`
	ContentHash string            `db:"content_hash"`
	Index       int               `db:"chunk_index"`
	Metadata    map[string]string `db:"-"`
	Embedding   []float32         `db:"-"`
	CreatedAt   time.Time         `db:"created_at"`
}

// ContentHash identifies a chunk by its source and text.
// Reloading the same files yields the same hashes, which makes upserts idempotent.
func ContentHash(source, content string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(h.Sum(nil))
}

// SearchType selects the retrieval strategy
type SearchType string

const (
	SearchVector  SearchType = "vector"
	SearchKeyword SearchType = "keyword"
	SearchHybrid  SearchType = "hybrid"
)

// ParseSearchType validates a configured search type
func ParseSearchType(s string) (SearchType, error) {
	switch t := SearchType(strings.ToLower(strings.TrimSpace(s))); t {
	case SearchVector, SearchKeyword, SearchHybrid:
		return t, nil
	case "":
		return SearchHybrid, nil
	default:
		return "", errors.NewValidationError("search_type", "must be vector, keyword or hybrid", s)
	}
}

// SearchResult is a ranked chunk
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// LoadOptions control how a knowledge base is (re)loaded
type LoadOptions struct {
	// Upsert skips chunks whose content hash is already stored
	Upsert bool
	// Recreate drops the collection before loading
	Recreate bool
}

// LoadStats summarize a load
type LoadStats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Skipped   int `json:"skipped"`
}
