package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"finvisor/internal/domain/knowledge"
	"finvisor/pkg/errors"
)

var _ knowledge.VectorStore = (*KnowledgeRepository)(nil)

// hybridCandidates widens each ranked list before fusion
const hybridCandidates = 4

// KnowledgeRepository stores knowledge chunks in knowledge_chunks using
// pgvector for similarity and a generated tsvector for keyword search
type KnowledgeRepository struct {
	db DBTX
}

// NewKnowledgeRepository creates a new pgvector-backed knowledge store
func NewKnowledgeRepository(db DBTX) *KnowledgeRepository {
	return &KnowledgeRepository{db: db}
}

type chunkRow struct {
	knowledge.Chunk
	MetadataJSON []byte  `db:"metadata"`
	Score        float64 `db:"score"`
}

func (r chunkRow) toResult() (knowledge.SearchResult, error) {
	chunk := r.Chunk
	if len(r.MetadataJSON) > 0 {
		if err := json.Unmarshal(r.MetadataJSON, &chunk.Metadata); err != nil {
			return knowledge.SearchResult{}, errors.Wrap(err, "failed to unmarshal chunk metadata")
		}
	}
	return knowledge.SearchResult{Chunk: chunk, Score: r.Score}, nil
}

// Upsert inserts chunks, skipping (collection, content_hash) duplicates
func (r *KnowledgeRepository) Upsert(ctx context.Context, collection string, chunks []knowledge.Chunk) (int, error) {
	query := `
		INSERT INTO knowledge_chunks (
			id, collection, document_id, name, source, content, content_hash,
			chunk_index, metadata, embedding, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (collection, content_hash) DO NOTHING
	`

	inserted := 0
	now := time.Now().UTC()
	for _, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return inserted, errors.Wrap(err, "failed to marshal chunk metadata")
		}
		if c.Metadata == nil {
			metadata = []byte("{}")
		}

		res, err := r.db.ExecContext(ctx, query,
			c.ID, collection, c.DocumentID, c.Name, c.Source, c.Content, c.ContentHash,
			c.Index, metadata, pgvector.NewVector(c.Embedding), now,
		)
		if err != nil {
			return inserted, errors.Wrapf(err, "failed to upsert chunk %s", c.ContentHash)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	return inserted, nil
}

// Search ranks chunks by cosine similarity, full-text rank, or their RRF fusion
func (r *KnowledgeRepository) Search(ctx context.Context, collection, query string, embedding []float32, limit int, searchType knowledge.SearchType) ([]knowledge.SearchResult, error) {
	if limit <= 0 {
		return nil, errors.NewValidationError("limit", "must be positive", limit)
	}

	switch searchType {
	case knowledge.SearchVector:
		return r.vectorSearch(ctx, collection, embedding, limit)
	case knowledge.SearchKeyword:
		return r.keywordSearch(ctx, collection, query, limit)
	case knowledge.SearchHybrid:
		vector, err := r.vectorSearch(ctx, collection, embedding, limit*hybridCandidates)
		if err != nil {
			return nil, err
		}
		keyword, err := r.keywordSearch(ctx, collection, query, limit*hybridCandidates)
		if err != nil {
			return nil, err
		}
		return knowledge.FuseRRF(limit, vector, keyword), nil
	default:
		return nil, errors.NewValidationError("search_type", "unsupported", searchType)
	}
}

const chunkColumns = `id, collection, document_id, name, source, content, content_hash, chunk_index, metadata, created_at`

func (r *KnowledgeRepository) vectorSearch(ctx context.Context, collection string, embedding []float32, limit int) ([]knowledge.SearchResult, error) {
	if len(embedding) == 0 {
		return nil, errors.NewValidationError("embedding", "required for vector search", nil)
	}

	query := `
		SELECT ` + chunkColumns + `, 1 - (embedding <=> $2) AS score
		FROM knowledge_chunks
		WHERE collection = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3
	`

	var rows []chunkRow
	if err := r.db.SelectContext(ctx, &rows, query, collection, pgvector.NewVector(embedding), limit); err != nil {
		return nil, errors.Wrap(err, "vector search failed")
	}
	return toResults(rows)
}

func (r *KnowledgeRepository) keywordSearch(ctx context.Context, collection, text string, limit int) ([]knowledge.SearchResult, error) {
	if text == "" {
		return nil, nil
	}

	query := `
		SELECT ` + chunkColumns + `, ts_rank_cd(content_tsv, q) AS score
		FROM knowledge_chunks, websearch_to_tsquery('english', $2) q
		WHERE collection = $1 AND content_tsv @@ q
		ORDER BY score DESC
		LIMIT $3
	`

	var rows []chunkRow
	if err := r.db.SelectContext(ctx, &rows, query, collection, text, limit); err != nil {
		return nil, errors.Wrap(err, "keyword search failed")
	}
	return toResults(rows)
}

func toResults(rows []chunkRow) ([]knowledge.SearchResult, error) {
	out := make([]knowledge.SearchResult, 0, len(rows))
	for _, row := range rows {
		res, err := row.toResult()
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Exists reports whether the collection holds any chunk
func (r *KnowledgeRepository) Exists(ctx context.Context, collection string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM knowledge_chunks WHERE collection = $1)`, collection)
	if err != nil {
		return false, errors.Wrap(err, "failed to check collection")
	}
	return exists, nil
}

// Count returns the number of chunks in the collection
func (r *KnowledgeRepository) Count(ctx context.Context, collection string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM knowledge_chunks WHERE collection = $1`, collection); err != nil {
		return 0, errors.Wrap(err, "failed to count chunks")
	}
	return n, nil
}

// HasHashes returns which of the given hashes are stored
func (r *KnowledgeRepository) HasHashes(ctx context.Context, collection string, hashes []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(hashes) == 0 {
		return found, nil
	}

	var stored []string
	err := r.db.SelectContext(ctx, &stored,
		`SELECT content_hash FROM knowledge_chunks WHERE collection = $1 AND content_hash = ANY($2)`,
		collection, pq.Array(hashes),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up hashes")
	}
	for _, h := range stored {
		found[h] = true
	}
	return found, nil
}

// DeleteBySource removes chunks loaded from one source
func (r *KnowledgeRepository) DeleteBySource(ctx context.Context, collection, source string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE collection = $1 AND source = $2`, collection, source)
	return errors.Wrap(err, "failed to delete chunks by source")
}

// Drop removes all chunks of a collection
func (r *KnowledgeRepository) Drop(ctx context.Context, collection string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE collection = $1`, collection)
	return errors.Wrap(err, "failed to drop collection")
}
