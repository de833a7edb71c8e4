package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"finvisor/internal/domain/memory"
	"finvisor/pkg/errors"
)

// Compile-time check
var _ memory.Repository = (*MemoryRepository)(nil)

// MemoryRepository implements memory.Repository using sqlx and pgvector
type MemoryRepository struct {
	db DBTX
}

// NewMemoryRepository creates a new memory repository
func NewMemoryRepository(db DBTX) *MemoryRepository {
	return &MemoryRepository{db: db}
}

const memoryColumns = `id, user_id, memory, topics, input, created_at, updated_at`

type memoryRow struct {
	memory.UserMemory
	TopicsArr  pq.StringArray `db:"topics"`
	Similarity float64        `db:"similarity"`
}

func (r *memoryRow) toDomain() *memory.UserMemory {
	m := r.UserMemory
	m.Topics = []string(r.TopicsArr)
	m.Score = r.Similarity
	return &m
}

func toMemories(rows []memoryRow) []*memory.UserMemory {
	out := make([]*memory.UserMemory, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out
}

// Create inserts a new memory
func (r *MemoryRepository) Create(ctx context.Context, m *memory.UserMemory) error {
	query := `
		INSERT INTO user_memories (id, user_id, memory, topics, input, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var embedding interface{}
	if len(m.Embedding) > 0 {
		embedding = pgvector.NewVector(m.Embedding)
	}

	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.UserID, m.Memory, pq.Array(m.Topics), m.Input, embedding, m.CreatedAt, m.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return errors.Wrapf(errors.ErrAlreadyExists, "memory %s", m.ID)
	}
	return err
}

// Get returns one memory of a user
func (r *MemoryRepository) Get(ctx context.Context, userID string, id uuid.UUID) (*memory.UserMemory, error) {
	var row memoryRow
	query := `SELECT ` + memoryColumns + `, 0::float8 AS similarity FROM user_memories WHERE user_id = $1 AND id = $2`

	err := r.db.GetContext(ctx, &row, query, userID, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "memory %s", id)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// List retrieves the newest memories of a user
func (r *MemoryRepository) List(ctx context.Context, userID string, limit int) ([]*memory.UserMemory, error) {
	var rows []memoryRow

	query := `
		SELECT ` + memoryColumns + `, 0::float8 AS similarity
		FROM user_memories
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return nil, err
	}
	return toMemories(rows), nil
}

// Search performs semantic search using pgvector cosine similarity
func (r *MemoryRepository) Search(ctx context.Context, userID string, embedding []float32, limit int) ([]*memory.UserMemory, error) {
	var rows []memoryRow

	query := `
		SELECT ` + memoryColumns + `, 1 - (embedding <=> $2) AS similarity
		FROM user_memories
		WHERE user_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3`

	if err := r.db.SelectContext(ctx, &rows, query, userID, pgvector.NewVector(embedding), limit); err != nil {
		return nil, err
	}
	return toMemories(rows), nil
}

// Delete removes a memory owned by userID
func (r *MemoryRepository) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM user_memories WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return err
	}
	return requireAffected(result, "memory "+id.String())
}

// Clear removes all memories of a user
func (r *MemoryRepository) Clear(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM user_memories WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
