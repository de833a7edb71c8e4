package memory

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores user memories. Every operation is scoped to one user.
type Repository interface {
	Create(ctx context.Context, m *UserMemory) error
	Get(ctx context.Context, userID string, id uuid.UUID) (*UserMemory, error)

	// List returns the newest memories first
	List(ctx context.Context, userID string, limit int) ([]*UserMemory, error)

	// Search orders memories by cosine similarity to embedding
	Search(ctx context.Context, userID string, embedding []float32, limit int) ([]*UserMemory, error)

	// Delete returns ErrNotFound when the memory does not belong to userID
	Delete(ctx context.Context, userID string, id uuid.UUID) error
	Clear(ctx context.Context, userID string) (int64, error)
}
