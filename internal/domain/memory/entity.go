package memory

import (
	"time"

	"github.com/google/uuid"
)

// UserMemory is a fact about a user the agent chose to remember
type UserMemory struct {
	ID     uuid.UUID `db:"id" json:"memory_id"`
	UserID string    `db:"user_id" json:"user_id"`
	Memory string    `db:"memory" json:"memory"`

	// Topics are short labels ("portfolio", "risk tolerance") used for display and filtering
	Topics []string `db:"-" json:"topics,omitempty"`

	// Input is the user message that produced the memory
	Input string `db:"input" json:"input,omitempty"`

	Embedding []float32 `db:"-" json:"-"`

	// Score is the cosine similarity when returned from a search
	Score float64 `db:"-" json:"score,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
