package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

const DefaultLimit = 10

// Embedder turns memory text into a vector
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Service manages the memories the agent keeps about each user.
type Service struct {
	repo     Repository
	embedder Embedder
	log      *logger.Logger
}

// NewService constructs a memory service.
func NewService(repo Repository, embedder Embedder) *Service {
	return &Service{
		repo:     repo,
		embedder: embedder,
		log:      logger.Get().With("component", "memory_service"),
	}
}

// Add stores a new memory for a user.
func (s *Service) Add(ctx context.Context, userID, text string, topics []string, input string) (*UserMemory, error) {
	if userID == "" {
		return nil, errors.NewValidationError("user_id", "is required", userID)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.NewValidationError("memory", "must not be empty", text)
	}

	embedding, err := s.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "embed memory")
	}

	now := time.Now().UTC()
	m := &UserMemory{
		ID:        uuid.New(),
		UserID:    userID,
		Memory:    text,
		Topics:    cleanTopics(topics),
		Input:     input,
		Embedding: embedding,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, errors.Wrap(err, "store memory")
	}

	s.log.Debugw("Memory added", "user_id", userID, "memory_id", m.ID, "topics", m.Topics)
	return m, nil
}

// Search returns the memories most related to query. An empty query lists the newest ones.
func (s *Service) Search(ctx context.Context, userID, query string, limit int) ([]*UserMemory, error) {
	if userID == "" {
		return nil, errors.NewValidationError("user_id", "is required", userID)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	query = strings.TrimSpace(query)
	if query == "" {
		results, err := s.repo.List(ctx, userID, limit)
		return results, errors.Wrap(err, "list memories")
	}

	embedding, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}
	results, err := s.repo.Search(ctx, userID, embedding, limit)
	if err != nil {
		return nil, errors.Wrap(err, "search memories")
	}
	return results, nil
}

// Delete removes one memory owned by userID.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	memID, err := uuid.Parse(id)
	if err != nil {
		return errors.NewValidationError("memory_id", "must be a uuid", id)
	}
	if err := s.repo.Delete(ctx, userID, memID); err != nil {
		return errors.Wrap(err, "delete memory")
	}
	return nil
}

// Clear removes every memory of a user and returns how many were deleted.
func (s *Service) Clear(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, errors.NewValidationError("user_id", "is required", userID)
	}
	n, err := s.repo.Clear(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "clear memories")
	}
	s.log.Infow("Memories cleared", "user_id", userID, "count", n)
	return n, nil
}

func cleanTopics(topics []string) []string {
	seen := make(map[string]bool, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
