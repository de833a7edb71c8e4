package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"finvisor/internal/domain/memory"
	"finvisor/pkg/errors"
)

var _ memory.Repository = (*UserMemoryRepository)(nil)

// UserMemoryRepository implements memory.Repository with a brute-force cosine scan
type UserMemoryRepository struct {
	mu    sync.RWMutex
	items map[string][]*memory.UserMemory
}

func NewUserMemoryRepository() *UserMemoryRepository {
	return &UserMemoryRepository{items: make(map[string][]*memory.UserMemory)}
}

func (r *UserMemoryRepository) Create(_ context.Context, m *memory.UserMemory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items[m.UserID] {
		if existing.ID == m.ID {
			return errors.Wrapf(errors.ErrAlreadyExists, "memory %s", m.ID)
		}
	}
	stored := *m
	r.items[m.UserID] = append(r.items[m.UserID], &stored)
	return nil
}

func (r *UserMemoryRepository) Get(_ context.Context, userID string, id uuid.UUID) (*memory.UserMemory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.items[userID] {
		if m.ID == id {
			out := *m
			return &out, nil
		}
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "memory %s", id)
}

func (r *UserMemoryRepository) List(_ context.Context, userID string, limit int) ([]*memory.UserMemory, error) {
	r.mu.RLock()
	out := make([]*memory.UserMemory, 0, len(r.items[userID]))
	for _, m := range r.items[userID] {
		c := *m
		out = append(out, &c)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *UserMemoryRepository) Search(_ context.Context, userID string, embedding []float32, limit int) ([]*memory.UserMemory, error) {
	r.mu.RLock()
	out := make([]*memory.UserMemory, 0, len(r.items[userID]))
	for _, m := range r.items[userID] {
		if len(m.Embedding) != len(embedding) {
			continue
		}
		c := *m
		c.Score = cosine(embedding, m.Embedding)
		out = append(out, &c)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *UserMemoryRepository) Delete(_ context.Context, userID string, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.items[userID]
	for i, m := range items {
		if m.ID == id {
			r.items[userID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return errors.Wrapf(errors.ErrNotFound, "memory %s", id)
}

func (r *UserMemoryRepository) Clear(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.items[userID])
	delete(r.items, userID)
	return int64(n), nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
