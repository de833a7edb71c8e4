package ai_usage

import (
	"context"
	"time"
)

// Repository defines operations for AI usage tracking
type Repository interface {
	// Store saves a usage log entry. Implementations may buffer.
	Store(ctx context.Context, log *UsageLog) error

	// UserCost returns the total cost of a user's runs in [from, to)
	UserCost(ctx context.Context, userID string, from, to time.Time) (float64, error)

	// ModelCosts returns usage grouped by model in [from, to), most expensive first
	ModelCosts(ctx context.Context, from, to time.Time) ([]ModelCost, error)
}
