package ai_usage

import (
	"context"
	"time"

	"finvisor/internal/domain/ai_usage"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

// BatchRepository is a usage repository with a background flush loop
type BatchRepository interface {
	ai_usage.Repository
	Start(ctx context.Context)
	Stop(ctx context.Context) error
}

// Service records agent usage and answers cost questions
type Service struct {
	repository BatchRepository
	log        *logger.Logger
}

// NewService creates a new AI usage service
func NewService(repository BatchRepository, log *logger.Logger) *Service {
	return &Service{
		repository: repository,
		log:        log,
	}
}

// Start starts the background batch writer
func (s *Service) Start(ctx context.Context) {
	s.log.Info("Starting AI usage batch writer...")
	s.repository.Start(ctx)
}

// Stop flushes pending rows and stops the batch writer
func (s *Service) Stop(ctx context.Context) error {
	if err := s.repository.Stop(ctx); err != nil {
		return errors.Wrap(err, "failed to stop batch writer")
	}
	s.log.Info("AI usage service stopped")
	return nil
}

// Record buffers one usage log; it will be flushed when the batch is full or old enough
func (s *Service) Record(ctx context.Context, log *ai_usage.UsageLog) error {
	if err := s.repository.Store(ctx, log); err != nil {
		return errors.Wrap(err, "failed to store AI usage log")
	}

	s.log.Debugw("AI usage log buffered",
		"agent", log.AgentName,
		"model", log.ModelID,
		"tokens", log.TotalTokens,
		"cost_usd", log.TotalCostUSD,
	)
	return nil
}

// Summary is the usage of the last Days days
type Summary struct {
	UserID      string               `json:"user_id,omitempty"`
	Days        int                  `json:"days"`
	UserCostUSD float64              `json:"user_cost_usd"`
	Models      []ai_usage.ModelCost `json:"models"`
}

// Summarize reports a user's cost and the per-model totals over the last days
func (s *Service) Summarize(ctx context.Context, userID string, days int) (*Summary, error) {
	if days <= 0 {
		days = 30
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)

	out := &Summary{UserID: userID, Days: days}
	if userID != "" {
		cost, err := s.repository.UserCost(ctx, userID, from, to)
		if err != nil {
			return nil, err
		}
		out.UserCostUSD = cost
	}

	models, err := s.repository.ModelCosts(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out.Models = models
	return out, nil
}

// DailyCost returns what a user's runs cost since midnight UTC
func (s *Service) DailyCost(ctx context.Context, userID string) (float64, error) {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	cost, err := s.repository.UserCost(ctx, userID, midnight, now.Add(time.Second))
	if err != nil {
		return 0, errors.Wrapf(err, "daily cost of %s", userID)
	}
	return cost, nil
}

// BudgetCheck reports users whose cost today reached limitUSD.
// Rows still buffered in the batch writer are not counted yet.
func (s *Service) BudgetCheck(limitUSD float64) func(ctx context.Context, userID string) (bool, error) {
	return func(ctx context.Context, userID string) (bool, error) {
		if limitUSD <= 0 {
			return false, nil
		}
		cost, err := s.DailyCost(ctx, userID)
		if err != nil {
			return false, err
		}
		if cost >= limitUSD {
			s.log.Warnw("Daily cost limit reached", "user_id", userID, "cost_usd", cost, "limit_usd", limitUSD)
			return true, nil
		}
		return false, nil
	}
}
