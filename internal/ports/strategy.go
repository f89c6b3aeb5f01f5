package ports

import (
	"context"
	"time"

	"polyEdgeBot/internal/domain"
)

// Strategy turns a batch of market snapshots into zero or more signals.
// Implementations keep no state between calls beyond their configuration.
type Strategy interface {
	// Name returns a human readable strategy name.
	Name() string
	// Tag returns the tag stamped on produced signals.
	Tag() domain.StrategyTag
	// GenerateSignals evaluates the markets and returns any signals found.
	GenerateSignals(ctx context.Context, markets []domain.Market) ([]domain.Signal, error)
}

// ExitPolicy decides whether an open trade should be closed.
type ExitPolicy interface {
	// ShouldExit returns the exit decision, the reason, and the price to exit at.
	ShouldExit(ctx context.Context, trade *domain.Trade, market *domain.Market, now time.Time) (bool, domain.CloseReason, float64)
}
