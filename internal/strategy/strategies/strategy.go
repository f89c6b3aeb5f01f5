package strategies

import (
	"context"
	"time"

	"github.com/google/uuid"

	"polyEdgeBot/internal/domain"
	"polyEdgeBot/internal/ports"
)

// QuoteSource supplies reference quotes for consensus pricing.
type QuoteSource interface {
	RecentQuotes(ctx context.Context, marketID string, since time.Time) ([]domain.ReferenceQuote, error)
}

// RatingsSource supplies the team ratings behind a total market.
type RatingsSource interface {
	MatchupRatings(ctx context.Context, marketID string) (*domain.Matchup, error)
}

// BaseStrategy provides common functionality for strategies
type BaseStrategy struct {
	logger ports.Logger
	clock  ports.Clock
	tag    domain.StrategyTag
}

// NewBaseStrategy creates a new base strategy instance
func NewBaseStrategy(tag domain.StrategyTag, logger ports.Logger, clock ports.Clock) *BaseStrategy {
	return &BaseStrategy{
		logger: logger,
		clock:  clock,
		tag:    tag,
	}
}

// Tag returns the tag stamped on produced signals.
func (b *BaseStrategy) Tag() domain.StrategyTag {
	return b.tag
}

// newSignal fills the fields every strategy sets the same way.
func (b *BaseStrategy) newSignal(m *domain.Market, dir domain.Direction, confidence, edge, fair, size float64, meta map[string]interface{}) domain.Signal {
	return domain.Signal{
		ID:              uuid.NewString(),
		MarketID:        m.ID,
		Strategy:        b.tag,
		Direction:       dir,
		Confidence:      confidence,
		EdgeSize:        edge,
		RecommendedSize: size,
		ObservedPrice:   m.Price(dir.Position()),
		FairValue:       fair,
		GeneratedAt:     b.clock.Now(),
		Metadata:        meta,
	}
}
