package ports

import (
	"context"
	"time"

	"polyEdgeBot/internal/domain"
)

// TradeExecutor submits orders to the venue.
type TradeExecutor interface {
	// ExecuteTrade buys quantity shares of the given side at no more than maxPrice
	// and returns the transaction identifier. Network and chain failures return an error.
	ExecuteTrade(ctx context.Context, marketID string, position domain.Position, quantity, maxPrice float64) (string, error)
}

// Clock supplies timestamps and day-boundary semantics.
type Clock interface {
	Now() time.Time
}

// Notifier pushes operator alerts (e.g., circuit breaker trips).
type Notifier interface {
	Notify(ctx context.Context, message string) error
}
