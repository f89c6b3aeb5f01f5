package ports

import (
	"context"
	"time"

	"polyEdgeBot/internal/domain"
)

// MarketDataStore exposes markets and the reference data strategies read.
type MarketDataStore interface {
	// ActiveMarkets returns active, liquid, not-yet-started markets ordered by event time.
	ActiveMarkets(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, error)
	// GetMarket returns a single market by ID, or ErrNotFound.
	GetMarket(ctx context.Context, id string) (*domain.Market, error)
	// RecentQuotes returns the newest quote per bookmaker observed after since.
	RecentQuotes(ctx context.Context, marketID string, since time.Time) ([]domain.ReferenceQuote, error)
	// MatchupRatings returns the team ratings for a total market, or ErrNoRatings.
	MatchupRatings(ctx context.Context, marketID string) (*domain.Matchup, error)
}

// SignalStore persists signals append-only and tracks their execution.
type SignalStore interface {
	// SaveSignals appends signals.
	SaveSignals(ctx context.Context, signals []domain.Signal) error
	// FetchPending returns unexecuted signals generated after since,
	// ordered by confidence desc then edge desc.
	FetchPending(ctx context.Context, since time.Time, limit int) ([]domain.Signal, error)
	// MarkExecuted flips executed to true. It returns ErrAlreadyExecuted when
	// the signal was already executed, so only one caller ever wins.
	MarkExecuted(ctx context.Context, signalID string, tradeID *string) error
	// LinkTrade records the trade opened for an executed signal.
	LinkTrade(ctx context.Context, signalID, tradeID string) error
}

// TradeLedger is the authoritative record of trades and capital.
type TradeLedger interface {
	// CreateTrade appends an open trade.
	CreateTrade(ctx context.Context, trade *domain.Trade) error
	// CloseTrade moves an open trade to closed. Returns ErrTradeNotOpen if it was not open.
	CloseTrade(ctx context.Context, trade *domain.Trade) error
	// OpenTrades lists all open trades.
	OpenTrades(ctx context.Context) ([]domain.Trade, error)
	// ClosedTrades lists all closed trades ordered by exit time ascending.
	ClosedTrades(ctx context.Context) ([]domain.Trade, error)
	// RecentClosedTrades lists closed trades that exited after since, newest first.
	RecentClosedTrades(ctx context.Context, since time.Time, limit int) ([]domain.Trade, error)
	// PortfolioAggregate computes capital figures across the whole ledger.
	PortfolioAggregate(ctx context.Context) (domain.LedgerAggregate, error)
	// RealizedPNLSince sums realized P&L of trades closed at or after since.
	RealizedPNLSince(ctx context.Context, since time.Time) (float64, error)
	// CountOpenTrades counts open trades.
	CountOpenTrades(ctx context.Context) (int, error)
	// CountTradesSince counts trades entered at or after since.
	CountTradesSince(ctx context.Context, since time.Time) (int, error)
}

// RiskStore persists circuit breakers and portfolio snapshots.
type RiskStore interface {
	CreateCircuitBreaker(ctx context.Context, cb *domain.CircuitBreaker) error
	AnyActiveCircuitBreaker(ctx context.Context) (bool, error)
	ListCircuitBreakers(ctx context.Context, onlyActive bool) ([]domain.CircuitBreaker, error)
	// ClearCircuitBreaker is an operator action; nothing in the trading loop calls it.
	ClearCircuitBreaker(ctx context.Context, id string, at time.Time) error
	// SaveSnapshot appends an immutable portfolio snapshot row.
	SaveSnapshot(ctx context.Context, state domain.PortfolioState) error
}
