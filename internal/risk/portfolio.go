package risk

import (
	"context"
	"fmt"
	"math"
	"sync"

	"polyEdgeBot/internal/domain"
	"polyEdgeBot/internal/ports"
)

// SnapshotStore persists portfolio snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, state domain.PortfolioState) error
}

// PortfolioTracker owns the cached portfolio state. Readers take a copy under a
// read lock; a refresh computes from the ledger without the lock and swaps the
// result in under the write lock, so no reader sees a half-updated state.
type PortfolioTracker struct {
	ledger    ports.TradeLedger
	snapshots SnapshotStore
	clock     ports.Clock
	logger    ports.Logger

	refreshMu sync.Mutex // Serializes refreshes so max drawdown is computed from the latest swap

	mu    sync.RWMutex
	state domain.PortfolioState
}

// NewPortfolioTracker creates a tracker. Call RefreshState before relying on State.
func NewPortfolioTracker(ledger ports.TradeLedger, snapshots SnapshotStore, clock ports.Clock, logger ports.Logger) *PortfolioTracker {
	return &PortfolioTracker{
		ledger:    ledger,
		snapshots: snapshots,
		clock:     clock,
		logger:    logger,
	}
}

// State returns a copy of the current state.
func (p *PortfolioTracker) State() domain.PortfolioState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Ready reports whether at least one refresh has completed.
func (p *PortfolioTracker) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.state.SnapshotTime.IsZero()
}

// RefreshState recomputes the state from the ledger, swaps it in and appends a snapshot.
// On a ledger error the previous state is kept.
func (p *PortfolioTracker) RefreshState(ctx context.Context) (domain.PortfolioState, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	now := p.clock.Now()
	today := domain.StartOfDay(now)

	agg, err := p.ledger.PortfolioAggregate(ctx)
	if err != nil {
		return p.State(), fmt.Errorf("portfolio aggregate: %w", err)
	}
	realizedToday, err := p.ledger.RealizedPNLSince(ctx, today)
	if err != nil {
		return p.State(), fmt.Errorf("realized pnl today: %w", err)
	}
	openPositions, err := p.ledger.CountOpenTrades(ctx)
	if err != nil {
		return p.State(), fmt.Errorf("open positions: %w", err)
	}
	tradesToday, err := p.ledger.CountTradesSince(ctx, today)
	if err != nil {
		return p.State(), fmt.Errorf("trades today: %w", err)
	}

	next := domain.PortfolioState{
		TotalCapital:     agg.TotalCapital,
		AvailableCapital: agg.AvailableCapital,
		InvestedCapital:  agg.InvestedCapital,
		UnrealizedPNL:    agg.UnrealizedPNL,
		RealizedPNLToday: realizedToday,
		DailyDrawdownPct: DailyDrawdownPct(realizedToday, agg.TotalCapital),
		OpenPositions:    openPositions,
		TradesToday:      tradesToday,
		SnapshotTime:     now,
	}

	p.mu.Lock()
	next.MaxDrawdownPct = next.DailyDrawdownPct
	if !p.state.SnapshotTime.IsZero() && domain.StartOfDay(p.state.SnapshotTime).Equal(today) {
		next.MaxDrawdownPct = math.Max(p.state.MaxDrawdownPct, next.DailyDrawdownPct)
	}
	p.state = next
	p.mu.Unlock()

	if err := p.snapshots.SaveSnapshot(ctx, next); err != nil {
		p.logger.Error(ctx, err, "Failed to persist portfolio snapshot")
	}

	p.logger.Debug(ctx, "Portfolio refreshed", map[string]interface{}{
		"totalCapital":     next.TotalCapital,
		"availableCapital": next.AvailableCapital,
		"realizedToday":    next.RealizedPNLToday,
		"dailyDrawdownPct": next.DailyDrawdownPct,
		"openPositions":    next.OpenPositions,
		"tradesToday":      next.TradesToday,
	})
	return next, nil
}

// UpdatePNL applies a realized P&L delta to the cached totals and then forces a
// full refresh so the cache cannot drift from the ledger. The running max is only
// taken over refreshed values: the ledger may already hold this P&L.
func (p *PortfolioTracker) UpdatePNL(ctx context.Context, pnl float64) (domain.PortfolioState, error) {
	p.mu.Lock()
	p.state.RealizedPNLToday += pnl
	p.state.TotalCapital += pnl
	p.state.AvailableCapital += pnl
	p.state.DailyDrawdownPct = DailyDrawdownPct(p.state.RealizedPNLToday, p.state.TotalCapital)
	p.mu.Unlock()

	return p.RefreshState(ctx)
}

// DailyDrawdownPct is today's realized loss as a percentage of capital, never negative.
// A depleted account reports 100 so the drawdown limit always trips.
func DailyDrawdownPct(realizedToday, totalCapital float64) float64 {
	if totalCapital <= 0 {
		return 100
	}
	return math.Max(0, -realizedToday/totalCapital*100)
}
