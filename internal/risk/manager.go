package risk

import (
	"context"
	"fmt"
	"time"

	"polyEdgeBot/internal/domain"
	"polyEdgeBot/internal/ports"
)

// defaultLossScan is the minimum number of recent closed trades scanned for a losing streak.
const defaultLossScan = 5

// RiskConfig holds configuration for risk management
type RiskConfig struct {
	MinEdgeSize           float64       // Fractional edge a signal must carry
	MaxDailyTrades        int           // Trades entered per UTC day
	DailyDrawdownLimitPct float64       // Breaker trips at or above this daily drawdown
	KellyFraction         float64       // Multiplier applied to full Kelly
	MaxPositionSizePct    float64       // % of total capital per position
	ConsecutiveLossLimit  int           // Losing streak that trips the breaker
	LossLookback          time.Duration // Window for the losing-streak scan
}

// RiskManager validates and sizes signals against portfolio state and owns the
// circuit breaker lifecycle up to Active. Clearing is an operator action.
type RiskManager struct {
	config    RiskConfig
	portfolio *PortfolioTracker
	store     ports.RiskStore
	ledger    ports.TradeLedger
	notifier  ports.Notifier
	sizer     Sizer
	clock     ports.Clock
	logger    ports.Logger
}

// NewRiskManager creates a new risk manager instance
func NewRiskManager(config RiskConfig, portfolio *PortfolioTracker, store ports.RiskStore, ledger ports.TradeLedger, notifier ports.Notifier, clock ports.Clock, logger ports.Logger) *RiskManager {
	if config.LossLookback <= 0 {
		config.LossLookback = time.Hour
	}
	if config.ConsecutiveLossLimit <= 0 {
		config.ConsecutiveLossLimit = 3
	}
	return &RiskManager{
		config:    config,
		portfolio: portfolio,
		store:     store,
		ledger:    ledger,
		notifier:  notifier,
		sizer:     Sizer{KellyMultiplier: config.KellyFraction, MaxPositionSizePct: config.MaxPositionSizePct},
		clock:     clock,
		logger:    logger,
	}
}

// Portfolio exposes the tracker for read-only consumers.
func (r *RiskManager) Portfolio() *PortfolioTracker {
	return r.portfolio
}

// ValidateSignal reports whether a signal may be traded. Every check must pass;
// when risk state cannot be read the signal is rejected.
func (r *RiskManager) ValidateSignal(ctx context.Context, signal *domain.Signal) bool {
	fields := map[string]interface{}{"signalID": signal.ID, "marketID": signal.MarketID}

	active, err := r.store.AnyActiveCircuitBreaker(ctx)
	if err != nil {
		r.logger.Error(ctx, err, "Circuit breaker lookup failed, rejecting signal", fields)
		return false
	}
	if active {
		r.logger.Warn(ctx, "Signal rejected: circuit breaker active", fields)
		return false
	}

	if signal.EdgeSize < r.config.MinEdgeSize {
		fields["edge"] = signal.EdgeSize
		fields["minEdge"] = r.config.MinEdgeSize
		r.logger.Info(ctx, "Signal rejected: edge below minimum", fields)
		return false
	}

	if !r.portfolio.Ready() {
		r.logger.Warn(ctx, "Signal rejected: portfolio state not loaded", fields)
		return false
	}
	state := r.portfolio.State()

	if state.TradesToday >= r.config.MaxDailyTrades {
		fields["tradesToday"] = state.TradesToday
		r.logger.Info(ctx, "Signal rejected: daily trade limit reached", fields)
		return false
	}

	if state.DailyDrawdownPct >= r.config.DailyDrawdownLimitPct {
		fields["dailyDrawdownPct"] = state.DailyDrawdownPct
		r.logger.Warn(ctx, "Signal rejected: daily drawdown limit reached", fields)
		return false
	}

	return true
}

// SizePosition returns the capital to commit to a signal. Zero means no trade.
// The win probability is the signal's fair value and the price is fair value minus edge.
func (r *RiskManager) SizePosition(ctx context.Context, signal *domain.Signal) float64 {
	state := r.portfolio.State()
	price := signal.FairValue - signal.EdgeSize
	stake := r.sizer.Stake(signal.FairValue, price, state.TotalCapital, state.AvailableCapital)
	r.logger.Debug(ctx, "Position sized", map[string]interface{}{
		"signalID":  signal.ID,
		"winProb":   signal.FairValue,
		"price":     price,
		"kelly":     KellyFraction(signal.FairValue, price),
		"stake":     stake,
		"available": state.AvailableCapital,
	})
	return stake
}

// TriggerCircuitBreaker inserts an active breaker and alerts the operator.
func (r *RiskManager) TriggerCircuitBreaker(ctx context.Context, reason string) error {
	cb := &domain.CircuitBreaker{Reason: reason, TriggeredAt: r.clock.Now(), Status: domain.BreakerActive}
	if err := r.store.CreateCircuitBreaker(ctx, cb); err != nil {
		return fmt.Errorf("failed to trigger circuit breaker: %w", err)
	}
	r.logger.Warn(ctx, "CIRCUIT BREAKER TRIGGERED", map[string]interface{}{"breakerID": cb.ID, "reason": reason})
	if err := r.notifier.Notify(ctx, "Circuit breaker triggered: "+reason); err != nil {
		r.logger.Error(ctx, err, "Failed to send circuit breaker alert")
	}
	return nil
}

// tripOnce triggers a breaker unless one is already active. If the lookup fails
// the breaker is triggered anyway.
func (r *RiskManager) tripOnce(ctx context.Context, reason string) error {
	active, err := r.store.AnyActiveCircuitBreaker(ctx)
	if err != nil {
		r.logger.Error(ctx, err, "Circuit breaker lookup failed before trip")
	} else if active {
		r.logger.Debug(ctx, "Circuit breaker already active", map[string]interface{}{"reason": reason})
		return nil
	}
	return r.TriggerCircuitBreaker(ctx, reason)
}

// CheckConsecutiveLosses scans recently closed trades newest first and trips the
// breaker when the losing streak reaches the limit. It returns the streak length.
func (r *RiskManager) CheckConsecutiveLosses(ctx context.Context) (int, error) {
	limit := defaultLossScan
	if r.config.ConsecutiveLossLimit > limit {
		limit = r.config.ConsecutiveLossLimit
	}
	trades, err := r.ledger.RecentClosedTrades(ctx, r.clock.Now().Add(-r.config.LossLookback), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to load recent trades: %w", err)
	}

	streak := 0
	for _, t := range trades {
		if t.PNL >= 0 {
			break
		}
		streak++
	}

	if streak >= r.config.ConsecutiveLossLimit {
		reason := fmt.Sprintf("%d consecutive losses - cooldown activated", streak)
		if err := r.tripOnce(ctx, reason); err != nil {
			return streak, err
		}
	}
	return streak, nil
}

// UpdatePortfolio feeds realized P&L to the tracker and re-checks the drawdown limit.
func (r *RiskManager) UpdatePortfolio(ctx context.Context, pnl float64) error {
	// On a refresh error state is the incrementally updated cache; the limit still applies.
	state, err := r.portfolio.UpdatePNL(ctx, pnl)
	if err != nil {
		r.logger.Error(ctx, err, "Portfolio refresh after P&L update failed")
	}
	if checkErr := r.checkDrawdown(ctx, state); checkErr != nil {
		return checkErr
	}
	return err
}

// RefreshPortfolio reloads portfolio state and enforces the drawdown limit.
func (r *RiskManager) RefreshPortfolio(ctx context.Context) error {
	state, err := r.portfolio.RefreshState(ctx)
	if err != nil {
		return err
	}
	return r.checkDrawdown(ctx, state)
}

func (r *RiskManager) checkDrawdown(ctx context.Context, state domain.PortfolioState) error {
	if state.DailyDrawdownPct < r.config.DailyDrawdownLimitPct {
		return nil
	}
	reason := fmt.Sprintf("daily drawdown %.2f%% exceeds limit %.2f%%", state.DailyDrawdownPct, r.config.DailyDrawdownLimitPct)
	return r.tripOnce(ctx, reason)
}
