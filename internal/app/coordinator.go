package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"polyEdgeBot/internal/domain"
	"polyEdgeBot/internal/ports"
)

// shareScale is the order quantity precision: shares trade in hundredths.
const shareScale = 100

// RiskGate is the slice of the risk manager the coordinator depends on.
type RiskGate interface {
	ValidateSignal(ctx context.Context, signal *domain.Signal) bool
	SizePosition(ctx context.Context, signal *domain.Signal) float64
	UpdatePortfolio(ctx context.Context, pnl float64) error
	RefreshPortfolio(ctx context.Context) error
	CheckConsecutiveLosses(ctx context.Context) (int, error)
}

// MarketReader looks up the latest snapshot of a single market.
type MarketReader interface {
	GetMarket(ctx context.Context, id string) (*domain.Market, error)
}

// CoordinatorConfig holds configuration for the execution coordinator.
type CoordinatorConfig struct {
	SignalFreshness time.Duration // Pending signals older than this are ignored
	SignalBatchSize int           // Signals processed per tick
}

// ExecutionCoordinator turns pending signals into trades and closes trades
// whose exit policy fires.
type ExecutionCoordinator struct {
	cfg      CoordinatorConfig
	signals  ports.SignalStore
	ledger   ports.TradeLedger
	markets  MarketReader
	executor ports.TradeExecutor
	risk     RiskGate
	exits    ports.ExitPolicy
	notifier ports.Notifier
	clock    ports.Clock
	logger   ports.Logger
}

// NewExecutionCoordinator creates a new coordinator.
func NewExecutionCoordinator(
	cfg CoordinatorConfig,
	signals ports.SignalStore,
	ledger ports.TradeLedger,
	markets MarketReader,
	executor ports.TradeExecutor,
	risk RiskGate,
	exits ports.ExitPolicy,
	notifier ports.Notifier,
	clock ports.Clock,
	logger ports.Logger,
) (*ExecutionCoordinator, error) {
	if signals == nil || ledger == nil || markets == nil || executor == nil || risk == nil || exits == nil || notifier == nil || clock == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for ExecutionCoordinator: %w", ports.ErrConfigurationError)
	}
	if cfg.SignalFreshness <= 0 {
		cfg.SignalFreshness = 5 * time.Minute
	}
	if cfg.SignalBatchSize <= 0 {
		cfg.SignalBatchSize = 10
	}
	return &ExecutionCoordinator{
		cfg:      cfg,
		signals:  signals,
		ledger:   ledger,
		markets:  markets,
		executor: executor,
		risk:     risk,
		exits:    exits,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
	}, nil
}

// ProcessPendingSignals runs one execution tick and returns the number of trades opened.
// A store failure while fetching makes the tick a no-op.
func (c *ExecutionCoordinator) ProcessPendingSignals(ctx context.Context) (int, error) {
	since := c.clock.Now().Add(-c.cfg.SignalFreshness)
	pending, err := c.signals.FetchPending(ctx, since, c.cfg.SignalBatchSize)
	if err != nil {
		c.logger.Error(ctx, err, "Failed to fetch pending signals")
		return 0, fmt.Errorf("fetch pending signals: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	c.logger.Debug(ctx, "Processing pending signals", map[string]interface{}{"count": len(pending)})

	opened := 0
	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		if c.processSignal(ctx, &pending[i]) {
			opened++
		}
	}
	return opened, nil
}

// processSignal validates, sizes and executes one signal. The signal is marked
// executed before the order goes out so it can never be acted on twice.
func (c *ExecutionCoordinator) processSignal(ctx context.Context, sig *domain.Signal) bool {
	fields := map[string]interface{}{
		"signalID": sig.ID,
		"marketID": sig.MarketID,
		"strategy": sig.Strategy,
		"edge":     sig.EdgeSize,
	}

	if !c.risk.ValidateSignal(ctx, sig) {
		c.softReject(ctx, sig, "risk validation failed")
		return false
	}

	stake := c.risk.SizePosition(ctx, sig)
	if stake <= 0 {
		c.softReject(ctx, sig, "position size is zero")
		return false
	}
	price := sig.ObservedPrice
	if price <= 0 || price >= 1 {
		c.softReject(ctx, sig, "observed price out of range")
		return false
	}
	quantity := orderQuantity(stake, price)
	if quantity <= 0 {
		c.softReject(ctx, sig, "order quantity rounds to zero")
		return false
	}
	cost := quantity * price

	if !c.claim(ctx, sig) {
		return false
	}

	position := sig.Direction.Position()
	// The fair value is the most the edge allows paying.
	txID, err := c.executor.ExecuteTrade(ctx, sig.MarketID, position, quantity, sig.FairValue)
	if err != nil {
		c.logger.Error(ctx, err, "Trade execution failed, signal will not be retried", fields)
		return false
	}

	trade := &domain.Trade{
		MarketID:   sig.MarketID,
		SignalID:   sig.ID,
		Strategy:   sig.Strategy,
		Position:   position,
		Quantity:   quantity,
		CostBasis:  cost,
		EntryPrice: price,
		EntryTime:  c.clock.Now(),
		EntryTxID:  txID,
		Status:     domain.TradeOpen,
	}
	if err := c.ledger.CreateTrade(ctx, trade); err != nil {
		fields["txID"] = txID
		c.logger.Error(ctx, err, "Order filled but trade could not be recorded", fields)
		c.alert(ctx, fmt.Sprintf("Unrecorded fill %s on market %s (signal %s): %v", txID, sig.MarketID, sig.ID, err))
		return false
	}
	if err := c.signals.LinkTrade(ctx, sig.ID, trade.ID); err != nil {
		c.logger.Error(ctx, err, "Failed to link trade to signal", map[string]interface{}{"signalID": sig.ID, "tradeID": trade.ID})
	}

	c.logger.Info(ctx, "Trade opened", map[string]interface{}{
		"tradeID":   trade.ID,
		"signalID":  sig.ID,
		"marketID":  sig.MarketID,
		"position":  position,
		"quantity":  quantity,
		"price":     price,
		"costBasis": cost,
		"txID":      txID,
	})

	if err := c.risk.RefreshPortfolio(ctx); err != nil {
		c.logger.Error(ctx, err, "Portfolio refresh after trade failed")
	}
	return true
}

// softReject marks a signal executed without a trade. It is never retried.
func (c *ExecutionCoordinator) softReject(ctx context.Context, sig *domain.Signal, reason string) {
	if c.claim(ctx, sig) {
		c.logger.Info(ctx, "Signal rejected", map[string]interface{}{"signalID": sig.ID, "reason": reason})
	}
}

// orderQuantity converts a stake into whole cents of shares, rounding down so the
// recorded quantity is exactly what the executor fills.
func orderQuantity(stake, price float64) float64 {
	return math.Floor(stake/price*shareScale+1e-9) / shareScale
}

// claim marks the signal executed and reports whether this caller won it.
func (c *ExecutionCoordinator) claim(ctx context.Context, sig *domain.Signal) bool {
	err := c.signals.MarkExecuted(ctx, sig.ID, nil)
	switch {
	case err == nil:
		sig.Executed = true
		return true
	case errors.Is(err, ports.ErrAlreadyExecuted):
		c.logger.Debug(ctx, "Signal already executed elsewhere", map[string]interface{}{"signalID": sig.ID})
	default:
		c.logger.Error(ctx, err, "Failed to mark signal executed", map[string]interface{}{"signalID": sig.ID})
	}
	return false
}

// MonitorPositions evaluates the exit policy for every open trade and closes
// those that trigger. It returns the number of trades closed.
func (c *ExecutionCoordinator) MonitorPositions(ctx context.Context) (int, error) {
	open, err := c.ledger.OpenTrades(ctx)
	if err != nil {
		c.logger.Error(ctx, err, "Failed to load open trades")
		return 0, fmt.Errorf("load open trades: %w", err)
	}

	closed := 0
	for i := range open {
		if ctx.Err() != nil {
			break
		}
		trade := &open[i]
		market, err := c.markets.GetMarket(ctx, trade.MarketID)
		if err != nil {
			c.logger.Error(ctx, err, "Failed to load market for open trade", map[string]interface{}{"tradeID": trade.ID, "marketID": trade.MarketID})
			continue
		}
		exit, reason, exitPrice := c.exits.ShouldExit(ctx, trade, market, c.clock.Now())
		if !exit {
			continue
		}
		if c.closeTrade(ctx, trade, reason, exitPrice) {
			closed++
		}
	}
	return closed, nil
}

// closeTrade sends the opposite-side order and records the close. On any
// failure before the ledger update the trade stays open for the next tick.
func (c *ExecutionCoordinator) closeTrade(ctx context.Context, trade *domain.Trade, reason domain.CloseReason, exitPrice float64) bool {
	fields := map[string]interface{}{
		"tradeID":   trade.ID,
		"marketID":  trade.MarketID,
		"reason":    reason,
		"exitPrice": exitPrice,
	}

	txID, err := c.executor.ExecuteTrade(ctx, trade.MarketID, trade.Position.Opposite(), trade.Quantity, 1)
	if err != nil {
		c.logger.Error(ctx, err, "Close order failed, trade stays open", fields)
		return false
	}

	pnl := trade.RealizedPNL(exitPrice)
	trade.ExitPrice = exitPrice
	trade.ExitTime = c.clock.Now()
	trade.ExitTxID = txID
	trade.PNL = pnl
	trade.Status = domain.TradeClosed
	trade.CloseReason = reason

	if err := c.ledger.CloseTrade(ctx, trade); err != nil {
		if errors.Is(err, ports.ErrTradeNotOpen) {
			c.logger.Warn(ctx, "Trade was already closed", fields)
			return false
		}
		fields["txID"] = txID
		c.logger.Error(ctx, err, "Close order filled but trade could not be updated", fields)
		c.alert(ctx, fmt.Sprintf("Unrecorded close %s for trade %s: %v", txID, trade.ID, err))
		return false
	}

	fields["pnl"] = pnl
	fields["txID"] = txID
	c.logger.Info(ctx, "Trade closed", fields)

	if err := c.risk.UpdatePortfolio(ctx, pnl); err != nil {
		c.logger.Error(ctx, err, "Portfolio update after close failed")
	}
	if _, err := c.risk.CheckConsecutiveLosses(ctx); err != nil {
		c.logger.Error(ctx, err, "Consecutive loss check failed")
	}
	return true
}

func (c *ExecutionCoordinator) alert(ctx context.Context, msg string) {
	if err := c.notifier.Notify(ctx, msg); err != nil {
		c.logger.Error(ctx, err, "Failed to send operator alert")
	}
}
