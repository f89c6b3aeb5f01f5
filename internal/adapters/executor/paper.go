package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"polyEdgeBot/internal/domain"
	"polyEdgeBot/internal/ports"
)

// MarketReader is the slice of the market store the paper executor needs.
type MarketReader interface {
	GetMarket(ctx context.Context, id string) (*domain.Market, error)
}

// Fill records one simulated order.
type Fill struct {
	TxHash   string
	MarketID string
	Position domain.Position
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Notional decimal.Decimal
	FilledAt time.Time
}

// PaperExecutor fills orders against the last stored market price plus slippage.
// It never touches a chain; transaction hashes are synthetic.
type PaperExecutor struct {
	markets  MarketReader
	slippage decimal.Decimal // Fraction, e.g. 0.005
	clock    ports.Clock
	logger   ports.Logger

	mu    sync.Mutex
	fills []Fill
}

// Config holds configuration for the paper executor.
type Config struct {
	Markets     MarketReader
	SlippagePct float64
	Clock       ports.Clock
	Logger      ports.Logger
}

// NewPaperExecutor creates a new paper executor.
func NewPaperExecutor(cfg Config) (*PaperExecutor, error) {
	if cfg.Markets == nil || cfg.Clock == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("markets, clock and logger are required: %w", ports.ErrConfigurationError)
	}
	return &PaperExecutor{
		markets:  cfg.Markets,
		slippage: decimal.NewFromFloat(cfg.SlippagePct).Div(decimal.NewFromInt(100)),
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}, nil
}

// ExecuteTrade simulates buying quantity shares of position at no more than maxPrice.
func (e *PaperExecutor) ExecuteTrade(ctx context.Context, marketID string, position domain.Position, quantity, maxPrice float64) (string, error) {
	qty := decimal.NewFromFloat(quantity).Round(2)
	if !qty.IsPositive() {
		return "", fmt.Errorf("quantity %s must be positive: %w", qty, ports.ErrInvalidRequest)
	}

	market, err := e.markets.GetMarket(ctx, marketID)
	if err != nil {
		return "", fmt.Errorf("paper fill for market %s: %w", marketID, err)
	}
	if market.Status == domain.MarketSuspended {
		return "", fmt.Errorf("market %s is suspended: %w: %w", marketID, ports.ErrInvalidMarket, ports.ErrExecutionFailed)
	}

	price := decimal.NewFromFloat(market.Price(position)).
		Mul(decimal.NewFromInt(1).Add(e.slippage)).
		Round(4)
	if price.GreaterThan(decimal.NewFromInt(1)) {
		price = decimal.NewFromInt(1)
	}
	limit := decimal.NewFromFloat(maxPrice).Round(4)
	if price.GreaterThan(limit) {
		return "", fmt.Errorf("fill price %s above limit %s for market %s: %w", price, limit, marketID, ports.ErrExecutionFailed)
	}

	fill := Fill{
		TxHash:   "0x" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		MarketID: marketID,
		Position: position,
		Quantity: qty,
		Price:    price,
		Notional: qty.Mul(price).Round(2),
		FilledAt: e.clock.Now(),
	}

	e.mu.Lock()
	e.fills = append(e.fills, fill)
	e.mu.Unlock()

	e.logger.Info(ctx, "Paper order filled", map[string]interface{}{
		"txHash":   fill.TxHash,
		"marketID": marketID,
		"position": position,
		"quantity": fill.Quantity.String(),
		"price":    fill.Price.StringFixed(4),
		"notional": fill.Notional.StringFixed(2),
	})
	return fill.TxHash, nil
}

// Fills returns a copy of every simulated fill.
func (e *PaperExecutor) Fills() []Fill {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Fill, len(e.fills))
	copy(out, e.fills)
	return out
}
