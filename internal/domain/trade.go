package domain

import "time"

// Trade is a position opened from a signal and closed by the position monitor.
// A trade transitions open->closed exactly once.
type Trade struct {
	ID          string
	MarketID    string
	SignalID    string
	Strategy    StrategyTag
	Position    Position
	Quantity    float64 // Shares held
	CostBasis   float64 // Capital committed at entry (quantity * entry price)
	EntryPrice  float64
	EntryTime   time.Time
	EntryTxID   string
	ExitPrice   float64   // Zero while open
	ExitTime    time.Time // Zero while open
	ExitTxID    string
	PNL         float64 // Realized profit and loss, set on close
	Status      TradeStatus
	CloseReason CloseReason
}

// IsOpen checks if the trade is still open.
func (t *Trade) IsOpen() bool {
	return t.Status == TradeOpen
}

// RealizedPNL returns (exit - entry) * quantity for the given exit price.
func (t *Trade) RealizedPNL(exitPrice float64) float64 {
	return (exitPrice - t.EntryPrice) * t.Quantity
}
