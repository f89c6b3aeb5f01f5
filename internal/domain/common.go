package domain

import "time"

// Position represents the outcome side held by a trade (YES or NO shares).
type Position string

const (
	PositionYes Position = "yes"
	PositionNo  Position = "no"
)

// Opposite returns the other outcome side.
func (p Position) Opposite() Position {
	if p == PositionYes {
		return PositionNo
	}
	return PositionYes
}

// Direction is the action a signal recommends.
type Direction string

const (
	BuyYes Direction = "buy_yes"
	BuyNo  Direction = "buy_no"
)

// Position maps a signal direction onto the side that will be held.
func (d Direction) Position() Position {
	if d == BuyNo {
		return PositionNo
	}
	return PositionYes
}

// StrategyTag identifies the strategy that produced a signal or trade.
type StrategyTag string

const (
	StrategyClvArbitrage StrategyTag = "clv_arb"
	StrategyPoissonEv    StrategyTag = "poisson_ev"
)

// TradeStatus represents the lifecycle state of a trade.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonNone       CloseReason = ""
	CloseReasonResolved   CloseReason = "RESOLVED"
	CloseReasonStopLoss   CloseReason = "SL"
	CloseReasonTakeProfit CloseReason = "TP"
	CloseReasonTimeLimit  CloseReason = "TIME_LIMIT" // Position held longer than the configured window
)

// StartOfDay returns midnight UTC of the day containing t.
// Trading-day boundaries (trades today, realized P&L today, drawdown reset) all use it.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
