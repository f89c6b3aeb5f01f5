package domain

import "time"

// PortfolioState is a cached view of capital and drawdown recomputed from the trade ledger.
type PortfolioState struct {
	TotalCapital     float64
	AvailableCapital float64
	InvestedCapital  float64
	UnrealizedPNL    float64
	RealizedPNLToday float64
	DailyDrawdownPct float64 // >= 0
	MaxDrawdownPct   float64 // Non-decreasing within a trading day
	OpenPositions    int
	TradesToday      int
	SnapshotTime     time.Time
}

// LedgerAggregate is the capital summary the ledger computes over all trades.
type LedgerAggregate struct {
	TotalCapital     float64
	AvailableCapital float64
	InvestedCapital  float64
	UnrealizedPNL    float64
}
