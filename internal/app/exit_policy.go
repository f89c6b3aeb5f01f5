package app

import (
	"context"
	"time"

	"polyEdgeBot/internal/domain"
)

// ExitConfig holds thresholds for the default exit policy. Zero disables a rule.
type ExitConfig struct {
	StopLossPct     float64       // % drop of the held side's price from entry
	TakeProfitPct   float64       // % rise of the held side's price from entry
	MaxHoldDuration time.Duration // Close after holding this long
}

// DefaultExitPolicy closes on resolution, stop-loss, take-profit and hold time, in that order.
type DefaultExitPolicy struct {
	cfg ExitConfig
}

// NewDefaultExitPolicy creates the default exit policy.
func NewDefaultExitPolicy(cfg ExitConfig) *DefaultExitPolicy {
	return &DefaultExitPolicy{cfg: cfg}
}

// ShouldExit implements ports.ExitPolicy.
func (p *DefaultExitPolicy) ShouldExit(_ context.Context, trade *domain.Trade, market *domain.Market, now time.Time) (bool, domain.CloseReason, float64) {
	if trade == nil || market == nil || !trade.IsOpen() {
		return false, domain.CloseReasonNone, 0
	}

	if market.Status == domain.MarketResolved {
		if market.Outcome == "" {
			return false, domain.CloseReasonNone, 0 // Awaiting settlement
		}
		if market.Outcome == trade.Position {
			return true, domain.CloseReasonResolved, 1
		}
		return true, domain.CloseReasonResolved, 0
	}
	if !market.IsActive() {
		return false, domain.CloseReasonNone, 0
	}

	price := market.Price(trade.Position)
	if p.cfg.StopLossPct > 0 && price <= trade.EntryPrice*(1-p.cfg.StopLossPct/100) {
		return true, domain.CloseReasonStopLoss, price
	}
	if p.cfg.TakeProfitPct > 0 && price >= trade.EntryPrice*(1+p.cfg.TakeProfitPct/100) {
		return true, domain.CloseReasonTakeProfit, price
	}
	if p.cfg.MaxHoldDuration > 0 && now.Sub(trade.EntryTime) >= p.cfg.MaxHoldDuration {
		return true, domain.CloseReasonTimeLimit, price
	}
	return false, domain.CloseReasonNone, 0
}
