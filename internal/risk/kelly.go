package risk

import "math"

const (
	// maxKellyFraction caps full Kelly before the configured fraction is applied.
	maxKellyFraction = 0.25
	// reserveRatio is the share of available capital a single position may use.
	reserveRatio = 0.95
)

// KellyFraction returns the bankroll fraction for buying a binary share at price
// that pays 1 with probability winProb: (p - c) / (1 - c), clamped to [0, 0.25].
func KellyFraction(winProb, price float64) float64 {
	if price <= 0 || price >= 1 || winProb <= 0 || winProb > 1 {
		return 0
	}
	f := (winProb - price) / (1 - price)
	return math.Max(0, math.Min(f, maxKellyFraction))
}

// Sizer turns an edge into a capital stake.
type Sizer struct {
	KellyMultiplier    float64 // Fractional Kelly, e.g. 0.5
	MaxPositionSizePct float64 // % of total capital
}

// Stake returns the capital to commit, capped by the per-position limit and by
// 95% of available capital. Zero means no trade.
func (s Sizer) Stake(winProb, price, totalCapital, availableCapital float64) float64 {
	if totalCapital <= 0 || availableCapital <= 0 {
		return 0
	}
	stake := KellyFraction(winProb, price) * s.KellyMultiplier * totalCapital
	stake = math.Min(stake, totalCapital*s.MaxPositionSizePct/100)
	stake = math.Min(stake, availableCapital*reserveRatio)
	if stake <= 0 || math.IsNaN(stake) {
		return 0
	}
	return stake
}
