package models

import "math"

// SignificanceTier maps a z-score threshold to a confidence bonus.
type SignificanceTier struct {
	Z     float64
	Bonus float64
}

// DefaultSignificanceTiers are the one-sided 90/95/99% levels.
var DefaultSignificanceTiers = []SignificanceTier{
	{Z: 1.64, Bonus: 0.10},
	{Z: 1.96, Bonus: 0.15},
	{Z: 2.58, Bonus: 0.20},
}

// ProportionZScore measures how far a simulated proportion sits from a fair coin.
func ProportionZScore(p float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	return math.Abs(p-0.5) / math.Sqrt(0.25/float64(n))
}

// SignificanceBonus returns the bonus of the highest tier whose threshold z strictly exceeds.
func SignificanceBonus(z float64, tiers []SignificanceTier) float64 {
	bonus := 0.0
	best := math.Inf(-1)
	for _, t := range tiers {
		if z > t.Z && t.Z > best {
			best = t.Z
			bonus = t.Bonus
		}
	}
	return bonus
}
