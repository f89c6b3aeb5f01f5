package models

import "polyEdgeBot/internal/domain"

// BookmakerWeight returns how much a source counts toward consensus.
// Sharper books get more weight.
func BookmakerWeight(b domain.Bookmaker) float64 {
	switch b {
	case domain.BookmakerPinnacle:
		return 2.0
	case domain.BookmakerBetfair:
		return 1.5
	default:
		return 1.0
	}
}

// Consensus is the vig-free fair probability of each side.
type Consensus struct {
	FairYes float64
	FairNo  float64
	Sources int
}

// WeightedConsensus averages the quotes' implied probabilities by bookmaker weight
// and normalizes the pair to sum to one. ok is false when there is nothing usable.
func WeightedConsensus(quotes []domain.ReferenceQuote) (Consensus, bool) {
	var yesSum, noSum, weightSum float64
	for _, q := range quotes {
		w := BookmakerWeight(q.Bookmaker)
		yesSum += q.YesProb * w
		noSum += q.NoProb * w
		weightSum += w
	}
	if weightSum <= 0 {
		return Consensus{}, false
	}
	fairYes := yesSum / weightSum
	fairNo := noSum / weightSum
	total := fairYes + fairNo
	if total <= 0 {
		return Consensus{}, false
	}
	return Consensus{FairYes: fairYes / total, FairNo: fairNo / total, Sources: len(quotes)}, true
}

// SourceCountBonus rewards agreement across more reference sources.
func SourceCountBonus(n int) float64 {
	switch {
	case n >= 4:
		return 0.20
	case n == 3:
		return 0.15
	case n == 2:
		return 0.10
	default:
		return 0
	}
}
