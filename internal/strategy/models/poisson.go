package models

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"polyEdgeBot/internal/ports"
)

// MaxLambda bounds the rate the inverse-CDF sampler can handle before exp(-λ) underflows.
const MaxLambda = 700.0

// NewRand returns a PCG source. A non-zero seed is mixed with key so that runs are
// reproducible per market; zero seeds from the runtime.
func NewRand(seed uint64, key string) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return rand.New(rand.NewPCG(seed, h.Sum64()))
}

// SamplePoisson draws one value from Poisson(lambda) by inverse CDF.
func SamplePoisson(rng *rand.Rand, lambda float64) int {
	u := rng.Float64()
	p := math.Exp(-lambda)
	s := p
	k := 0
	for u > s {
		k++
		p *= lambda / float64(k)
		s += p
		if p == 0 {
			break // Tail exhausted in floating point
		}
	}
	return k
}

// TotalsResult summarizes a simulated distribution of combined scores against a line.
type TotalsResult struct {
	Simulations int
	OverProb    float64
	UnderProb   float64
	PushProb    float64
	MeanTotal   float64
	StdDev      float64
}

// SimulateTotals draws n independent (home, away) score pairs and measures how often
// the total lands over, under or exactly on line.
func SimulateTotals(rng *rand.Rand, lambdaHome, lambdaAway, line float64, n int) (TotalsResult, error) {
	if err := validateLambda(lambdaHome); err != nil {
		return TotalsResult{}, err
	}
	if err := validateLambda(lambdaAway); err != nil {
		return TotalsResult{}, err
	}
	if n <= 0 {
		return TotalsResult{}, fmt.Errorf("simulation count %d: %w", n, ports.ErrInvalidRequest)
	}

	var over, under, push int
	var sum, sumSq float64
	for i := 0; i < n; i++ {
		total := float64(SamplePoisson(rng, lambdaHome) + SamplePoisson(rng, lambdaAway))
		switch {
		case total > line:
			over++
		case total < line:
			under++
		default:
			push++
		}
		sum += total
		sumSq += total * total
	}

	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return TotalsResult{
		Simulations: n,
		OverProb:    float64(over) / float64(n),
		UnderProb:   float64(under) / float64(n),
		PushProb:    float64(push) / float64(n),
		MeanTotal:   mean,
		StdDev:      math.Sqrt(variance),
	}, nil
}

func validateLambda(lambda float64) error {
	if lambda <= 0 || lambda > MaxLambda || math.IsNaN(lambda) {
		return fmt.Errorf("lambda %.4f out of (0, %.0f]: %w", lambda, MaxLambda, ports.ErrInvalidLambda)
	}
	return nil
}
