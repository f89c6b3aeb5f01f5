package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyEdgeBot/internal/domain"
	"polyEdgeBot/internal/ports"
)

func TestWeightedConsensus(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, ok := WeightedConsensus(nil)
		assert.False(t, ok)
	})

	t.Run("removes vig and weights sharp books", func(t *testing.T) {
		quotes := []domain.ReferenceQuote{
			{Bookmaker: domain.BookmakerPinnacle, YesProb: 0.62, NoProb: 0.42},
			{Bookmaker: domain.BookmakerDraftKings, YesProb: 0.50, NoProb: 0.54},
		}
		c, ok := WeightedConsensus(quotes)
		require.True(t, ok)

		yes := (0.62*2 + 0.50) / 3
		no := (0.42*2 + 0.54) / 3
		assert.InDelta(t, yes/(yes+no), c.FairYes, 1e-12)
		assert.InDelta(t, 1.0, c.FairYes+c.FairNo, 1e-12)
		assert.Equal(t, 2, c.Sources)
	})
}

func TestSourceCountBonus(t *testing.T) {
	for n, want := range map[int]float64{0: 0, 1: 0, 2: 0.10, 3: 0.15, 4: 0.20, 9: 0.20} {
		assert.Equal(t, want, SourceCountBonus(n), "n=%d", n)
	}
}

func TestSimulateTotals_Deterministic(t *testing.T) {
	a, err := SimulateTotals(NewRand(42, "m1"), 24, 21, 45.5, 10000)
	require.NoError(t, err)
	b, err := SimulateTotals(NewRand(42, "m1"), 24, 21, 45.5, 10000)
	require.NoError(t, err)

	assert.Equal(t, math.Float64bits(a.OverProb), math.Float64bits(b.OverProb))
	assert.Equal(t, math.Float64bits(a.UnderProb), math.Float64bits(b.UnderProb))
	assert.Equal(t, a, b)

	c, err := SimulateTotals(NewRand(42, "m2"), 24, 21, 45.5, 10000)
	require.NoError(t, err)
	assert.NotEqual(t, a.OverProb, c.OverProb, "different market keys draw different streams")
}

func TestSimulateTotals_Moments(t *testing.T) {
	res, err := SimulateTotals(NewRand(7, "moments"), 24, 21, 45.5, 20000)
	require.NoError(t, err)

	// Sum of Poissons is Poisson(45): mean 45, stddev sqrt(45).
	assert.InDelta(t, 45.0, res.MeanTotal, 0.3)
	assert.InDelta(t, math.Sqrt(45), res.StdDev, 0.2)
	assert.InDelta(t, 1.0, res.OverProb+res.UnderProb+res.PushProb, 1e-12)
	assert.Zero(t, res.PushProb, "half-point line never pushes")
	assert.InDelta(t, 0.46, res.OverProb, 0.03)
}

func TestSimulateTotals_IntegerLinePushes(t *testing.T) {
	res, err := SimulateTotals(NewRand(3, "push"), 10, 10, 20, 5000)
	require.NoError(t, err)
	assert.Greater(t, res.PushProb, 0.0)
}

func TestSimulateTotals_InvalidInputs(t *testing.T) {
	rng := NewRand(1, "x")
	_, err := SimulateTotals(rng, 0, 21, 45.5, 100)
	assert.ErrorIs(t, err, ports.ErrInvalidLambda)
	_, err = SimulateTotals(rng, 24, 701, 45.5, 100)
	assert.ErrorIs(t, err, ports.ErrInvalidLambda)
	_, err = SimulateTotals(rng, 24, 21, 45.5, 0)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestSignificance(t *testing.T) {
	assert.InDelta(t, 2.0, ProportionZScore(0.51, 10000), 1e-9)
	assert.Zero(t, ProportionZScore(0.7, 0))

	tests := []struct {
		z    float64
		want float64
	}{
		{0.5, 0},
		{1.64, 0}, // strict
		{1.7, 0.10},
		{1.96, 0.10},
		{2.0, 0.15},
		{3.0, 0.20},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SignificanceBonus(tt.z, DefaultSignificanceTiers), "z=%.2f", tt.z)
	}
}
