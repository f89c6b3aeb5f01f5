package strategies

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyEdgeBot/internal/domain"
	"polyEdgeBot/internal/ports"
	"polyEdgeBot/internal/strategy/models"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type mockQuotes struct {
	byMarket map[string][]domain.ReferenceQuote
	err      error
	since    time.Time
}

func (m *mockQuotes) RecentQuotes(_ context.Context, marketID string, since time.Time) ([]domain.ReferenceQuote, error) {
	m.since = since
	if m.err != nil {
		return nil, m.err
	}
	return m.byMarket[marketID], nil
}

type mockRatings map[string]*domain.Matchup

func (m mockRatings) MatchupRatings(_ context.Context, marketID string) (*domain.Matchup, error) {
	if r, ok := m[marketID]; ok {
		return r, nil
	}
	return nil, ports.ErrNoRatings
}

func market(id string, yes, no float64) domain.Market {
	return domain.Market{ID: id, EventName: id, Type: domain.MarketMoneyline, YesPrice: yes, NoPrice: no, Liquidity: 10000, Status: domain.MarketActive, EventTime: now.Add(time.Hour)}
}

func quote(b domain.Bookmaker, yes, no float64) domain.ReferenceQuote {
	return domain.ReferenceQuote{Bookmaker: b, YesProb: yes, NoProb: no, ObservedAt: now.Add(-time.Minute)}
}

func newClv(t *testing.T, q QuoteSource) *ClvArbitrage {
	t.Helper()
	s, err := NewClvArbitrage(ClvArbitrageConfig{MinDivergencePct: 3, BaseUnit: 1000}, q, &mockLogger{}, fixedClock{t: now})
	require.NoError(t, err)
	return s
}

func TestClvArbitrage_BuyYesOnConsensusGap(t *testing.T) {
	q := &mockQuotes{byMarket: map[string][]domain.ReferenceQuote{
		"m1": {quote(domain.BookmakerPinnacle, 0.60, 0.40)},
	}}
	s := newClv(t, q)

	signals, err := s.GenerateSignals(context.Background(), []domain.Market{market("m1", 0.55, 0.45)})
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, domain.BuyYes, sig.Direction)
	assert.Equal(t, domain.StrategyClvArbitrage, sig.Strategy)
	assert.InDelta(t, 0.05, sig.EdgeSize, 1e-9)
	assert.InDelta(t, 0.60, sig.FairValue, 1e-9)
	assert.Equal(t, 0.55, sig.ObservedPrice)
	assert.InDelta(t, 0.5, sig.Confidence, 1e-9) // 5/10, single source
	assert.InDelta(t, 500, sig.RecommendedSize, 1e-6)
	assert.Equal(t, now, sig.GeneratedAt)
	assert.NotEmpty(t, sig.ID)
	assert.False(t, sig.Executed)
	assert.Equal(t, now.Add(-time.Hour), q.since, "quotes older than an hour are ignored")
}

func TestClvArbitrage_Cases(t *testing.T) {
	tests := []struct {
		name     string
		quotes   []domain.ReferenceQuote
		market   domain.Market
		wantDir  domain.Direction
		wantNone bool
		wantConf float64
	}{
		{
			name:     "below threshold",
			quotes:   []domain.ReferenceQuote{quote(domain.BookmakerPinnacle, 0.57, 0.43)},
			market:   market("m", 0.55, 0.45),
			wantNone: true,
		},
		{
			name:     "no quotes",
			market:   market("m", 0.55, 0.45),
			wantNone: true,
		},
		{
			name:     "buy no when no is underpriced",
			quotes:   []domain.ReferenceQuote{quote(domain.BookmakerPinnacle, 0.40, 0.60), quote(domain.BookmakerBetfair, 0.40, 0.60)},
			market:   market("m", 0.45, 0.52),
			wantDir:  domain.BuyNo,
			wantConf: 0.8, // min(8/10, 0.7) + two-source bonus
		},
		{
			name: "four sources cap at one",
			quotes: []domain.ReferenceQuote{
				quote(domain.BookmakerPinnacle, 0.80, 0.20), quote(domain.BookmakerBetfair, 0.80, 0.20),
				quote(domain.BookmakerDraftKings, 0.80, 0.20), quote("fanduel", 0.80, 0.20),
			},
			market:   market("m", 0.50, 0.50),
			wantDir:  domain.BuyYes,
			wantConf: 0.9,
		},
		{
			name:     "suspended market skipped",
			quotes:   []domain.ReferenceQuote{quote(domain.BookmakerPinnacle, 0.80, 0.20)},
			market:   func() domain.Market { m := market("m", 0.5, 0.5); m.Status = domain.MarketSuspended; return m }(),
			wantNone: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newClv(t, &mockQuotes{byMarket: map[string][]domain.ReferenceQuote{"m": tt.quotes}})
			signals, err := s.GenerateSignals(context.Background(), []domain.Market{tt.market})
			require.NoError(t, err)
			if tt.wantNone {
				assert.Empty(t, signals)
				return
			}
			require.Len(t, signals, 1)
			assert.Equal(t, tt.wantDir, signals[0].Direction)
			assert.InDelta(t, tt.wantConf, signals[0].Confidence, 1e-9)
		})
	}
}

func TestClvArbitrage_YesTakesPriority(t *testing.T) {
	// Both sides cheap relative to consensus: only YES is emitted.
	s := newClv(t, &mockQuotes{byMarket: map[string][]domain.ReferenceQuote{
		"m": {quote(domain.BookmakerPinnacle, 0.50, 0.50)},
	}})
	signals, err := s.GenerateSignals(context.Background(), []domain.Market{market("m", 0.40, 0.40)})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, domain.BuyYes, signals[0].Direction)
}

func TestClvArbitrage_QuoteErrorSkipsMarket(t *testing.T) {
	s := newClv(t, &mockQuotes{err: errors.New("db down")})
	signals, err := s.GenerateSignals(context.Background(), []domain.Market{market("m", 0.5, 0.5)})
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestNewClvArbitrage_InvalidConfig(t *testing.T) {
	_, err := NewClvArbitrage(ClvArbitrageConfig{}, &mockQuotes{}, &mockLogger{}, fixedClock{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func totalMarket(id string, yes, no, line float64) domain.Market {
	m := market(id, yes, no)
	m.Type = domain.MarketTotal
	m.Line = line
	return m
}

func evenMatchup(id string) *domain.Matchup {
	// λ_home = (24+21)/2 = 22.5, λ_away = 22.5, total mean 45
	return &domain.Matchup{
		MarketID: id,
		Home:     domain.TeamRating{Team: "H", PointsFor: 24, PointsAgainst: 21},
		Away:     domain.TeamRating{Team: "A", PointsFor: 24, PointsAgainst: 21},
	}
}

func newPoisson(t *testing.T, ratings RatingsSource, seed uint64) *PoissonEv {
	t.Helper()
	s, err := NewPoissonEv(PoissonEvConfig{MinEdgePct: 5, SimulationCount: 10000, Seed: seed, BaseUnit: 1000}, ratings, &mockLogger{}, fixedClock{t: now})
	require.NoError(t, err)
	return s
}

func TestScoringRates(t *testing.T) {
	home, away := ScoringRates(&domain.Matchup{
		Home:          domain.TeamRating{PointsFor: 28, PointsAgainst: 20},
		Away:          domain.TeamRating{PointsFor: 22, PointsAgainst: 24},
		HomeAdvantage: 1.5,
	})
	assert.InDelta(t, 27.5, home, 1e-12)
	assert.InDelta(t, 21.0, away, 1e-12)
}

func TestPoissonEv_OverUnderSignals(t *testing.T) {
	ratings := mockRatings{"over": evenMatchup("over"), "under": evenMatchup("under"), "fair": evenMatchup("fair")}
	s := newPoisson(t, ratings, 42)

	// P(total > 40.5) for Poisson(45) is ~0.74; P(total < 49.5) is ~0.74.
	markets := []domain.Market{
		totalMarket("over", 0.55, 0.45, 40.5),
		totalMarket("under", 0.45, 0.55, 49.5),
		totalMarket("fair", 0.46, 0.54, 45.5),
		market("moneyline", 0.10, 0.10),
	}
	signals, err := s.GenerateSignals(context.Background(), markets)
	require.NoError(t, err)
	require.Len(t, signals, 2)

	over, under := signals[0], signals[1]
	assert.Equal(t, "over", over.MarketID)
	assert.Equal(t, domain.BuyYes, over.Direction)
	assert.InDelta(t, over.FairValue-0.55, over.EdgeSize, 1e-12)
	assert.Greater(t, over.EdgeSize, 0.05)
	assert.Equal(t, 40.5, over.Metadata["total_line"])

	assert.Equal(t, "under", under.MarketID)
	assert.Equal(t, domain.BuyNo, under.Direction)
	assert.Equal(t, 0.55, under.ObservedPrice)

	for _, sig := range signals {
		assert.LessOrEqual(t, sig.Confidence, 1.0)
		// Edge around 19 points: min(19/20, 0.8) plus the top significance tier.
		assert.InDelta(t, 1.0, sig.Confidence, 1e-9)
	}
}

func TestPoissonEv_DeterministicWithSeed(t *testing.T) {
	ratings := mockRatings{"m": evenMatchup("m")}
	markets := []domain.Market{totalMarket("m", 0.35, 0.40, 45.5)}

	a, err := newPoisson(t, ratings, 99).GenerateSignals(context.Background(), markets)
	require.NoError(t, err)
	b, err := newPoisson(t, ratings, 99).GenerateSignals(context.Background(), markets)
	require.NoError(t, err)

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].FairValue, b[0].FairValue)
	assert.Equal(t, a[0].Metadata["over_probability"], b[0].Metadata["over_probability"])
	assert.Equal(t, a[0].Metadata["simulated_mean"], b[0].Metadata["simulated_mean"])
}

func TestPoissonEv_SkipsWithoutInputs(t *testing.T) {
	s := newPoisson(t, mockRatings{"bad": {MarketID: "bad"}}, 1)

	noLine := totalMarket("noline", 0.1, 0.1, 0)
	noRatings := totalMarket("noratings", 0.1, 0.1, 45.5)
	badLambda := totalMarket("bad", 0.1, 0.1, 45.5) // all-zero ratings

	signals, err := s.GenerateSignals(context.Background(), []domain.Market{noLine, noRatings, badLambda})
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestPoissonEv_LineFromDescription(t *testing.T) {
	s := newPoisson(t, mockRatings{"m": evenMatchup("m")}, 5)
	m := totalMarket("m", 0.55, 0.45, 0)
	m.Desc = "Total Points Over 40.5"

	signals, err := s.GenerateSignals(context.Background(), []domain.Market{m})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, 40.5, signals[0].Metadata["total_line"])
}

func TestPoissonEv_CustomTiers(t *testing.T) {
	s, err := NewPoissonEv(PoissonEvConfig{
		MinEdgePct:        5,
		SimulationCount:   10000,
		Seed:              1,
		SignificanceTiers: []models.SignificanceTier{{Z: 1000, Bonus: 0.5}},
	}, mockRatings{"m": evenMatchup("m")}, &mockLogger{}, fixedClock{t: now})
	require.NoError(t, err)

	signals, err := s.GenerateSignals(context.Background(), []domain.Market{totalMarket("m", 0.55, 0.45, 40.5)})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.InDelta(t, 0.8, signals[0].Confidence, 1e-9, "edge term capped, unreachable tier adds nothing")
}
