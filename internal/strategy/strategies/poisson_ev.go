package strategies

import (
	"context"
	"errors"
	"fmt"
	"math"

	"polyEdgeBot/internal/domain"
	"polyEdgeBot/internal/ports"
	"polyEdgeBot/internal/strategy/models"
)

// PoissonEvConfig holds Poisson strategy parameters.
type PoissonEvConfig struct {
	MinEdgePct        float64
	SimulationCount   int
	Seed              uint64 // 0 means nondeterministic
	SignificanceTiers []models.SignificanceTier
	BaseUnit          float64
}

// PoissonEv prices total (over/under) markets by simulating both sides' scores.
// YES is the over side, NO the under side.
type PoissonEv struct {
	*BaseStrategy
	ratings RatingsSource
	config  PoissonEvConfig
}

// NewPoissonEv creates a new Poisson expected value strategy.
func NewPoissonEv(cfg PoissonEvConfig, ratings RatingsSource, logger ports.Logger, clock ports.Clock) (*PoissonEv, error) {
	if cfg.MinEdgePct <= 0 {
		return nil, fmt.Errorf("min edge must be positive: %w", ports.ErrConfigurationError)
	}
	if cfg.SimulationCount <= 0 {
		return nil, fmt.Errorf("simulation count must be positive: %w", ports.ErrConfigurationError)
	}
	if cfg.SignificanceTiers == nil {
		cfg.SignificanceTiers = models.DefaultSignificanceTiers
	}
	if cfg.BaseUnit <= 0 {
		cfg.BaseUnit = 1000
	}
	return &PoissonEv{
		BaseStrategy: NewBaseStrategy(domain.StrategyPoissonEv, logger, clock),
		ratings:      ratings,
		config:       cfg,
	}, nil
}

// Name returns the name of the strategy
func (s *PoissonEv) Name() string {
	return "Poisson Expected Value"
}

// ScoringRates derives each side's mean score from the matchup ratings.
func ScoringRates(m *domain.Matchup) (home, away float64) {
	home = (m.Home.PointsFor+m.Away.PointsAgainst)/2 + m.HomeAdvantage
	away = (m.Away.PointsFor + m.Home.PointsAgainst) / 2
	return home, away
}

// GenerateSignals simulates each active total market and emits a signal when
// the simulated probability beats the price by the configured edge.
func (s *PoissonEv) GenerateSignals(ctx context.Context, markets []domain.Market) ([]domain.Signal, error) {
	var signals []domain.Signal

	for i := range markets {
		if err := ctx.Err(); err != nil {
			return signals, err
		}
		m := &markets[i]
		if m.Type != domain.MarketTotal || !m.IsActive() {
			continue
		}

		line, ok := m.TotalLine()
		if !ok {
			s.logger.Debug(ctx, "No total line for market", map[string]interface{}{"marketID": m.ID})
			continue
		}

		matchup, err := s.ratings.MatchupRatings(ctx, m.ID)
		if err != nil {
			if !errors.Is(err, ports.ErrNoRatings) {
				s.logger.Warn(ctx, "Failed to fetch matchup ratings", map[string]interface{}{"marketID": m.ID, "error": err.Error()})
			}
			continue
		}
		lambdaHome, lambdaAway := ScoringRates(matchup)

		sim, err := models.SimulateTotals(models.NewRand(s.config.Seed, m.ID), lambdaHome, lambdaAway, line, s.config.SimulationCount)
		if err != nil {
			s.logger.Debug(ctx, "Simulation failed", map[string]interface{}{"marketID": m.ID, "error": err.Error()})
			continue
		}

		sig, ok := s.evaluate(m, sim, lambdaHome, lambdaAway, line)
		if !ok {
			continue
		}
		s.logger.Info(ctx, "Poisson EV signal", map[string]interface{}{
			"marketID":   m.ID,
			"event":      m.EventName,
			"direction":  sig.Direction,
			"edgePct":    sig.EdgeSize * 100,
			"confidence": sig.Confidence,
			"line":       line,
		})
		signals = append(signals, sig)
	}
	return signals, nil
}

func (s *PoissonEv) evaluate(m *domain.Market, sim models.TotalsResult, lambdaHome, lambdaAway, line float64) (domain.Signal, bool) {
	threshold := s.config.MinEdgePct / 100

	dir, edge, fair := domain.BuyYes, sim.OverProb-m.YesPrice, sim.OverProb
	if edge <= threshold {
		dir, edge, fair = domain.BuyNo, sim.UnderProb-m.NoPrice, sim.UnderProb
		if edge <= threshold {
			return domain.Signal{}, false
		}
	}

	edgePct := edge * 100
	z := models.ProportionZScore(sim.OverProb, sim.Simulations)
	confidence := math.Min(math.Min(edgePct/20, 0.8)+models.SignificanceBonus(z, s.config.SignificanceTiers), 1.0)

	meta := map[string]interface{}{
		"lambda_home":       lambdaHome,
		"lambda_away":       lambdaAway,
		"total_line":        line,
		"simulated_mean":    sim.MeanTotal,
		"simulated_std_dev": sim.StdDev,
		"over_probability":  sim.OverProb,
		"under_probability": sim.UnderProb,
		"push_probability":  sim.PushProb,
		"simulations":       sim.Simulations,
		"z_score":           z,
	}
	return s.newSignal(m, dir, confidence, edge, fair, s.config.BaseUnit*confidence, meta), true
}
