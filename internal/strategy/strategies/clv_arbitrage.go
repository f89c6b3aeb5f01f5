package strategies

import (
	"context"
	"fmt"
	"math"
	"time"

	"polyEdgeBot/internal/domain"
	"polyEdgeBot/internal/ports"
	"polyEdgeBot/internal/strategy/models"
)

// quoteWindow is how far back reference quotes are considered fresh.
const quoteWindow = time.Hour

// ClvArbitrageConfig holds CLV strategy parameters.
type ClvArbitrageConfig struct {
	MinDivergencePct float64 // e.g., 3.0 for 3 points of probability
	BaseUnit         float64 // Recommended size at full confidence
}

// ClvArbitrage trades markets whose price lags the consensus of sharp bookmakers.
type ClvArbitrage struct {
	*BaseStrategy
	quotes QuoteSource
	config ClvArbitrageConfig
}

// NewClvArbitrage creates a new CLV arbitrage strategy.
func NewClvArbitrage(cfg ClvArbitrageConfig, quotes QuoteSource, logger ports.Logger, clock ports.Clock) (*ClvArbitrage, error) {
	if cfg.MinDivergencePct <= 0 {
		return nil, fmt.Errorf("min divergence must be positive: %w", ports.ErrConfigurationError)
	}
	if cfg.BaseUnit <= 0 {
		cfg.BaseUnit = 1000
	}
	return &ClvArbitrage{
		BaseStrategy: NewBaseStrategy(domain.StrategyClvArbitrage, logger, clock),
		quotes:       quotes,
		config:       cfg,
	}, nil
}

// Name returns the name of the strategy
func (s *ClvArbitrage) Name() string {
	return "CLV Arbitrage"
}

// GenerateSignals compares each market to the weighted bookmaker consensus.
func (s *ClvArbitrage) GenerateSignals(ctx context.Context, markets []domain.Market) ([]domain.Signal, error) {
	var signals []domain.Signal
	since := s.clock.Now().Add(-quoteWindow)

	for i := range markets {
		if err := ctx.Err(); err != nil {
			return signals, err
		}
		m := &markets[i]
		if !m.IsActive() {
			continue
		}

		quotes, err := s.quotes.RecentQuotes(ctx, m.ID, since)
		if err != nil {
			s.logger.Debug(ctx, "Failed to fetch reference quotes", map[string]interface{}{"marketID": m.ID, "error": err.Error()})
			continue
		}
		consensus, ok := models.WeightedConsensus(quotes)
		if !ok {
			continue
		}

		if sig, ok := s.evaluate(m, consensus); ok {
			s.logger.Info(ctx, "CLV signal", map[string]interface{}{
				"marketID":   m.ID,
				"event":      m.EventName,
				"direction":  sig.Direction,
				"edgePct":    sig.EdgeSize * 100,
				"confidence": sig.Confidence,
			})
			signals = append(signals, sig)
		}
	}
	return signals, nil
}

// evaluate checks YES first; NO is only considered when YES does not clear the threshold.
func (s *ClvArbitrage) evaluate(m *domain.Market, c models.Consensus) (domain.Signal, bool) {
	threshold := s.config.MinDivergencePct / 100

	dir, divergence, fair := domain.BuyYes, c.FairYes-m.YesPrice, c.FairYes
	if divergence <= threshold {
		dir, divergence, fair = domain.BuyNo, c.FairNo-m.NoPrice, c.FairNo
		if divergence <= threshold {
			return domain.Signal{}, false
		}
	}

	divergencePct := divergence * 100
	confidence := math.Min(math.Min(divergencePct/10, 0.7)+models.SourceCountBonus(c.Sources), 1.0)

	meta := map[string]interface{}{
		"num_bookmakers": c.Sources,
		"fair_yes":       c.FairYes,
		"fair_no":        c.FairNo,
		"market_yes":     m.YesPrice,
		"market_no":      m.NoPrice,
	}
	return s.newSignal(m, dir, confidence, divergence, fair, s.config.BaseUnit*confidence, meta), true
}
