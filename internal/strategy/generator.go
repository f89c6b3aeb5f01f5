package strategy

import (
	"context"
	"fmt"
	"time"

	"polyEdgeBot/internal/domain"
	"polyEdgeBot/internal/ports"
	"polyEdgeBot/internal/strategy/models"
	"polyEdgeBot/internal/strategy/strategies"
)

// MarketSource is the read side of the market store the generator and strategies use.
type MarketSource interface {
	ActiveMarkets(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, error)
	strategies.QuoteSource
	strategies.RatingsSource
}

// Config selects and parameterizes the enabled strategies.
type Config struct {
	Enabled             []string
	ClvMinDivergencePct float64
	ClvBaseUnit         float64
	PoissonMinEdgePct   float64
	PoissonBaseUnit     float64
	SimulationCount     int
	SimulationSeed      uint64
	SignificanceTiers   []models.SignificanceTier
	MinLiquidity        float64
	MarketBatchSize     int
}

// factory builds one strategy from config.
type factory func(cfg Config, src MarketSource, logger ports.Logger, clock ports.Clock) (ports.Strategy, error)

var registry = map[string]factory{
	string(domain.StrategyClvArbitrage): func(cfg Config, src MarketSource, logger ports.Logger, clock ports.Clock) (ports.Strategy, error) {
		return strategies.NewClvArbitrage(strategies.ClvArbitrageConfig{
			MinDivergencePct: cfg.ClvMinDivergencePct,
			BaseUnit:         cfg.ClvBaseUnit,
		}, src, logger, clock)
	},
	string(domain.StrategyPoissonEv): func(cfg Config, src MarketSource, logger ports.Logger, clock ports.Clock) (ports.Strategy, error) {
		return strategies.NewPoissonEv(strategies.PoissonEvConfig{
			MinEdgePct:        cfg.PoissonMinEdgePct,
			SimulationCount:   cfg.SimulationCount,
			Seed:              cfg.SimulationSeed,
			SignificanceTiers: cfg.SignificanceTiers,
			BaseUnit:          cfg.PoissonBaseUnit,
		}, src, logger, clock)
	},
}

// BuildStrategies instantiates the enabled strategies in the configured order.
func BuildStrategies(cfg Config, src MarketSource, logger ports.Logger, clock ports.Clock) ([]ports.Strategy, error) {
	out := make([]ports.Strategy, 0, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		build, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q: %w", name, ports.ErrConfigurationError)
		}
		s, err := build(cfg, src, logger, clock)
		if err != nil {
			return nil, fmt.Errorf("failed to build strategy %q: %w", name, err)
		}
		logger.Info(context.Background(), "Strategy enabled", map[string]interface{}{"strategy": s.Name()})
		out = append(out, s)
	}
	return out, nil
}

// SignalGenerator runs every enabled strategy over the current market batch and
// stores what they produce.
type SignalGenerator struct {
	markets    MarketSource
	signals    ports.SignalStore
	strategies []ports.Strategy
	filter     Config
	clock      ports.Clock
	logger     ports.Logger
}

// NewSignalGenerator creates a new signal generator.
func NewSignalGenerator(cfg Config, markets MarketSource, signals ports.SignalStore, strats []ports.Strategy, logger ports.Logger, clock ports.Clock) *SignalGenerator {
	if cfg.MarketBatchSize <= 0 {
		cfg.MarketBatchSize = 100
	}
	return &SignalGenerator{
		markets:    markets,
		signals:    signals,
		strategies: strats,
		filter:     cfg,
		clock:      clock,
		logger:     logger,
	}
}

// RunCycle performs one generation pass and returns how many signals were stored.
// A failing strategy is logged and skipped; a store failure ends the cycle early.
func (g *SignalGenerator) RunCycle(ctx context.Context) (int, error) {
	markets, err := g.markets.ActiveMarkets(ctx, domain.MarketFilter{
		MinLiquidity: g.filter.MinLiquidity,
		StartsAfter:  g.clock.Now(),
		Limit:        g.filter.MarketBatchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch active markets: %w", err)
	}
	if len(markets) == 0 {
		g.logger.Debug(ctx, "No active markets to analyze")
		return 0, nil
	}
	g.logger.Info(ctx, "Analyzing markets", map[string]interface{}{"count": len(markets)})

	stored := 0
	for _, s := range g.strategies {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		signals, err := g.runStrategy(ctx, s, markets)
		if err != nil {
			g.logger.Error(ctx, err, "Strategy failed", map[string]interface{}{"strategy": s.Name()})
			continue
		}
		if len(signals) == 0 {
			continue
		}
		if err := g.signals.SaveSignals(ctx, signals); err != nil {
			return stored, fmt.Errorf("failed to store %d signals from %s: %w", len(signals), s.Name(), err)
		}
		stored += len(signals)
		g.logger.Info(ctx, "Signals generated", map[string]interface{}{"strategy": s.Name(), "count": len(signals)})
	}
	return stored, nil
}

// runStrategy isolates a strategy so that a panic is reported as an error.
func (g *SignalGenerator) runStrategy(ctx context.Context, s ports.Strategy, markets []domain.Market) (signals []domain.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			signals = nil
			err = fmt.Errorf("strategy %s panicked: %v: %w", s.Name(), r, ports.ErrStrategyFailed)
		}
	}()
	start := time.Now()
	signals, err = s.GenerateSignals(ctx, markets)
	g.logger.Debug(ctx, "Strategy evaluated", map[string]interface{}{"strategy": s.Name(), "elapsed": time.Since(start).String()})
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", s.Name(), err)
	}
	return signals, nil
}
