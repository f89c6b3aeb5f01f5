package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"polyEdgeBot/config"
	"polyEdgeBot/internal/ports"
)

// SignalCycle runs one signal generation pass.
type SignalCycle interface {
	RunCycle(ctx context.Context) (int, error)
}

// TradingService runs the periodic loops: signal generation, execution,
// position monitoring and portfolio refresh. Each loop has its own interval.
type TradingService struct {
	cfg         *config.Config
	logger      ports.Logger
	generator   SignalCycle
	coordinator *ExecutionCoordinator
	risk        RiskGate
}

// NewTradingService creates a new application service instance.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	generator SignalCycle,
	coordinator *ExecutionCoordinator,
	risk RiskGate,
) (*TradingService, error) {
	if cfg == nil || logger == nil || generator == nil || coordinator == nil || risk == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}

	intervals := map[string]time.Duration{
		"GeneratorInterval":        cfg.GeneratorInterval,
		"ExecutionInterval":        cfg.ExecutionInterval,
		"MonitorInterval":          cfg.MonitorInterval,
		"PortfolioRefreshInterval": cfg.PortfolioRefreshInterval,
	}
	for name, d := range intervals {
		if d <= 0 {
			return nil, fmt.Errorf("configuration %s must be positive", name)
		}
	}

	return &TradingService{
		cfg:         cfg,
		logger:      logger,
		generator:   generator,
		coordinator: coordinator,
		risk:        risk,
	}, nil
}

// Start loads the initial portfolio state and runs every loop until ctx is
// cancelled or SIGINT/SIGTERM arrives.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// Risk checks reject everything until the portfolio has loaded once, so a
	// failed load only delays trading until the refresh loop succeeds.
	if err := s.risk.RefreshPortfolio(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to load initial portfolio state, refresh loop will retry")
	} else {
		s.logger.Info(ctx, "Initial portfolio state loaded")
	}

	loops := []struct {
		name     string
		interval time.Duration
		run      func(context.Context) error
	}{
		{"signal_generator", s.cfg.GeneratorInterval, func(ctx context.Context) error {
			n, err := s.generator.RunCycle(ctx)
			if n > 0 {
				s.logger.Info(ctx, "Signals generated", map[string]interface{}{"count": n})
			}
			return err
		}},
		{"execution", s.cfg.ExecutionInterval, func(ctx context.Context) error {
			_, err := s.coordinator.ProcessPendingSignals(ctx)
			return err
		}},
		{"position_monitor", s.cfg.MonitorInterval, func(ctx context.Context) error {
			_, err := s.coordinator.MonitorPositions(ctx)
			return err
		}},
		{"portfolio_refresh", s.cfg.PortfolioRefreshInterval, s.risk.RefreshPortfolio},
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range loops {
		g.Go(func() error {
			return s.runEvery(gctx, l.name, l.interval, l.run)
		})
	}
	s.logger.Info(ctx, "Periodic tasks started", map[string]interface{}{
		"generatorInterval": s.cfg.GeneratorInterval.String(),
		"executionInterval": s.cfg.ExecutionInterval.String(),
		"monitorInterval":   s.cfg.MonitorInterval.String(),
		"refreshInterval":   s.cfg.PortfolioRefreshInterval.String(),
	})

	// The first loop to stop cancels gctx and with it every other loop.
	err := g.Wait()
	s.logger.Info(ctx, "Trading Service stopped.")
	if err != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("trading service stopped: %w", err)
	}
	return nil
}

// runEvery runs fn immediately and then on every tick until ctx ends, returning
// ctx.Err(). A failed cycle is logged and retried on the next tick; panics are
// recovered per cycle.
func (s *TradingService) runEvery(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.runCycle(ctx, name, fn)
		select {
		case <-ctx.Done():
			s.logger.Debug(ctx, "Periodic task stopped", map[string]interface{}{"task": name})
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *TradingService) runCycle(ctx context.Context, name string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, fmt.Errorf("panic: %v", r), "Periodic task panicked", map[string]interface{}{"task": name})
		}
	}()
	if err := fn(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error(ctx, err, "Periodic task cycle failed", map[string]interface{}{"task": name})
	}
}
