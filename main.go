package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"polyEdgeBot/config"
	"polyEdgeBot/internal/adapters/clock"
	"polyEdgeBot/internal/adapters/executor"
	"polyEdgeBot/internal/adapters/logger"
	"polyEdgeBot/internal/adapters/sqlstore"
	"polyEdgeBot/internal/adapters/telegram"
	"polyEdgeBot/internal/app"
	"polyEdgeBot/internal/ports"
	"polyEdgeBot/internal/risk"
	"polyEdgeBot/internal/strategy"
	"polyEdgeBot/internal/strategy/models"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewZapLogger(cfg.LoggerConfig())
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlstore.NewRepository(sqlstore.Config{
		Driver:          cfg.DBDriver,
		DSN:             cfg.DBDSN,
		StartingCapital: cfg.StartingCapital,
		Logger:          appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized", map[string]interface{}{"driver": cfg.DBDriver})

	sysClock := clock.System{}

	// 4. Initialize Notifier
	var notifier ports.Notifier = telegram.Nop{}
	if cfg.TelegramToken != "" {
		tg, err := telegram.NewNotifier(cfg.TelegramToken, cfg.TelegramChatID, appLogger)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize Telegram notifier")
			log.Fatalf("FATAL: Failed to initialize Telegram notifier: %v", err)
		}
		notifier = tg
	} else {
		appLogger.Warn(ctx, "TELEGRAM_BOT_TOKEN not set, alerts are disabled")
	}

	// 5. Initialize Executor (paper trading against stored prices)
	paper, err := executor.NewPaperExecutor(executor.Config{
		Markets:     repo,
		SlippagePct: cfg.PaperSlippagePct,
		Clock:       sysClock,
		Logger:      appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize paper executor")
		log.Fatalf("FATAL: Failed to initialize paper executor: %v", err)
	}

	// 6. Initialize Strategies and Signal Generator
	tiers := make([]models.SignificanceTier, len(cfg.SignificanceZ))
	for i := range cfg.SignificanceZ {
		tiers[i] = models.SignificanceTier{Z: cfg.SignificanceZ[i], Bonus: cfg.SignificanceBonus[i]}
	}
	stratCfg := strategy.Config{
		Enabled:             cfg.EnabledStrategies,
		ClvMinDivergencePct: cfg.ClvMinDivergencePct,
		ClvBaseUnit:         cfg.ClvBaseUnit,
		PoissonMinEdgePct:   cfg.PoissonMinEdgePct,
		PoissonBaseUnit:     cfg.PoissonBaseUnit,
		SimulationCount:     cfg.SimulationCount,
		SimulationSeed:      cfg.SimulationSeed,
		SignificanceTiers:   tiers,
		MinLiquidity:        cfg.MinMarketLiquidity,
		MarketBatchSize:     cfg.MarketBatchSize,
	}
	strats, err := strategy.BuildStrategies(stratCfg, repo, appLogger, sysClock)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading strategies")
		log.Fatalf("FATAL: Failed to initialize trading strategies: %v", err)
	}
	generator := strategy.NewSignalGenerator(stratCfg, repo, repo, strats, appLogger, sysClock)

	// 7. Initialize Risk Management
	tracker := risk.NewPortfolioTracker(repo, repo, sysClock, appLogger)
	riskManager := risk.NewRiskManager(risk.RiskConfig{
		MinEdgeSize:           cfg.MinEdgeSize,
		MaxDailyTrades:        cfg.MaxDailyTrades,
		DailyDrawdownLimitPct: cfg.DailyDrawdownLimitPct,
		KellyFraction:         cfg.KellyFraction,
		MaxPositionSizePct:    cfg.MaxPositionSizePct,
		ConsecutiveLossLimit:  cfg.ConsecutiveLossLimit,
		LossLookback:          cfg.LossLookback,
	}, tracker, repo, repo, notifier, sysClock, appLogger)

	// 8. Initialize Execution Coordinator
	exits := app.NewDefaultExitPolicy(app.ExitConfig{
		StopLossPct:     cfg.StopLossPct,
		TakeProfitPct:   cfg.TakeProfitPct,
		MaxHoldDuration: cfg.MaxHoldDuration,
	})
	coordinator, err := app.NewExecutionCoordinator(app.CoordinatorConfig{
		SignalFreshness: cfg.SignalFreshness,
		SignalBatchSize: cfg.SignalBatchSize,
	}, repo, repo, repo, paper, riskManager, exits, notifier, sysClock, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize execution coordinator")
		log.Fatalf("FATAL: Failed to initialize execution coordinator: %v", err)
	}

	// 9. Initialize Application Service
	tradingService, err := app.NewTradingService(cfg, appLogger, generator, coordinator, riskManager)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(ctx, "Trading service initialized", map[string]interface{}{"strategies": len(strats)})

	// 10. Start the Service
	if err := tradingService.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
