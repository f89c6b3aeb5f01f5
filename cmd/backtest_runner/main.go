package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cast"

	"polyEdgeBot/config"
	"polyEdgeBot/internal/adapters/logger"
	"polyEdgeBot/internal/adapters/sqlstore"
	"polyEdgeBot/internal/domain"
	"polyEdgeBot/internal/strategy/backtesting"
	"polyEdgeBot/internal/utils"
)

func main() {
	signalsFile := flag.String("signals", "", "signals CSV file; empty reads recorded signals from the database")
	resolutionsFile := flag.String("resolutions", "data/resolutions.csv", "market resolutions CSV file")
	from := flag.String("from", "", "start of the replay window (RFC3339)")
	to := flag.String("to", "", "end of the replay window (RFC3339)")
	kellyList := flag.String("kelly", "0.25,0.5,1", "comma separated Kelly fractions to compare")
	outDir := flag.String("out", "data", "directory for per-run trade CSV files")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewZapLogger(cfg.LoggerConfig())
	defer func() { _ = appLogger.Sync() }()
	ctx := context.Background()

	// 2. Resolve the replay window
	start, end, err := parseWindow(*from, *to)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	fractions, err := parseFractions(*kellyList)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	// 3. Load signals and resolutions
	signals, err := loadSignals(ctx, cfg, appLogger, *signalsFile, start, end)
	if err != nil {
		appLogger.Error(ctx, err, "Error loading signals")
		log.Fatalf("Error loading signals: %v", err)
	}
	resolutions, err := utils.ReadResolutionsCSV(*resolutionsFile)
	if err != nil {
		appLogger.Error(ctx, err, "Error loading resolutions", map[string]interface{}{"file": *resolutionsFile})
		log.Fatalf("Error loading resolutions: %v", err)
	}
	appLogger.Info(ctx, "Loaded backtest inputs", map[string]interface{}{
		"signals":     len(signals),
		"resolutions": len(resolutions),
	})

	// 4. Run one backtest per Kelly fraction
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Kelly\tTrades\tSkipped\tOpen\tWinRate\tPnL\tMaxDD%\tSharpe\tGas\t")
	for _, fraction := range fractions {
		btCfg := backtesting.DefaultConfig()
		btCfg.StartTime = start
		btCfg.EndTime = end
		btCfg.StartingCapital = cfg.StartingCapital
		btCfg.KellyFraction = fraction
		btCfg.MaxPositionSizePct = cfg.MaxPositionSizePct
		btCfg.MinLiquidity = cfg.MinMarketLiquidity

		result, err := backtesting.Backtest(signals, resolutions, btCfg)
		if err != nil {
			appLogger.Error(ctx, err, "Backtest error", map[string]interface{}{"kelly": fraction})
			continue
		}
		m := result.Metrics
		fmt.Fprintf(w, "%.2f\t%d\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			fraction,
			m.TotalTrades,
			result.SignalsSkipped,
			result.Unresolved,
			m.WinRate*100,
			m.TotalProfit,
			m.MaxDrawdown*100,
			m.SharpeRatio,
			result.TotalGas,
		)

		tradesFile := filepath.Join(*outDir, fmt.Sprintf("backtest_trades_kelly%.2f.csv", fraction))
		if err := utils.WriteTradesToCSV(result.Trades, tradesFile); err != nil {
			appLogger.Error(ctx, err, "Error writing trades CSV", map[string]interface{}{"file": tradesFile})
			continue
		}
		appLogger.Info(ctx, "Trades saved", map[string]interface{}{"file": tradesFile})
	}
	w.Flush()
}

func parseWindow(from, to string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if from != "" {
		if start, err = cast.ToTimeE(from); err != nil {
			return start, end, fmt.Errorf("invalid -from: %w", err)
		}
	}
	if to != "" {
		if end, err = cast.ToTimeE(to); err != nil {
			return start, end, fmt.Errorf("invalid -to: %w", err)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, fmt.Errorf("-to must not be before -from")
	}
	return start.UTC(), end.UTC(), nil
}

func parseFractions(raw string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := cast.ToFloat64E(part)
		if err != nil || f <= 0 || f > 1 {
			return nil, fmt.Errorf("invalid Kelly fraction %q", part)
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no Kelly fractions given")
	}
	return out, nil
}

// loadSignals reads signals from a CSV file, or from the signal table when no file is given.
func loadSignals(ctx context.Context, cfg *config.Config, appLogger *logger.ZapLogger, file string, start, end time.Time) ([]domain.Signal, error) {
	if file != "" {
		return utils.ReadSignalsCSV(file)
	}
	repo, err := sqlstore.NewRepository(sqlstore.Config{
		Driver:          cfg.DBDriver,
		DSN:             cfg.DBDSN,
		StartingCapital: cfg.StartingCapital,
		Logger:          appLogger,
	})
	if err != nil {
		return nil, err
	}
	defer repo.Close()
	if end.IsZero() {
		end = time.Now().UTC()
	}
	return repo.SignalsBetween(ctx, start, end)
}
