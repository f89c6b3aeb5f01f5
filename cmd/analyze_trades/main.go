package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"

	"polyEdgeBot/config"
	"polyEdgeBot/internal/adapters/logger"
	"polyEdgeBot/internal/adapters/sqlstore"
	"polyEdgeBot/internal/domain"
	"polyEdgeBot/internal/strategy/analytics"
	"polyEdgeBot/internal/utils"
)

func main() {
	export := flag.String("export", "", "optional CSV file to write the closed trades to")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewZapLogger(cfg.LoggerConfig())
	defer func() { _ = appLogger.Sync() }()

	repo, err := sqlstore.NewRepository(sqlstore.Config{
		Driver:          cfg.DBDriver,
		DSN:             cfg.DBDSN,
		StartingCapital: cfg.StartingCapital,
		Logger:          appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	trades, err := repo.ClosedTrades(context.Background())
	if err != nil {
		log.Fatalf("Error loading closed trades: %v", err)
	}
	if len(trades) == 0 {
		log.Println("No closed trades found. Run the bot or import trades first.")
		return
	}

	if *export != "" {
		if err := utils.WriteTradesToCSV(trades, *export); err != nil {
			log.Printf("Error writing trades to %s: %v", *export, err)
		}
	}

	m := analytics.AnalyzePerformance(trades, cfg.StartingCapital)
	printSummary(m)
	printByStrategy(m)
	printCloseReasons(m)
	printMonthly(m)
}

func printSummary(m *analytics.PerformanceMetrics) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Trades\tWinRate\tAvgWin\tAvgLoss\tTotalPnL\tPF\tMaxDD%\tSharpe\tSortino\tROI%\t")
	fmt.Fprintf(w, "%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
		m.TotalTrades,
		m.WinRate*100,
		m.AverageWin,
		m.AverageLoss,
		m.TotalProfit,
		m.ProfitFactor,
		m.MaxDrawdown*100,
		m.SharpeRatio,
		m.SortinoRatio,
		m.ReturnOnInvestment*100,
	)
	w.Flush()

	fmt.Printf("\nExpectancy per trade: %.2f\n", m.Expectancy)
	fmt.Printf("Max consecutive wins/losses: %d/%d\n", m.MaxConsecutiveWins, m.MaxConsecutiveLosses)
	fmt.Printf("Average holding time: %s\n", m.AverageTradeDuration)
}

func printByStrategy(m *analytics.PerformanceMetrics) {
	fmt.Println("\n## By Strategy")
	tags := make([]domain.StrategyTag, 0, len(m.ByStrategy))
	for tag := range m.ByStrategy {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Strategy\tTrades\tWinRate\tPnL\t")
	for _, tag := range tags {
		s := m.ByStrategy[tag]
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t\n", tag, s.Trades, s.WinRate*100, s.PNL)
	}
	w.Flush()
}

func printCloseReasons(m *analytics.PerformanceMetrics) {
	fmt.Println("\n## Close Reasons")
	reasons := make([]domain.CloseReason, 0, len(m.CloseReasons))
	for r := range m.CloseReasons {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	for _, r := range reasons {
		fmt.Printf("%-12s %d\n", r, m.CloseReasons[r])
	}
}

func printMonthly(m *analytics.PerformanceMetrics) {
	fmt.Println("\n## Monthly PnL")
	for _, mr := range m.GetMonthlyReturns() {
		fmt.Printf("%s %10.2f\n", mr.Month.Format("2006-01"), mr.Return)
	}
}
