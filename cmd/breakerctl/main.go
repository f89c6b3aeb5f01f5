package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"polyEdgeBot/config"
	"polyEdgeBot/internal/adapters/logger"
	"polyEdgeBot/internal/adapters/sqlstore"
	"polyEdgeBot/internal/adapters/telegram"
	"polyEdgeBot/internal/ports"
)

const usage = `usage: breakerctl <command> [flags]

commands:
  list [-all]        show active circuit breakers (-all includes cleared)
  clear <id>...      clear the given breakers, or every active one with -all
  status             show the latest portfolio snapshot and trading state`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

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

	ctx := context.Background()
	switch cmd {
	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		all := fs.Bool("all", false, "include cleared breakers")
		_ = fs.Parse(args)
		err = listBreakers(ctx, repo, !*all)
	case "clear":
		fs := flag.NewFlagSet("clear", flag.ExitOnError)
		all := fs.Bool("all", false, "clear every active breaker")
		_ = fs.Parse(args)
		var notifier ports.Notifier = telegram.Nop{}
		if cfg.TelegramToken != "" {
			if tg, tgErr := telegram.NewNotifier(cfg.TelegramToken, cfg.TelegramChatID, appLogger); tgErr == nil {
				notifier = tg
			} else {
				appLogger.Warn(ctx, "Telegram unavailable, clearing without alert", map[string]interface{}{"error": tgErr.Error()})
			}
		}
		err = clearBreakers(ctx, repo, notifier, fs.Args(), *all)
	case "status":
		err = status(ctx, repo)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("breakerctl %s: %v", cmd, err)
	}
}

func listBreakers(ctx context.Context, repo *sqlstore.Repository, onlyActive bool) error {
	breakers, err := repo.ListCircuitBreakers(ctx, onlyActive)
	if err != nil {
		return err
	}
	if len(breakers) == 0 {
		fmt.Println("No circuit breakers.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTRIGGERED\tCLEARED\tREASON")
	for _, cb := range breakers {
		cleared := "-"
		if !cb.ClearedAt.IsZero() {
			cleared = cb.ClearedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", cb.ID, cb.Status, cb.TriggeredAt.UTC().Format(time.RFC3339), cleared, cb.Reason)
	}
	return w.Flush()
}

func clearBreakers(ctx context.Context, repo *sqlstore.Repository, notifier ports.Notifier, ids []string, all bool) error {
	if all {
		active, err := repo.ListCircuitBreakers(ctx, true)
		if err != nil {
			return err
		}
		for _, cb := range active {
			ids = append(ids, cb.ID)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("no breaker ids given")
	}

	now := time.Now().UTC()
	var failed int
	for _, id := range ids {
		if err := repo.ClearCircuitBreaker(ctx, id, now); err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				fmt.Printf("%s: not active\n", id)
			} else {
				fmt.Printf("%s: %v\n", id, err)
			}
			failed++
			continue
		}
		fmt.Printf("%s: cleared\n", id)
		_ = notifier.Notify(ctx, fmt.Sprintf("Circuit breaker %s cleared by operator", id))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d breakers not cleared", failed, len(ids))
	}
	return nil
}

func status(ctx context.Context, repo *sqlstore.Repository) error {
	active, err := repo.AnyActiveCircuitBreaker(ctx)
	if err != nil {
		return err
	}
	state := "TRADING"
	if active {
		state = "HALTED (circuit breaker active)"
	}
	fmt.Printf("State: %s\n", state)

	snap, err := repo.LatestSnapshot(ctx)
	if errors.Is(err, ports.ErrNotFound) {
		fmt.Println("No portfolio snapshot recorded yet.")
		return nil
	}
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Snapshot\t%s\n", snap.SnapshotTime.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Total capital\t%.2f\n", snap.TotalCapital)
	fmt.Fprintf(w, "Available\t%.2f\n", snap.AvailableCapital)
	fmt.Fprintf(w, "Invested\t%.2f\n", snap.InvestedCapital)
	fmt.Fprintf(w, "Realized today\t%.2f\n", snap.RealizedPNLToday)
	fmt.Fprintf(w, "Daily drawdown\t%.2f%%\n", snap.DailyDrawdownPct)
	fmt.Fprintf(w, "Max drawdown today\t%.2f%%\n", snap.MaxDrawdownPct)
	fmt.Fprintf(w, "Open positions\t%d\n", snap.OpenPositions)
	fmt.Fprintf(w, "Trades today\t%d\n", snap.TradesToday)
	return w.Flush()
}
