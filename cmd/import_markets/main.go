package main

import (
	"context"
	"flag"
	"log"

	"polyEdgeBot/config"
	"polyEdgeBot/internal/adapters/logger"
	"polyEdgeBot/internal/adapters/sqlstore"
	"polyEdgeBot/internal/utils"
)

// import_markets loads market, quote and matchup CSV files into the configured store.
func main() {
	marketsFile := flag.String("markets", "", "markets CSV file")
	quotesFile := flag.String("quotes", "", "bookmaker quotes CSV file")
	matchupsFile := flag.String("matchups", "", "matchup ratings CSV file")
	flag.Parse()

	if *marketsFile == "" && *quotesFile == "" && *matchupsFile == "" {
		flag.Usage()
		log.Fatalf("FATAL: at least one of -markets, -quotes or -matchups is required")
	}

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewZapLogger(cfg.LoggerConfig())
	defer func() { _ = appLogger.Sync() }()

	// 3. Initialize Repository
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

	// Markets first so quotes and matchups reference existing rows.
	if *marketsFile != "" {
		markets, err := utils.ReadMarketsCSV(*marketsFile)
		if err != nil {
			log.Fatalf("Error reading markets from %s: %v", *marketsFile, err)
		}
		for i := range markets {
			if err := repo.UpsertMarket(ctx, &markets[i]); err != nil {
				log.Fatalf("Error storing market %s: %v", markets[i].ID, err)
			}
		}
		appLogger.Info(ctx, "Markets imported", map[string]interface{}{"file": *marketsFile, "count": len(markets)})
	}

	if *quotesFile != "" {
		quotes, err := utils.ReadQuotesCSV(*quotesFile)
		if err != nil {
			log.Fatalf("Error reading quotes from %s: %v", *quotesFile, err)
		}
		for _, q := range quotes {
			if err := repo.SaveQuote(ctx, q); err != nil {
				log.Fatalf("Error storing quote for %s: %v", q.MarketID, err)
			}
		}
		appLogger.Info(ctx, "Quotes imported", map[string]interface{}{"file": *quotesFile, "count": len(quotes)})
	}

	if *matchupsFile != "" {
		matchups, err := utils.ReadMatchupsCSV(*matchupsFile)
		if err != nil {
			log.Fatalf("Error reading matchups from %s: %v", *matchupsFile, err)
		}
		for _, m := range matchups {
			if err := repo.SaveMatchup(ctx, m); err != nil {
				log.Fatalf("Error storing matchup for %s: %v", m.MarketID, err)
			}
		}
		appLogger.Info(ctx, "Matchups imported", map[string]interface{}{"file": *matchupsFile, "count": len(matchups)})
	}
}
