package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"polyEdgeBot/internal/ports"

	_ "github.com/lib/pq"           // Postgres driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Repository implements the market, signal, ledger and risk store ports on database/sql.
// The same SQL runs on SQLite and Postgres; placeholders are rebound per driver.
type Repository struct {
	db              *sql.DB
	driver          string
	startingCapital float64
	logger          ports.Logger
}

// Config holds configuration for the SQL repository.
type Config struct {
	Driver          string // sqlite3 (default) or postgres
	DSN             string // File path for sqlite3, connection string for postgres
	StartingCapital float64
	Logger          ports.Logger
}

// NewRepository opens the database, applies the schema and returns the repository.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQL repository")
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var dsn string
	switch driver {
	case DriverSQLite:
		dbPath := cfg.DSN
		if dbPath == "" {
			dbPath = "./data/poly_edge.db" // Default path
		}
		// Create data directory if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
			cfg.Logger.Error(context.Background(), err, "SQL repository initialization failed")
			return nil, err
		}
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000" // WAL mode for better concurrency
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres DSN is required: %w", ports.ErrConfigurationError)
		}
		dsn = cfg.DSN
	default:
		return nil, fmt.Errorf("unsupported driver %q: %w", driver, ports.ErrConfigurationError)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		err = fmt.Errorf("failed to open %s database: %w", driver, err)
		cfg.Logger.Error(context.Background(), err, "SQL repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		err = fmt.Errorf("failed to ping %s database: %w", driver, err)
		cfg.Logger.Error(context.Background(), err, "SQL repository initialization failed")
		return nil, err
	}

	if driver == DriverSQLite {
		// SQLite handles concurrency internally, but Go driver benefits from limiting connections
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "Database connection established", map[string]interface{}{"driver": driver})

	repo := &Repository{db: db, driver: driver, startingCapital: cfg.StartingCapital, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQL repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// Column types are chosen to be valid on both SQLite and Postgres.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS markets (
		id TEXT PRIMARY KEY,
		sport TEXT NOT NULL,
		event_name TEXT NOT NULL,
		event_time TIMESTAMP NOT NULL,
		market_type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		line DOUBLE PRECISION NOT NULL DEFAULT 0,
		yes_price DOUBLE PRECISION NOT NULL,
		no_price DOUBLE PRECISION NOT NULL,
		liquidity DOUBLE PRECISION NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		outcome TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reference_quotes (
		id TEXT PRIMARY KEY,
		market_id TEXT NOT NULL,
		bookmaker TEXT NOT NULL,
		yes_prob DOUBLE PRECISION NOT NULL,
		no_prob DOUBLE PRECISION NOT NULL,
		observed_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS matchups (
		market_id TEXT PRIMARY KEY,
		home_team TEXT NOT NULL,
		home_points_for DOUBLE PRECISION NOT NULL,
		home_points_against DOUBLE PRECISION NOT NULL,
		away_team TEXT NOT NULL,
		away_points_for DOUBLE PRECISION NOT NULL,
		away_points_against DOUBLE PRECISION NOT NULL,
		home_advantage DOUBLE PRECISION NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS signals (
		id TEXT PRIMARY KEY,
		market_id TEXT NOT NULL,
		strategy TEXT NOT NULL,
		direction TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		edge_size DOUBLE PRECISION NOT NULL,
		recommended_size DOUBLE PRECISION NOT NULL,
		observed_price DOUBLE PRECISION NOT NULL,
		fair_value DOUBLE PRECISION NOT NULL,
		generated_at TIMESTAMP NOT NULL,
		executed BOOLEAN NOT NULL DEFAULT FALSE,
		trade_id TEXT NULL,
		metadata TEXT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		market_id TEXT NOT NULL,
		signal_id TEXT NOT NULL,
		strategy TEXT NOT NULL,
		position TEXT NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		cost_basis DOUBLE PRECISION NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		entry_tx_id TEXT NOT NULL DEFAULT '',
		exit_price DOUBLE PRECISION NULL,
		exit_time TIMESTAMP NULL,
		exit_tx_id TEXT NULL,
		pnl DOUBLE PRECISION NULL,
		status TEXT NOT NULL,
		close_reason TEXT NULL
	);

	CREATE TABLE IF NOT EXISTS circuit_breakers (
		id TEXT PRIMARY KEY,
		reason TEXT NOT NULL,
		triggered_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		cleared_at TIMESTAMP NULL
	);

	CREATE TABLE IF NOT EXISTS portfolio_snapshots (
		id TEXT PRIMARY KEY,
		total_capital DOUBLE PRECISION NOT NULL,
		available_capital DOUBLE PRECISION NOT NULL,
		invested_capital DOUBLE PRECISION NOT NULL,
		unrealized_pnl DOUBLE PRECISION NOT NULL,
		realized_pnl_today DOUBLE PRECISION NOT NULL,
		daily_drawdown_pct DOUBLE PRECISION NOT NULL,
		max_drawdown_pct DOUBLE PRECISION NOT NULL,
		open_positions INTEGER NOT NULL,
		trades_today INTEGER NOT NULL,
		snapshot_time TIMESTAMP NOT NULL
	);

	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_markets_status_event_time ON markets (status, event_time);
	CREATE INDEX IF NOT EXISTS idx_quotes_market_observed ON reference_quotes (market_id, observed_at);
	CREATE INDEX IF NOT EXISTS idx_signals_pending ON signals (executed, generated_at);
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades (status);
	CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades (exit_time);
	CREATE INDEX IF NOT EXISTS idx_breakers_status ON circuit_breakers (status);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing database connection")
		return r.db.Close()
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (r *Repository) rebind(query string) string {
	if r.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *Repository) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return r.db.ExecContext(ctx, r.rebind(query), args...)
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return r.db.QueryContext(ctx, r.rebind(query), args...)
}

func (r *Repository) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return r.db.QueryRowContext(ctx, r.rebind(query), args...)
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
