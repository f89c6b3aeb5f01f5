package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"polyEdgeBot/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
// Values are resolved in order: defaults, optional YAML file (CONFIG_FILE), environment.
type Config struct {
	// Database
	DBDriver string `yaml:"db_driver"` // sqlite3 or postgres
	DBDSN    string `yaml:"db_dsn"`

	// Risk
	StartingCapital       float64       `yaml:"starting_capital"`
	MaxPositionSizePct    float64       `yaml:"max_position_size_pct"`    // % of total capital per position
	DailyDrawdownLimitPct float64       `yaml:"daily_drawdown_limit_pct"` // e.g., 8 for 8%
	MaxDailyTrades        int           `yaml:"max_daily_trades"`
	KellyFraction         float64       `yaml:"kelly_fraction"`
	MinEdgeSize           float64       `yaml:"min_edge_size"` // Fractional, 0.03 = 3 points
	ConsecutiveLossLimit  int           `yaml:"consecutive_loss_limit"`
	LossLookback          time.Duration `yaml:"loss_lookback"`
	MinMarketLiquidity    float64       `yaml:"min_market_liquidity"`

	// Strategies
	EnabledStrategies   []string      `yaml:"enabled_strategies"`
	ClvMinDivergencePct float64       `yaml:"clv_min_divergence_pct"`
	ClvBaseUnit         float64       `yaml:"clv_base_unit"`
	MaxHoldDuration     time.Duration `yaml:"max_hold_duration"`
	PoissonMinEdgePct   float64       `yaml:"poisson_min_edge_pct"`
	PoissonBaseUnit     float64       `yaml:"poisson_base_unit"`
	SimulationCount     int           `yaml:"simulation_count"`
	SimulationSeed      uint64        `yaml:"simulation_seed"`    // 0 draws a random seed
	SignificanceZ       []float64     `yaml:"significance_z"`     // Ascending z thresholds
	SignificanceBonus   []float64     `yaml:"significance_bonus"` // Confidence bonus per threshold

	// Scheduling
	GeneratorInterval        time.Duration `yaml:"generator_interval"`
	ExecutionInterval        time.Duration `yaml:"execution_interval"`
	MonitorInterval          time.Duration `yaml:"monitor_interval"`
	PortfolioRefreshInterval time.Duration `yaml:"portfolio_refresh_interval"`
	SignalFreshness          time.Duration `yaml:"signal_freshness"`
	MarketBatchSize          int           `yaml:"market_batch_size"`
	SignalBatchSize          int           `yaml:"signal_batch_size"`

	// Exits (percent of entry price, 0 disables)
	StopLossPct   float64 `yaml:"stop_loss_pct"`
	TakeProfitPct float64 `yaml:"take_profit_pct"`

	// Paper executor
	PaperSlippagePct float64 `yaml:"paper_slippage_pct"`

	// Telegram alerts (disabled when token is empty)
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`

	// Logging
	LogLevelName  string          `yaml:"log_level"`
	LogLevel      logger.LogLevel `yaml:"-"` // Use the LogLevel type from the logger adapter
	LogJSON       bool            `yaml:"log_json"`
	LogFile       string          `yaml:"log_file"`
	LogMaxSizeMB  int             `yaml:"log_max_size_mb"`
	LogMaxBackups int             `yaml:"log_max_backups"`
	LogMaxAgeDays int             `yaml:"log_max_age_days"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		DBDriver: "sqlite3",
		DBDSN:    "./data/poly_edge.db",

		StartingCapital:       50000,
		MaxPositionSizePct:    2,
		DailyDrawdownLimitPct: 8,
		MaxDailyTrades:        20,
		KellyFraction:         0.5,
		MinEdgeSize:           0.03,
		ConsecutiveLossLimit:  3,
		LossLookback:          time.Hour,
		MinMarketLiquidity:    5000,

		EnabledStrategies:   []string{"clv_arb", "poisson_ev"},
		ClvMinDivergencePct: 3,
		ClvBaseUnit:         1000,
		MaxHoldDuration:     24 * time.Hour,
		PoissonMinEdgePct:   5,
		PoissonBaseUnit:     1000,
		SimulationCount:     10000,
		SignificanceZ:       []float64{1.64, 1.96, 2.58},
		SignificanceBonus:   []float64{0.10, 0.15, 0.20},

		GeneratorInterval:        60 * time.Second,
		ExecutionInterval:        10 * time.Second,
		MonitorInterval:          30 * time.Second,
		PortfolioRefreshInterval: 60 * time.Second,
		SignalFreshness:          5 * time.Minute,
		MarketBatchSize:          100,
		SignalBatchSize:          10,

		StopLossPct:   50,
		TakeProfitPct: 0,

		PaperSlippagePct: 0.5,

		LogLevelName:  "INFO",
		LogMaxSizeMB:  100,
		LogMaxBackups: 5,
		LogMaxAgeDays: 30,
	}
}

// LoadConfig loads configuration from the .env file, an optional YAML file and the environment.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	cfg.LogLevel = logger.ParseLevel(cfg.LogLevelName) // Use the parser from the logger package

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoggerConfig maps the logging fields onto the zap adapter config.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.LogLevel,
		JSON:       c.LogJSON,
		File:       c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
		Compress:   true,
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from environment variables. Malformed values are
// collected rather than silently replaced by defaults.
func (c *Config) applyEnv() error {
	var errs error

	c.DBDriver = getEnv("DB_DRIVER", c.DBDriver)
	c.DBDSN = getEnv("DB_DSN", c.DBDSN)

	errs = multierr.Combine(errs,
		envFloat("STARTING_CAPITAL", &c.StartingCapital),
		envFloat("MAX_POSITION_SIZE_PCT", &c.MaxPositionSizePct),
		envFloat("DAILY_DRAWDOWN_LIMIT_PCT", &c.DailyDrawdownLimitPct),
		envInt("MAX_DAILY_TRADES", &c.MaxDailyTrades),
		envFloat("KELLY_FRACTION", &c.KellyFraction),
		envFloat("MIN_EDGE_SIZE", &c.MinEdgeSize),
		envInt("CONSECUTIVE_LOSS_LIMIT", &c.ConsecutiveLossLimit),
		envDuration("LOSS_LOOKBACK", &c.LossLookback),
		envFloat("MIN_MARKET_LIQUIDITY", &c.MinMarketLiquidity),

		envFloat("CLV_MIN_DIVERGENCE_PCT", &c.ClvMinDivergencePct),
		envFloat("CLV_BASE_UNIT", &c.ClvBaseUnit),
		envDuration("MAX_HOLD_DURATION", &c.MaxHoldDuration),
		envFloat("POISSON_MIN_EDGE_PCT", &c.PoissonMinEdgePct),
		envFloat("POISSON_BASE_UNIT", &c.PoissonBaseUnit),
		envInt("SIMULATION_COUNT", &c.SimulationCount),
		envUint64("SIMULATION_SEED", &c.SimulationSeed),
		envFloatList("SIGNIFICANCE_Z", &c.SignificanceZ),
		envFloatList("SIGNIFICANCE_BONUS", &c.SignificanceBonus),

		envDuration("GENERATOR_INTERVAL", &c.GeneratorInterval),
		envDuration("EXECUTION_INTERVAL", &c.ExecutionInterval),
		envDuration("MONITOR_INTERVAL", &c.MonitorInterval),
		envDuration("PORTFOLIO_REFRESH_INTERVAL", &c.PortfolioRefreshInterval),
		envDuration("SIGNAL_FRESHNESS", &c.SignalFreshness),
		envInt("MARKET_BATCH_SIZE", &c.MarketBatchSize),
		envInt("SIGNAL_BATCH_SIZE", &c.SignalBatchSize),

		envFloat("STOP_LOSS_PCT", &c.StopLossPct),
		envFloat("TAKE_PROFIT_PCT", &c.TakeProfitPct),
		envFloat("PAPER_SLIPPAGE_PCT", &c.PaperSlippagePct),

		envInt64("TELEGRAM_CHAT_ID", &c.TelegramChatID),

		envBool("LOG_JSON", &c.LogJSON),
		envInt("LOG_MAX_SIZE_MB", &c.LogMaxSizeMB),
		envInt("LOG_MAX_BACKUPS", &c.LogMaxBackups),
		envInt("LOG_MAX_AGE_DAYS", &c.LogMaxAgeDays),
	)

	if v := os.Getenv("ENABLED_STRATEGIES"); v != "" {
		c.EnabledStrategies = splitList(v)
	}
	c.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramToken)
	c.LogLevelName = getEnv("LOG_LEVEL", c.LogLevelName)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)

	return errs
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs error
	fail := func(format string, args ...interface{}) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}

	switch c.DBDriver {
	case "sqlite3", "postgres":
	default:
		fail("DB_DRIVER must be sqlite3 or postgres, got %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		fail("DB_DSN must be set")
	}

	if c.StartingCapital <= 0 {
		fail("STARTING_CAPITAL must be positive")
	}
	if c.MaxPositionSizePct <= 0 || c.MaxPositionSizePct > 100 {
		fail("MAX_POSITION_SIZE_PCT must be in (0, 100]")
	}
	if c.DailyDrawdownLimitPct <= 0 || c.DailyDrawdownLimitPct > 100 {
		fail("DAILY_DRAWDOWN_LIMIT_PCT must be in (0, 100]")
	}
	if c.MaxDailyTrades < 0 {
		fail("MAX_DAILY_TRADES cannot be negative")
	}
	if c.KellyFraction <= 0 || c.KellyFraction > 1 {
		fail("KELLY_FRACTION must be in (0, 1]")
	}
	if c.MinEdgeSize < 0 || c.MinEdgeSize >= 1 {
		fail("MIN_EDGE_SIZE must be in [0, 1)")
	}
	if c.ConsecutiveLossLimit <= 0 {
		fail("CONSECUTIVE_LOSS_LIMIT must be positive")
	}
	if c.LossLookback <= 0 {
		fail("LOSS_LOOKBACK must be positive")
	}
	if c.MinMarketLiquidity < 0 {
		fail("MIN_MARKET_LIQUIDITY cannot be negative")
	}

	if len(c.EnabledStrategies) == 0 {
		fail("ENABLED_STRATEGIES must name at least one strategy")
	}
	for _, name := range c.EnabledStrategies {
		if name != "clv_arb" && name != "poisson_ev" {
			fail("unknown strategy %q in ENABLED_STRATEGIES", name)
		}
	}
	if c.ClvMinDivergencePct <= 0 {
		fail("CLV_MIN_DIVERGENCE_PCT must be positive")
	}
	if c.ClvBaseUnit <= 0 || c.PoissonBaseUnit <= 0 {
		fail("strategy base units must be positive")
	}
	if c.MaxHoldDuration <= 0 {
		fail("MAX_HOLD_DURATION must be positive")
	}
	if c.PoissonMinEdgePct <= 0 {
		fail("POISSON_MIN_EDGE_PCT must be positive")
	}
	if c.SimulationCount <= 0 {
		fail("SIMULATION_COUNT must be positive")
	}
	if len(c.SignificanceZ) != len(c.SignificanceBonus) {
		fail("SIGNIFICANCE_Z and SIGNIFICANCE_BONUS must have the same length")
	}
	for i := 1; i < len(c.SignificanceZ); i++ {
		if c.SignificanceZ[i] <= c.SignificanceZ[i-1] {
			fail("SIGNIFICANCE_Z must be strictly ascending")
			break
		}
	}

	for name, d := range map[string]time.Duration{
		"GENERATOR_INTERVAL":         c.GeneratorInterval,
		"EXECUTION_INTERVAL":         c.ExecutionInterval,
		"MONITOR_INTERVAL":           c.MonitorInterval,
		"PORTFOLIO_REFRESH_INTERVAL": c.PortfolioRefreshInterval,
		"SIGNAL_FRESHNESS":           c.SignalFreshness,
	} {
		if d <= 0 {
			fail("%s must be positive", name)
		}
	}
	if c.MarketBatchSize <= 0 || c.SignalBatchSize <= 0 {
		fail("batch sizes must be positive")
	}

	if c.StopLossPct < 0 || c.StopLossPct >= 100 {
		fail("STOP_LOSS_PCT must be in [0, 100)")
	}
	if c.TakeProfitPct < 0 {
		fail("TAKE_PROFIT_PCT cannot be negative")
	}
	if c.PaperSlippagePct < 0 || c.PaperSlippagePct >= 100 {
		fail("PAPER_SLIPPAGE_PCT must be in [0, 100)")
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		fail("TELEGRAM_CHAT_ID must be set when TELEGRAM_BOT_TOKEN is set")
	}

	return errs
}

// --- Env Var Helpers ---

var errInvalidEnv = errors.New("invalid environment value")

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func envFloat(key string, dst *float64) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", errInvalidEnv, key, raw, err)
	}
	*dst = v
	return nil
}

func envInt(key string, dst *int) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", errInvalidEnv, key, raw, err)
	}
	*dst = v
	return nil
}

func envInt64(key string, dst *int64) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := cast.ToInt64E(raw)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", errInvalidEnv, key, raw, err)
	}
	*dst = v
	return nil
}

func envUint64(key string, dst *uint64) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := cast.ToUint64E(raw)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", errInvalidEnv, key, raw, err)
	}
	*dst = v
	return nil
}

func envBool(key string, dst *bool) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := cast.ToBoolE(raw)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", errInvalidEnv, key, raw, err)
	}
	*dst = v
	return nil
}

// envDuration accepts Go duration strings ("90s", "5m").
func envDuration(key string, dst *time.Duration) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", errInvalidEnv, key, raw, err)
	}
	*dst = v
	return nil
}

func envFloatList(key string, dst *[]float64) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := splitList(raw)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := cast.ToFloat64E(p)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", errInvalidEnv, key, raw, err)
		}
		out = append(out, v)
	}
	*dst = out
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
