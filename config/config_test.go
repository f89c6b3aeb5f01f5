package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyEdgeBot/internal/adapters/logger"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no stray .env
	t.Setenv("CONFIG_FILE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, 50000.0, cfg.StartingCapital)
	assert.Equal(t, 8.0, cfg.DailyDrawdownLimitPct)
	assert.Equal(t, 20, cfg.MaxDailyTrades)
	assert.Equal(t, 0.5, cfg.KellyFraction)
	assert.Equal(t, []string{"clv_arb", "poisson_ev"}, cfg.EnabledStrategies)
	assert.Equal(t, 10000, cfg.SimulationCount)
	assert.Equal(t, 5*time.Minute, cfg.SignalFreshness)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)

	logCfg := cfg.LoggerConfig()
	assert.Equal(t, logger.LevelInfo, logCfg.Level)
	assert.Equal(t, 100, logCfg.MaxSizeMB)
	assert.Empty(t, logCfg.File)
}

func TestLoadConfig_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
starting_capital: 20000
max_daily_trades: 5
generator_interval: 2m
enabled_strategies: [clv_arb]
log_level: debug
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MAX_DAILY_TRADES", "7")
	t.Setenv("SIGNIFICANCE_Z", "1.5, 2.0, 3.0")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 20000.0, cfg.StartingCapital)
	assert.Equal(t, 7, cfg.MaxDailyTrades, "env overrides file")
	assert.Equal(t, 2*time.Minute, cfg.GeneratorInterval)
	assert.Equal(t, []string{"clv_arb"}, cfg.EnabledStrategies)
	assert.Equal(t, []float64{1.5, 2.0, 3.0}, cfg.SignificanceZ)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
}

func TestLoadConfig_InvalidEnvValue(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("KELLY_FRACTION", "half")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.ErrorIs(t, err, errInvalidEnv)
	assert.Contains(t, err.Error(), "KELLY_FRACTION")
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.DBDriver = "mysql"
	cfg.KellyFraction = 0
	cfg.EnabledStrategies = []string{"news"}
	cfg.SignificanceZ = []float64{2.0, 1.0}
	cfg.SignificanceBonus = []float64{0.1, 0.2}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "DB_DRIVER")
	assert.Contains(t, msg, "KELLY_FRACTION")
	assert.Contains(t, msg, `unknown strategy "news"`)
	assert.Contains(t, msg, "strictly ascending")
}

func TestValidate_TelegramNeedsChat(t *testing.T) {
	cfg := Default()
	cfg.TelegramToken = "token"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_CHAT_ID")

	cfg.TelegramChatID = 42
	assert.NoError(t, cfg.Validate())
}
