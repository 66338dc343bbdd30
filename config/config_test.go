package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/execsim/config"
	"github.com/alejandrodnm/execsim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, domain.Timeframe1h, cfg.Backtest.Timeframe)
	assert.Equal(t, 10_000.0, cfg.Backtest.InitialCapital)
	assert.Equal(t, "correlation_breakdown", cfg.Strategy.Name)
	assert.Equal(t, "csv", cfg.Data.Provider)
	assert.Equal(t, "execsim.db", cfg.Storage.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 0.02, cfg.Execution.RiskFreeRate)
	assert.Equal(t, 12, cfg.WalkForward.Splitter.TrainMonths)
	assert.Equal(t, 1000, cfg.WalkForward.Bootstrap.Simulations)
	assert.Equal(t, 30, cfg.WalkForward.Bootstrap.BlockSize)
	assert.Equal(t, 0.05, cfg.WalkForward.Alpha)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
backtest:
  start: 2024-01-01T00:00:00Z
  end: 2024-03-01T00:00:00Z
  initial_capital: 5000
  symbols: [BTCUSDT, ETHUSDT]
  price_tolerance: 30m
execution:
  fees:
    taker_rate: 0.002
  seed: 9
data:
  provider: synthetic
  synthetic:
    bars: 100
    break_at: 60
walkforward:
  bootstrap:
    simulations: 250
  alpha: 0.1
log:
  level: debug
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cfg.Backtest.Start.UTC())
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), cfg.Backtest.End.UTC())
	assert.Equal(t, 5000.0, cfg.Backtest.InitialCapital)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Backtest.Symbols)
	assert.Equal(t, 30*time.Minute, cfg.Backtest.PriceTolerance)
	assert.Equal(t, 0.002, cfg.Execution.Fees.TakerRate)
	assert.Equal(t, 0.001, cfg.Execution.Fees.MakerRate, "unset keys keep defaults")
	assert.Equal(t, uint64(9), cfg.Execution.Seed)
	assert.Equal(t, "synthetic", cfg.Data.Provider)
	assert.Equal(t, 100, cfg.Data.Synthetic.Bars)
	assert.Equal(t, 60, cfg.Data.Synthetic.BreakAt)
	assert.Equal(t, 0.6, cfg.Data.Synthetic.Volatility)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Backtest.IncludeFees)
	assert.Equal(t, 250, cfg.WalkForward.Bootstrap.Simulations)
	assert.Equal(t, 30, cfg.WalkForward.Bootstrap.BlockSize, "unset keys keep defaults")
	assert.Equal(t, 0.1, cfg.WalkForward.Alpha)

	require.NoError(t, cfg.Backtest.Validate())
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "log:\n  level: warn\nstorage:\n  dsn: file.db\n")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("EXECSIM_DB", ":memory:")
	t.Setenv("DATA_PROVIDER", "binance")
	t.Setenv("EXECSIM_SEED", "123")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, "binance", cfg.Data.Provider)
	assert.Equal(t, uint64(123), cfg.Execution.Seed)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate_RejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"unknown top-level key": "scanner:\n  interval: 5\n",
		"unknown nested key":    "backtest:\n  capital: 100\n",
		"bad provider":          "data:\n  provider: kafka\n",
		"bad timeframe":         "backtest:\n  timeframe: 2h\n",
		"negative capital":      "backtest:\n  initial_capital: -1\n",
		"position above one":    "backtest:\n  max_position_size: 1.5\n",
		"bad log level":         "log:\n  level: trace\n",
		"alpha out of range":    "walkforward:\n  alpha: 1.5\n",
		"zero block size":       "walkforward:\n  bootstrap:\n    block_size: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, config.Validate([]byte(body)))
		})
	}
}

func TestValidate_AcceptsShippedConfig(t *testing.T) {
	data, err := os.ReadFile("config.yaml")
	require.NoError(t, err)
	require.NoError(t, config.Validate(data))

	cfg, err := config.Load("config.yaml")
	require.NoError(t, err)
	assert.Len(t, cfg.Backtest.Symbols, 5)
	assert.Equal(t, uint64(42), cfg.Execution.Seed)
}

func TestValidate_EmptyDocument(t *testing.T) {
	assert.NoError(t, config.Validate(nil))
	assert.NoError(t, config.Validate([]byte("  \n")))
}

func TestSimulatorConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Backtest.UseBNBDiscount = false

	sim := cfg.SimulatorConfig()
	assert.True(t, sim.UseRealisticExecution)
	assert.True(t, sim.IncludeFees)
	assert.False(t, sim.UseBNBDiscount)
	assert.Equal(t, cfg.Execution.Fees, sim.Fees)
	assert.Equal(t, cfg.Execution.Latency, sim.Latency)
}

func TestExecutionSeed(t *testing.T) {
	cfg := config.Default()
	cfg.Execution.Seed = 5
	assert.Equal(t, uint64(5), cfg.ExecutionSeed())

	cfg.Execution.Seed = 0
	assert.NotZero(t, cfg.ExecutionSeed())
}
