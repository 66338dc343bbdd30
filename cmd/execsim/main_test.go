package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(&app{})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", ""}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGenerateBacktestAndRuns(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EXECSIM_DB", filepath.Join(dir, "runs.db"))
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("LOG_LEVEL", "error")

	out, err := execute(t, "generate",
		"--symbols", "BTCUSDT,ETHUSDT,SOLUSDT",
		"--start", "2024-01-01",
		"--bars", "300",
		"--seed", "3",
		"--break-at", "200",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Generated 3 symbols")
	for _, sym := range []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"} {
		_, err := os.Stat(filepath.Join(dir, "data", sym+"_1h.csv"))
		require.NoError(t, err, sym)
	}

	out, err = execute(t, "backtest",
		"--provider", "csv",
		"--symbols", "BTCUSDT,ETHUSDT,SOLUSDT",
		"--start", "2024-01-01",
		"--end", "2024-01-13",
		"--save",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "BACKTEST")

	out, err = execute(t, "--format", "compact", "runs")
	require.NoError(t, err)
	assert.NotContains(t, out, "No stored runs.")
}

func TestRunsEmpty(t *testing.T) {
	t.Setenv("EXECSIM_DB", filepath.Join(t.TempDir(), "runs.db"))
	t.Setenv("LOG_LEVEL", "error")

	out, err := execute(t, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "No stored runs.")

	_, err = execute(t, "runs", "show", "deadbeef")
	assert.Error(t, err)
}

func TestSimulate(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	out, err := execute(t, "simulate", "--side", "buy", "--qty", "0.5", "--price", "30000", "--seed", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Status")

	_, err = execute(t, "simulate", "--side", "hold")
	assert.Error(t, err)

	_, err = execute(t, "simulate", "--qty", "-1")
	assert.Error(t, err)
}

func TestUnknownFormatAndProvider(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	_, err := execute(t, "--format", "html", "runs")
	assert.Error(t, err)

	_, err = execute(t, "backtest", "--provider", "kafka",
		"--symbols", "BTCUSDT,ETHUSDT", "--start", "2024-01-01", "--end", "2024-02-01")
	assert.Error(t, err)
}

func TestJournalKey(t *testing.T) {
	assert.Equal(t, "RUN_ID", journalKey("run_id"))
	assert.Equal(t, "HTTP_STATUS", journalKey("http.status"))
	assert.Equal(t, "ERR", journalKey("_err"))
}
