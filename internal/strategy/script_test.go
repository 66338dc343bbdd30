package strategy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/execsim/internal/domain"
	"github.com/alejandrodnm/execsim/internal/ports"
	"github.com/alejandrodnm/execsim/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const breakdownScript = `
def detect(prices, params):
    symbols = sorted(prices.keys())
    out = []
    for i in range(len(symbols)):
        for j in range(i + 1, len(symbols)):
            a = prices[symbols[i]]
            b = prices[symbols[j]]
            if len(a) < 50 or len(b) < 50:
                continue
            recent = pearson(returns(a[-20:]), returns(b[-20:]))
            hist = pearson(returns(a[-50:-20]), returns(b[-50:-20]))
            if abs(hist - recent) <= params["correlation_threshold"]:
                continue
            out.append({
                "pair1": symbols[i],
                "pair2": symbols[j],
                "confidence": 0.9,
                "expected_return": 0.04,
                "risk_level": 0.1,
                "current_correlation": recent,
                "historical_correlation": hist,
            })
    return out
`

func TestScript_Detect(t *testing.T) {
	s, err := strategy.NewScript("breakdown", "breakdown.star", []byte(breakdownScript))
	require.NoError(t, err)
	assert.Equal(t, "script:breakdown", s.Name())

	history := map[string][]domain.PricePoint{
		"ADAUSDT": path(breakdown, 50),
		"SOLUSDT": path(zigzag, 50),
	}
	opps, err := s.Detect(context.Background(), history)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, "ADAUSDT", opp.Pair1)
	assert.Equal(t, "SOLUSDT", opp.Pair2)
	assert.Equal(t, 0.9, opp.Confidence)
	assert.Equal(t, 0.04, opp.ExpectedReturn)
	assert.Equal(t, 0.1, opp.RiskLevel)
	assert.InDelta(t, -1, opp.CurrentCorrelation, 1e-9)
	assert.InDelta(t, 1, opp.HistoricalCorrelation, 1e-9)
	assert.Equal(t, t0.Add(49*time.Hour), opp.DetectedAt)
	assert.Equal(t, "script:breakdown", opp.Strategy)
}

func TestScript_ParamsFlowThroughWithParams(t *testing.T) {
	s, err := strategy.NewScript("breakdown", "breakdown.star", []byte(breakdownScript))
	require.NoError(t, err)

	var tunable ports.TunableStrategy = s
	strict := tunable.WithParams(domain.StrategyParams{CorrelationThreshold: 3})

	opps, err := strict.Detect(context.Background(), map[string][]domain.PricePoint{
		"ADAUSDT": path(breakdown, 50),
		"SOLUSDT": path(zigzag, 50),
	})
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestScript_SingleArgumentAndNone(t *testing.T) {
	s, err := strategy.NewScript("noop", "noop.star", []byte("def detect(prices):\n    return None\n"))
	require.NoError(t, err)

	opps, err := s.Detect(context.Background(), map[string][]domain.PricePoint{"A": path(zigzag, 3)})
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestScript_LoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "momentum.star")
	require.NoError(t, os.WriteFile(path, []byte("def detect(prices):\n    return []\n"), 0o644))

	s, err := strategy.LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, "script:momentum", s.Name())

	_, err = strategy.LoadScript(filepath.Join(t.TempDir(), "missing.star"))
	require.Error(t, err)
}

func TestScript_CompileErrors(t *testing.T) {
	cases := map[string]string{
		"syntax error":    "def detect(prices)\n    return []\n",
		"no detect":       "x = 1\n",
		"detect not func": "detect = 3\n",
		"too many params": "def detect(a, b, c):\n    return []\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := strategy.NewScript("bad", "bad.star", []byte(src))
			require.Error(t, err)
		})
	}
}

func TestScript_BadResults(t *testing.T) {
	cases := map[string]string{
		"not a list":        "def detect(prices):\n    return 3\n",
		"item not dict":     "def detect(prices):\n    return [1]\n",
		"missing pair2":     "def detect(prices):\n    return [{\"pair1\": \"A\", \"confidence\": 1, \"expected_return\": 0.1, \"risk_level\": 0.1}]\n",
		"confidence string": "def detect(prices):\n    return [{\"pair1\": \"A\", \"pair2\": \"B\", \"confidence\": \"high\", \"expected_return\": 0.1, \"risk_level\": 0.1}]\n",
		"runtime error":     "def detect(prices):\n    return prices[\"missing\"]\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := strategy.NewScript("bad", "bad.star", []byte(src))
			require.NoError(t, err)
			_, err = s.Detect(context.Background(), map[string][]domain.PricePoint{"A": path(zigzag, 3)})
			require.Error(t, err)
		})
	}
}

func TestScript_IntegersAreAccepted(t *testing.T) {
	src := "def detect(prices):\n    return [{\"pair1\": \"A\", \"pair2\": \"B\", \"confidence\": 1, \"expected_return\": 0, \"risk_level\": 0}]\n"
	s, err := strategy.NewScript("ints", "ints.star", []byte(src))
	require.NoError(t, err)

	opps, err := s.Detect(context.Background(), map[string][]domain.PricePoint{"A": path(zigzag, 3)})
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, 1.0, opps[0].Confidence)
}

func TestScript_CancelledByContext(t *testing.T) {
	s, err := strategy.NewScript("spin", "spin.star", []byte("def detect(prices):\n    while True:\n        pass\n"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.Detect(ctx, map[string][]domain.PricePoint{"A": path(zigzag, 3)})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
