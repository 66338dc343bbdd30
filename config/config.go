package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/alejandrodnm/execsim/internal/adapters/synthetic"
	"github.com/alejandrodnm/execsim/internal/application/analysis"
	"github.com/alejandrodnm/execsim/internal/application/execution"
	"github.com/alejandrodnm/execsim/internal/application/walkforward"
	"github.com/alejandrodnm/execsim/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSrc string

// Config es la configuración completa de execsim.
type Config struct {
	Backtest    domain.BacktestConfig `yaml:"backtest"`
	Strategy    StrategyConfig        `yaml:"strategy"`
	Execution   ExecutionConfig       `yaml:"execution"`
	WalkForward WalkForwardConfig     `yaml:"walkforward"`
	Data        DataConfig            `yaml:"data"`
	Storage     StorageConfig         `yaml:"storage"`
	Log         LogConfig             `yaml:"log"`
}

// StrategyConfig elige la estrategia: por nombre del registry o un script Starlark.
type StrategyConfig struct {
	Name   string `yaml:"name"`
	Script string `yaml:"script"` // ruta a un .star; tiene prioridad sobre Name
}

// ExecutionConfig parametriza el simulador de mercado.
type ExecutionConfig struct {
	Fees         execution.FeeConfig     `yaml:"fees"`
	Latency      execution.LatencyConfig `yaml:"latency"`
	Seed         uint64                  `yaml:"seed"` // 0 = semilla por reloj
	RiskFreeRate float64                 `yaml:"risk_free_rate"`
}

// WalkForwardConfig controla la validación walk-forward.
type WalkForwardConfig struct {
	Splitter     walkforward.Splitter `yaml:"splitter"`
	Grid         walkforward.Grid     `yaml:"grid"`
	Workers      int                  `yaml:"workers"` // 0 = NumCPU
	Seed         uint64               `yaml:"seed"`
	MinTrainBars int                  `yaml:"min_train_bars"`
	MinTestBars  int                  `yaml:"min_test_bars"`
	Bootstrap    BootstrapConfig      `yaml:"bootstrap"`
	Alpha        float64              `yaml:"alpha"` // nivel de Bonferroni/FDR por periodo
}

// BootstrapConfig controla el block bootstrap de la corrida final.
type BootstrapConfig struct {
	Simulations int `yaml:"simulations"`
	BlockSize   int `yaml:"block_size"`
}

// DataConfig elige y configura el proveedor de velas históricas.
type DataConfig struct {
	Provider        string           `yaml:"provider"` // csv | binance | clickhouse | synthetic
	Dir             string           `yaml:"dir"`
	BinanceURL      string           `yaml:"binance_url"`
	ClickHouseDSN   string           `yaml:"clickhouse_dsn"`
	ClickHouseTable string           `yaml:"clickhouse_table"`
	Synthetic       synthetic.Params `yaml:"synthetic"`
}

// StorageConfig controla dónde se persisten las corridas.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato, nivel y destinos del logging.
type LogConfig struct {
	Level   string `yaml:"level"`   // debug | info | warn | error
	Format  string `yaml:"format"`  // text | json
	File    string `yaml:"file"`    // si no está vacío, añade un handler JSON a este fichero
	Journal bool   `yaml:"journal"` // añade el handler de systemd-journald
}

// Default devuelve la configuración por defecto, sin rango ni símbolos.
func Default() *Config {
	return &Config{
		Backtest: domain.DefaultBacktestConfig(time.Time{}, time.Time{}, 10_000, nil),
		Strategy: StrategyConfig{Name: "correlation_breakdown"},
		Execution: ExecutionConfig{
			Fees:    execution.DefaultFeeConfig(),
			Latency: execution.DefaultLatencyConfig(),
		},
		WalkForward: WalkForwardConfig{
			Splitter:     walkforward.DefaultSplitter(),
			Grid:         walkforward.DefaultGrid(),
			Seed:         1,
			MinTrainBars: 100,
			MinTestBars:  30,
			Bootstrap: BootstrapConfig{
				Simulations: analysis.DefaultSimulations,
				BlockSize:   analysis.DefaultBlockSize,
			},
			Alpha: walkforward.DefaultAlpha,
		},
		Data: DataConfig{
			Provider:  "csv",
			Dir:       "data",
			Synthetic: synthetic.DefaultParams(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		},
	}
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// El YAML se valida contra el schema CUE embebido antes de decodificarlo.
// Los valores del entorno sobreescriben los del YAML. Con path vacío solo
// se aplican defaults y entorno.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := Validate(data); err != nil {
			return nil, fmt.Errorf("config.Load: %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

// Validate comprueba el YAML contra el schema. Un documento vacío es válido.
func Validate(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	schema := cuecontext.New().CompileString(schemaSrc)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if err := cueyaml.Validate(data, schema); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("EXECSIM_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("DATA_PROVIDER"); v != "" {
		cfg.Data.Provider = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		cfg.Data.BinanceURL = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.Data.ClickHouseDSN = v
	}
	if v := os.Getenv("EXECSIM_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Execution.Seed = seed
		}
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Backtest.Timeframe == "" {
		cfg.Backtest.Timeframe = domain.Timeframe1h
	}
	if cfg.Strategy.Name == "" {
		cfg.Strategy.Name = "correlation_breakdown"
	}
	if cfg.Execution.RiskFreeRate == 0 {
		cfg.Execution.RiskFreeRate = 0.02
	}
	if cfg.Execution.Fees.Asset == "" {
		cfg.Execution.Fees.Asset = "USDC"
	}
	if cfg.Data.Provider == "" {
		cfg.Data.Provider = "csv"
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "data"
	}
	if cfg.Data.BinanceURL == "" {
		cfg.Data.BinanceURL = "https://api.binance.com"
	}
	if cfg.Data.ClickHouseTable == "" {
		cfg.Data.ClickHouseTable = "backtest.ohlcv_raw"
	}
	if cfg.Data.Synthetic.Timeframe == "" {
		cfg.Data.Synthetic.Timeframe = cfg.Backtest.Timeframe
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "execsim.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// SimulatorConfig combina los flags de ejecución del backtest con fees y latencia.
func (c *Config) SimulatorConfig() execution.Config {
	return execution.Config{
		UseRealisticExecution: c.Backtest.UseRealisticExecution,
		IncludeFees:           c.Backtest.IncludeFees,
		UseBNBDiscount:        c.Backtest.UseBNBDiscount,
		Fees:                  c.Execution.Fees,
		Latency:               c.Execution.Latency,
	}
}

// ExecutionSeed devuelve la semilla configurada o una basada en el reloj.
func (c *Config) ExecutionSeed() uint64 {
	if c.Execution.Seed != 0 {
		return c.Execution.Seed
	}
	return uint64(time.Now().UnixNano())
}
