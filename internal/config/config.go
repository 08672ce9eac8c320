// Package config defines the engine configuration and loads it from YAML
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for a backtest or optimization run.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Fill      FillConfig      `yaml:"fill"`
	Costs     CostConfig      `yaml:"costs"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Logging   Logging         `yaml:"logging"`
}

// EngineConfig holds the portfolio-level parameters of a run.
type EngineConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	CashUnit       string  `yaml:"cash_unit"`
	RiskFreeRate   float64 `yaml:"risk_free_rate"`
	MinLookback    int     `yaml:"min_lookback"`
}

// FillConfig controls fill simulation behaviour.
type FillConfig struct {
	// Latency is "next_bar" (default) or "same_bar". Next-bar executes
	// market orders at the open of the bar after submission; same-bar
	// executes at the close of the submission bar.
	Latency string `yaml:"latency"`
	// LimitFillRatio is the fraction of the remaining quantity a limit
	// order fills per qualifying bar, in (0, 1]. Defaults to 1 (full fill).
	LimitFillRatio float64 `yaml:"limit_fill_ratio"`
	// StopNextBar defers a triggered stop's market fill to the following
	// bar's open instead of filling on the trigger bar.
	StopNextBar bool `yaml:"stop_next_bar"`
}

// ModelConfig selects one commission or slippage model and its parameter.
type ModelConfig struct {
	Type  string  `yaml:"type"`
	Value float64 `yaml:"value"`
}

// CostConfig selects the commission and slippage models applied at fill time.
type CostConfig struct {
	Commission ModelConfig `yaml:"commission"`
	Slippage   ModelConfig `yaml:"slippage"`
}

// OptimizerConfig bounds the parameter-search worker pool.
type OptimizerConfig struct {
	Workers int `yaml:"workers"`
	// RunTimeoutSec aborts a single backtest that exceeds the limit and
	// records it as a failed leaderboard entry. Zero disables the timeout.
	RunTimeoutSec int `yaml:"run_timeout_sec"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with the documented defaults applied.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			InitialCapital: 100000,
			CashUnit:       "USD",
			RiskFreeRate:   0.0,
			MinLookback:    1,
		},
		Fill: FillConfig{
			Latency:        "next_bar",
			LimitFillRatio: 1.0,
		},
		Costs: CostConfig{
			Commission: ModelConfig{Type: "none"},
			Slippage:   ModelConfig{Type: "none"},
		},
		Optimizer: OptimizerConfig{
			Workers: runtime.GOMAXPROCS(0),
		},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it over
// the defaults, applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GOQUANT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GOQUANT_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("GOQUANT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Optimizer.Workers = n
		}
	}
	if v := os.Getenv("GOQUANT_INITIAL_CAPITAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.InitialCapital = f
		}
	}
}

// Validate enforces the fail-fast configuration rules. It is called by Load
// and again by the engine entry points for configs built in code.
func (c *Config) Validate() error {
	if c.Engine.InitialCapital <= 0 {
		return fmt.Errorf("config: initial_capital must be positive, got %g", c.Engine.InitialCapital)
	}
	if c.Engine.MinLookback < 0 {
		return fmt.Errorf("config: min_lookback must be non-negative, got %d", c.Engine.MinLookback)
	}
	switch c.Fill.Latency {
	case "", "next_bar", "same_bar":
	default:
		return fmt.Errorf("config: unknown fill latency %q", c.Fill.Latency)
	}
	if r := c.Fill.LimitFillRatio; r < 0 || r > 1 {
		return fmt.Errorf("config: limit_fill_ratio must be in (0, 1], got %g", r)
	}
	if c.Optimizer.Workers < 0 {
		return fmt.Errorf("config: workers must be non-negative, got %d", c.Optimizer.Workers)
	}
	return nil
}
