package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Engine.InitialCapital != 100000 {
		t.Errorf("InitialCapital = %g, want 100000", cfg.Engine.InitialCapital)
	}
	if cfg.Engine.CashUnit != "USD" {
		t.Errorf("CashUnit = %q, want USD", cfg.Engine.CashUnit)
	}
	if cfg.Fill.Latency != "next_bar" {
		t.Errorf("Latency = %q, want next_bar", cfg.Fill.Latency)
	}
	if cfg.Fill.LimitFillRatio != 1.0 {
		t.Errorf("LimitFillRatio = %g, want 1", cfg.Fill.LimitFillRatio)
	}
	if cfg.Costs.Commission.Type != "none" || cfg.Costs.Slippage.Type != "none" {
		t.Errorf("cost models = %q/%q, want none/none", cfg.Costs.Commission.Type, cfg.Costs.Slippage.Type)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults failed validation: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
engine:
  initial_capital: 250000
  risk_free_rate: 0.03
fill:
  latency: same_bar
costs:
  commission:
    type: percent
    value: 0.001
optimizer:
  workers: 4
  run_timeout_sec: 30
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Engine.InitialCapital != 250000 {
		t.Errorf("InitialCapital = %g, want 250000", cfg.Engine.InitialCapital)
	}
	if cfg.Engine.RiskFreeRate != 0.03 {
		t.Errorf("RiskFreeRate = %g, want 0.03", cfg.Engine.RiskFreeRate)
	}
	if cfg.Fill.Latency != "same_bar" {
		t.Errorf("Latency = %q, want same_bar", cfg.Fill.Latency)
	}
	if cfg.Costs.Commission.Type != "percent" || cfg.Costs.Commission.Value != 0.001 {
		t.Errorf("Commission = %+v, want percent/0.001", cfg.Costs.Commission)
	}
	if cfg.Optimizer.Workers != 4 || cfg.Optimizer.RunTimeoutSec != 30 {
		t.Errorf("Optimizer = %+v, want workers 4, timeout 30", cfg.Optimizer)
	}

	// Untouched fields keep their defaults.
	if cfg.Engine.CashUnit != "USD" {
		t.Errorf("CashUnit = %q, want default USD", cfg.Engine.CashUnit)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Format = %q, want default json", cfg.Logging.Format)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"negative capital", "engine:\n  initial_capital: -5\n"},
		{"unknown latency", "fill:\n  latency: instant\n"},
		{"ratio above one", "fill:\n  limit_fill_ratio: 1.5\n"},
		{"negative workers", "optimizer:\n  workers: -1\n"},
		{"malformed yaml", "engine: [not a map\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GOQUANT_LOG_LEVEL", "debug")
	t.Setenv("GOQUANT_WORKERS", "2")
	t.Setenv("GOQUANT_INITIAL_CAPITAL", "75000")

	cfg, err := Load(writeConfig(t, "logging:\n  level: info\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want env override debug", cfg.Logging.Level)
	}
	if cfg.Optimizer.Workers != 2 {
		t.Errorf("Workers = %d, want env override 2", cfg.Optimizer.Workers)
	}
	if cfg.Engine.InitialCapital != 75000 {
		t.Errorf("InitialCapital = %g, want env override 75000", cfg.Engine.InitialCapital)
	}
}

func TestEnvOverrideIgnoresGarbage(t *testing.T) {
	t.Setenv("GOQUANT_WORKERS", "lots")

	cfg := Default()
	applyEnvOverrides(cfg)
	if cfg.Optimizer.Workers <= 0 {
		t.Errorf("Workers = %d, garbage override must leave the default", cfg.Optimizer.Workers)
	}
}
