package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"BINANCE_API_KEY", "BINANCE_SECRET_KEY", "BOT_SYMBOL", "BOT_MODE", "LEDGER_PATH", "METRICS_ADDR", "TRADER_LOG_RETENTION_DAYS"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Mode != ModeSimulated || cfg.Symbol != "ETHUSDT" || cfg.Interval != "1m" {
		t.Errorf("Expected SIMULATED ETHUSDT 1m, got %s %s %s", cfg.Mode, cfg.Symbol, cfg.Interval)
	}
	if cfg.PollSeconds != 60 || cfg.ErrorBackoffSeconds != 10 || cfg.CandleLimit != 100 {
		t.Errorf("Expected 60/10/100, got %d/%d/%d", cfg.PollSeconds, cfg.ErrorBackoffSeconds, cfg.CandleLimit)
	}
	if cfg.Simulation.InitialBalances["USDT"] != 1000 {
		t.Errorf("Expected 1000 USDT, got %v", cfg.Simulation.InitialBalances)
	}
	if cfg.Ledger.Path != "simulated_transactions.csv" && !strings.HasSuffix(cfg.Ledger.Path, "simulated_transactions.csv") {
		t.Errorf("Expected the simulated ledger path, got %s", cfg.Ledger.Path)
	}
	if cfg.Sizing.FeeRate != 0.001 || cfg.Sizing.Precision != 4 || cfg.Thresholds.RSIBuy != 35 {
		t.Errorf("Unexpected sizing defaults: %+v %+v", cfg.Sizing, cfg.Thresholds)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
mode: SIMULATED
interval: 5m
poll_seconds: 30
ledger:
  backend: sqlite
indicators:
  rsi_period: 7
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOT_SYMBOL", "btcusdt")
	t.Setenv("METRICS_ADDR", ":9999")
	t.Setenv("TRADER_LOG_RETENTION_DAYS", "7")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Symbol != "BTCUSDT" || cfg.BaseAsset != "BTC" || cfg.QuoteAsset != "USDT" {
		t.Errorf("Expected BTCUSDT split into BTC/USDT, got %s %s/%s", cfg.Symbol, cfg.BaseAsset, cfg.QuoteAsset)
	}
	if cfg.Interval != "5m" || cfg.PollSeconds != 30 || cfg.Indicators.RSIPeriod != 7 {
		t.Errorf("Expected file values, got %s %d %d", cfg.Interval, cfg.PollSeconds, cfg.Indicators.RSIPeriod)
	}
	if cfg.Ledger.Backend != LedgerSQLite || !strings.HasSuffix(cfg.Ledger.Path, ".db") {
		t.Errorf("Expected a SQLite ledger, got %s at %s", cfg.Ledger.Backend, cfg.Ledger.Path)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9999" {
		t.Errorf("Expected metrics on :9999, got %v %s", cfg.Metrics.Enabled, cfg.Metrics.Addr)
	}
	if cfg.Schedule.RetentionDays != 7 {
		t.Errorf("Expected retention 7, got %d", cfg.Schedule.RetentionDays)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "DRY_RUN" }},
		{"bad interval", func(c *Config) { c.Interval = "7m" }},
		{"symbol mismatch", func(c *Config) { c.Symbol = "BTCUSDT" }},
		{"short window not below long", func(c *Config) { c.Indicators.SMAShort = 10 }},
		{"macd fast not below slow", func(c *Config) { c.Indicators.MACDFast = 26 }},
		{"candle limit too small", func(c *Config) { c.CandleLimit = 20 }},
		{"percentage above one", func(c *Config) { c.Sizing.Percentage = 1.5 }},
		{"fee rate negative", func(c *Config) { c.Sizing.FeeRate = -0.1 }},
		{"unknown ledger", func(c *Config) { c.Ledger.Backend = "PARQUET" }},
		{"live without keys", func(c *Config) { c.Mode = ModeLive }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("Expected defaults to validate, got %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Errorf("Expected validation error for %s", tt.name)
			}
		})
	}
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("mode: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected a parse error")
	}
}
