package store

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ta-trading-bot/internal/types"
)

const (
	ModeSimulated = "SIMULATED"
	ModeLive      = "LIVE"

	DataSourceLive   = "LIVE"
	DataSourceStatic = "STATIC"
	DataSourceStream = "STREAM"

	LedgerCSV    = "CSV"
	LedgerSQLite = "SQLITE"

	DeciderRules = "RULES"
	DeciderNoop  = "NOOP"
)

type Config struct {
	Mode       string `yaml:"mode"`
	DataSource string `yaml:"data_source"`
	Decider    string `yaml:"decider"`

	Symbol     string `yaml:"symbol"`
	BaseAsset  string `yaml:"base_asset"`
	QuoteAsset string `yaml:"quote_asset"`
	Interval   string `yaml:"interval"`

	PollSeconds         int `yaml:"poll_seconds"`
	ErrorBackoffSeconds int `yaml:"error_backoff_seconds"`
	CandleLimit         int `yaml:"candle_limit"`

	Exchange struct {
		BaseURL         string  `yaml:"base_url"`
		StreamURL       string  `yaml:"stream_url"`
		APIKey          string  `yaml:"-"`
		SecretKey       string  `yaml:"-"`
		RecvWindowMs    int     `yaml:"recv_window_ms"`
		TimeoutSeconds  int     `yaml:"timeout_seconds"`
		RequestsPerSec  float64 `yaml:"requests_per_sec"`
		MaxRetries      int     `yaml:"max_retries"`
		StreamCacheSize int     `yaml:"stream_cache_size"`
	} `yaml:"exchange"`

	Indicators struct {
		SMAShort   int     `yaml:"sma_short"`
		SMALong    int     `yaml:"sma_long"`
		RSIPeriod  int     `yaml:"rsi_period"`
		MACDFast   int     `yaml:"macd_fast"`
		MACDSlow   int     `yaml:"macd_slow"`
		MACDSignal int     `yaml:"macd_signal"`
		BBWindow   int     `yaml:"bb_window"`
		BBStdDev   float64 `yaml:"bb_stddev"`
	} `yaml:"indicators"`

	Thresholds struct {
		RSIBuy        float64 `yaml:"rsi_buy"`
		RSIOversold   float64 `yaml:"rsi_oversold"`
		RSIOverbought float64 `yaml:"rsi_overbought"`
		MinMargin     float64 `yaml:"min_margin"`
	} `yaml:"thresholds"`

	Sizing struct {
		FeeRate     float64 `yaml:"fee_rate"`
		Precision   int32   `yaml:"precision"`
		MinNotional float64 `yaml:"min_notional"`
		Percentage  float64 `yaml:"percentage"`
	} `yaml:"sizing"`

	Simulation struct {
		InitialBalances map[string]float64 `yaml:"initial_balances"`
	} `yaml:"simulation"`

	Ledger struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
	} `yaml:"ledger"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`

	Schedule struct {
		EODCron       string `yaml:"eod_cron"`
		CompressCron  string `yaml:"compress_cron"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"schedule"`
}

// Simulated reports whether orders are filled against in-memory balances.
func (c *Config) Simulated() bool { return c.Mode == ModeSimulated }

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

func (c *Config) ErrorBackoff() time.Duration {
	return time.Duration(c.ErrorBackoffSeconds) * time.Second
}

func (c *Config) Validate() error {
	if c.Mode != ModeSimulated && c.Mode != ModeLive {
		return fmt.Errorf("invalid mode '%s': must be '%s' or '%s'", c.Mode, ModeSimulated, ModeLive)
	}
	switch c.DataSource {
	case DataSourceLive, DataSourceStatic, DataSourceStream:
	default:
		return fmt.Errorf("invalid data_source '%s': must be 'LIVE', 'STATIC' or 'STREAM'", c.DataSource)
	}
	if c.Decider != DeciderRules && c.Decider != DeciderNoop {
		return fmt.Errorf("invalid decider '%s': must be 'RULES' or 'NOOP'", c.Decider)
	}
	if c.Symbol == "" || c.BaseAsset == "" || c.QuoteAsset == "" {
		return errors.New("symbol, base_asset and quote_asset are required")
	}
	if c.Symbol != c.BaseAsset+c.QuoteAsset {
		return fmt.Errorf("symbol %s is not %s+%s", c.Symbol, c.BaseAsset, c.QuoteAsset)
	}
	if _, err := types.IntervalDuration(c.Interval); err != nil {
		return err
	}
	if c.PollSeconds <= 0 || c.ErrorBackoffSeconds <= 0 {
		return fmt.Errorf("poll_seconds and error_backoff_seconds must be positive, got %d and %d", c.PollSeconds, c.ErrorBackoffSeconds)
	}

	ind := c.Indicators
	for name, w := range map[string]int{
		"sma_short": ind.SMAShort, "sma_long": ind.SMALong, "rsi_period": ind.RSIPeriod,
		"macd_fast": ind.MACDFast, "macd_slow": ind.MACDSlow, "macd_signal": ind.MACDSignal,
		"bb_window": ind.BBWindow,
	} {
		if w <= 0 {
			return fmt.Errorf("indicators.%s must be positive, got %d", name, w)
		}
	}
	if ind.SMAShort >= ind.SMALong {
		return fmt.Errorf("indicators.sma_short (%d) must be below sma_long (%d)", ind.SMAShort, ind.SMALong)
	}
	if ind.MACDFast >= ind.MACDSlow {
		return fmt.Errorf("indicators.macd_fast (%d) must be below macd_slow (%d)", ind.MACDFast, ind.MACDSlow)
	}
	if ind.BBWindow < 2 {
		return fmt.Errorf("indicators.bb_window must be at least 2, got %d", ind.BBWindow)
	}
	if ind.BBStdDev <= 0 {
		return fmt.Errorf("indicators.bb_stddev must be positive, got %.2f", ind.BBStdDev)
	}

	if c.CandleLimit < c.longestWindow() {
		return fmt.Errorf("candle_limit %d is below the longest indicator window %d", c.CandleLimit, c.longestWindow())
	}

	s := c.Sizing
	if s.FeeRate < 0 || s.FeeRate >= 1 {
		return fmt.Errorf("sizing.fee_rate must be in [0,1), got %.4f", s.FeeRate)
	}
	if s.Percentage <= 0 || s.Percentage > 1 {
		return fmt.Errorf("sizing.percentage must be in (0,1], got %.4f", s.Percentage)
	}
	if s.Precision < 0 {
		return fmt.Errorf("sizing.precision must be non-negative, got %d", s.Precision)
	}
	if s.MinNotional < 0 {
		return fmt.Errorf("sizing.min_notional must be non-negative, got %.2f", s.MinNotional)
	}
	if c.Thresholds.MinMargin < 0 {
		return fmt.Errorf("thresholds.min_margin must be non-negative, got %.4f", c.Thresholds.MinMargin)
	}

	if c.Ledger.Backend != LedgerCSV && c.Ledger.Backend != LedgerSQLite {
		return fmt.Errorf("invalid ledger.backend '%s': must be 'CSV' or 'SQLITE'", c.Ledger.Backend)
	}
	if c.Mode == ModeLive && (c.Exchange.APIKey == "" || c.Exchange.SecretKey == "") {
		return errors.New("LIVE mode requires BINANCE_API_KEY and BINANCE_SECRET_KEY")
	}
	return nil
}

func (c *Config) longestWindow() int {
	ind := c.Indicators
	longest := ind.SMALong
	for _, w := range []int{ind.SMAShort, ind.RSIPeriod, ind.MACDSlow, ind.BBWindow} {
		if w > longest {
			longest = w
		}
	}
	return longest
}

// LoadConfig reads path (a missing file means defaults), applies env overrides and validates.
func LoadConfig(path string) (*Config, error) {
	c := &Config{}

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	c.applyEnv()
	c.fillDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return c, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.fillDefaults()
	return c
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("BINANCE_SECRET_KEY"); v != "" {
		c.Exchange.SecretKey = v
	}
	if v := os.Getenv("BOT_SYMBOL"); v != "" {
		c.Symbol = strings.ToUpper(v)
		quote := c.QuoteAsset
		if quote == "" {
			quote = "USDT"
		}
		if base, ok := strings.CutSuffix(c.Symbol, quote); ok && base != "" {
			c.BaseAsset, c.QuoteAsset = base, quote
		}
	}
	if v := os.Getenv("BOT_MODE"); v != "" {
		c.Mode = strings.ToUpper(v)
	}
	if v := os.Getenv("LEDGER_PATH"); v != "" {
		c.Ledger.Path = v
	}
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Schedule.RetentionDays = n
		}
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
		c.Metrics.Enabled = true
	}
}

func (c *Config) fillDefaults() {
	if c.Mode == "" {
		c.Mode = ModeSimulated
	}
	if c.DataSource == "" {
		c.DataSource = DataSourceLive
	}
	if c.Decider == "" {
		c.Decider = DeciderRules
	}
	if c.Symbol == "" {
		c.Symbol = "ETHUSDT"
	}
	if c.BaseAsset == "" {
		c.BaseAsset = "ETH"
	}
	if c.QuoteAsset == "" {
		c.QuoteAsset = "USDT"
	}
	if c.Interval == "" {
		c.Interval = "1m"
	}
	if c.PollSeconds == 0 {
		c.PollSeconds = 60
	}
	if c.ErrorBackoffSeconds == 0 {
		c.ErrorBackoffSeconds = 10
	}
	if c.CandleLimit == 0 {
		c.CandleLimit = 100
	}

	if c.Exchange.BaseURL == "" {
		c.Exchange.BaseURL = "https://api.binance.com"
	}
	if c.Exchange.StreamURL == "" {
		c.Exchange.StreamURL = "wss://stream.binance.com:9443/ws"
	}
	if c.Exchange.RecvWindowMs == 0 {
		c.Exchange.RecvWindowMs = 5000
	}
	if c.Exchange.TimeoutSeconds == 0 {
		c.Exchange.TimeoutSeconds = 10
	}
	if c.Exchange.RequestsPerSec == 0 {
		c.Exchange.RequestsPerSec = 10
	}
	if c.Exchange.MaxRetries == 0 {
		c.Exchange.MaxRetries = 3
	}
	if c.Exchange.StreamCacheSize == 0 {
		c.Exchange.StreamCacheSize = 500
	}

	ind := &c.Indicators
	if ind.SMAShort == 0 {
		ind.SMAShort = 5
	}
	if ind.SMALong == 0 {
		ind.SMALong = 10
	}
	if ind.RSIPeriod == 0 {
		ind.RSIPeriod = 14
	}
	if ind.MACDFast == 0 {
		ind.MACDFast = 12
	}
	if ind.MACDSlow == 0 {
		ind.MACDSlow = 26
	}
	if ind.MACDSignal == 0 {
		ind.MACDSignal = 9
	}
	if ind.BBWindow == 0 {
		ind.BBWindow = 20
	}
	if ind.BBStdDev == 0 {
		ind.BBStdDev = 2
	}

	th := &c.Thresholds
	if th.RSIBuy == 0 {
		th.RSIBuy = 35
	}
	if th.RSIOversold == 0 {
		th.RSIOversold = 30
	}
	if th.RSIOverbought == 0 {
		th.RSIOverbought = 70
	}
	if th.MinMargin == 0 {
		th.MinMargin = 0.005
	}

	s := &c.Sizing
	if s.FeeRate == 0 {
		s.FeeRate = 0.001
	}
	if s.Precision == 0 {
		s.Precision = 4
	}
	if s.MinNotional == 0 {
		s.MinNotional = 10
	}
	if s.Percentage == 0 {
		s.Percentage = 0.7
	}

	if c.Simulation.InitialBalances == nil {
		c.Simulation.InitialBalances = map[string]float64{c.QuoteAsset: 1000, c.BaseAsset: 0}
	}

	if c.Ledger.Backend == "" {
		c.Ledger.Backend = LedgerCSV
	}
	c.Ledger.Backend = strings.ToUpper(c.Ledger.Backend)
	if c.Ledger.Path == "" {
		c.Ledger.Path = c.defaultLedgerPath()
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Schedule.EODCron == "" {
		c.Schedule.EODCron = "0 55 23 * * *"
	}
	if c.Schedule.RetentionDays == 0 {
		c.Schedule.RetentionDays = 30
	}
	if c.Schedule.CompressCron == "" {
		c.Schedule.CompressCron = "0 0 1 * * *"
	}
}

func (c *Config) defaultLedgerPath() string {
	name := "transaction_history"
	if c.Mode == ModeSimulated {
		name = "simulated_transactions"
	}
	if c.Ledger.Backend == LedgerSQLite {
		return "data/" + name + ".db"
	}
	return "data/" + name + ".csv"
}
