package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Server      ServerConfig     `mapstructure:"server"`
	Telegram    TelegramConfig   `mapstructure:"telegram"`
	Market      MarketConfig     `mapstructure:"market"`
	Entry       EntryConfig      `mapstructure:"entry"`
	SlowBleed   SlowBleedConfig  `mapstructure:"slow_bleed"`
	Scanner     ScannerConfig    `mapstructure:"scanner"`
	Regression  RegressionConfig `mapstructure:"regression"`
	Risk        RiskConfig       `mapstructure:"risk"`
	Backtest    BacktestConfig   `mapstructure:"backtest"`
}

// ServerConfig controls the optional status/health HTTP surface of the monitor.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" json:"-" yaml:"-"`
	ChatID   string `mapstructure:"chat_id"`
}

// MarketConfig holds market data acquisition settings.
type MarketConfig struct {
	PollInterval   string `mapstructure:"poll_interval"`
	DeribitBaseURL string `mapstructure:"deribit_base_url"`
	Currency       string `mapstructure:"currency"`
	HistoryDays    int    `mapstructure:"history_days"`
	TickRetention  string `mapstructure:"tick_retention"`
	RequestTimeout string `mapstructure:"request_timeout"`
}

// EntryConfig holds the panic-vol entry rule thresholds.
//
// The entry signal fires when the 1h spot change is at or below SpotDrop1h,
// the 1h DVOL change is at or above DvolPulse1h, and either IVP exceeds
// IVPThreshold or IVR exceeds IVRThreshold. MinHistory is the minimum number
// of trailing DVOL observations required before IVP/IVR are considered valid.
type EntryConfig struct {
	SpotDrop1h   float64 `mapstructure:"spot_drop_1h"`
	DvolPulse1h  float64 `mapstructure:"dvol_pulse_1h"`
	IVPThreshold float64 `mapstructure:"ivp_threshold"`
	IVRThreshold float64 `mapstructure:"ivr_threshold"`
	MinHistory   int     `mapstructure:"min_history"`
}

// SlowBleedConfig holds the slow-bleed suppressor thresholds: spot grinding
// down while DVOL stays flat or falls. When both hold, sell-side scanning is
// blocked for the cycle regardless of the entry signal.
type SlowBleedConfig struct {
	SpotDrop1h float64 `mapstructure:"spot_drop_1h"`
	DvolMax1h  float64 `mapstructure:"dvol_max_1h"`
}

// ScannerConfig bounds the option-chain scan universe.
type ScannerConfig struct {
	DTEMinDays      float64 `mapstructure:"dte_min_days"`
	DTEMaxDays      float64 `mapstructure:"dte_max_days"`
	DeltaMin        float64 `mapstructure:"delta_min"`
	DeltaMax        float64 `mapstructure:"delta_max"`
	SkewTargetDelta float64 `mapstructure:"skew_target_delta"`
	TermNearDays    int     `mapstructure:"term_near_days"`
	TermFarDays     int     `mapstructure:"term_far_days"`
}

// RegressionConfig controls the VRP mispricing model.
type RegressionConfig struct {
	Lookback       int     `mapstructure:"lookback"`
	MinSamples     int     `mapstructure:"min_samples"`
	SigmaThreshold float64 `mapstructure:"sigma_threshold"`
}

// RiskConfig holds hedge-ratio bands, kill-switch bounds and notional caps.
type RiskConfig struct {
	AccountBalance        float64 `mapstructure:"account_balance"`
	MaxSingleBTC          float64 `mapstructure:"max_single_btc"`
	MaxTotalBTC           float64 `mapstructure:"max_total_btc"`
	DvolElevated          float64 `mapstructure:"dvol_elevated"`
	DvolExtreme           float64 `mapstructure:"dvol_extreme"`
	KillDrawdown          float64 `mapstructure:"kill_drawdown"`
	KillDvol              float64 `mapstructure:"kill_dvol"`
	KillMarginUtilization float64 `mapstructure:"kill_margin_utilization"`
	HedgeFloor            float64 `mapstructure:"hedge_floor"`
}

// BacktestConfig holds the historical replay parameters. The defaults are the
// aggressive entry preset (-3% / +10%, no percentile gate); the live monitor
// preset lives under EntryConfig. Both are deliberate: the two strategy notes
// behind this system disagree on the baseline thresholds, so both stay
// configurable side by side.
type BacktestConfig struct {
	SpotDrop1h  float64 `mapstructure:"spot_drop_1h"`
	DvolPulse1h float64 `mapstructure:"dvol_pulse_1h"`
	HoldHours   int     `mapstructure:"hold_hours"`
	FeeBps      float64 `mapstructure:"fee_bps"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind TELEGRAM_BOT_TOKEN environment variable: %w", err)
	}
	if err := viper.BindEnv("telegram.chat_id", "TELEGRAM_CHAT_ID"); err != nil {
		return nil, fmt.Errorf("failed to bind TELEGRAM_CHAT_ID environment variable: %w", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks every threshold for internal consistency. Violations are
// fatal at startup.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.Market.PollInterval); err != nil {
		return configErrorf("invalid market.poll_interval: %v", err)
	}
	if _, err := time.ParseDuration(c.Market.TickRetention); err != nil {
		return configErrorf("invalid market.tick_retention: %v", err)
	}
	if _, err := time.ParseDuration(c.Market.RequestTimeout); err != nil {
		return configErrorf("invalid market.request_timeout: %v", err)
	}
	if c.Market.HistoryDays <= 0 {
		return configErrorf("market.history_days must be positive, got %d", c.Market.HistoryDays)
	}
	if c.Scanner.DTEMinDays < 0 || c.Scanner.DTEMaxDays < c.Scanner.DTEMinDays {
		return configErrorf("scanner DTE range [%v, %v] must be ordered and non-negative",
			c.Scanner.DTEMinDays, c.Scanner.DTEMaxDays)
	}
	if c.Scanner.DeltaMin <= 0 || c.Scanner.DeltaMax >= 1 || c.Scanner.DeltaMax < c.Scanner.DeltaMin {
		return configErrorf("scanner delta band [%v, %v] must be ordered and within (0, 1)",
			c.Scanner.DeltaMin, c.Scanner.DeltaMax)
	}
	if c.Scanner.TermNearDays <= 0 || c.Scanner.TermFarDays <= c.Scanner.TermNearDays {
		return configErrorf("scanner term tenors near=%d far=%d must be positive and ordered",
			c.Scanner.TermNearDays, c.Scanner.TermFarDays)
	}
	if c.Regression.MinSamples < 5 || c.Regression.Lookback < c.Regression.MinSamples {
		return configErrorf("regression lookback=%d min_samples=%d: need lookback >= min_samples >= 5",
			c.Regression.Lookback, c.Regression.MinSamples)
	}
	if c.Regression.SigmaThreshold <= 0 {
		return configErrorf("regression.sigma_threshold must be positive, got %v", c.Regression.SigmaThreshold)
	}
	if c.Risk.MaxSingleBTC <= 0 || c.Risk.MaxTotalBTC <= 0 {
		return configErrorf("risk notional caps must be positive, got single=%v total=%v",
			c.Risk.MaxSingleBTC, c.Risk.MaxTotalBTC)
	}
	if c.Risk.AccountBalance <= 0 {
		return configErrorf("risk.account_balance must be positive, got %v", c.Risk.AccountBalance)
	}
	if c.Risk.HedgeFloor < 0 || c.Risk.HedgeFloor > 1 {
		return configErrorf("risk.hedge_floor must be within [0, 1], got %v", c.Risk.HedgeFloor)
	}
	if c.Entry.MinHistory <= 1 {
		return configErrorf("entry.min_history must exceed 1, got %d", c.Entry.MinHistory)
	}
	if c.Backtest.HoldHours < 1 {
		return configErrorf("backtest.hold_hours must be at least 1, got %d", c.Backtest.HoldHours)
	}
	if c.Backtest.FeeBps < 0 {
		return configErrorf("backtest.fee_bps must be non-negative, got %v", c.Backtest.FeeBps)
	}
	return nil
}

// PollIntervalDuration returns the parsed monitor poll interval. Validate
// guarantees the value parses.
func (c *MarketConfig) PollIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.PollInterval)
	return d
}

func (c *MarketConfig) TickRetentionDuration() time.Duration {
	d, _ := time.ParseDuration(c.TickRetention)
	return d
}

func (c *MarketConfig) RequestTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.RequestTimeout)
	return d
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.enabled", false)
	viper.SetDefault("server.port", 8089)

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.chat_id", "")

	// Market data
	viper.SetDefault("market.poll_interval", "30s")
	viper.SetDefault("market.deribit_base_url", "https://www.deribit.com/api/v2")
	viper.SetDefault("market.currency", "BTC")
	viper.SetDefault("market.history_days", 365)
	viper.SetDefault("market.tick_retention", "2h")
	viper.SetDefault("market.request_timeout", "10s")

	// Entry rule (baseline preset: percentile-gated)
	viper.SetDefault("entry.spot_drop_1h", -0.025)
	viper.SetDefault("entry.dvol_pulse_1h", 0.05)
	viper.SetDefault("entry.ivp_threshold", 70.0)
	viper.SetDefault("entry.ivr_threshold", 50.0)
	viper.SetDefault("entry.min_history", 30)

	// Slow-bleed suppressor
	viper.SetDefault("slow_bleed.spot_drop_1h", -0.02)
	viper.SetDefault("slow_bleed.dvol_max_1h", 0.0)

	// Option scan universe
	viper.SetDefault("scanner.dte_min_days", 14.0)
	viper.SetDefault("scanner.dte_max_days", 30.0)
	viper.SetDefault("scanner.delta_min", 0.15)
	viper.SetDefault("scanner.delta_max", 0.20)
	viper.SetDefault("scanner.skew_target_delta", 0.20)
	viper.SetDefault("scanner.term_near_days", 7)
	viper.SetDefault("scanner.term_far_days", 30)

	// VRP mispricing model
	viper.SetDefault("regression.lookback", 120)
	viper.SetDefault("regression.min_samples", 30)
	viper.SetDefault("regression.sigma_threshold", 2.0)

	// Risk limits
	viper.SetDefault("risk.account_balance", 22000.0)
	viper.SetDefault("risk.max_single_btc", 0.10)
	viper.SetDefault("risk.max_total_btc", 0.20)
	viper.SetDefault("risk.dvol_elevated", 55.0)
	viper.SetDefault("risk.dvol_extreme", 65.0)
	viper.SetDefault("risk.kill_drawdown", -0.10)
	viper.SetDefault("risk.kill_dvol", 75.0)
	viper.SetDefault("risk.kill_margin_utilization", 0.85)
	viper.SetDefault("risk.hedge_floor", 0.2)

	// Backtest (aggressive preset: no percentile gate)
	viper.SetDefault("backtest.spot_drop_1h", -0.03)
	viper.SetDefault("backtest.dvol_pulse_1h", 0.10)
	viper.SetDefault("backtest.hold_hours", 24)
	viper.SetDefault("backtest.fee_bps", 10.0)
}
