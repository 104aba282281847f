// Package config defines all configuration for the core: constraint
// engine, signal generators, sizer, risk manager, execution coordinator,
// profit-taker, backtest simulator, exchange client, persistence, and
// logging. Config is loaded from a YAML file (default:
// configs/config.yaml) with sensitive fields overridable via ARBCORE_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun      bool               `mapstructure:"dry_run"`
	Constraint  ConstraintConfig   `mapstructure:"constraint"`
	Signal      SignalConfig       `mapstructure:"signal"`
	Sizing      SizingConfig       `mapstructure:"sizing"`
	Risk        RiskConfig         `mapstructure:"risk"`
	Execution   ExecutionConfig    `mapstructure:"execution"`
	ProfitTaker ProfitTakerConfig  `mapstructure:"profit_taker"`
	Backtest    BacktestConfig     `mapstructure:"backtest"`
	Exchange    ExchangeConfig     `mapstructure:"exchange"`
	Store       StoreConfig        `mapstructure:"store"`
	Logging     LoggingConfig      `mapstructure:"logging"`
}

// ConstraintConfig tunes constraint-violation sensitivity.
type ConstraintConfig struct {
	MinViolationMagnitude float64 `mapstructure:"min_violation_magnitude"`
}

// SignalConfig tunes the three signal generators.
type SignalConfig struct {
	MinEdgeThreshold         float64       `mapstructure:"min_edge_threshold"`
	SafetyMargin             float64       `mapstructure:"safety_margin"`
	SignalTTL                time.Duration `mapstructure:"signal_ttl_seconds"`
	NearExpiryWindow         time.Duration `mapstructure:"near_expiry_window_seconds"`
	NearExpiryMinEdge        float64       `mapstructure:"near_expiry_min_edge"`
	MinDeviation             float64       `mapstructure:"rebalance_min_deviation"`
	MinProfitThreshold       float64       `mapstructure:"rebalance_min_profit_threshold"`
	CombinatorialMinProfit   float64       `mapstructure:"combinatorial_min_profit_threshold"`
	TitleSimilarityThreshold float64       `mapstructure:"title_similarity_threshold"`
}

// SizingConfig tunes the fractional-Kelly position sizer.
type SizingConfig struct {
	KellyFraction               float64 `mapstructure:"kelly_fraction"`
	MaxPositionPerMarket        float64 `mapstructure:"max_position_per_market"`
	MaxClusterAllocation        float64 `mapstructure:"max_cluster_allocation"`
	MinPositionSize             float64 `mapstructure:"min_position_size"`
	CorrelationAdjustmentPerPos float64 `mapstructure:"correlation_adjustment_per_position"`
}

// RiskConfig tunes the portfolio risk manager's drawdown state machine and
// exposure caps.
type RiskConfig struct {
	WarnDrawdown              float64 `mapstructure:"max_drawdown_warning"`
	ReduceDrawdown            float64 `mapstructure:"max_drawdown_reduce"`
	StopDrawdown              float64 `mapstructure:"max_drawdown_stop"`
	MaxSinglePosition         float64 `mapstructure:"max_single_position"`
	MaxClusterExposure        float64 `mapstructure:"max_cluster_exposure"`
	MinPositionSize           float64 `mapstructure:"min_position_size"`
	MinDaysToExpiration       float64 `mapstructure:"min_days_to_expiration"`
	CorrelationWindow         int     `mapstructure:"correlation_window"`
	CorrelationSpikeThreshold float64 `mapstructure:"correlation_spike_threshold"`
}

// ExecutionConfig tunes pre-flight revalidation and order lifecycle.
type ExecutionConfig struct {
	MaxPriceDrift     float64       `mapstructure:"max_price_drift"`
	OrderTimeout      time.Duration `mapstructure:"order_timeout_seconds"`
	PaperTrading      bool          `mapstructure:"paper_trading"`
	ScanInterval      time.Duration `mapstructure:"scan_interval_seconds"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl_seconds"`
}

// ProfitTakerConfig mirrors profittaker.Config's YAML shape.
type ProfitTakerConfig struct {
	TakeProfitPct   float64           `mapstructure:"take_profit_pct"`
	StopLossPct     float64           `mapstructure:"stop_loss_pct"`
	TrailingStopPct float64           `mapstructure:"trailing_stop_pct"`
	UseTrailingStop bool              `mapstructure:"use_trailing_stop"`
	MinHoldSeconds  float64           `mapstructure:"min_hold_seconds"`
	Tiers           []ProfitTierConfig `mapstructure:"tiers"`
}

// ProfitTierConfig is one tiered-close entry.
type ProfitTierConfig struct {
	ProfitPct     float64 `mapstructure:"profit_pct"`
	CloseFraction float64 `mapstructure:"close_fraction"`
}

// BacktestConfig tunes the event-driven simulator.
type BacktestConfig struct {
	StartingCash  float64 `mapstructure:"starting_cash"`
	SlippageBps   float64 `mapstructure:"slippage_bps"`
	TradeQuantity int     `mapstructure:"trade_quantity"`
	Seed          int64   `mapstructure:"seed"`
}

// ExchangeConfig holds exchange REST/WS endpoints and credentials.
type ExchangeConfig struct {
	BaseURL string `mapstructure:"base_url"`
	WSURL   string `mapstructure:"ws_url"`
	APIKey  string `mapstructure:"api_key"`
}

// StoreConfig sets where the constraint registry is persisted (JSON file).
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// LoggingConfig controls log/slog's level and format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: ARBCORE_EXCHANGE_API_KEY, ARBCORE_DRY_RUN.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ARBCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// The *_seconds keys hold plain numbers of seconds; Unmarshal alone would
	// read them into time.Duration as nanoseconds.
	secs := func(key string) time.Duration {
		return time.Duration(v.GetFloat64(key) * float64(time.Second))
	}
	cfg.Signal.SignalTTL = secs("signal.signal_ttl_seconds")
	cfg.Signal.NearExpiryWindow = secs("signal.near_expiry_window_seconds")
	cfg.Execution.OrderTimeout = secs("execution.order_timeout_seconds")
	cfg.Execution.ScanInterval = secs("execution.scan_interval_seconds")
	cfg.Execution.CacheTTL = secs("execution.cache_ttl_seconds")

	if key := os.Getenv("ARBCORE_EXCHANGE_API_KEY"); key != "" {
		cfg.Exchange.APIKey = key
	}
	if os.Getenv("ARBCORE_DRY_RUN") == "true" || os.Getenv("ARBCORE_DRY_RUN") == "1" {
		cfg.DryRun = true
	}
	if os.Getenv("ARBCORE_PAPER_TRADING") == "true" || os.Getenv("ARBCORE_PAPER_TRADING") == "1" {
		cfg.Execution.PaperTrading = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Exchange.BaseURL == "" && !c.Execution.PaperTrading {
		return fmt.Errorf("exchange.base_url is required unless execution.paper_trading is set")
	}
	if c.Sizing.KellyFraction <= 0 || c.Sizing.KellyFraction > 1 {
		return fmt.Errorf("sizing.kelly_fraction must be in (0,1]")
	}
	if c.Sizing.MaxPositionPerMarket <= 0 {
		return fmt.Errorf("sizing.max_position_per_market must be > 0")
	}
	if c.Risk.StopDrawdown <= c.Risk.ReduceDrawdown || c.Risk.ReduceDrawdown <= c.Risk.WarnDrawdown {
		return fmt.Errorf("risk drawdown thresholds must be strictly increasing: warning < reduce < stop")
	}
	if c.Risk.MaxClusterExposure <= 0 {
		return fmt.Errorf("risk.max_cluster_exposure must be > 0")
	}
	if c.Signal.MinEdgeThreshold <= 0 {
		return fmt.Errorf("signal.min_edge_threshold must be > 0")
	}
	if c.ProfitTaker.TakeProfitPct <= 0 {
		return fmt.Errorf("profit_taker.take_profit_pct must be > 0")
	}
	if c.Execution.OrderTimeout <= 0 {
		return fmt.Errorf("execution.order_timeout_seconds must be > 0")
	}
	return nil
}
