package config

import "time"

// Default returns a Config populated with the same defaults each
// component's own DefaultConfig() would produce, for use when no YAML
// file is supplied (paper-trading quick start, tests).
func Default() *Config {
	return &Config{
		DryRun: true,
		Constraint: ConstraintConfig{
			MinViolationMagnitude: 0.01,
		},
		Signal: SignalConfig{
			MinEdgeThreshold:         0.01,
			SafetyMargin:             0.005,
			SignalTTL:                300 * time.Second,
			NearExpiryWindow:         time.Hour,
			NearExpiryMinEdge:        0.03,
			MinDeviation:             0.001,
			MinProfitThreshold:       0.01,
			CombinatorialMinProfit:   0.02,
			TitleSimilarityThreshold: 0.5,
		},
		Sizing: SizingConfig{
			KellyFraction:               0.25,
			MaxPositionPerMarket:        0.05,
			MaxClusterAllocation:        0.10,
			MinPositionSize:             10,
			CorrelationAdjustmentPerPos: 0.20,
		},
		Risk: RiskConfig{
			WarnDrawdown:              0.10,
			ReduceDrawdown:            0.20,
			StopDrawdown:              0.30,
			MaxSinglePosition:         0.10,
			MaxClusterExposure:        0.50,
			MinPositionSize:           10,
			MinDaysToExpiration:       0.2,
			CorrelationWindow:         30,
			CorrelationSpikeThreshold: 0.50,
		},
		Execution: ExecutionConfig{
			MaxPriceDrift: 0.02,
			OrderTimeout:  60 * time.Second,
			PaperTrading:  true,
			ScanInterval:  2 * time.Second,
			CacheTTL:      5 * time.Second,
		},
		ProfitTaker: ProfitTakerConfig{
			TakeProfitPct:   0.15,
			StopLossPct:     0.10,
			TrailingStopPct: 0.05,
			UseTrailingStop: true,
			MinHoldSeconds:  60,
			Tiers: []ProfitTierConfig{
				{ProfitPct: 0.10, CloseFraction: 0.25},
				{ProfitPct: 0.20, CloseFraction: 0.50},
				{ProfitPct: 0.30, CloseFraction: 0.75},
			},
		},
		Backtest: BacktestConfig{
			StartingCash:  100000,
			SlippageBps:   5,
			TradeQuantity: 100,
			Seed:          42,
		},
		Store: StoreConfig{DataDir: "./data"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
