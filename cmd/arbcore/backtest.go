package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"arbcore/internal/backtest"
	"arbcore/internal/constraint"
	"arbcore/internal/signal"
	"arbcore/pkg/types"
)

// backtestFixture is the on-disk shape of a historical replay dataset:
// a chronological tick sequence plus the constraint registry and final
// resolutions needed to reproduce the same bounds and settlement the live
// loop would have seen.
type backtestFixture struct {
	Constraints []fixtureConstraint     `json:"constraints"`
	States      []backtest.MarketState  `json:"states"`
	Expirations map[string]time.Time    `json:"expirations"`
	Resolutions map[string]types.Resolution `json:"resolutions"`
}

type fixtureConstraint struct {
	Kind        types.ConstraintKind `json:"kind"`
	LHS         []string             `json:"lhs"`
	RHS         []string             `json:"rhs"`
	Description string               `json:"description"`
}

func newBacktestCmd() *cobra.Command {
	var dataPath string
	var seedsFlag string
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay a historical dataset through the constraint-violation detector",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBacktest(cfgPath, dataPath, seedsFlag)
		},
	}
	cmd.Flags().StringVar(&dataPath, "data", "", "path to a backtest fixture JSON file (required)")
	cmd.Flags().StringVar(&seedsFlag, "seeds", "", "comma-separated slippage seeds to replay in parallel (default: config's single seed)")
	cmd.MarkFlagRequired("data")
	return cmd
}

func runBacktest(cfgPath, dataPath, seedsFlag string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(dataPath)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}
	var fixture backtestFixture
	if err := json.Unmarshal(raw, &fixture); err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}
	sort.SliceStable(fixture.States, func(i, j int) bool {
		return fixture.States[i].Timestamp.Before(fixture.States[j].Timestamp)
	})

	reg := constraint.New()
	for _, c := range fixture.Constraints {
		if _, err := reg.Register(c.Kind, c.LHS, c.RHS, c.Description); err != nil {
			return fmt.Errorf("register constraint %q: %w", c.Description, err)
		}
	}

	gen := signal.NewViolationGenerator(signal.ViolationConfig{
		MinEdgeThreshold:  cfg.Signal.MinEdgeThreshold,
		SafetyMargin:      cfg.Signal.SafetyMargin,
		SignalTTL:         cfg.Signal.SignalTTL,
		NearExpiryWindow:  cfg.Signal.NearExpiryWindow,
		NearExpiryMinEdge: cfg.Signal.NearExpiryMinEdge,
	})

	seeds, err := parseSeeds(seedsFlag, cfg.Backtest.Seed)
	if err != nil {
		return err
	}

	simCfg := backtest.Config{
		StartingCash:  cfg.Backtest.StartingCash,
		SlippageBps:   cfg.Backtest.SlippageBps,
		TradeQuantity: cfg.Backtest.TradeQuantity,
	}
	runs := make([]backtest.Run, len(seeds))
	for i, seed := range seeds {
		runs[i] = backtest.Run{
			Label:       fmt.Sprintf("seed=%d", seed),
			Config:      simCfg,
			Seed:        seed,
			States:      fixture.States,
			SignalFunc:  buildSignalFunc(reg, gen, fixture.Expirations),
			Resolutions: fixture.Resolutions,
		}
	}

	results, err := backtest.RunBatch(context.Background(), runs)
	if err != nil {
		return fmt.Errorf("run backtest: %w", err)
	}
	for _, r := range results {
		fmt.Printf("--- %s ---\n%s\n", r.Label, r.Metrics.Report())
	}
	return nil
}

func parseSeeds(flag string, fallback int64) ([]int64, error) {
	if flag == "" {
		return []int64{fallback}, nil
	}
	parts := strings.Split(flag, ",")
	seeds := make([]int64, 0, len(parts))
	for _, p := range parts {
		s, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", p, err)
		}
		seeds = append(seeds, s)
	}
	return seeds, nil
}

// buildSignalFunc closes over a running per-ticker mid-price map so each
// tick's bound derivation sees every price observed so far, matching the
// live loop's one-pass bound recomputation.
func buildSignalFunc(reg *constraint.Engine, gen *signal.ViolationGenerator, expirations map[string]time.Time) backtest.SignalFunc {
	prices := make(map[string]float64)
	const farExpiration = 365 * 24 * time.Hour

	return func(state backtest.MarketState, _ backtest.Context) (types.DirectionalSignal, bool) {
		mid := (state.Bid + state.Ask) / 2
		prices[state.Ticker] = mid

		bound, ok := reg.BoundsFor(state.Ticker, prices)
		if !ok {
			return types.DirectionalSignal{}, false
		}

		spread := state.Ask - state.Bid
		if spread < 0 {
			spread = 0
		}

		tte := farExpiration
		if exp, ok := expirations[state.Ticker]; ok {
			tte = exp.Sub(state.Timestamp)
		}

		return gen.Generate(signal.TickerInput{
			Ticker:           state.Ticker,
			Price:            mid,
			Bound:            bound,
			Spread:           spread,
			TimeToExpiration: tte,
		}, state.Timestamp)
	}
}
