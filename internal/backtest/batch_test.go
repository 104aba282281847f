package backtest

import (
	"context"
	"testing"

	"arbcore/pkg/types"
)

func TestRunBatchOrderingAndDeterminism(t *testing.T) {
	states := buildStates(120)
	resolutions := map[string]types.Resolution{"FED-DEC": types.ResolutionYes}
	cfg := Config{StartingCash: 100000, SlippageBps: 5, TradeQuantity: 100}

	runs := []Run{
		{Label: "seed=1", Config: cfg, Seed: 1, States: states, SignalFunc: alwaysBuyYes, Resolutions: resolutions},
		{Label: "seed=2", Config: cfg, Seed: 2, States: states, SignalFunc: alwaysBuyYes, Resolutions: resolutions},
		{Label: "seed=3", Config: cfg, Seed: 3, States: states, SignalFunc: alwaysBuyYes, Resolutions: resolutions},
	}

	first, err := RunBatch(context.Background(), runs)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if len(first) != len(runs) {
		t.Fatalf("expected %d results, got %d", len(runs), len(first))
	}
	for i, r := range first {
		if r.Label != runs[i].Label {
			t.Errorf("result %d: expected label %q in run order, got %q", i, runs[i].Label, r.Label)
		}
	}

	second, err := RunBatch(context.Background(), runs)
	if err != nil {
		t.Fatalf("RunBatch (rerun): %v", err)
	}
	for i := range first {
		if first[i].Metrics.FinalEquity != second[i].Metrics.FinalEquity {
			t.Errorf("run %d: expected identical final equity across batch runs, got %v vs %v",
				i, first[i].Metrics.FinalEquity, second[i].Metrics.FinalEquity)
		}
	}
}

func TestRunBatchDistinctSeedsIndependentRNG(t *testing.T) {
	states := buildStates(120)
	resolutions := map[string]types.Resolution{"FED-DEC": types.ResolutionNo}
	cfg := Config{StartingCash: 100000, SlippageBps: 500, TradeQuantity: 100}

	runs := []Run{
		{Label: "seed=1", Config: cfg, Seed: 1, States: states, SignalFunc: alwaysBuyYes, Resolutions: resolutions},
		{Label: "seed=2", Config: cfg, Seed: 2, States: states, SignalFunc: alwaysBuyYes, Resolutions: resolutions},
	}

	results, err := RunBatch(context.Background(), runs)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	sameSeedRuns := []Run{runs[0], runs[0]}
	sameSeedResults, err := RunBatch(context.Background(), sameSeedRuns)
	if err != nil {
		t.Fatalf("RunBatch (same seed twice): %v", err)
	}
	if sameSeedResults[0].Metrics.FinalEquity != sameSeedResults[1].Metrics.FinalEquity {
		t.Errorf("expected identical equity for two runs sharing a seed")
	}

	_ = results
}
