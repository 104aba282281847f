package backtest

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"arbcore/pkg/types"
)

func buildStates(n int) []MarketState {
	start := time.Unix(1700000000, 0)
	states := make([]MarketState, 0, n)
	price := 0.40
	for i := 0; i < n; i++ {
		// deterministic oscillation, no time.Now/rand in test fixture construction
		delta := 0.01 * float64((i%7)-3)
		price += delta * 0.02
		if price < 0.05 {
			price = 0.05
		}
		if price > 0.95 {
			price = 0.95
		}
		states = append(states, MarketState{
			Ticker:    "FED-DEC",
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Bid:       price - 0.01,
			Ask:       price + 0.01,
			Last:      price,
			Volume:    1000,
		})
	}
	return states
}

// alwaysBuyYes is a fixed signal function: buys YES whenever no position
// is open yet, then holds.
func alwaysBuyYes(state MarketState, ctx Context) (types.DirectionalSignal, bool) {
	if _, open := ctx.Positions[state.Ticker]; open {
		return types.DirectionalSignal{}, false
	}
	return types.DirectionalSignal{
		Ticker:       state.Ticker,
		Side:         types.BuyYes,
		CurrentPrice: state.mid(),
		NetEdge:      0.05,
	}, true
}

func TestS6EventDrivenDeterminism(t *testing.T) {
	states := buildStates(200)
	resolutions := map[string]types.Resolution{"FED-DEC": types.ResolutionYes}
	cfg := Config{StartingCash: 100000, SlippageBps: 5, TradeQuantity: 100}

	run := func() Metrics {
		sim := New(cfg, rand.New(rand.NewSource(42)))
		return sim.Run(states, alwaysBuyYes, resolutions)
	}

	first := run()
	second := run()

	if !reflect.DeepEqual(first.Trades, second.Trades) {
		t.Fatalf("expected identical trades across runs with the same seed\nfirst:  %+v\nsecond: %+v", first.Trades, second.Trades)
	}
	if first.FinalEquity != second.FinalEquity {
		t.Errorf("expected identical final equity, got %v vs %v", first.FinalEquity, second.FinalEquity)
	}
	if first.Sharpe != second.Sharpe || first.MaxDrawdown != second.MaxDrawdown {
		t.Errorf("expected identical derived metrics across runs")
	}
}

func TestDifferentSeedsCanDiffer(t *testing.T) {
	states := buildStates(50)
	resolutions := map[string]types.Resolution{"FED-DEC": types.ResolutionNo}
	cfg := Config{StartingCash: 100000, SlippageBps: 500, TradeQuantity: 100}

	simA := New(cfg, rand.New(rand.NewSource(1)))
	simB := New(cfg, rand.New(rand.NewSource(2)))

	a := simA.Run(states, alwaysBuyYes, resolutions)
	b := simB.Run(states, alwaysBuyYes, resolutions)

	if a.Trades[0].Price == b.Trades[0].Price {
		t.Skip("slippage draws happened to coincide; not a determinism failure")
	}
}

func TestSettlementPaysWinnersAndZeroesLosers(t *testing.T) {
	states := buildStates(3)
	cfg := Config{StartingCash: 10000, SlippageBps: 0, TradeQuantity: 10}
	sim := New(cfg, rand.New(rand.NewSource(7)))
	resolutions := map[string]types.Resolution{"FED-DEC": types.ResolutionYes}

	metrics := sim.Run(states, alwaysBuyYes, resolutions)
	if metrics.TradeCount == 0 {
		t.Fatal("expected at least one closing trade from settlement")
	}
	for _, tr := range sim.Trades() {
		if tr.RealizedPnL != 0 && tr.RealizedPnL < -float64(tr.Quantity) {
			t.Errorf("loss beyond full stake is impossible for a binary contract: %+v", tr)
		}
	}
}

func TestMaxDrawdownNeverExceedsOne(t *testing.T) {
	curve := []EquityPoint{
		{Equity: 1000}, {Equity: 1200}, {Equity: 300}, {Equity: 900},
	}
	dd := maxDrawdown(curve)
	if dd <= 0 || dd > 1 {
		t.Errorf("expected drawdown in (0,1], got %v", dd)
	}
}

func TestProfitFactorInfiniteWithNoLosses(t *testing.T) {
	trades := []Trade{
		{Action: types.ActionSell, Quantity: 10, RealizedPnL: 50},
		{Action: types.ActionSell, Quantity: 10, RealizedPnL: 30},
	}
	m := computeMetrics(1000, []EquityPoint{{Equity: 1000}, {Equity: 1080}}, trades)
	if !isInf(m.ProfitFactor) {
		t.Errorf("expected infinite profit factor with zero losses, got %v", m.ProfitFactor)
	}
}

func isInf(f float64) bool { return f > 1e300 }

func TestReportIncludesKeyFigures(t *testing.T) {
	m := Metrics{StartingEquity: 1000, FinalEquity: 1100, TotalReturn: 0.10}
	report := m.Report()
	if report == "" {
		t.Fatal("expected non-empty report")
	}
}
