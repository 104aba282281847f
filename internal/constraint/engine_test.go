package constraint

import (
	"testing"

	"arbcore/pkg/types"
)

func TestRegisterSubsetValidatesShape(t *testing.T) {
	e := New()
	if _, err := e.Register(types.ConstraintSubset, []string{"A", "B"}, []string{"C"}, ""); err == nil {
		t.Fatal("expected error for subset with 2 lhs tickers")
	}
	if _, err := e.RegisterPartition([]string{"A"}, ""); err == nil {
		t.Fatal("expected error for partition with < 2 members")
	}
}

func TestSubsetBounds(t *testing.T) {
	e := New()
	if _, err := e.RegisterSubset("TRUMP", "GOP", "trump implies gop"); err != nil {
		t.Fatal(err)
	}
	prices := map[string]float64{"TRUMP": 0.42, "GOP": 0.38}

	boundB, ok := e.BoundsFor("GOP", prices)
	if !ok {
		t.Fatal("expected bound for GOP")
	}
	if boundB.Lower < prices["TRUMP"] {
		t.Errorf("GOP lower bound %v should be >= p(TRUMP)=%v", boundB.Lower, prices["TRUMP"])
	}

	boundA, ok := e.BoundsFor("TRUMP", prices)
	if !ok {
		t.Fatal("expected bound for TRUMP")
	}
	if boundA.Upper > prices["GOP"] {
		t.Errorf("TRUMP upper bound %v should be <= p(GOP)=%v", boundA.Upper, prices["GOP"])
	}
}

func TestPartitionBounds(t *testing.T) {
	e := New()
	if _, err := e.RegisterPartition([]string{"A", "B", "C"}, "three-way race"); err != nil {
		t.Fatal(err)
	}
	prices := map[string]float64{"A": 0.30, "B": 0.30, "C": 0.30}

	for _, ticker := range []string{"A", "B", "C"} {
		b, ok := e.BoundsFor(ticker, prices)
		if !ok {
			t.Fatalf("expected bound for %s", ticker)
		}
		var sumOthers float64
		for other, p := range prices {
			if other != ticker {
				sumOthers += p
			}
		}
		if b.Upper+sumOthers > 1+1e-9 {
			t.Errorf("%s upper %v plus others %v exceeds 1", ticker, b.Upper, sumOthers)
		}
	}
}

func TestBoundsAlwaysValidInterval(t *testing.T) {
	e := New()
	e.RegisterSubset("A", "B", "")
	e.RegisterPartition([]string{"X", "Y", "Z"}, "")

	priceSets := []map[string]float64{
		{"A": 0.1, "B": 0.9, "X": 0.2, "Y": 0.3, "Z": 0.4},
		{"A": 0.99, "B": 0.01, "X": 0.5, "Y": 0.5, "Z": 0.5},
		{"A": 0.5, "B": 0.5, "X": 0.0, "Y": 1.0, "Z": 0.5},
	}
	for _, prices := range priceSets {
		for ticker, b := range e.AllBounds(prices) {
			if b.Lower > b.Upper {
				t.Logf("infeasible bound for %s: [%v,%v] (expected for adversarial inputs)", ticker, b.Lower, b.Upper)
				continue
			}
			if b.Lower < 0 || b.Upper > 1 {
				t.Errorf("%s bound [%v,%v] escapes [0,1]", ticker, b.Lower, b.Upper)
			}
		}
	}
}

func TestViolationZeroIffContained(t *testing.T) {
	b := types.ProbabilityBound{Lower: 0.2, Upper: 0.6}
	cases := []float64{0.1, 0.2, 0.4, 0.6, 0.8}
	for _, p := range cases {
		v := b.Violation(p)
		contained := b.Contains(p)
		if (v == 0) != contained {
			t.Errorf("p=%v: violation=%v contains=%v, should match", p, v, contained)
		}
	}
}

func TestMergeIsMaxLowerMinUpper(t *testing.T) {
	bounds := []types.ProbabilityBound{
		{Lower: 0.1, Upper: 0.9, Confidence: 0.8},
		{Lower: 0.3, Upper: 0.7, Confidence: 1.0},
		{Lower: 0.2, Upper: 0.95, Confidence: 0.5},
	}
	merged := Merge(bounds)
	if merged.Lower != 0.3 {
		t.Errorf("merged lower = %v, want 0.3", merged.Lower)
	}
	if merged.Upper != 0.7 {
		t.Errorf("merged upper = %v, want 0.7", merged.Upper)
	}
	if merged.Confidence != 0.5 {
		t.Errorf("merged confidence = %v, want 0.5", merged.Confidence)
	}
}

func TestMergeCommutative(t *testing.T) {
	a := types.ProbabilityBound{Lower: 0.1, Upper: 0.8, Confidence: 1}
	b := types.ProbabilityBound{Lower: 0.3, Upper: 0.6, Confidence: 1}
	m1 := Merge([]types.ProbabilityBound{a, b})
	m2 := Merge([]types.ProbabilityBound{b, a})
	if m1 != m2 {
		t.Errorf("merge not commutative: %+v != %+v", m1, m2)
	}
}

func TestRemoveUnknownReturnsFalse(t *testing.T) {
	e := New()
	if e.Remove(9999) {
		t.Error("expected Remove of unknown id to return false")
	}
}

func TestRemoveScrubsTickerIndex(t *testing.T) {
	e := New()
	c, _ := e.RegisterSubset("A", "B", "")
	if !e.Remove(c.ID) {
		t.Fatal("expected Remove to succeed")
	}
	if got := e.ConstraintsFor("A"); len(got) != 0 {
		t.Errorf("expected no constraints for A after removal, got %v", got)
	}
}

func TestViolationsSortedByMagnitudeDescending(t *testing.T) {
	e := New()
	e.RegisterSubset("A", "B", "")
	e.RegisterSubset("C", "D", "")
	prices := map[string]float64{"A": 0.9, "B": 0.1, "C": 0.5, "D": 0.6}
	viols := e.Violations(prices, 0)
	for i := 1; i < len(viols); i++ {
		if viols[i-1].Magnitude < viols[i].Magnitude {
			t.Errorf("violations not sorted descending: %+v", viols)
		}
	}
}

func TestAutoDeriveTemporal(t *testing.T) {
	e := New()
	markets := []SeriesMarket{
		{Ticker: "JAN", Series: "FED", Expiration: 100},
		{Ticker: "MAR", Series: "FED", Expiration: 300},
		{Ticker: "FEB", Series: "FED", Expiration: 200},
	}
	created, err := e.AutoDeriveTemporal(markets)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 adjacent temporal constraints, got %d", len(created))
	}
	if created[0].LHS[0] != "JAN" || created[0].RHS[0] != "FEB" {
		t.Errorf("expected JAN->FEB first, got %+v", created[0])
	}
	if created[1].LHS[0] != "FEB" || created[1].RHS[0] != "MAR" {
		t.Errorf("expected FEB->MAR second, got %+v", created[1])
	}
}
