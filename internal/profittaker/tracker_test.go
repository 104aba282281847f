package profittaker

import (
	"testing"
	"time"

	"arbcore/pkg/types"
)

func TestS5TrailingStopSequence(t *testing.T) {
	start := time.Unix(0, 0)
	// S5 exercises take-profit and the trailing stop only: no tier table.
	cfg := DefaultConfig()
	cfg.Tiers = nil
	tr := NewTracker(cfg, types.PositionYes, 0.40, start)
	afterHold := start.Add(2 * time.Minute)

	if acts := tr.Evaluate(0.45, afterHold, 100); len(acts) != 0 {
		t.Fatalf("at profit 0.125 expected no action, got %+v", acts)
	}

	acts := tr.Evaluate(0.48, afterHold, 100)
	if len(acts) != 0 {
		t.Fatalf("at profit 0.20 expected arm with no action, got %+v", acts)
	}
	if tr.State() != types.TrackerTrailingArmed {
		t.Fatalf("expected state TRAILING_ARMED after arming")
	}

	acts = tr.Evaluate(0.44, afterHold, 100)
	if len(acts) != 1 || acts[0].Kind != types.ActionTrailingStop {
		t.Fatalf("expected TRAILING_STOP at drop from peak, got %+v", acts)
	}
	if acts[0].Quantity != 100 {
		t.Errorf("expected full close quantity 100, got %d", acts[0].Quantity)
	}
}

func TestMinHoldGatesAllActions(t *testing.T) {
	start := time.Unix(0, 0)
	tr := NewTracker(DefaultConfig(), types.PositionYes, 0.40, start)
	tooSoon := start.Add(30 * time.Second)
	// Even a catastrophic loss is gated by min_hold_seconds.
	acts := tr.Evaluate(0.10, tooSoon, 100)
	if len(acts) != 0 {
		t.Errorf("expected no action before min_hold_seconds even on stop-loss territory, got %+v", acts)
	}
}

func TestStopLossClosesFullRegardlessOfTiers(t *testing.T) {
	start := time.Unix(0, 0)
	tr := NewTracker(DefaultConfig(), types.PositionYes, 0.40, start)
	afterHold := start.Add(2 * time.Minute)

	// Trip tier 1 first.
	tr.Evaluate(0.44, afterHold, 100) // profit_pct = 0.10, tier 1

	acts := tr.Evaluate(0.34, afterHold, 100) // profit_pct = -0.15, stop loss
	if len(acts) != 1 || acts[0].Kind != types.ActionStopLoss || acts[0].Quantity != 100 {
		t.Fatalf("expected full STOP_LOSS close, got %+v", acts)
	}
}

func TestTierFiresAtMostOnce(t *testing.T) {
	start := time.Unix(0, 0)
	cfg := DefaultConfig()
	cfg.UseTrailingStop = false
	tr := NewTracker(cfg, types.PositionYes, 0.40, start)
	afterHold := start.Add(2 * time.Minute)

	acts1 := tr.Evaluate(0.44, afterHold, 100) // tier 1 at 0.10
	if len(acts1) != 1 {
		t.Fatalf("expected tier 1 to fire once, got %+v", acts1)
	}
	acts2 := tr.Evaluate(0.44, afterHold, 100) // unchanged, should not refire tier 1
	if len(acts2) != 0 {
		t.Fatalf("expected tier 1 not to refire, got %+v", acts2)
	}
}

func TestTakeProfitWithoutTrailing(t *testing.T) {
	start := time.Unix(0, 0)
	cfg := DefaultConfig()
	cfg.UseTrailingStop = false
	tr := NewTracker(cfg, types.PositionYes, 0.40, start)
	afterHold := start.Add(2 * time.Minute)

	acts := tr.Evaluate(0.47, afterHold, 100) // profit_pct = 0.175 >= 0.15
	var gotTakeProfit bool
	for _, a := range acts {
		if a.Kind == types.ActionTakeProfit {
			gotTakeProfit = true
		}
	}
	if !gotTakeProfit {
		t.Fatalf("expected TAKE_PROFIT without trailing stop, got %+v", acts)
	}
}

func TestNoSideMirrorsProfitCalc(t *testing.T) {
	start := time.Unix(0, 0)
	cfg := DefaultConfig()
	cfg.UseTrailingStop = false
	tr := NewTracker(cfg, types.PositionNo, 0.60, start)
	afterHold := start.Add(2 * time.Minute)

	// NO side profits as the mark falls below entry.
	acts := tr.Evaluate(0.45, afterHold, 100) // profit_pct = (0.60-0.45)/0.60 = 0.25
	var gotTakeProfit bool
	for _, a := range acts {
		if a.Kind == types.ActionTakeProfit {
			gotTakeProfit = true
		}
	}
	if !gotTakeProfit {
		t.Errorf("expected TAKE_PROFIT on NO-side favorable move, got %+v", acts)
	}
}

func TestOnceArmedNeverDisarms(t *testing.T) {
	start := time.Unix(0, 0)
	tr := NewTracker(DefaultConfig(), types.PositionYes, 0.40, start)
	afterHold := start.Add(2 * time.Minute)

	tr.Evaluate(0.48, afterHold, 100) // arm, peak profit_pct = 0.20
	// profit_pct = 0.175, drop 0.025 < trailing_stop_pct: still above take-profit
	// and already armed, so this closes full rather than re-arming or going silent.
	acts := tr.Evaluate(0.47, afterHold, 100)
	if tr.State() != types.TrackerTrailingArmed {
		t.Errorf("expected tracker to remain armed, got %v", tr.State())
	}
	if len(acts) != 1 || acts[0].Kind != types.ActionTakeProfit || acts[0].Quantity != 100 {
		t.Errorf("expected a full TAKE_PROFIT close once armed and still above target, got %+v", acts)
	}
}
