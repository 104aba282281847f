// Package profittaker implements the per-position HOLD/TRAILING_ARMED state
// machine: fixed take-profit/stop-loss, trailing stop, and tiered closes,
// evaluated in a strict, specified rule order.
package profittaker

import (
	"math"
	"time"

	"arbcore/pkg/types"
)

// Tier is one entry in the tiered-close table: at ProfitPct reached, close
// CloseFraction of the remaining position.
type Tier struct {
	ProfitPct     float64
	CloseFraction float64
}

// Config tunes the profit-taker.
type Config struct {
	TakeProfitPct   float64 // default 0.15
	StopLossPct     float64 // default 0.10
	TrailingStopPct float64 // default 0.05
	UseTrailingStop bool    // default true
	MinHoldSeconds  float64 // default 60
	Tiers           []Tier  // default [(0.10,0.25),(0.20,0.50),(0.30,0.75)]
}

// DefaultConfig mirrors the reference defaults.
func DefaultConfig() Config {
	return Config{
		TakeProfitPct:   0.15,
		StopLossPct:     0.10,
		TrailingStopPct: 0.05,
		UseTrailingStop: true,
		MinHoldSeconds:  60,
		Tiers: []Tier{
			{0.10, 0.25},
			{0.20, 0.50},
			{0.30, 0.75},
		},
	}
}

// Action is one emitted output from Evaluate: the action kind and the
// quantity to close (0 for non-closing actions like arming).
type Action struct {
	Kind     types.ProfitAction
	Quantity int
}

// Tracker is the profit-taker's per-position state machine. Create one via
// NewTracker when a position first opens; discard it when the position
// closes (the portfolio is the owner — this is a weak reference keyed by
// ticker, per the data model's ownership note).
type Tracker struct {
	cfg Config

	entryPrice float64
	entryTime  time.Time
	side       types.PositionSide

	peakProfitPct float64
	tiersClosed   map[int]bool
	trailingArmed bool
	state         types.TrackerState
}

// NewTracker creates a tracker in HOLD state with the given entry price and
// time.
func NewTracker(cfg Config, side types.PositionSide, entryPrice float64, entryTime time.Time) *Tracker {
	return &Tracker{
		cfg:         cfg,
		entryPrice:  entryPrice,
		entryTime:   entryTime,
		side:        side,
		tiersClosed: make(map[int]bool),
		state:       types.TrackerHold,
	}
}

// State returns the tracker's current state.
func (t *Tracker) State() types.TrackerState { return t.state }

// PeakProfitPct returns the highest profit percentage observed so far.
func (t *Tracker) PeakProfitPct() float64 { return t.peakProfitPct }

// profitPct computes the signed profit percentage for the given mark,
// side-dependent: positive when price has moved favorably. The result is
// rounded to 1e-9 so that a move of exactly a threshold's size (0.40 -> 0.44
// is 10%) meets that threshold despite float error.
func (t *Tracker) profitPct(mark float64) float64 {
	if t.entryPrice == 0 {
		return 0
	}
	var pct float64
	if t.side == types.PositionYes {
		pct = (mark - t.entryPrice) / t.entryPrice
	} else {
		pct = (t.entryPrice - mark) / t.entryPrice
	}
	return math.Round(pct*1e9) / 1e9
}

// Evaluate runs the rule cascade in strict order (first match wins) and
// returns every action fired this tick — normally at most one, except a
// TIER_CLOSE pass may emit several tier closes if thresholds were skipped
// over between ticks. quantity is the position's current open quantity.
func (t *Tracker) Evaluate(mark float64, now time.Time, quantity int) []Action {
	profitPct := t.profitPct(mark)
	if profitPct > t.peakProfitPct {
		t.peakProfitPct = profitPct
	}

	holdSeconds := now.Sub(t.entryTime).Seconds()
	if holdSeconds < t.cfg.MinHoldSeconds {
		return nil
	}

	if profitPct <= -t.cfg.StopLossPct {
		return []Action{{Kind: types.ActionStopLoss, Quantity: quantity}}
	}

	if t.state == types.TrackerTrailingArmed {
		drop := t.peakProfitPct - profitPct
		if drop >= t.cfg.TrailingStopPct {
			return []Action{{Kind: types.ActionTrailingStop, Quantity: quantity}}
		}
	}

	if profitPct >= t.cfg.TakeProfitPct {
		if t.cfg.UseTrailingStop && !t.trailingArmed {
			t.trailingArmed = true
			t.state = types.TrackerTrailingArmed
			return nil
		}
		return []Action{{Kind: types.ActionTakeProfit, Quantity: quantity}}
	}

	var actions []Action
	remaining := quantity
	for i, tier := range t.cfg.Tiers {
		if t.tiersClosed[i] {
			continue
		}
		if profitPct >= tier.ProfitPct {
			closeQty := int(math.Floor(float64(remaining) * tier.CloseFraction))
			t.tiersClosed[i] = true
			if closeQty > 0 {
				actions = append(actions, Action{Kind: types.ActionTierClose, Quantity: closeQty})
			}
		}
	}
	return actions
}
