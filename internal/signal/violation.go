// Package signal implements the three detectors that turn constraint
// bounds and market snapshots into DirectionalSignal values: constraint
// violations, intra-market rebalancing, and inter-market combinatorial
// dependencies.
package signal

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"arbcore/internal/fees"
	"arbcore/pkg/types"
)

// ViolationConfig tunes the constraint-violation detector.
type ViolationConfig struct {
	MinEdgeThreshold     float64       // default 0.01
	SafetyMargin         float64       // default 0.005
	SignalTTL            time.Duration // default 300s
	NearExpiryWindow     time.Duration // default 1h
	NearExpiryMinEdge    float64       // default 0.03
}

// DefaultViolationConfig mirrors the reference defaults.
func DefaultViolationConfig() ViolationConfig {
	return ViolationConfig{
		MinEdgeThreshold:  0.01,
		SafetyMargin:      0.005,
		SignalTTL:         300 * time.Second,
		NearExpiryWindow:  time.Hour,
		NearExpiryMinEdge: 0.03,
	}
}

// ViolationGenerator emits directional signals from bound violations.
type ViolationGenerator struct {
	cfg ViolationConfig
}

// NewViolationGenerator constructs a generator with the given config.
func NewViolationGenerator(cfg ViolationConfig) *ViolationGenerator {
	return &ViolationGenerator{cfg: cfg}
}

// TickerInput is the per-ticker data the violation generator needs: its
// current price, derived bound, spread estimate, and time to expiration.
type TickerInput struct {
	Ticker            string
	Price             float64
	Bound             types.ProbabilityBound
	Spread            float64
	TimeToExpiration  time.Duration
}

// Generate evaluates one ticker against its bound and returns a signal, or
// false if no signal clears the net-edge threshold or execution-rule
// filter.
func (g *ViolationGenerator) Generate(in TickerInput, now time.Time) (types.DirectionalSignal, bool) {
	violation := in.Bound.Violation(in.Price)
	if violation <= 0 {
		return types.DirectionalSignal{}, false
	}

	var side types.Side
	var target float64
	if in.Price < in.Bound.Lower {
		side = types.BuyYes
		target = in.Bound.Lower
	} else {
		side = types.BuyNo
		target = in.Bound.Upper
	}

	rawEdge := violation
	fee := fees.Fee(target)
	netEdge := rawEdge - fee - in.Spread - g.cfg.SafetyMargin

	if netEdge < g.cfg.MinEdgeThreshold {
		return types.DirectionalSignal{}, false
	}
	if !g.passesExecutionFilter(netEdge, in) {
		return types.DirectionalSignal{}, false
	}

	return types.DirectionalSignal{
		ID:           uuid.NewString(),
		Ticker:       in.Ticker,
		Side:         side,
		Kind:         types.SignalConstraintViolation,
		CurrentPrice: in.Price,
		BoundPrice:   target,
		RawEdge:      rawEdge,
		Fee:          fee,
		Spread:       in.Spread,
		NetEdge:      netEdge,
		Confidence:   in.Bound.Confidence,
		SourceID:     sourceIDString(in.Bound.SourceID),
		CreatedAt:    now,
		ExpiresAt:    now.Add(g.cfg.SignalTTL),
	}, true
}

// passesExecutionFilter applies the post-generation execution rules: reject
// thin edges that don't clear twice the spread, and reject sub-threshold
// edges inside the near-expiration window.
func (g *ViolationGenerator) passesExecutionFilter(netEdge float64, in TickerInput) bool {
	if netEdge < 2*in.Spread {
		return false
	}
	if in.TimeToExpiration < g.cfg.NearExpiryWindow && netEdge < g.cfg.NearExpiryMinEdge {
		return false
	}
	return true
}

// GenerateAll runs Generate across every input and ranks survivors by
// score descending.
func (g *ViolationGenerator) GenerateAll(inputs []TickerInput, now time.Time) []types.DirectionalSignal {
	out := make([]types.DirectionalSignal, 0, len(inputs))
	for _, in := range inputs {
		if s, ok := g.Generate(in, now); ok {
			out = append(out, s)
		}
	}
	Rank(out)
	return out
}

// Rank sorts signals by Score descending, in place.
func Rank(signals []types.DirectionalSignal) {
	for i := 1; i < len(signals); i++ {
		j := i
		for j > 0 && signals[j-1].Score() < signals[j].Score() {
			signals[j-1], signals[j] = signals[j], signals[j-1]
			j--
		}
	}
}

func sourceIDString(id uint64) string {
	if id == 0 {
		return ""
	}
	return fmt.Sprintf("constraint:%d", id)
}
