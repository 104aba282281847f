package signal

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"arbcore/internal/fees"
	"arbcore/pkg/types"
)

// CombinatorialConfig tunes the inter-market detector.
type CombinatorialConfig struct {
	MinProfitThreshold float64 // default 0.02
	// TitleSimilarityThreshold gates FindCandidatePairs' keyword-overlap
	// heuristic for discovering non-calendar, non-manual candidate pairs.
	TitleSimilarityThreshold float64 // default 0.5
}

// DefaultCombinatorialConfig mirrors the reference defaults.
func DefaultCombinatorialConfig() CombinatorialConfig {
	return CombinatorialConfig{MinProfitThreshold: 0.02, TitleSimilarityThreshold: 0.5}
}

// CombinatorialDetector finds price-gap arbitrage across pairs of contracts
// related by a calendar or subset dependency.
type CombinatorialDetector struct {
	cfg CombinatorialConfig
}

// NewCombinatorialDetector constructs a detector with the given config.
func NewCombinatorialDetector(cfg CombinatorialConfig) *CombinatorialDetector {
	return &CombinatorialDetector{cfg: cfg}
}

// CandidatePair is a manually registered or auto-derived pair of contracts
// suspected to obey p(A) <= p(B).
type CandidatePair struct {
	TickerA    string
	TickerB    string
	Dependency types.DependencyKind
}

// MarketCalendarEntry is the shape CalendarCandidates needs from a market
// record.
type MarketCalendarEntry struct {
	Ticker     string
	Series     string
	Title      string
	Expiration time.Time
}

// CalendarCandidates auto-derives candidate pairs within the same series
// where A expires before B, carrying the A⊆B "earlier resolves yes no more
// likely than later" dependency, p(A) <= p(B).
func CalendarCandidates(markets []MarketCalendarEntry) []CandidatePair {
	bySeries := make(map[string][]MarketCalendarEntry)
	for _, m := range markets {
		bySeries[m.Series] = append(bySeries[m.Series], m)
	}
	var out []CandidatePair
	for _, ms := range bySeries {
		for i := 0; i < len(ms); i++ {
			for j := 0; j < len(ms); j++ {
				if i == j {
					continue
				}
				if ms[i].Expiration.Before(ms[j].Expiration) {
					out = append(out, CandidatePair{TickerA: ms[i].Ticker, TickerB: ms[j].Ticker, Dependency: types.DependencyCalendar})
				}
			}
		}
	}
	return out
}

// FindCandidatePairs discovers non-calendar candidate pairs by keyword-
// Jaccard similarity between market titles — the mechanism the original
// implementation uses to surface subset dependencies that were never
// manually registered.
func FindCandidatePairs(markets []MarketCalendarEntry, threshold float64) []CandidatePair {
	var out []CandidatePair
	for i := 0; i < len(markets); i++ {
		for j := i + 1; j < len(markets); j++ {
			sim := titleJaccard(markets[i].Title, markets[j].Title)
			if sim >= threshold {
				out = append(out, CandidatePair{TickerA: markets[i].Ticker, TickerB: markets[j].Ticker, Dependency: types.DependencySubset})
			}
		}
	}
	return out
}

func titleJaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	var intersection int
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		if len(tok) > 2 {
			out[tok] = true
		}
	}
	return out
}

// Scan evaluates a single candidate pair for a gap arbitrage opportunity.
// The dependency requires p(A) <= p(B); when it's violated (p(A) > p(B))
// the gap is tradeable.
func (d *CombinatorialDetector) Scan(pair CandidatePair, priceA, priceB, confidence float64) (types.CombinatorialOpportunity, bool) {
	if priceA <= priceB {
		return types.CombinatorialOpportunity{}, false
	}
	gap := priceA - priceB
	feeTotal := fees.Fee(priceA) + fees.Fee(priceB)
	net := gap - feeTotal
	if net < d.cfg.MinProfitThreshold {
		return types.CombinatorialOpportunity{}, false
	}
	return types.CombinatorialOpportunity{
		TickerA:       pair.TickerA,
		TickerB:       pair.TickerB,
		Dependency:    pair.Dependency,
		PriceA:        priceA,
		PriceB:        priceB,
		Gap:           gap,
		ProfitPreFee:  gap,
		ProfitPostFee: net,
		Confidence:    confidence,
	}, true
}

// ToSignals fans a combinatorial opportunity out into its two directional
// legs, each carrying half the net edge: buy-yes on the underpriced leg
// (B), buy-no on the overpriced leg (A).
func ToSignals(opp types.CombinatorialOpportunity, now time.Time, ttl time.Duration) []types.DirectionalSignal {
	half := opp.ProfitPostFee / 2
	mk := func(ticker string, side types.Side, price float64) types.DirectionalSignal {
		return types.DirectionalSignal{
			ID:           uuid.NewString(),
			Ticker:       ticker,
			Side:         side,
			Kind:         types.SignalCombinatorial,
			CurrentPrice: price,
			RawEdge:      opp.Gap,
			NetEdge:      half,
			Confidence:   opp.Confidence,
			CreatedAt:    now,
			ExpiresAt:    now.Add(ttl),
		}
	}
	return []types.DirectionalSignal{
		mk(opp.TickerB, types.BuyYes, opp.PriceB),
		mk(opp.TickerA, types.BuyNo, opp.PriceA),
	}
}
