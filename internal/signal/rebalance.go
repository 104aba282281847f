package signal

import (
	"math"

	"arbcore/internal/fees"
	"arbcore/pkg/types"
)

// RebalanceConfig tunes the intra-market rebalancing detector.
type RebalanceConfig struct {
	MinDeviation     float64 // default 0.001
	MinProfitThreshold float64 // default 0.01
}

// DefaultRebalanceConfig mirrors the reference defaults.
func DefaultRebalanceConfig() RebalanceConfig {
	return RebalanceConfig{MinDeviation: 0.001, MinProfitThreshold: 0.01}
}

// RebalanceDetector finds basket mispricings within a single partition
// market.
type RebalanceDetector struct {
	cfg RebalanceConfig
}

// NewRebalanceDetector constructs a detector with the given config.
func NewRebalanceDetector(cfg RebalanceConfig) *RebalanceDetector {
	return &RebalanceDetector{cfg: cfg}
}

// ScanMarket evaluates one multi-condition market using mid prices only,
// suitable for detection but not for execution sizing (see ScanOrderBook
// for the execution-facing variant).
func (d *RebalanceDetector) ScanMarket(marketID string, tickers []string, prices []float64, depths []float64) (types.RebalancingOpportunity, bool) {
	return d.scan(marketID, tickers, prices, depths)
}

func (d *RebalanceDetector) scan(marketID string, tickers []string, prices []float64, depths []float64) (types.RebalancingOpportunity, bool) {
	var sum float64
	for _, p := range prices {
		sum += p
	}
	deviation := math.Abs(sum - 1)
	if deviation <= d.cfg.MinDeviation {
		return types.RebalancingOpportunity{}, false
	}

	totalFee := fees.TotalAcross(prices)
	var side types.BasketSide
	var gross float64
	if sum < 1 {
		side = types.BasketLong
		gross = 1 - sum
	} else {
		side = types.BasketShort
		gross = sum - 1
	}
	net := gross - totalFee
	if net < d.cfg.MinProfitThreshold {
		return types.RebalancingOpportunity{}, false
	}

	minDepth := 0.0
	if len(depths) > 0 {
		minDepth = depths[0]
		for _, q := range depths[1:] {
			if q < minDepth {
				minDepth = q
			}
		}
	}

	return types.RebalancingOpportunity{
		MarketID:        marketID,
		Side:            side,
		ConditionTicker: append([]string(nil), tickers...),
		Prices:          append([]float64(nil), prices...),
		PriceSum:        sum,
		Deviation:       deviation,
		ProfitPreFee:    gross,
		ProfitPostFee:   net,
		MinDepth:        minDepth,
	}, true
}

// OrderBookMarket carries per-condition best bid/ask needed for the
// execution-facing rebalancing scan.
type OrderBookMarket struct {
	MarketID string
	Tickers  []string
	Asks     []float64 // best yes-ask per condition, for the long basket
	Bids     []float64 // best yes-bid per condition, for the short basket
	AskDepth []float64
	BidDepth []float64
}

// ScanOrderBook computes both a long opportunity (buying every leg at the
// ask) and a short opportunity (selling every leg at the bid); they are
// independent and either, both, or neither may fire. This is the execution-
// sizing-correct variant: detection may use mid prices, but actionable
// basket sizing must use ask-side for longs and bid-side for shorts.
func (d *RebalanceDetector) ScanOrderBook(m OrderBookMarket) (long, short types.RebalancingOpportunity, haveLong, haveShort bool) {
	if len(m.Asks) == len(m.Tickers) {
		if opp, ok := d.scan(m.MarketID, m.Tickers, m.Asks, m.AskDepth); ok && opp.Side == types.BasketLong {
			long, haveLong = opp, true
		}
	}
	if len(m.Bids) == len(m.Tickers) {
		if opp, ok := d.scan(m.MarketID, m.Tickers, m.Bids, m.BidDepth); ok && opp.Side == types.BasketShort {
			short, haveShort = opp, true
		}
	}
	return
}

// RankRebalancing sorts opportunities by Score descending, in place.
func RankRebalancing(opps []types.RebalancingOpportunity) {
	for i := 1; i < len(opps); i++ {
		j := i
		for j > 0 && opps[j-1].Score() < opps[j].Score() {
			opps[j-1], opps[j] = opps[j], opps[j-1]
			j--
		}
	}
}
