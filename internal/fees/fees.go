// Package fees implements the exchange's fee schedule: a strictly specified,
// pure function of price that every edge, signal, and backtest computation
// must agree on. The formula intentionally rounds fees UP to the next cent,
// which matters for tight-edge signals — see Fee's doc comment.
package fees

import (
	"github.com/shopspring/decimal"
)

var (
	minFee    = decimal.NewFromFloat(0.01)
	feeRate   = decimal.NewFromFloat(0.07)
	hundred   = decimal.NewFromInt(100)
	one       = decimal.NewFromInt(1)
)

// Fee returns the per-contract fee for a trade at price p, a probability in
// (0,1). Outside that open interval the contract is not tradeable and the
// fee is defined to be zero.
//
//	fee(p) = 0                                     if p ∉ (0,1)
//	       = max(0.01, ceil(0.07·p·(1-p)·100)/100)  otherwise
//
// The ceiling is taken in integer cents: 0.07·p·(1-p) is scaled to cents,
// rounded up, then scaled back. A non-ceiling variant (plain rounding)
// under-charges by up to half a cent and must not be used anywhere in the
// core.
func Fee(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	dp := decimal.NewFromFloat(p)
	raw := feeRate.Mul(dp).Mul(one.Sub(dp)).Mul(hundred)
	cents := raw.Ceil()
	computed := cents.Div(hundred)
	if computed.LessThan(minFee) {
		computed = minFee
	}
	f, _ := computed.Float64()
	return f
}

// Total returns n independent contracts' worth of fee at price p.
func Total(p float64, n int) float64 {
	return float64(n) * Fee(p)
}

// TotalAcross sums Fee over a slice of prices, used by the rebalancing
// detector to price an entire basket in one call.
func TotalAcross(prices []float64) float64 {
	var sum float64
	for _, p := range prices {
		sum += Fee(p)
	}
	return sum
}

// AsPercentage expresses the fee at price p as a fraction of the trade
// notional (p itself), used for reporting.
func AsPercentage(p float64) float64 {
	if p <= 0 {
		return 0
	}
	return Fee(p) / p
}
