package backtest

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"arbcore/pkg/types"
)

// Metrics summarizes a completed simulator run.
type Metrics struct {
	StartingEquity   float64
	FinalEquity      float64
	TotalReturn      float64
	AnnualizedReturn float64
	Sharpe           float64
	Sortino          float64
	MaxDrawdown      float64
	TradeCount       int
	WinCount         int
	LossCount        int
	WinRate          float64
	ProfitFactor     float64
	EdgePerContract  float64
	RealizedKelly    float64

	EquityCurve []EquityPoint
	Trades      []Trade
}

func computeMetrics(startingEquity float64, curve []EquityPoint, trades []Trade) Metrics {
	m := Metrics{StartingEquity: startingEquity, EquityCurve: curve, Trades: trades}
	if len(curve) == 0 {
		return m
	}
	m.FinalEquity = curve[len(curve)-1].Equity

	if startingEquity > 0 {
		m.TotalReturn = (m.FinalEquity - startingEquity) / startingEquity
	}

	span := curve[len(curve)-1].Timestamp.Sub(curve[0].Timestamp)
	years := span.Hours() / (24 * 365.25)
	if years > 0 {
		m.AnnualizedReturn = math.Pow(1+m.TotalReturn, 1/years) - 1
	}

	returns := periodReturns(curve)
	m.Sharpe = sharpeRatio(returns)
	m.Sortino = sortinoRatio(returns)
	m.MaxDrawdown = maxDrawdown(curve)

	closing := closingTrades(trades)
	m.TradeCount = len(closing)
	var grossWin, grossLoss, edgeSum, avgWin, avgLoss float64
	var winReturns, lossReturns []float64
	for _, t := range closing {
		if t.RealizedPnL > 0 {
			m.WinCount++
			grossWin += t.RealizedPnL
			winReturns = append(winReturns, t.RealizedPnL)
		} else if t.RealizedPnL < 0 {
			m.LossCount++
			grossLoss += -t.RealizedPnL
			lossReturns = append(lossReturns, -t.RealizedPnL)
		}
		edgeSum += t.RealizedPnL
	}
	if m.TradeCount > 0 {
		m.WinRate = float64(m.WinCount) / float64(m.TradeCount)
		m.EdgePerContract = edgeSum / totalContracts(closing)
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		m.ProfitFactor = math.Inf(1)
	}
	if len(winReturns) > 0 {
		avgWin = average(winReturns)
	}
	if len(lossReturns) > 0 {
		avgLoss = average(lossReturns)
	}
	m.RealizedKelly = realizedKelly(m.WinRate, avgWin, avgLoss)

	return m
}

func closingTrades(trades []Trade) []Trade {
	var out []Trade
	for _, t := range trades {
		if t.Action == types.ActionSell || t.RealizedPnL != 0 {
			out = append(out, t)
		}
	}
	return out
}

func totalContracts(trades []Trade) float64 {
	var total float64
	for _, t := range trades {
		total += float64(t.Quantity)
	}
	if total == 0 {
		return 1
	}
	return total
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// periodReturns derives simple per-tick returns from the equity curve.
func periodReturns(curve []EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	return returns
}

func stddev(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}

func sharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := average(returns)
	sd := stddev(returns, mean)
	if sd == 0 {
		return 0
	}
	return (mean / sd) * math.Sqrt(float64(len(returns)))
}

func sortinoRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := average(returns)
	var downsideSq float64
	var n int
	for _, r := range returns {
		if r < 0 {
			downsideSq += r * r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	downsideDev := math.Sqrt(downsideSq / float64(n))
	if downsideDev == 0 {
		return 0
	}
	return (mean / downsideDev) * math.Sqrt(float64(len(returns)))
}

func maxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Equity
	var worst float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - p.Equity) / peak
		if dd > worst {
			worst = dd
		}
	}
	return worst
}

// realizedKelly estimates the Kelly-optimal bet fraction implied by the
// run's observed win rate and average win/loss magnitudes.
func realizedKelly(winRate, avgWin, avgLoss float64) float64 {
	if avgLoss <= 0 || avgWin <= 0 {
		return 0
	}
	b := avgWin / avgLoss
	k := (winRate*b - (1 - winRate)) / b
	if k < 0 {
		return 0
	}
	return k
}

// Report renders a human-readable summary using go-humanize for currency
// and percentage formatting, in the style of the reference backtester's
// printed run report.
func (m Metrics) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Starting Equity: $%s\n", humanize.CommafWithDigits(m.StartingEquity, 2))
	fmt.Fprintf(&b, "Final Equity:    $%s\n", humanize.CommafWithDigits(m.FinalEquity, 2))
	fmt.Fprintf(&b, "Total Return:    %s\n", humanize.FormatFloat("#,###.##%", m.TotalReturn*100))
	fmt.Fprintf(&b, "Annualized:      %s\n", humanize.FormatFloat("#,###.##%", m.AnnualizedReturn*100))
	fmt.Fprintf(&b, "Sharpe:          %.3f\n", m.Sharpe)
	fmt.Fprintf(&b, "Sortino:         %.3f\n", m.Sortino)
	fmt.Fprintf(&b, "Max Drawdown:    %s\n", humanize.FormatFloat("#,###.##%", m.MaxDrawdown*100))
	fmt.Fprintf(&b, "Trades:          %s (win rate %s)\n", humanize.Comma(int64(m.TradeCount)), humanize.FormatFloat("#,###.##%", m.WinRate*100))
	fmt.Fprintf(&b, "Profit Factor:   %.3f\n", m.ProfitFactor)
	fmt.Fprintf(&b, "Edge/Contract:   $%s\n", humanize.CommafWithDigits(m.EdgePerContract, 4))
	fmt.Fprintf(&b, "Realized Kelly:  %.4f\n", m.RealizedKelly)
	return b.String()
}

// Duration is a small helper kept for callers that want the run's wall
// span without reaching into the equity curve themselves.
func (m Metrics) Duration() time.Duration {
	if len(m.EquityCurve) < 2 {
		return 0
	}
	return m.EquityCurve[len(m.EquityCurve)-1].Timestamp.Sub(m.EquityCurve[0].Timestamp)
}
