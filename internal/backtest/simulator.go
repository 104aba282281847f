// Package backtest implements a deterministic, event-driven replay of a
// chronological market-state sequence through a pluggable signal function,
// charging the same fee formula (internal/fees) as the live signal
// generators; fills are simulated here, not placed through an exchange
// client.
package backtest

import (
	"math/rand"
	"time"

	"arbcore/internal/fees"
	"arbcore/pkg/types"
)

// MarketState is one replayed tick for a single ticker.
type MarketState struct {
	Ticker    string
	Timestamp time.Time
	Bid       float64
	Ask       float64
	Last      float64
	Volume    float64
}

func (m MarketState) mid() float64 { return (m.Bid + m.Ask) / 2 }
func (m MarketState) spread() float64 {
	s := m.Ask - m.Bid
	if s < 0 {
		return 0
	}
	return s
}

// Position is the simulator's open-position record for one ticker.
type Position struct {
	Ticker       string
	Side         types.PositionSide
	Quantity     int
	AveragePrice float64
}

// Context is the read-only view handed to the signal function each tick:
// current cash, marked equity, and open positions.
type Context struct {
	Now       time.Time
	Cash      float64
	Equity    float64
	Positions map[string]Position
}

// SignalFunc produces a candidate directional signal for the current
// market state, or false if nothing is actionable this tick. It may keep
// private state of its own across ticks (the backtest command's function
// keeps a running price map) but never changes simulator state — the
// simulator is the only mutator of cash and positions.
type SignalFunc func(state MarketState, ctx Context) (types.DirectionalSignal, bool)

// Trade is one fill recorded by the simulator, opening, adding to, or
// closing a position.
type Trade struct {
	Ticker    string
	Side      types.PositionSide
	Action    types.OrderAction
	Quantity  int
	Price     float64
	Fee       float64
	Timestamp time.Time
	// RealizedPnL is non-zero only for closing or reducing trades.
	RealizedPnL float64
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
}

// Config tunes the simulator.
type Config struct {
	StartingCash float64
	SlippageBps  float64 // e.g. 5 for 5 basis points
	TradeQuantity int    // contracts bought/sold per emitted signal
}

// DefaultConfig mirrors the reference defaults.
func DefaultConfig() Config {
	return Config{StartingCash: 100000, SlippageBps: 5, TradeQuantity: 100}
}

// Simulator replays a MarketState sequence deterministically given a
// seeded RNG: the only source of nondeterminism (slippage jitter) is
// drawn from the caller-supplied rand.Rand, so identical seeds reproduce
// identical trades and metrics.
type Simulator struct {
	cfg Config
	rng *rand.Rand

	cash      float64
	positions map[string]*Position
	trades    []Trade
	curve     []EquityPoint
	peakEquity float64
}

// New constructs a Simulator. Passing a *rand.Rand seeded identically
// across runs is required for reproducible slippage.
func New(cfg Config, rng *rand.Rand) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Simulator{
		cfg:        cfg,
		rng:        rng,
		cash:       cfg.StartingCash,
		positions:  make(map[string]*Position),
		peakEquity: cfg.StartingCash,
	}
}

// slippedPrice applies a uniform random jitter in [0, SlippageBps] basis
// points, always adverse to the trader (worse fill than the quoted touch).
func (s *Simulator) slippedPrice(touch float64, buying bool) float64 {
	bps := s.cfg.SlippageBps * s.rng.Float64()
	adj := touch * bps / 10000.0
	if buying {
		return touch + adj
	}
	return touch - adj
}

func (s *Simulator) markToMarket(marks map[string]float64) float64 {
	equity := s.cash
	for ticker, pos := range s.positions {
		mark, ok := marks[ticker]
		if !ok {
			mark = pos.AveragePrice
		}
		if pos.Side == types.PositionYes {
			equity += float64(pos.Quantity) * mark
		} else {
			equity += float64(pos.Quantity) * (1 - mark)
		}
	}
	return equity
}

// fill executes a buy of quantity contracts at the slippage-adjusted ask,
// deducting cash and fees, and opens or extends the position.
func (s *Simulator) fill(state MarketState, side types.PositionSide, quantity int, ts time.Time) {
	price := s.slippedPrice(state.Ask, true)
	fee := fees.Total(price, quantity)
	cost := price*float64(quantity) + fee
	if cost > s.cash {
		affordable := int(s.cash / (price + fee/float64(quantity)))
		if affordable <= 0 {
			return
		}
		quantity = affordable
		fee = fees.Total(price, quantity)
		cost = price*float64(quantity) + fee
	}

	s.cash -= cost
	pos, ok := s.positions[state.Ticker]
	if !ok || pos.Quantity == 0 {
		s.positions[state.Ticker] = &Position{Ticker: state.Ticker, Side: side, Quantity: quantity, AveragePrice: price}
	} else {
		totalCost := pos.AveragePrice*float64(pos.Quantity) + price*float64(quantity)
		pos.Quantity += quantity
		pos.AveragePrice = totalCost / float64(pos.Quantity)
	}

	s.trades = append(s.trades, Trade{
		Ticker: state.Ticker, Side: side, Action: types.ActionBuy,
		Quantity: quantity, Price: price, Fee: fee, Timestamp: ts,
	})
}

// closePosition liquidates a position fully at the slippage-adjusted
// bid, realizing P&L.
func (s *Simulator) closePosition(state MarketState, ts time.Time) {
	pos, ok := s.positions[state.Ticker]
	if !ok || pos.Quantity == 0 {
		return
	}
	price := s.slippedPrice(state.Bid, false)
	fee := fees.Total(price, pos.Quantity)

	var proceeds, pnl float64
	if pos.Side == types.PositionYes {
		proceeds = price * float64(pos.Quantity)
		pnl = (price - pos.AveragePrice) * float64(pos.Quantity)
	} else {
		proceeds = (1 - price) * float64(pos.Quantity)
		pnl = (pos.AveragePrice - price) * float64(pos.Quantity)
	}
	s.cash += proceeds - fee

	s.trades = append(s.trades, Trade{
		Ticker: state.Ticker, Side: pos.Side, Action: types.ActionSell,
		Quantity: pos.Quantity, Price: price, Fee: fee, Timestamp: ts,
		RealizedPnL: pnl - fee,
	})
	delete(s.positions, state.Ticker)
}

// settle pays out 1.0 per winning contract (0 otherwise) for every
// remaining open position once the data is exhausted.
func (s *Simulator) settle(resolutions map[string]types.Resolution, ts time.Time) {
	for ticker, pos := range s.positions {
		res, ok := resolutions[ticker]
		if !ok {
			res = types.ResolutionPending
		}
		won := (pos.Side == types.PositionYes && res == types.ResolutionYes) ||
			(pos.Side == types.PositionNo && res == types.ResolutionNo)

		var payout, pnl float64
		if won {
			payout = float64(pos.Quantity)
			pnl = (1 - pos.AveragePrice) * float64(pos.Quantity)
		} else {
			pnl = -pos.AveragePrice * float64(pos.Quantity)
		}
		s.cash += payout

		s.trades = append(s.trades, Trade{
			Ticker: ticker, Side: pos.Side, Action: types.ActionSell,
			Quantity: pos.Quantity, Price: payout / maxF(float64(pos.Quantity), 1),
			Timestamp: ts, RealizedPnL: pnl,
		})
	}
	s.positions = make(map[string]*Position)
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Run replays states in order, invoking signalFunc each tick, and returns
// the resulting metrics. states must already be sorted chronologically —
// the simulator does not resort them, preserving exact replay order.
func (s *Simulator) Run(states []MarketState, signalFunc SignalFunc, resolutions map[string]types.Resolution) Metrics {
	marks := make(map[string]float64)

	for _, state := range states {
		marks[state.Ticker] = state.mid()
		equity := s.markToMarket(marks)
		if equity > s.peakEquity {
			s.peakEquity = equity
		}

		ctx := Context{Now: state.Timestamp, Cash: s.cash, Equity: equity, Positions: s.snapshotPositions()}
		if sig, ok := signalFunc(state, ctx); ok {
			s.applySignal(state, sig)
		}

		s.curve = append(s.curve, EquityPoint{Timestamp: state.Timestamp, Equity: equity})
	}

	var lastTS time.Time
	if len(states) > 0 {
		lastTS = states[len(states)-1].Timestamp
	}
	s.settle(resolutions, lastTS)
	finalEquity := s.cash
	s.curve = append(s.curve, EquityPoint{Timestamp: lastTS, Equity: finalEquity})

	return computeMetrics(s.cfg.StartingCash, s.curve, s.trades)
}

func (s *Simulator) applySignal(state MarketState, sig types.DirectionalSignal) {
	side := types.PositionYes
	if sig.Side == types.BuyNo {
		side = types.PositionNo
	}
	if existing, ok := s.positions[state.Ticker]; ok && existing.Side != side {
		s.closePosition(state, state.Timestamp)
	}
	s.fill(state, side, s.cfg.TradeQuantity, state.Timestamp)
}

func (s *Simulator) snapshotPositions() map[string]Position {
	out := make(map[string]Position, len(s.positions))
	for k, v := range s.positions {
		out[k] = *v
	}
	return out
}

// Trades returns every recorded fill, in execution order.
func (s *Simulator) Trades() []Trade { return append([]Trade(nil), s.trades...) }

// EquityCurve returns the recorded equity samples, in tick order.
func (s *Simulator) EquityCurve() []EquityPoint { return append([]EquityPoint(nil), s.curve...) }
