// Package engine is the per-account orchestrator: it wires the
// constraint engine, the three signal generators, the sizer, the risk
// manager, the execution coordinator, and the profit-taker into the
// single-threaded cooperative tick loop described in the data-flow
// diagram — pull a snapshot, recompute bounds, rank candidate signals,
// size and risk-approve the top ones, submit orders, and run the
// profit-taker over every open position.
//
// Every account owns a disjoint Core: nothing in this package is shared
// across accounts, matching the concurrency model's "independent cores,
// not shared memory" rule. Core itself spawns no goroutines: Run executes
// the tick loop on the caller's goroutine, and detection, sizing, risk, and
// profit-taking all run synchronously inside each tick.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"arbcore/internal/config"
	"arbcore/internal/constraint"
	"arbcore/internal/coreerr"
	"arbcore/internal/exchange"
	"arbcore/internal/execution"
	"arbcore/internal/profittaker"
	"arbcore/internal/risk"
	"arbcore/internal/signal"
	"arbcore/internal/sizing"
	"arbcore/internal/store"
	"arbcore/pkg/types"
)

// maxSignalsPerTick bounds how many ranked signals are sized and
// risk-approved in a single tick; it keeps one noisy tick from working
// through an unbounded backlog at the expense of revalidation freshness.
const maxSignalsPerTick = 10

// openPosition is Core's own mirror of one held contract side, keyed by
// ticker+side. It owns the profit-taker tracker for as long as the
// position is open; the tracker is pruned the moment quantity reaches
// zero (the data model's weak-reference ownership rule).
type openPosition struct {
	types.Position
	Series  string
	tracker *profittaker.Tracker
}

func posKey(ticker string, side types.PositionSide) string {
	return ticker + "|" + string(side)
}

// Core owns one account's full pipeline state: the constraint registry,
// the portfolio mirror, and the profit-taker trackers. All public methods
// are safe to call from the tick loop only — Core is not meant to be
// shared across goroutines beyond the Snapshot-style read accessors.
type Core struct {
	cfg    config.Config
	client exchange.Client
	logger *slog.Logger

	constraints  *constraint.Engine
	violationGen *signal.ViolationGenerator
	rebalanceDet *signal.RebalanceDetector
	combDet      *signal.CombinatorialDetector
	sizer        *sizing.Sizer
	riskMgr      *risk.Manager
	coordinator  *execution.Coordinator
	persist      *store.Store

	mu        sync.Mutex
	cash      float64
	positions map[string]*openPosition
	series    map[string]string // ticker -> series, refreshed each snapshot

	draining bool
	tickErrs int

	ctx    context.Context
	cancel context.CancelFunc
}

// New wires every component from cfg and loads any persisted constraint
// registry. client may be the live REST client or a paper client; both
// satisfy exchange.Client.
func New(cfg config.Config, client exchange.Client, logger *slog.Logger) (*Core, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine")

	reg := constraint.New()

	persist, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open constraint store: %w", err)
	}
	records, err := persist.LoadConstraints()
	if err != nil {
		return nil, fmt.Errorf("load constraints: %w", err)
	}
	for _, r := range records {
		if _, err := reg.Register(r.Kind, r.LHS, r.RHS, r.Description); err != nil {
			logger.Warn("skipping malformed persisted constraint", "id", r.ID, "error", err)
		}
	}

	c := &Core{
		cfg:    cfg,
		client: client,
		logger: logger,

		constraints: reg,
		violationGen: signal.NewViolationGenerator(signal.ViolationConfig{
			MinEdgeThreshold:  cfg.Signal.MinEdgeThreshold,
			SafetyMargin:      cfg.Signal.SafetyMargin,
			SignalTTL:         cfg.Signal.SignalTTL,
			NearExpiryWindow:  cfg.Signal.NearExpiryWindow,
			NearExpiryMinEdge: cfg.Signal.NearExpiryMinEdge,
		}),
		rebalanceDet: signal.NewRebalanceDetector(signal.RebalanceConfig{
			MinDeviation:       cfg.Signal.MinDeviation,
			MinProfitThreshold: cfg.Signal.MinProfitThreshold,
		}),
		combDet: signal.NewCombinatorialDetector(signal.CombinatorialConfig{
			MinProfitThreshold:       cfg.Signal.CombinatorialMinProfit,
			TitleSimilarityThreshold: cfg.Signal.TitleSimilarityThreshold,
		}),
		sizer: sizing.New(sizing.Config{
			KellyFraction:               cfg.Sizing.KellyFraction,
			MaxPositionPerMarket:        cfg.Sizing.MaxPositionPerMarket,
			MaxClusterAllocation:        cfg.Sizing.MaxClusterAllocation,
			MinPositionSize:             cfg.Sizing.MinPositionSize,
			CorrelationAdjustmentPerPos: cfg.Sizing.CorrelationAdjustmentPerPos,
		}),
		riskMgr: risk.New(risk.Config{
			WarnDrawdown:              cfg.Risk.WarnDrawdown,
			ReduceDrawdown:            cfg.Risk.ReduceDrawdown,
			StopDrawdown:              cfg.Risk.StopDrawdown,
			MaxSinglePosition:         cfg.Risk.MaxSinglePosition,
			MaxClusterExposure:        cfg.Risk.MaxClusterExposure,
			MinPositionSize:           cfg.Risk.MinPositionSize,
			MinDaysToExpiration:       cfg.Risk.MinDaysToExpiration,
			CorrelationWindow:         cfg.Risk.CorrelationWindow,
			CorrelationSpikeThreshold: cfg.Risk.CorrelationSpikeThreshold,
		}, logger, nil),
		coordinator: execution.New(execution.Config{
			MaxPriceDrift: cfg.Execution.MaxPriceDrift,
			OrderTimeout:  cfg.Execution.OrderTimeout,
			PaperTrading:  cfg.Execution.PaperTrading,
		}, client, logger),
		persist:   persist,
		positions: make(map[string]*openPosition),
		series:    make(map[string]string),
	}
	return c, nil
}

// Constraints exposes the registry for operator-driven register/remove
// calls (e.g. from a CLI subcommand); the registry is the sole owner of
// constraint state, per the data model.
func (c *Core) Constraints() *constraint.Engine { return c.constraints }

// RiskManager exposes the risk manager for read-only metrics scraping.
func (c *Core) RiskManager() *risk.Manager { return c.riskMgr }

// PersistConstraints writes the current registry to the store.
func (c *Core) PersistConstraints() error {
	return c.persist.SaveConstraints(c.constraints.All())
}

// Drain flips the loop into draining mode: no new orders are submitted,
// but profit-taker evaluation and order-status reconciliation continue.
func (c *Core) Drain() {
	c.mu.Lock()
	c.draining = true
	c.mu.Unlock()
}

func (c *Core) isDraining() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draining
}

// Run starts the scan-interval tick loop. It blocks until ctx is
// cancelled, running one Tick per interval plus an immediate first tick.
func (c *Core) Run(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	interval := c.cfg.Execution.ScanInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := c.Tick(c.ctx); err != nil {
		c.logger.Error("tick failed", "error", err)
	}

	for {
		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		case <-ticker.C:
			if err := c.Tick(c.ctx); err != nil {
				c.logger.Error("tick failed", "error", err)
			}
		}
	}
}

// Stop cancels the run loop and cancels every non-terminal tracked order
// as a graceful-shutdown safety net.
func (c *Core) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.coordinator.CancelAllNonTerminal(cancelCtx); err != nil {
		c.logger.Error("failed to cancel orders on shutdown", "error", err)
	}
	if err := c.PersistConstraints(); err != nil {
		c.logger.Error("failed to persist constraints on shutdown", "error", err)
	}
}

// tickSnapshot is the immutable-within-a-tick view every detector reads
// from: one consistent pull of markets, books, prices, and spreads.
type tickSnapshot struct {
	now       time.Time
	contracts map[string]types.Contract
	books     map[string]types.OrderBook
	prices    map[string]float64
	spreads   map[string]float64
}

// Tick runs exactly one cycle of the pipeline: fetch, bound, detect,
// rank, size, risk-approve, submit, then evaluate profit-taking. Any
// error from the exchange boundary aborts only this tick — no partial
// writes happen before risk approval, so state stays consistent.
func (c *Core) Tick(ctx context.Context) error {
	now := time.Now()

	snap, err := c.fetchSnapshot(ctx)
	if err != nil {
		c.tickErrs++
		return fmt.Errorf("%w: fetch snapshot: %v", coreerr.ErrExchangeError, err)
	}

	bounds := c.constraints.AllBounds(snap.prices)

	signals := c.detectViolations(snap, bounds, now)
	signals = append(signals, c.detectRebalancing(snap, now)...)
	signals = append(signals, c.detectCombinatorial(snap, now)...)
	signal.Rank(signals)
	if len(signals) > maxSignalsPerTick {
		signals = signals[:maxSignalsPerTick]
	}

	equity := c.refreshPortfolio(ctx, snap)
	action := c.riskMgr.UpdateAccountValue(equity)

	if action != types.DrawdownStop && !c.isDraining() {
		for _, sig := range signals {
			c.evaluateSignal(ctx, sig, snap, bounds, equity)
		}
	}

	c.coordinator.SweepTimeouts(ctx, now)
	c.evaluateProfitTaker(ctx, snap, now)
	c.evaluateExpirationCliff(ctx, snap, now)

	return nil
}

func (c *Core) fetchSnapshot(ctx context.Context) (tickSnapshot, error) {
	snap := tickSnapshot{
		now:       time.Now(),
		contracts: make(map[string]types.Contract),
		books:     make(map[string]types.OrderBook),
		prices:    make(map[string]float64),
		spreads:   make(map[string]float64),
	}

	page, err := c.client.ListMarkets(ctx, "open", "", 0, "")
	if err != nil {
		return snap, err
	}

	series := make(map[string]string, len(page.Markets))
	for _, m := range page.Markets {
		snap.contracts[m.Ticker] = m
		snap.prices[m.Ticker] = m.LastPrice
		series[m.Ticker] = m.Series
		spread := m.YesAsk - m.YesBid
		if spread < 0 {
			spread = 0
		}
		snap.spreads[m.Ticker] = spread

		book, err := c.client.GetOrderBook(ctx, m.Ticker, 0)
		if err != nil {
			c.logger.Warn("orderbook fetch failed, falling back to top-of-book", "ticker", m.Ticker, "error", err)
			continue
		}
		snap.books[m.Ticker] = book
		if bs := book.Spread(); bs > 0 {
			snap.spreads[m.Ticker] = bs
		}
	}

	c.mu.Lock()
	c.series = series
	c.mu.Unlock()

	return snap, nil
}

func (c *Core) detectViolations(snap tickSnapshot, bounds map[string]types.ProbabilityBound, now time.Time) []types.DirectionalSignal {
	inputs := make([]signal.TickerInput, 0, len(bounds))
	for ticker, bound := range bounds {
		price, ok := snap.prices[ticker]
		if !ok {
			continue
		}
		contract := snap.contracts[ticker]
		inputs = append(inputs, signal.TickerInput{
			Ticker:           ticker,
			Price:            price,
			Bound:            bound,
			Spread:           snap.spreads[ticker],
			TimeToExpiration: contract.ExpirationTime.Sub(now),
		})
	}
	return c.violationGen.GenerateAll(inputs, now)
}

// partitionGroups returns every registered partition constraint's member
// tickers.
func (c *Core) partitionGroups() [][]string {
	var groups [][]string
	for _, cst := range c.constraints.All() {
		if cst.Kind == types.ConstraintPartition {
			groups = append(groups, cst.RHS)
		}
	}
	return groups
}

// detectRebalancing scans every registered partition for basket
// mispricings using execution-correct pricing: the ask side for a long
// basket, the bid side for a short basket, per §4.3.
func (c *Core) detectRebalancing(snap tickSnapshot, now time.Time) []types.DirectionalSignal {
	var out []types.DirectionalSignal
	for _, group := range c.partitionGroups() {
		m := signal.OrderBookMarket{
			MarketID: strings.Join(group, "+"),
			Tickers:  group,
		}
		complete := true
		for _, ticker := range group {
			book, ok := snap.books[ticker]
			if !ok {
				complete = false
				break
			}
			m.Asks = append(m.Asks, book.BestYesAsk())
			m.Bids = append(m.Bids, book.BestYesBid())
			m.AskDepth = append(m.AskDepth, book.DepthAt("ask", book.BestYesAsk()))
			m.BidDepth = append(m.BidDepth, book.DepthAt("bid", book.BestYesBid()))
		}
		if !complete {
			continue
		}
		long, short, haveLong, haveShort := c.rebalanceDet.ScanOrderBook(m)
		if haveLong {
			out = append(out, rebalanceToSignals(long, now, c.cfg.Signal.SignalTTL)...)
		}
		if haveShort {
			out = append(out, rebalanceToSignals(short, now, c.cfg.Signal.SignalTTL)...)
		}
	}
	return out
}

// rebalanceToSignals fans a basket opportunity out into one directional
// signal per leg: buy_yes on every condition for a long basket, buy_no for
// a short basket, each carrying an equal share of the net profit.
func rebalanceToSignals(opp types.RebalancingOpportunity, now time.Time, ttl time.Duration) []types.DirectionalSignal {
	if len(opp.ConditionTicker) == 0 {
		return nil
	}
	share := opp.ProfitPostFee / float64(len(opp.ConditionTicker))
	side := types.BuyYes
	if opp.Side == types.BasketShort {
		side = types.BuyNo
	}
	out := make([]types.DirectionalSignal, 0, len(opp.ConditionTicker))
	for i, ticker := range opp.ConditionTicker {
		price := 0.0
		if i < len(opp.Prices) {
			price = opp.Prices[i]
		}
		out = append(out, types.DirectionalSignal{
			ID:           fmt.Sprintf("rebal:%s:%d", opp.MarketID, i),
			Ticker:       ticker,
			Side:         side,
			Kind:         types.SignalRebalancing,
			CurrentPrice: price,
			RawEdge:      opp.ProfitPreFee,
			NetEdge:      share,
			Confidence:   1,
			CreatedAt:    now,
			ExpiresAt:    now.Add(ttl),
		})
	}
	return out
}

func (c *Core) detectCombinatorial(snap tickSnapshot, now time.Time) []types.DirectionalSignal {
	pairs := c.combinatorialCandidates(snap)
	var out []types.DirectionalSignal
	for _, pair := range pairs {
		priceA, okA := snap.prices[pair.TickerA]
		priceB, okB := snap.prices[pair.TickerB]
		if !okA || !okB {
			continue
		}
		opp, ok := c.combDet.Scan(pair, priceA, priceB, 1.0)
		if !ok {
			continue
		}
		out = append(out, signal.ToSignals(opp, now, c.cfg.Signal.SignalTTL)...)
	}
	return out
}

// combinatorialCandidates merges manually registered subset constraints
// with auto-derived calendar pairs, per §4.4.
func (c *Core) combinatorialCandidates(snap tickSnapshot) []signal.CandidatePair {
	var pairs []signal.CandidatePair
	for _, cst := range c.constraints.All() {
		if cst.Kind != types.ConstraintSubset {
			continue
		}
		pairs = append(pairs, signal.CandidatePair{
			TickerA:    cst.LHS[0],
			TickerB:    cst.RHS[0],
			Dependency: types.DependencySubset,
		})
	}

	entries := make([]signal.MarketCalendarEntry, 0, len(snap.contracts))
	for _, m := range snap.contracts {
		entries = append(entries, signal.MarketCalendarEntry{
			Ticker: m.Ticker, Series: m.Series, Expiration: m.ExpirationTime,
		})
	}
	pairs = append(pairs, signal.CalendarCandidates(entries)...)
	return pairs
}

// refreshPortfolio pulls fresh cash and positions from the exchange,
// reconciles Core's own position mirror and profit-taker trackers against
// it, and returns marked equity.
func (c *Core) refreshPortfolio(ctx context.Context, snap tickSnapshot) float64 {
	cash, err := c.client.GetBalance(ctx)
	if err != nil {
		c.logger.Warn("balance fetch failed, using last known", "error", err)
		cash = c.cash
	}
	remote, err := c.client.GetPositions(ctx)
	if err != nil {
		c.logger.Warn("positions fetch failed, using local mirror", "error", err)
		remote = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cash = cash

	if remote != nil {
		seen := make(map[string]bool, len(remote))
		for _, p := range remote {
			key := posKey(p.Ticker, p.Side)
			seen[key] = true
			existing, ok := c.positions[key]
			if !ok {
				existing = &openPosition{
					Position: p,
					Series:   c.series[p.Ticker],
					tracker:  profittaker.NewTracker(c.profitTakerConfig(), p.Side, p.AveragePrice, snap.now),
				}
				c.positions[key] = existing
			} else {
				existing.Position = p
			}
		}
		// Weak-reference pruning: drop any tracker whose position the
		// portfolio no longer reports.
		for key := range c.positions {
			if !seen[key] {
				delete(c.positions, key)
			}
		}
	}

	equity := cash
	for _, pos := range c.positions {
		mark := snap.prices[pos.Ticker]
		if mark == 0 {
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

func (c *Core) profitTakerConfig() profittaker.Config {
	tiers := make([]profittaker.Tier, 0, len(c.cfg.ProfitTaker.Tiers))
	for _, t := range c.cfg.ProfitTaker.Tiers {
		tiers = append(tiers, profittaker.Tier{ProfitPct: t.ProfitPct, CloseFraction: t.CloseFraction})
	}
	return profittaker.Config{
		TakeProfitPct:   c.cfg.ProfitTaker.TakeProfitPct,
		StopLossPct:     c.cfg.ProfitTaker.StopLossPct,
		TrailingStopPct: c.cfg.ProfitTaker.TrailingStopPct,
		UseTrailingStop: c.cfg.ProfitTaker.UseTrailingStop,
		MinHoldSeconds:  c.cfg.ProfitTaker.MinHoldSeconds,
		Tiers:           tiers,
	}
}

// clusterExposure sums dollar exposure of every open position sharing a
// series with ticker, and counts how many distinct positions that is.
func (c *Core) clusterExposure(series string, snap tickSnapshot) (dollars float64, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pos := range c.positions {
		if pos.Series != series || pos.Quantity == 0 {
			continue
		}
		mark := snap.prices[pos.Ticker]
		if mark == 0 {
			mark = pos.AveragePrice
		}
		exec := mark
		if pos.Side == types.PositionNo {
			exec = 1 - mark
		}
		dollars += float64(pos.Quantity) * exec
		count++
	}
	return dollars, count
}

// evaluateSignal runs one ranked signal through sizing, risk approval,
// revalidation, and submission.
func (c *Core) evaluateSignal(ctx context.Context, sig types.DirectionalSignal, snap tickSnapshot, bounds map[string]types.ProbabilityBound, equity float64) {
	if sig.Expired(snap.now) {
		return
	}

	c.mu.Lock()
	series := c.series[sig.Ticker]
	c.mu.Unlock()
	exposure, count := c.clusterExposure(series, snap)

	sizeResult := c.sizer.SizeSignal(sig, equity, count, exposure)
	if sizeResult.Contracts <= 0 {
		return
	}

	approvedDollars, err := c.riskMgr.ApproveSignal(sizeResult.Dollars, equity, exposure)
	if err != nil {
		c.logger.Debug("signal rejected by risk manager", "ticker", sig.Ticker, "error", err)
		return
	}
	if approvedDollars <= 0 {
		return
	}

	execPrice := sig.CurrentPrice
	if sig.Side == types.BuyNo {
		execPrice = 1 - sig.CurrentPrice
	}
	if execPrice <= 0 {
		return
	}
	contracts := int(approvedDollars / execPrice)
	if contracts <= 0 {
		return
	}

	contract, ok := snap.contracts[sig.Ticker]
	if !ok {
		return
	}
	mid := (contract.YesBid + contract.YesAsk) / 2
	spread := snap.spreads[sig.Ticker]
	view := execution.MarketView{
		Ticker: sig.Ticker, Status: contract.Status,
		Bid: contract.YesBid, Ask: contract.YesAsk, Mid: mid, Spread: spread,
	}

	boundStillViolated := false
	if b, ok := bounds[sig.Ticker]; ok {
		boundStillViolated = b.Violation(sig.CurrentPrice) > 0
	}
	if err := c.coordinator.Revalidate(sig, view, boundStillViolated); err != nil {
		c.logger.Debug("signal failed revalidation", "ticker", sig.Ticker, "error", err)
		return
	}

	limitCents := execution.SelectLimitPrice(sig, mid, spread)
	if _, err := c.coordinator.Submit(ctx, sig, contracts, limitCents); err != nil {
		c.logger.Warn("order submission failed", "ticker", sig.Ticker, "error", err)
	}
}

// evaluateProfitTaker runs every open position's tracker and submits
// close orders for whatever actions it emits this tick, in the tier
// order §4.9 specifies.
func (c *Core) evaluateProfitTaker(ctx context.Context, snap tickSnapshot, now time.Time) {
	c.mu.Lock()
	type work struct {
		ticker  string
		side    types.PositionSide
		qty     int
		tracker *profittaker.Tracker
	}
	var items []work
	for _, pos := range c.positions {
		if pos.Quantity == 0 || pos.tracker == nil {
			continue
		}
		items = append(items, work{pos.Ticker, pos.Side, pos.Quantity, pos.tracker})
	}
	c.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].ticker < items[j].ticker })

	for _, it := range items {
		mark, ok := snap.prices[it.ticker]
		if !ok {
			continue
		}
		actions := it.tracker.Evaluate(mark, now, it.qty)
		for _, action := range actions {
			if action.Kind == types.ActionNone || action.Quantity <= 0 {
				continue
			}
			limitCents := closeLimitPrice(it.side, mark)
			if _, err := c.coordinator.SubmitClose(ctx, it.ticker, it.side, action.Quantity, limitCents, ""); err != nil {
				c.logger.Warn("profit-taker close failed", "ticker", it.ticker, "action", action.Kind, "error", err)
				continue
			}
			c.logger.Info("profit-taker action", "ticker", it.ticker, "action", action.Kind, "quantity", action.Quantity)
		}
	}
}

// evaluateExpirationCliff force-closes any position whose contract has
// fewer than MinDaysToExpiration days remaining.
func (c *Core) evaluateExpirationCliff(ctx context.Context, snap tickSnapshot, now time.Time) {
	c.mu.Lock()
	var snaps []risk.PositionSnapshot
	byTicker := make(map[string]*openPosition)
	for _, pos := range c.positions {
		if pos.Quantity == 0 {
			continue
		}
		contract := snap.contracts[pos.Ticker]
		days := contract.DaysToExpiration(now)
		mark := snap.prices[pos.Ticker]
		exec := mark
		if pos.Side == types.PositionNo {
			exec = 1 - mark
		}
		snaps = append(snaps, risk.PositionSnapshot{
			Ticker:           pos.Ticker,
			Series:           pos.Series,
			ExposureDollars:  float64(pos.Quantity) * exec,
			UnrealizedPnL:    pos.UnrealizedPnL,
			DaysToExpiration: days,
		})
		byTicker[pos.Ticker] = pos
	}
	c.mu.Unlock()

	flagged := c.riskMgr.ExpirationCliff(snaps)
	for _, f := range flagged {
		pos, ok := byTicker[f.Ticker]
		if !ok {
			continue
		}
		mark := snap.prices[pos.Ticker]
		limitCents := closeLimitPrice(pos.Side, mark)
		if _, err := c.coordinator.SubmitClose(ctx, pos.Ticker, pos.Side, pos.Quantity, limitCents, ""); err != nil {
			c.logger.Warn("expiration-cliff close failed", "ticker", pos.Ticker, "error", err)
			continue
		}
		c.logger.Info("expiration-cliff forced close", "ticker", pos.Ticker, "days_to_expiration", f.DaysToExpiration)
	}
}

// closeLimitPrice quotes a non-aggressive closing price at the current
// mark, clamped to the exchange's [1,99] cent range.
func closeLimitPrice(side types.PositionSide, mark float64) int {
	price := mark
	if side == types.PositionNo {
		price = 1 - mark
	}
	cents := int(price * 100)
	if cents < 1 {
		cents = 1
	}
	if cents > 99 {
		cents = 99
	}
	return cents
}

// TickErrorCount returns how many ticks have aborted on an exchange error
// since the Core was created.
func (c *Core) TickErrorCount() int {
	return c.tickErrs
}
