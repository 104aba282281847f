// Package execution implements signal revalidation, limit-price selection,
// and order lifecycle tracking. Paper trading needs no separate path here:
// the coordinator is handed a paper exchange client (exchange.PaperClient)
// and tracks its orders like any other.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"arbcore/internal/coreerr"
	"arbcore/pkg/types"
)

// Config tunes the execution coordinator.
type Config struct {
	MaxPriceDrift     float64       // default 0.02
	OrderTimeout      time.Duration // default 60s
	PaperTrading      bool
}

// DefaultConfig mirrors the reference defaults.
func DefaultConfig() Config {
	return Config{MaxPriceDrift: 0.02, OrderTimeout: 60 * time.Second}
}

// MarketView is the fresh pre-flight data the coordinator needs for a
// single ticker: current best prices, status, and spread.
type MarketView struct {
	Ticker string
	Status types.MarketStatus
	Bid    float64
	Ask    float64
	Mid    float64
	Spread float64
}

// ExchangeClient is the narrow surface the coordinator consumes from the
// exchange boundary (see internal/exchange for implementations).
type ExchangeClient interface {
	PlaceOrder(ctx context.Context, o types.Order) (string, error)
	CancelOrder(ctx context.Context, id string) error
	GetOrder(ctx context.Context, id string) (types.Order, error)
}

// Coordinator revalidates signals, selects limit prices, submits orders,
// and tracks their lifecycle to a terminal state.
type Coordinator struct {
	cfg    Config
	client ExchangeClient
	logger *slog.Logger

	mu     sync.Mutex
	orders map[string]types.Order // keyed by order id
}

// New constructs a Coordinator. client may be an exchange.PaperClient, as
// in tests and paper-trading runs.
func New(cfg Config, client ExchangeClient, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "execution_coordinator"),
		orders: make(map[string]types.Order),
	}
}

// Revalidate re-checks a signal against fresh market data immediately
// before submission, per §4.7's pre-flight rules.
func (c *Coordinator) Revalidate(sig types.DirectionalSignal, view MarketView, boundStillViolated bool) error {
	if view.Status != types.StatusOpen {
		return coreerr.ErrMarketClosed
	}
	if math.Abs(view.Mid-sig.CurrentPrice) > c.cfg.MaxPriceDrift {
		return coreerr.ErrPriceDrift
	}
	if !boundStillViolated {
		return coreerr.ErrSignalExpired
	}
	return nil
}

// SelectLimitPrice chooses the limit price in integer cents, clamped to
// [1,99]. When net edge clears twice the spread, it quotes aggressively
// (crossing toward the touch); otherwise it sits at the mid without
// crossing.
func SelectLimitPrice(sig types.DirectionalSignal, mid, spread float64) int {
	aggressive := sig.NetEdge > 2*spread
	var priceDec decimal.Decimal
	hundred := decimal.NewFromInt(100)
	midDec := decimal.NewFromFloat(mid)
	spreadDec := decimal.NewFromFloat(spread)

	if sig.Side == types.BuyYes {
		if aggressive {
			priceDec = midDec.Add(spreadDec).Mul(hundred).Floor()
		} else {
			priceDec = midDec.Mul(hundred).Floor()
		}
	} else {
		if aggressive {
			priceDec = midDec.Sub(spreadDec).Mul(hundred).Ceil()
		} else {
			priceDec = midDec.Mul(hundred).Ceil()
		}
	}

	cents := int(priceDec.IntPart())
	if cents < 1 {
		cents = 1
	}
	if cents > 99 {
		cents = 99
	}
	return cents
}

// Submit builds and places an order for a sized, risk-approved signal.
// Orders start PENDING and are tracked until a terminal status. Once
// placed, the tracked status and filled count are the ones the exchange
// reports for the order (FILLED at once for an immediately-filling paper
// client), or OPEN when that lookup fails.
func (c *Coordinator) Submit(ctx context.Context, sig types.DirectionalSignal, quantity int, limitPriceCents int) (types.Order, error) {
	side := types.PositionYes
	if sig.Side == types.BuyNo {
		side = types.PositionNo
	}
	order := types.Order{
		ID:          uuid.NewString(),
		Ticker:      sig.Ticker,
		Side:        side,
		Action:      types.ActionBuy,
		Type:        types.OrderLimit,
		PriceCents:  limitPriceCents,
		Quantity:    quantity,
		Status:      types.OrderPending,
		SignalID:    sig.ID,
		SubmittedAt: time.Now(),
	}

	id, err := c.client.PlaceOrder(ctx, order)
	if err != nil {
		return types.Order{}, fmt.Errorf("%w: %v", coreerr.ErrExchangeError, err)
	}
	order.ID = id
	order.Status = types.OrderOpen
	if placed, err := c.client.GetOrder(ctx, id); err == nil {
		order.Status = placed.Status
		order.Filled = placed.Filled
	}

	c.mu.Lock()
	c.orders[order.ID] = order
	c.mu.Unlock()

	return order, nil
}

// SubmitClose builds and places a sell order that closes or reduces an
// open position, sharing Submit's tracking and lifecycle path.
func (c *Coordinator) SubmitClose(ctx context.Context, ticker string, side types.PositionSide, quantity int, limitPriceCents int, signalID string) (types.Order, error) {
	order := types.Order{
		ID:          uuid.NewString(),
		Ticker:      ticker,
		Side:        side,
		Action:      types.ActionSell,
		Type:        types.OrderLimit,
		PriceCents:  limitPriceCents,
		Quantity:    quantity,
		Status:      types.OrderPending,
		SignalID:    signalID,
		SubmittedAt: time.Now(),
	}

	id, err := c.client.PlaceOrder(ctx, order)
	if err != nil {
		return types.Order{}, fmt.Errorf("%w: %v", coreerr.ErrExchangeError, err)
	}
	order.ID = id
	order.Status = types.OrderOpen
	if placed, err := c.client.GetOrder(ctx, id); err == nil {
		order.Status = placed.Status
		order.Filled = placed.Filled
	}

	c.mu.Lock()
	c.orders[order.ID] = order
	c.mu.Unlock()

	return order, nil
}

// OnStatusCallback applies an exchange lifecycle callback to a tracked
// order.
func (c *Coordinator) OnStatusCallback(id string, status types.OrderStatus, filled int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	if !ok {
		return
	}
	o.Status = status
	o.Filled = filled
	c.orders[id] = o
}

// SweepTimeouts cancels every tracked OPEN order that has exceeded
// OrderTimeout, returning the ids it cancelled.
func (c *Coordinator) SweepTimeouts(ctx context.Context, now time.Time) []string {
	c.mu.Lock()
	var stale []types.Order
	for _, o := range c.orders {
		if o.Status == types.OrderOpen && now.Sub(o.SubmittedAt) > c.cfg.OrderTimeout {
			stale = append(stale, o)
		}
	}
	c.mu.Unlock()

	var cancelled []string
	for _, o := range stale {
		if err := c.client.CancelOrder(ctx, o.ID); err != nil {
			c.logger.Warn("cancel on timeout failed", "order", o.ID, "error", err)
			continue
		}
		c.OnStatusCallback(o.ID, types.OrderCancelled, o.Filled)
		cancelled = append(cancelled, o.ID)
	}
	return cancelled
}

// CancelAllNonTerminal cancels every tracked order not already in a
// terminal state — used for graceful shutdown.
func (c *Coordinator) CancelAllNonTerminal(ctx context.Context) error {
	c.mu.Lock()
	var open []string
	for _, o := range c.orders {
		if !o.Status.IsTerminal() {
			open = append(open, o.ID)
		}
	}
	c.mu.Unlock()

	for _, id := range open {
		if err := c.client.CancelOrder(ctx, id); err != nil {
			return fmt.Errorf("%w: cancel %s: %v", coreerr.ErrExchangeError, id, err)
		}
		c.OnStatusCallback(id, types.OrderCancelled, 0)
	}
	return nil
}

// Order returns a tracked order's current state.
func (c *Coordinator) Order(id string) (types.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	return o, ok
}

// OpenOrders returns every tracked order not yet terminal.
func (c *Coordinator) OpenOrders() []types.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Order, 0)
	for _, o := range c.orders {
		if !o.Status.IsTerminal() {
			out = append(out, o)
		}
	}
	return out
}
