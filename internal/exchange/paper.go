package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"arbcore/internal/coreerr"
	"arbcore/pkg/types"
)

// PaperClient is an in-memory exchange stand-in: orders fill immediately at
// their submitted limit price. It implements the same surface as Client so
// the execution coordinator and the engine run unchanged against it in
// tests and in paper-trading mode.
type PaperClient struct {
	mu        sync.Mutex
	balance   float64
	orders    map[string]types.Order
	positions map[string]types.Position
	markets   map[string]types.Contract
	books     map[string]types.OrderBook
	// FillImmediately controls whether PlaceOrder marks the order FILLED
	// synchronously (true, the default) or leaves it OPEN
	// for a caller to resolve later via Fill/Reject.
	FillImmediately bool
}

// NewPaperClient creates a paper client seeded with starting cash.
func NewPaperClient(startingBalance float64) *PaperClient {
	return &PaperClient{
		balance:         startingBalance,
		orders:          make(map[string]types.Order),
		positions:       make(map[string]types.Position),
		markets:         make(map[string]types.Contract),
		books:           make(map[string]types.OrderBook),
		FillImmediately: true,
	}
}

// SeedMarket installs a market record and order book snapshot so the
// paper client can answer read calls without a live exchange — used by
// tests that drive the engine against seeded markets.
func (p *PaperClient) SeedMarket(c types.Contract, book types.OrderBook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markets[c.Ticker] = c
	p.books[c.Ticker] = book
}

// ListMarkets returns every seeded market matching status/series filters.
func (p *PaperClient) ListMarkets(ctx context.Context, status, series string, limit int, cursor string) (MarketPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var page MarketPage
	for _, m := range p.markets {
		if status != "" && string(m.Status) != status {
			continue
		}
		if series != "" && m.Series != series {
			continue
		}
		page.Markets = append(page.Markets, m)
		if limit > 0 && len(page.Markets) >= limit {
			break
		}
	}
	return page, nil
}

// GetMarket returns a single seeded market record.
func (p *PaperClient) GetMarket(ctx context.Context, ticker string) (types.Contract, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.markets[ticker]
	if !ok {
		return types.Contract{}, fmt.Errorf("%w: unknown paper market %s", coreerr.ErrExchangeError, ticker)
	}
	return m, nil
}

// GetOrderBook returns a seeded order book snapshot.
func (p *PaperClient) GetOrderBook(ctx context.Context, ticker string, depth int) (types.OrderBook, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	book, ok := p.books[ticker]
	if !ok {
		return types.OrderBook{Ticker: ticker}, nil
	}
	return book, nil
}

// GetBalance returns the paper cash balance.
func (p *PaperClient) GetBalance(ctx context.Context) (float64, error) {
	return p.Balance(), nil
}

// GetPositions returns the paper client's tracked positions.
func (p *PaperClient) GetPositions(ctx context.Context) ([]types.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	return out, nil
}

// PlaceOrder records the order and, in FillImmediately mode, marks it
// filled for its full quantity.
func (p *PaperClient) PlaceOrder(ctx context.Context, o types.Order) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	notional := float64(o.Quantity) * float64(o.PriceCents) / 100.0
	if o.Action != types.ActionSell && notional > p.balance {
		return "", fmt.Errorf("%w: insufficient paper balance for order", coreerr.ErrInsufficientBalance)
	}

	o.Status = types.OrderOpen
	if p.FillImmediately {
		o.Status = types.OrderFilled
		o.Filled = o.Quantity
		if o.Action == types.ActionSell {
			p.balance += notional
		} else {
			p.balance -= notional
		}
	}
	p.orders[o.ID] = o
	return o.ID, nil
}

// CancelOrder marks a tracked order CANCELLED if it isn't already
// terminal.
func (p *PaperClient) CancelOrder(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[id]
	if !ok {
		return fmt.Errorf("%w: unknown paper order %s", coreerr.ErrExchangeError, id)
	}
	if o.Status.IsTerminal() {
		return nil
	}
	o.Status = types.OrderCancelled
	p.orders[id] = o
	return nil
}

// GetOrder returns a tracked order's current state.
func (p *PaperClient) GetOrder(ctx context.Context, id string) (types.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[id]
	if !ok {
		return types.Order{}, fmt.Errorf("%w: unknown paper order %s", coreerr.ErrExchangeError, id)
	}
	return o, nil
}

// Fill manually fills a resting order — used when FillImmediately is false
// and a test or simulator wants to control fill timing explicitly.
func (p *PaperClient) Fill(id string, quantity int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[id]
	if !ok {
		return fmt.Errorf("%w: unknown paper order %s", coreerr.ErrExchangeError, id)
	}
	o.Filled += quantity
	if o.Filled >= o.Quantity {
		o.Filled = o.Quantity
		o.Status = types.OrderFilled
	} else {
		o.Status = types.OrderPartial
	}
	p.balance -= float64(quantity) * float64(o.PriceCents) / 100.0
	p.orders[id] = o
	return nil
}

// Balance returns the current paper cash balance.
func (p *PaperClient) Balance() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance
}

var (
	_ Client = (*PaperClient)(nil)
	_ Client = (*RESTClient)(nil)
)
