// Package exchange implements the cents-market REST client and the
// order-lifecycle feed the core consumes at its boundary.
//
// The REST client (RESTClient) talks to the exchange's cents-denominated API:
//   - ListMarkets:   GET    /markets
//   - GetMarket:     GET    /markets/{ticker}
//   - GetOrderBook:  GET    /markets/{ticker}/orderbook
//   - GetBalance:    GET    /portfolio/balance
//   - GetPositions:  GET    /portfolio/positions
//   - PlaceOrder:    POST   /portfolio/orders
//   - GetOrder:      GET    /portfolio/orders/{id}
//   - CancelOrder:   DELETE /portfolio/orders/{id}
//
// Every request is rate-limited via per-category TokenBuckets and
// automatically retried on 5xx errors. Auth, signing, and retries are the
// client's concern; the core never sees wire encodings (cents,
// yes/no, buy/sell, resting|canceled|executed|pending).
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"arbcore/internal/coreerr"
	"arbcore/pkg/types"
)

// Client is the narrow exchange surface the core requires, matching
// execution.ExchangeClient plus the read-side calls used by the engine's
// per-tick snapshot fetch.
type Client interface {
	ListMarkets(ctx context.Context, status string, series string, limit int, cursor string) (MarketPage, error)
	GetMarket(ctx context.Context, ticker string) (types.Contract, error)
	GetOrderBook(ctx context.Context, ticker string, depth int) (types.OrderBook, error)
	GetBalance(ctx context.Context) (float64, error)
	GetPositions(ctx context.Context) ([]types.Position, error)
	PlaceOrder(ctx context.Context, o types.Order) (string, error)
	GetOrder(ctx context.Context, id string) (types.Order, error)
	CancelOrder(ctx context.Context, id string) error
}

// MarketPage is one page of a paginated market listing.
type MarketPage struct {
	Markets []types.Contract
	Cursor  string
}

// wireOrder is the exchange's cents-denominated order encoding.
type wireOrder struct {
	Ticker     string `json:"ticker"`
	Side       string `json:"side"`   // "yes" | "no"
	Action     string `json:"action"` // "buy" | "sell"
	Count      int    `json:"count"`
	PriceCents int    `json:"price_cents"`
	Type       string `json:"type"` // "limit" | "market"
}

type wireOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type wireOrderRecord struct {
	OrderID    string `json:"order_id"`
	Ticker     string `json:"ticker"`
	Side       string `json:"side"`
	Action     string `json:"action"`
	PriceCents int    `json:"price_cents"`
	Count      int    `json:"count"`
	Filled     int    `json:"filled"`
	Status     string `json:"status"`
}

// RESTClient is the live REST implementation of Client.
type RESTClient struct {
	http   *resty.Client
	rl     *RateLimiter
	dryRun bool
	logger *slog.Logger
}

// ClientConfig configures the REST client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	DryRun  bool
}

// NewRESTClient creates a REST client with rate limiting and retry, in the
// same resty wiring style used across the corpus for exchange transports.
func NewRESTClient(cfg ClientConfig, logger *slog.Logger) *RESTClient {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		httpClient.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &RESTClient{
		http:   httpClient,
		rl:     NewRateLimiter(),
		dryRun: cfg.DryRun,
		logger: logger.With("component", "exchange_client"),
	}
}

func statusFromWire(s string) types.MarketStatus {
	switch s {
	case "closed", "settled":
		return types.StatusClosed
	default:
		return types.StatusOpen
	}
}

func orderStatusFromWire(s string) types.OrderStatus {
	switch s {
	case "resting":
		return types.OrderOpen
	case "canceled":
		return types.OrderCancelled
	case "executed":
		return types.OrderFilled
	case "pending":
		return types.OrderPending
	default:
		return types.OrderRejected
	}
}

// ListMarkets fetches a page of market records.
func (c *RESTClient) ListMarkets(ctx context.Context, status, series string, limit int, cursor string) (MarketPage, error) {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return MarketPage{}, err
	}
	var wire struct {
		Markets []struct {
			Ticker         string  `json:"ticker"`
			Series         string  `json:"series_ticker"`
			Status         string  `json:"status"`
			YesBid         int     `json:"yes_bid"`
			YesAsk         int     `json:"yes_ask"`
			LastPrice      int     `json:"last_price"`
			Volume         float64 `json:"volume"`
			OpenInterest   float64 `json:"open_interest"`
			CloseTimeUnix  int64   `json:"close_time"`
			ExpirationUnix int64   `json:"expiration_time"`
		} `json:"markets"`
		Cursor string `json:"cursor"`
	}

	req := c.http.R().SetContext(ctx).SetResult(&wire)
	if status != "" {
		req.SetQueryParam("status", status)
	}
	if series != "" {
		req.SetQueryParam("series_ticker", series)
	}
	if limit > 0 {
		req.SetQueryParam("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		req.SetQueryParam("cursor", cursor)
	}

	resp, err := req.Get("/markets")
	if err != nil {
		return MarketPage{}, fmt.Errorf("%w: list markets: %v", coreerr.ErrExchangeError, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return MarketPage{}, fmt.Errorf("%w: list markets: status %d: %s", coreerr.ErrExchangeError, resp.StatusCode(), resp.String())
	}

	page := MarketPage{Cursor: wire.Cursor}
	for _, m := range wire.Markets {
		page.Markets = append(page.Markets, types.Contract{
			Ticker:         m.Ticker,
			Series:         m.Series,
			Status:         statusFromWire(m.Status),
			LastPrice:      float64(m.LastPrice) / 100.0,
			YesBid:         float64(m.YesBid) / 100.0,
			YesAsk:         float64(m.YesAsk) / 100.0,
			Volume:         m.Volume,
			OpenInterest:   m.OpenInterest,
			CloseTime:      time.Unix(m.CloseTimeUnix, 0),
			ExpirationTime: time.Unix(m.ExpirationUnix, 0),
		})
	}
	return page, nil
}

// GetMarket fetches a single market record.
func (c *RESTClient) GetMarket(ctx context.Context, ticker string) (types.Contract, error) {
	page, err := c.ListMarkets(ctx, "", "", 1, "")
	if err != nil {
		return types.Contract{}, err
	}
	if err := c.rl.Read.Wait(ctx); err != nil {
		return types.Contract{}, err
	}
	var wire struct {
		Ticker         string  `json:"ticker"`
		Series         string  `json:"series_ticker"`
		Status         string  `json:"status"`
		YesBid         int     `json:"yes_bid"`
		YesAsk         int     `json:"yes_ask"`
		LastPrice      int     `json:"last_price"`
		Volume         float64 `json:"volume"`
		OpenInterest   float64 `json:"open_interest"`
		CloseTimeUnix  int64   `json:"close_time"`
		ExpirationUnix int64   `json:"expiration_time"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&wire).Get("/markets/" + ticker)
	if err != nil {
		return types.Contract{}, fmt.Errorf("%w: get market: %v", coreerr.ErrExchangeError, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.Contract{}, fmt.Errorf("%w: get market: status %d: %s", coreerr.ErrExchangeError, resp.StatusCode(), resp.String())
	}
	_ = page // the listing result is not used; the record below comes from /markets/{ticker}
	return types.Contract{
		Ticker:         wire.Ticker,
		Series:         wire.Series,
		Status:         statusFromWire(wire.Status),
		LastPrice:      float64(wire.LastPrice) / 100.0,
		YesBid:         float64(wire.YesBid) / 100.0,
		YesAsk:         float64(wire.YesAsk) / 100.0,
		Volume:         wire.Volume,
		OpenInterest:   wire.OpenInterest,
		CloseTime:      time.Unix(wire.CloseTimeUnix, 0),
		ExpirationTime: time.Unix(wire.ExpirationUnix, 0),
	}, nil
}

// GetOrderBook fetches the yes-side order book for a ticker.
func (c *RESTClient) GetOrderBook(ctx context.Context, ticker string, depth int) (types.OrderBook, error) {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return types.OrderBook{}, err
	}
	var wire struct {
		Bids [][2]int `json:"yes_bids"` // [price_cents, quantity]
		Asks [][2]int `json:"yes_asks"`
	}
	req := c.http.R().SetContext(ctx).SetResult(&wire)
	if depth > 0 {
		req.SetQueryParam("depth", fmt.Sprintf("%d", depth))
	}
	resp, err := req.Get("/markets/" + ticker + "/orderbook")
	if err != nil {
		return types.OrderBook{}, fmt.Errorf("%w: get orderbook: %v", coreerr.ErrExchangeError, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.OrderBook{}, fmt.Errorf("%w: get orderbook: status %d: %s", coreerr.ErrExchangeError, resp.StatusCode(), resp.String())
	}

	book := types.OrderBook{Ticker: ticker}
	for _, lvl := range wire.Bids {
		book.Bids = append(book.Bids, types.PriceLevel{Price: float64(lvl[0]) / 100.0, Quantity: float64(lvl[1])})
	}
	for _, lvl := range wire.Asks {
		book.Asks = append(book.Asks, types.PriceLevel{Price: float64(lvl[0]) / 100.0, Quantity: float64(lvl[1])})
	}
	return book, nil
}

// GetBalance returns the account's free cash balance in dollars.
func (c *RESTClient) GetBalance(ctx context.Context) (float64, error) {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return 0, err
	}
	var wire struct {
		BalanceCents int64 `json:"balance_cents"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&wire).Get("/portfolio/balance")
	if err != nil {
		return 0, fmt.Errorf("%w: get balance: %v", coreerr.ErrExchangeError, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("%w: get balance: status %d: %s", coreerr.ErrExchangeError, resp.StatusCode(), resp.String())
	}
	return float64(wire.BalanceCents) / 100.0, nil
}

// GetPositions returns the account's open positions.
func (c *RESTClient) GetPositions(ctx context.Context) ([]types.Position, error) {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return nil, err
	}
	var wire struct {
		Positions []struct {
			Ticker       string `json:"ticker"`
			Side         string `json:"side"`
			Quantity     int    `json:"quantity"`
			AvgPriceCent int    `json:"average_price_cents"`
		} `json:"positions"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&wire).Get("/portfolio/positions")
	if err != nil {
		return nil, fmt.Errorf("%w: get positions: %v", coreerr.ErrExchangeError, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: get positions: status %d: %s", coreerr.ErrExchangeError, resp.StatusCode(), resp.String())
	}

	positions := make([]types.Position, 0, len(wire.Positions))
	for _, p := range wire.Positions {
		side := types.PositionYes
		if p.Side == "no" {
			side = types.PositionNo
		}
		positions = append(positions, types.Position{
			Ticker:       p.Ticker,
			Side:         side,
			Quantity:     p.Quantity,
			AveragePrice: float64(p.AvgPriceCent) / 100.0,
		})
	}
	return positions, nil
}

// PlaceOrder submits a new order and returns the exchange-assigned id.
func (c *RESTClient) PlaceOrder(ctx context.Context, o types.Order) (string, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would place order", "ticker", o.Ticker, "side", o.Side, "qty", o.Quantity)
		return fmt.Sprintf("dry-run-%s", o.ID), nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return "", err
	}

	side := "yes"
	if o.Side == types.PositionNo {
		side = "no"
	}
	action := "buy"
	if o.Action == types.ActionSell {
		action = "sell"
	}
	orderType := "limit"
	if o.Type == types.OrderMarket {
		orderType = "market"
	}

	payload := wireOrder{
		Ticker: o.Ticker, Side: side, Action: action,
		Count: o.Quantity, PriceCents: o.PriceCents, Type: orderType,
	}

	var result wireOrderResponse
	resp, err := c.http.R().SetContext(ctx).SetBody(payload).SetResult(&result).Post("/portfolio/orders")
	if err != nil {
		return "", fmt.Errorf("%w: place order: %v", coreerr.ErrExchangeError, err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return "", fmt.Errorf("%w: place order: status %d: %s", coreerr.ErrExchangeError, resp.StatusCode(), resp.String())
	}
	return result.OrderID, nil
}

// GetOrder fetches a single order's current state.
func (c *RESTClient) GetOrder(ctx context.Context, id string) (types.Order, error) {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return types.Order{}, err
	}
	var wire wireOrderRecord
	resp, err := c.http.R().SetContext(ctx).SetResult(&wire).Get("/portfolio/orders/" + id)
	if err != nil {
		return types.Order{}, fmt.Errorf("%w: get order: %v", coreerr.ErrExchangeError, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.Order{}, fmt.Errorf("%w: get order: status %d: %s", coreerr.ErrExchangeError, resp.StatusCode(), resp.String())
	}

	side := types.PositionYes
	if wire.Side == "no" {
		side = types.PositionNo
	}
	action := types.ActionBuy
	if wire.Action == "sell" {
		action = types.ActionSell
	}
	return types.Order{
		ID: wire.OrderID, Ticker: wire.Ticker, Side: side, Action: action,
		PriceCents: wire.PriceCents, Quantity: wire.Count, Filled: wire.Filled,
		Status: orderStatusFromWire(wire.Status),
	}, nil
}

// CancelOrder cancels a resting order.
func (c *RESTClient) CancelOrder(ctx context.Context, id string) error {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel order", "id", id)
		return nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.http.R().SetContext(ctx).Delete("/portfolio/orders/" + id)
	if err != nil {
		return fmt.Errorf("%w: cancel order: %v", coreerr.ErrExchangeError, err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		return fmt.Errorf("%w: cancel order: status %d: %s", coreerr.ErrExchangeError, resp.StatusCode(), resp.String())
	}
	return nil
}
