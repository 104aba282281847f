// feed.go implements the authenticated order-lifecycle WebSocket feed.
//
// It subscribes to order events for a set of tickers and dispatches each
// lifecycle update (placement acknowledgement, partial fill, fill,
// cancellation, rejection) to a caller-supplied callback — normally
// execution.Coordinator.OnStatusCallback. The feed auto-reconnects with
// exponential backoff (1s → 30s max) and re-subscribes to all tracked
// tickers on reconnection.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"arbcore/pkg/types"
)

const (
	feedPingInterval     = 50 * time.Second
	feedReadTimeout      = 90 * time.Second
	feedMaxReconnectWait = 30 * time.Second
	feedWriteTimeout     = 10 * time.Second
)

// wireOrderEvent is the exchange's order-lifecycle wire event.
type wireOrderEvent struct {
	Type       string `json:"type"`
	OrderID    string `json:"order_id"`
	Ticker     string `json:"ticker"`
	Status     string `json:"status"`
	Filled     int    `json:"filled"`
}

type wireSubscribeMsg struct {
	Operation string   `json:"operation"`
	Tickers   []string `json:"tickers"`
}

// OrderCallback is invoked for every order lifecycle event received.
type OrderCallback func(orderID string, status types.OrderStatus, filled int)

// OrderFeed manages the authenticated order-events WebSocket connection.
type OrderFeed struct {
	url    string
	apiKey string

	connMu sync.Mutex
	conn   *websocket.Conn

	subscribedMu sync.RWMutex
	subscribed   map[string]bool

	onEvent OrderCallback
	logger  *slog.Logger
}

// NewOrderFeed creates an order-lifecycle feed.
func NewOrderFeed(wsURL, apiKey string, onEvent OrderCallback, logger *slog.Logger) *OrderFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderFeed{
		url:        wsURL,
		apiKey:     apiKey,
		subscribed: make(map[string]bool),
		onEvent:    onEvent,
		logger:     logger.With("component", "order_feed"),
	}
}

// Run connects and maintains the connection with auto-reconnect. Blocks
// until ctx is cancelled.
func (f *OrderFeed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("order feed disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > feedMaxReconnectWait {
			backoff = feedMaxReconnectWait
		}
	}
}

// Subscribe adds tickers to the order-events subscription.
func (f *OrderFeed) Subscribe(tickers []string) error {
	f.subscribedMu.Lock()
	for _, t := range tickers {
		f.subscribed[t] = true
	}
	f.subscribedMu.Unlock()
	return f.writeJSON(wireSubscribeMsg{Operation: "subscribe", Tickers: tickers})
}

// Unsubscribe removes tickers from the subscription.
func (f *OrderFeed) Unsubscribe(tickers []string) error {
	f.subscribedMu.Lock()
	for _, t := range tickers {
		delete(f.subscribed, t)
	}
	f.subscribedMu.Unlock()
	return f.writeJSON(wireSubscribeMsg{Operation: "unsubscribe", Tickers: tickers})
}

// Close gracefully closes the connection.
func (f *OrderFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *OrderFeed) connectAndRead(ctx context.Context) error {
	header := make(map[string][]string)
	if f.apiKey != "" {
		header["Authorization"] = []string{"Bearer " + f.apiKey}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.sendInitialSubscription(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.logger.Info("order feed connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		f.dispatchMessage(msg)
	}
}

func (f *OrderFeed) sendInitialSubscription() error {
	f.subscribedMu.RLock()
	tickers := make([]string, 0, len(f.subscribed))
	for t := range f.subscribed {
		tickers = append(tickers, t)
	}
	f.subscribedMu.RUnlock()
	if len(tickers) == 0 {
		return nil
	}
	return f.writeJSON(wireSubscribeMsg{Operation: "subscribe", Tickers: tickers})
}

func (f *OrderFeed) dispatchMessage(msg []byte) {
	var evt wireOrderEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		f.logger.Warn("order feed: malformed message", "error", err)
		return
	}
	if evt.Type != "order" || f.onEvent == nil {
		return
	}
	f.onEvent(evt.OrderID, orderStatusFromWire(evt.Status), evt.Filled)
}

func (f *OrderFeed) writeJSON(v interface{}) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("order feed: not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
	return f.conn.WriteJSON(v)
}

func (f *OrderFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				f.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
				_ = f.conn.WriteMessage(websocket.PingMessage, nil)
			}
			f.connMu.Unlock()
		}
	}
}
