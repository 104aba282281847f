package engine

import (
	"context"
	"testing"
	"time"

	"arbcore/internal/config"
	"arbcore/internal/exchange"
	"arbcore/pkg/types"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.DataDir = t.TempDir()
	return *cfg
}

func seedMarket(client *exchange.PaperClient, ticker string, price, bid, ask float64) {
	client.SeedMarket(types.Contract{
		Ticker:         ticker,
		Series:         ticker,
		Status:         types.StatusOpen,
		LastPrice:      price,
		YesBid:         bid,
		YesAsk:         ask,
		ExpirationTime: time.Now().Add(30 * 24 * time.Hour),
	}, types.OrderBook{
		Ticker: ticker,
		Bids:   []types.PriceLevel{{Price: bid, Quantity: 1000}},
		Asks:   []types.PriceLevel{{Price: ask, Quantity: 1000}},
	})
}

func TestNewLoadsEmptyConstraintsOnFreshStore(t *testing.T) {
	cfg := testConfig(t)
	client := exchange.NewPaperClient(100000)
	core, err := New(cfg, client, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := len(core.Constraints().All()); got != 0 {
		t.Errorf("expected no constraints on a fresh store, got %d", got)
	}
}

func TestTickWithoutViolationsSubmitsNoOrders(t *testing.T) {
	cfg := testConfig(t)
	client := exchange.NewPaperClient(100000)
	seedMarket(client, "FED-DEC", 0.50, 0.49, 0.51)

	core, err := New(cfg, client, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before := client.Balance()
	if err := core.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if after := client.Balance(); after != before {
		t.Errorf("expected balance unchanged without a bound violation, got %v -> %v", before, after)
	}
}

func TestTickSubmitsOrderOnConstraintViolation(t *testing.T) {
	cfg := testConfig(t)
	client := exchange.NewPaperClient(100000)

	// A is a subset of B, so P(B) must be >= P(A). Price B well below A's
	// price is a clean no-arbitrage violation: B is underpriced.
	seedMarket(client, "A", 0.80, 0.79, 0.81)
	seedMarket(client, "B", 0.30, 0.29, 0.31)

	core, err := New(cfg, client, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := core.Constraints().RegisterSubset("A", "B", "A implies B"); err != nil {
		t.Fatalf("RegisterSubset: %v", err)
	}

	before := client.Balance()
	if err := core.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if after := client.Balance(); after >= before {
		t.Errorf("expected a filled buy order on the underpriced ticker B to debit paper cash, got %v -> %v", before, after)
	}
}

func TestDrainSkipsNewOrderSubmission(t *testing.T) {
	cfg := testConfig(t)
	client := exchange.NewPaperClient(100000)
	seedMarket(client, "A", 0.80, 0.79, 0.81)
	seedMarket(client, "B", 0.30, 0.29, 0.31)

	core, err := New(cfg, client, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := core.Constraints().RegisterSubset("A", "B", "A implies B"); err != nil {
		t.Fatalf("RegisterSubset: %v", err)
	}
	core.Drain()

	before := client.Balance()
	if err := core.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if after := client.Balance(); after != before {
		t.Errorf("expected draining mode to skip new order submission, got %v -> %v", before, after)
	}
}

func TestStopPersistsConstraintsAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	client := exchange.NewPaperClient(100000)

	core, err := New(cfg, client, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := core.Constraints().RegisterSubset("A", "B", "A implies B"); err != nil {
		t.Fatalf("RegisterSubset: %v", err)
	}
	if err := core.Run(closedContext()); err == nil {
		t.Fatal("expected Run to return the cancellation error")
	}
	core.Stop()

	restarted, err := New(cfg, client, nil)
	if err != nil {
		t.Fatalf("New (restart): %v", err)
	}
	if got := len(restarted.Constraints().All()); got != 1 {
		t.Errorf("expected the persisted constraint to survive a restart, got %d", got)
	}
}

// closedContext returns a context that is already cancelled, so Run
// performs exactly its immediate first tick before returning.
func closedContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func TestTickErrorCountIncrementsOnExchangeFailure(t *testing.T) {
	cfg := testConfig(t)
	core, err := New(cfg, failingClient{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := core.Tick(context.Background()); err == nil {
		t.Fatal("expected Tick to surface the exchange error")
	}
	if core.TickErrorCount() != 1 {
		t.Errorf("expected TickErrorCount 1, got %d", core.TickErrorCount())
	}
}

// failingClient implements exchange.Client and fails every call, used to
// exercise Tick's error path without a real exchange dependency.
type failingClient struct{}

func (failingClient) ListMarkets(ctx context.Context, status, series string, limit int, cursor string) (exchange.MarketPage, error) {
	return exchange.MarketPage{}, context.DeadlineExceeded
}
func (failingClient) GetMarket(ctx context.Context, ticker string) (types.Contract, error) {
	return types.Contract{}, context.DeadlineExceeded
}
func (failingClient) GetOrderBook(ctx context.Context, ticker string, depth int) (types.OrderBook, error) {
	return types.OrderBook{}, context.DeadlineExceeded
}
func (failingClient) GetBalance(ctx context.Context) (float64, error) {
	return 0, context.DeadlineExceeded
}
func (failingClient) GetPositions(ctx context.Context) ([]types.Position, error) {
	return nil, context.DeadlineExceeded
}
func (failingClient) PlaceOrder(ctx context.Context, o types.Order) (string, error) {
	return "", context.DeadlineExceeded
}
func (failingClient) CancelOrder(ctx context.Context, id string) error {
	return context.DeadlineExceeded
}
func (failingClient) GetOrder(ctx context.Context, id string) (types.Order, error) {
	return types.Order{}, context.DeadlineExceeded
}
