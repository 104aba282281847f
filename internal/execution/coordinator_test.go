package execution

import (
	"context"
	"testing"
	"time"

	"arbcore/internal/exchange"
	"arbcore/pkg/types"
)

func sampleSignal() types.DirectionalSignal {
	return types.DirectionalSignal{
		ID:            "sig-1",
		Ticker:        "GOP-2028",
		Side:          types.BuyYes,
		CurrentPrice:  0.35,
		NetEdge:       0.04,
		Spread:        0.01,
		Confidence:    0.9,
		CreatedAt:     time.Unix(0, 0),
		ExpiresAt:     time.Unix(0, 0).Add(5 * time.Minute),
	}
}

func TestRevalidateRejectsClosedMarket(t *testing.T) {
	c := New(DefaultConfig(), exchange.NewPaperClient(10000), nil)
	sig := sampleSignal()
	view := MarketView{Ticker: sig.Ticker, Status: types.StatusClosed, Mid: 0.35}
	if err := c.Revalidate(sig, view, true); err == nil {
		t.Fatal("expected rejection for closed market")
	}
}

func TestRevalidateRejectsPriceDrift(t *testing.T) {
	c := New(DefaultConfig(), exchange.NewPaperClient(10000), nil)
	sig := sampleSignal()
	view := MarketView{Ticker: sig.Ticker, Status: types.StatusOpen, Mid: 0.45}
	if err := c.Revalidate(sig, view, true); err == nil {
		t.Fatal("expected rejection for price drift beyond threshold")
	}
}

func TestRevalidateRejectsWhenBoundNoLongerViolated(t *testing.T) {
	c := New(DefaultConfig(), exchange.NewPaperClient(10000), nil)
	sig := sampleSignal()
	view := MarketView{Ticker: sig.Ticker, Status: types.StatusOpen, Mid: 0.35}
	if err := c.Revalidate(sig, view, false); err == nil {
		t.Fatal("expected rejection when bound is no longer violated")
	}
}

func TestRevalidatePasses(t *testing.T) {
	c := New(DefaultConfig(), exchange.NewPaperClient(10000), nil)
	sig := sampleSignal()
	view := MarketView{Ticker: sig.Ticker, Status: types.StatusOpen, Mid: 0.36}
	if err := c.Revalidate(sig, view, true); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
}

func TestSelectLimitPriceClampedToValidRange(t *testing.T) {
	sig := sampleSignal()
	sig.Side = types.BuyYes
	price := SelectLimitPrice(sig, 0.995, 0.01)
	if price < 1 || price > 99 {
		t.Errorf("expected clamped price in [1,99], got %d", price)
	}

	sig.Side = types.BuyNo
	price = SelectLimitPrice(sig, 0.005, 0.01)
	if price < 1 || price > 99 {
		t.Errorf("expected clamped price in [1,99], got %d", price)
	}
}

func TestSelectLimitPriceAggressiveCrossesTowardTouch(t *testing.T) {
	sig := sampleSignal()
	sig.Side = types.BuyYes
	sig.NetEdge = 0.10 // > 2*spread(0.01)
	aggressive := SelectLimitPrice(sig, 0.50, 0.01)
	sig.NetEdge = 0.001 // below the aggressive threshold
	passive := SelectLimitPrice(sig, 0.50, 0.01)
	if aggressive <= passive {
		t.Errorf("expected aggressive quote (%d) to cross above passive quote (%d)", aggressive, passive)
	}
}

func TestSubmitTracksOrderThroughPaperFill(t *testing.T) {
	paper := exchange.NewPaperClient(10000)
	c := New(DefaultConfig(), paper, nil)
	sig := sampleSignal()

	order, err := c.Submit(context.Background(), sig, 50, 40)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if order.Status != types.OrderFilled {
		t.Errorf("expected paper fill to report FILLED immediately, got %v", order.Status)
	}

	got, ok := c.Order(order.ID)
	if !ok {
		t.Fatal("expected order to be tracked")
	}
	if got.Quantity != 50 || got.PriceCents != 40 {
		t.Errorf("tracked order mismatch: %+v", got)
	}
}

func TestSubmitRejectsOverBalance(t *testing.T) {
	paper := exchange.NewPaperClient(1) // one dollar of paper cash
	c := New(DefaultConfig(), paper, nil)
	sig := sampleSignal()

	_, err := c.Submit(context.Background(), sig, 1000, 90)
	if err == nil {
		t.Fatal("expected rejection for insufficient paper balance")
	}
}

func TestSweepTimeoutsCancelsStaleOpenOrders(t *testing.T) {
	paper := exchange.NewPaperClient(10000)
	paper.FillImmediately = false
	cfg := DefaultConfig()
	cfg.OrderTimeout = time.Second
	c := New(cfg, paper, nil)
	sig := sampleSignal()

	order, err := c.Submit(context.Background(), sig, 10, 40)
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != types.OrderOpen {
		t.Fatalf("expected OPEN with FillImmediately disabled, got %v", order.Status)
	}

	cancelled := c.SweepTimeouts(context.Background(), order.SubmittedAt.Add(2*time.Second))
	if len(cancelled) != 1 || cancelled[0] != order.ID {
		t.Fatalf("expected order %s cancelled on timeout, got %+v", order.ID, cancelled)
	}

	got, _ := c.Order(order.ID)
	if got.Status != types.OrderCancelled {
		t.Errorf("expected tracked status CANCELLED, got %v", got.Status)
	}
}

func TestCancelAllNonTerminal(t *testing.T) {
	paper := exchange.NewPaperClient(10000)
	paper.FillImmediately = false
	c := New(DefaultConfig(), paper, nil)
	sig := sampleSignal()

	o1, _ := c.Submit(context.Background(), sig, 10, 40)
	o2, _ := c.Submit(context.Background(), sig, 5, 41)

	if err := c.CancelAllNonTerminal(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{o1.ID, o2.ID} {
		got, _ := c.Order(id)
		if got.Status != types.OrderCancelled {
			t.Errorf("expected order %s cancelled, got %v", id, got.Status)
		}
	}
	if open := c.OpenOrders(); len(open) != 0 {
		t.Errorf("expected no open orders remaining, got %+v", open)
	}
}
