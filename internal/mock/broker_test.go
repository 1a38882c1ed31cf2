package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jbaeza/cyclebot/internal/broker"
	"github.com/jbaeza/cyclebot/internal/models"
)

func TestFakeBrokerOHLCVDeterministic(t *testing.T) {
	f := NewFakeBroker()
	start := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	a, err := f.GetOHLCV(context.Background(), "EURUSD", models.TimeframeM5, start, end)
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.GetOHLCV(context.Background(), "EURUSD", models.TimeframeM5, start, end)
	if err != nil {
		t.Fatal(err)
	}
	if a.Len() != b.Len() || a.Len() == 0 {
		t.Fatalf("lens: %d vs %d", a.Len(), b.Len())
	}
	for i := range a.Bars {
		if a.Bars[i] != b.Bars[i] {
			t.Fatalf("bar %d differs between identical requests", i)
		}
	}
	if !a.Aligned() {
		t.Error("synthetic series must be grid-aligned")
	}
}

func TestFakeBrokerOrderLifecycle(t *testing.T) {
	f := NewFakeBroker()
	ctx := context.Background()

	res, err := f.SendMarketOrder(ctx, models.OrderRequest{Symbol: "EURUSD", Volume: 0.1, Kind: models.OrderBuy, MagicNumber: 7, Comment: "mom-M5"})
	if err != nil || !res.Success {
		t.Fatalf("buy: %v %+v", err, res)
	}
	res2, _ := f.SendMarketOrder(ctx, models.OrderRequest{Symbol: "GBPUSD", Volume: 0.2, Kind: models.OrderSell, MagicNumber: 8})
	if res2.OrderID == res.OrderID {
		t.Error("order ids must be unique")
	}

	positions, _ := f.GetOpenPositions(ctx)
	if len(positions) != 2 {
		t.Fatalf("open positions = %d, want 2", len(positions))
	}
	for _, p := range positions {
		if p.Symbol == "EURUSD" && p.StrategyName != "mom-M5" {
			t.Errorf("position not attributable: %+v", p)
		}
	}

	// CLOSE by (symbol, magic) removes only the matching position.
	if _, err := f.SendMarketOrder(ctx, models.OrderRequest{Symbol: "EURUSD", Kind: models.OrderClose, MagicNumber: 7}); err != nil {
		t.Fatal(err)
	}
	positions, _ = f.GetOpenPositions(ctx)
	if len(positions) != 1 || positions[0].Symbol != "GBPUSD" {
		t.Errorf("positions after close = %+v", positions)
	}
}

func TestFakeBrokerCloseWithoutMagicRemovesAllForSymbol(t *testing.T) {
	f := NewFakeBroker()
	ctx := context.Background()
	f.SendMarketOrder(ctx, models.OrderRequest{Symbol: "EURUSD", Volume: 0.1, Kind: models.OrderBuy, MagicNumber: 7})
	f.SendMarketOrder(ctx, models.OrderRequest{Symbol: "EURUSD", Volume: 0.1, Kind: models.OrderBuy, MagicNumber: 9})

	f.SendMarketOrder(ctx, models.OrderRequest{Symbol: "EURUSD", Kind: models.OrderClose})
	positions, _ := f.GetOpenPositions(ctx)
	if len(positions) != 0 {
		t.Errorf("positions after magicless close = %+v", positions)
	}
}

func TestFakeBrokerRejection(t *testing.T) {
	f := NewFakeBroker()
	f.RejectOrders = true
	res, err := f.SendMarketOrder(context.Background(), models.OrderRequest{Symbol: "EURUSD", Volume: 0.1, Kind: models.OrderBuy})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("expected rejection")
	}
	positions, _ := f.GetOpenPositions(context.Background())
	if len(positions) != 0 {
		t.Error("rejected order must not open a position")
	}
}

func TestFakeBrokerClosedTrades(t *testing.T) {
	f := NewFakeBroker()
	if _, err := f.GetClosedTrades(context.Background()); !errors.Is(err, broker.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported by default, got %v", err)
	}

	f.ClosedTradesSupported = true
	f.AddClosedTrade(models.TradeRecord{Symbol: "EURUSD", StrategyName: "s1", PnL: 10})
	trades, err := f.GetClosedTrades(context.Background())
	if err != nil || len(trades) != 1 {
		t.Fatalf("trades = %v, err = %v", trades, err)
	}
}
