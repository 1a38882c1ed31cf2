package executor

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jbaeza/cyclebot/internal/models"
)

type stubBroker struct {
	positions    []models.Position
	positionsErr error
	orderResult  *models.OrderResult
	orderErr     error
	lastOrder    models.OrderRequest
}

func (s *stubBroker) Connect(ctx context.Context) error { return nil }

func (s *stubBroker) GetOHLCV(ctx context.Context, symbol string, tf models.Timeframe, start, end time.Time) (*models.Series, error) {
	return nil, errors.New("not used")
}

func (s *stubBroker) SendMarketOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	s.lastOrder = req
	if s.orderErr != nil {
		return nil, s.orderErr
	}
	if s.orderResult != nil {
		return s.orderResult, nil
	}
	return &models.OrderResult{Success: true, OrderID: 1}, nil
}

func (s *stubBroker) GetOpenPositions(ctx context.Context) ([]models.Position, error) {
	return s.positions, s.positionsErr
}

func (s *stubBroker) GetClosedTrades(ctx context.Context) ([]models.TradeRecord, error) {
	return nil, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestSyncReplacesMirror(t *testing.T) {
	stub := &stubBroker{positions: []models.Position{
		{Symbol: "EURUSD", Volume: 0.1, EntryPrice: 1.08, MagicNumber: 7},
		{Symbol: "EURUSD", Volume: 0.2, EntryPrice: 1.09, MagicNumber: 9},
	}}
	e := New(stub, quietLogger())

	// Seed a stale entry that the sync must discard.
	e.openPositions["GBPUSD"] = models.Position{Symbol: "GBPUSD"}

	if err := e.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if e.HasOpenPosition("GBPUSD", "", 0) {
		t.Error("stale entry survived sync")
	}
	if !e.HasOpenPosition("EURUSD", "", 7) || !e.HasOpenPosition("EURUSD", "", 9) {
		t.Error("synced positions missing from mirror")
	}
}

func TestSyncKeepsMirrorOnBrokerError(t *testing.T) {
	stub := &stubBroker{positionsErr: errors.New("gateway down")}
	e := New(stub, quietLogger())
	e.openPositions["EURUSD#7"] = models.Position{Symbol: "EURUSD", MagicNumber: 7}

	if err := e.Sync(context.Background()); err == nil {
		t.Fatal("expected sync error")
	}
	if !e.HasOpenPosition("EURUSD", "", 7) {
		t.Error("mirror must survive a failed sync")
	}
}

func TestExecuteBuyInsertsPlaceholder(t *testing.T) {
	stub := &stubBroker{}
	e := New(stub, quietLogger())

	res, err := e.Execute(context.Background(), models.OrderRequest{
		Symbol: "EURUSD", Volume: 0.1, Kind: models.OrderBuy, MagicNumber: 7,
	})
	if err != nil || !res.Success {
		t.Fatalf("execute: %v %+v", err, res)
	}
	if !e.HasOpenPosition("EURUSD", "", 7) {
		t.Fatal("accepted buy must appear in the mirror")
	}
	pos := e.OpenPositions()[0]
	if pos.EntryPrice != 0 {
		t.Errorf("placeholder entry price = %v, want 0 until next sync", pos.EntryPrice)
	}
}

func TestExecuteBuyMatchableByStrategyBeforeSync(t *testing.T) {
	stub := &stubBroker{}
	e := New(stub, quietLogger())

	// A magicless dispatch can only be found again through the strategy
	// prefix fallback, so the placeholder must carry the attribution.
	if _, err := e.Execute(context.Background(), models.OrderRequest{
		Symbol: "EURUSD", Volume: 0.1, Kind: models.OrderBuy, Comment: "mom-M5",
	}); err != nil {
		t.Fatal(err)
	}
	if !e.HasOpenPosition("EURUSD", "mom", 0) {
		t.Error("fresh position not matchable by strategy prefix before the next sync")
	}
	if e.HasOpenPosition("EURUSD", "momentum_h1", 0) {
		t.Error("prefix fallback matched an unrelated strategy")
	}
	if pos := e.OpenPositions()[0]; pos.OpenTime.IsZero() {
		t.Error("placeholder open time not set")
	}
}

func TestExecuteRejectionLeavesMirrorUntouched(t *testing.T) {
	stub := &stubBroker{orderResult: &models.OrderResult{Success: false, ErrorMessage: "market closed"}}
	e := New(stub, quietLogger())

	res, err := e.Execute(context.Background(), models.OrderRequest{
		Symbol: "EURUSD", Volume: 0.1, Kind: models.OrderBuy, MagicNumber: 7,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("expected rejection")
	}
	if e.HasOpenPosition("EURUSD", "", 7) {
		t.Error("rejected order must not enter the mirror")
	}
}

func TestExecuteCloseByMagic(t *testing.T) {
	stub := &stubBroker{}
	e := New(stub, quietLogger())
	e.openPositions["EURUSD#7"] = models.Position{Symbol: "EURUSD", MagicNumber: 7}
	e.openPositions["EURUSD#9"] = models.Position{Symbol: "EURUSD", MagicNumber: 9}

	if _, err := e.Execute(context.Background(), models.OrderRequest{
		Symbol: "EURUSD", Kind: models.OrderClose, MagicNumber: 7,
	}); err != nil {
		t.Fatal(err)
	}
	if e.HasOpenPosition("EURUSD", "", 7) {
		t.Error("closed position still mirrored")
	}
	if !e.HasOpenPosition("EURUSD", "", 9) {
		t.Error("close by magic must not touch other strategies' positions")
	}
}

func TestExecuteCloseWithoutMagicRemovesAllForSymbol(t *testing.T) {
	stub := &stubBroker{}
	e := New(stub, quietLogger())
	e.openPositions["EURUSD#7"] = models.Position{Symbol: "EURUSD", MagicNumber: 7}
	e.openPositions["EURUSD#9"] = models.Position{Symbol: "EURUSD", MagicNumber: 9}
	e.openPositions["GBPUSD#7"] = models.Position{Symbol: "GBPUSD", MagicNumber: 7}

	if _, err := e.Execute(context.Background(), models.OrderRequest{
		Symbol: "EURUSD", Kind: models.OrderClose,
	}); err != nil {
		t.Fatal(err)
	}
	if e.HasOpenPosition("EURUSD", "", 0) {
		t.Error("magicless close must remove every position on the symbol")
	}
	if !e.HasOpenPosition("GBPUSD", "", 7) {
		t.Error("other symbols must be unaffected")
	}
}

func TestExecuteTransportErrorPropagates(t *testing.T) {
	stub := &stubBroker{orderErr: errors.New("connection reset")}
	e := New(stub, quietLogger())

	if _, err := e.Execute(context.Background(), models.OrderRequest{
		Symbol: "EURUSD", Volume: 0.1, Kind: models.OrderBuy,
	}); err == nil {
		t.Fatal("transport errors must propagate")
	}
	if len(e.OpenPositions()) != 0 {
		t.Error("mirror must not change on a transport error")
	}
}

func TestHasOpenPositionStrategyPrefixFallback(t *testing.T) {
	e := New(&stubBroker{}, quietLogger())
	e.openPositions["EURUSD"] = models.Position{Symbol: "EURUSD", StrategyName: "sma_cross-M5"}

	if !e.HasOpenPosition("EURUSD", "sma_cross", 0) {
		t.Error("prefix match on strategy name should hit")
	}
	if e.HasOpenPosition("EURUSD", "momentum", 0) {
		t.Error("non-matching strategy should miss")
	}
	if !e.HasOpenPosition("EURUSD", "", 0) {
		t.Error("empty strategy name matches any position on the symbol")
	}
}
