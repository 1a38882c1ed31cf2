package retry

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jbaeza/cyclebot/internal/broker"
	"github.com/jbaeza/cyclebot/internal/models"
)

type scriptedBroker struct {
	failures    int // fail this many calls before succeeding
	err         error
	reads       int
	dispatches  int
	lastRequest models.OrderRequest
}

func (s *scriptedBroker) step() error {
	s.reads++
	if s.reads <= s.failures {
		return s.err
	}
	return nil
}

func (s *scriptedBroker) Connect(ctx context.Context) error { return s.step() }

func (s *scriptedBroker) GetOHLCV(ctx context.Context, symbol string, tf models.Timeframe, start, end time.Time) (*models.Series, error) {
	if err := s.step(); err != nil {
		return nil, err
	}
	return &models.Series{Symbol: symbol, Timeframe: tf}, nil
}

func (s *scriptedBroker) SendMarketOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	s.dispatches++
	s.lastRequest = req
	return nil, errors.New("connection reset")
}

func (s *scriptedBroker) GetOpenPositions(ctx context.Context) ([]models.Position, error) {
	if err := s.step(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *scriptedBroker) GetClosedTrades(ctx context.Context) ([]models.TradeRecord, error) {
	if err := s.step(); err != nil {
		return nil, err
	}
	return nil, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func fastConfig() Config {
	return Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestRetriesTransientReadErrors(t *testing.T) {
	inner := &scriptedBroker{failures: 2, err: errors.New("dial tcp: connection refused")}
	r := NewBroker(inner, quietLogger(), fastConfig())

	series, err := r.GetOHLCV(context.Background(), "EURUSD", models.TimeframeM5, time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if series.Symbol != "EURUSD" {
		t.Errorf("series = %+v", series)
	}
	if inner.reads != 3 {
		t.Errorf("reads = %d, want 3", inner.reads)
	}
}

func TestDoesNotRetryPermanentErrors(t *testing.T) {
	inner := &scriptedBroker{failures: 10, err: errors.New("invalid symbol")}
	r := NewBroker(inner, quietLogger(), fastConfig())

	if _, err := r.GetOpenPositions(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if inner.reads != 1 {
		t.Errorf("reads = %d, want 1 for a permanent error", inner.reads)
	}
}

func TestDoesNotRetryUnsupported(t *testing.T) {
	inner := &scriptedBroker{failures: 10, err: broker.ErrUnsupported}
	r := NewBroker(inner, quietLogger(), fastConfig())

	if _, err := r.GetClosedTrades(context.Background()); !errors.Is(err, broker.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if inner.reads != 1 {
		t.Errorf("reads = %d, want 1", inner.reads)
	}
}

func TestRetriesTypedConnectionErrors(t *testing.T) {
	inner := &scriptedBroker{failures: 1, err: &broker.ConnectionError{Op: "connect", Err: errors.New("boom")}}
	r := NewBroker(inner, quietLogger(), fastConfig())

	if err := r.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if inner.reads != 2 {
		t.Errorf("reads = %d, want 2", inner.reads)
	}
}

func TestNeverRetriesDispatch(t *testing.T) {
	inner := &scriptedBroker{}
	r := NewBroker(inner, quietLogger(), fastConfig())

	_, err := r.SendMarketOrder(context.Background(), models.OrderRequest{Symbol: "EURUSD", Volume: 0.1, Kind: models.OrderBuy})
	if err == nil {
		t.Fatal("expected dispatch error to surface")
	}
	if inner.dispatches != 1 {
		t.Errorf("dispatches = %d, want exactly 1 even on a transient error", inner.dispatches)
	}
}

func TestStopsOnContextCancel(t *testing.T) {
	inner := &scriptedBroker{failures: 100, err: errors.New("timeout")}
	r := NewBroker(inner, quietLogger(), Config{MaxRetries: 100, InitialBackoff: 50 * time.Millisecond, MaxBackoff: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.GetOpenPositions(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
