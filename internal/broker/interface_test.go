package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jbaeza/cyclebot/internal/models"
)

type flakyBroker struct {
	err   error
	calls int
}

func (f *flakyBroker) Connect(ctx context.Context) error { f.calls++; return f.err }

func (f *flakyBroker) GetOHLCV(ctx context.Context, symbol string, tf models.Timeframe, start, end time.Time) (*models.Series, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.Series{Symbol: symbol, Timeframe: tf}, nil
}

func (f *flakyBroker) SendMarketOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.OrderResult{Success: true, OrderID: 1}, nil
}

func (f *flakyBroker) GetOpenPositions(ctx context.Context) ([]models.Position, error) {
	f.calls++
	return nil, f.err
}

func (f *flakyBroker) GetClosedTrades(ctx context.Context) ([]models.TradeRecord, error) {
	f.calls++
	return nil, ErrUnsupported
}

func TestCircuitBreakerTripsOnRepeatedFailures(t *testing.T) {
	inner := &flakyBroker{err: errors.New("gateway down")}
	cb := NewCircuitBreakerBrokerWithSettings(inner, quietLogger(), CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.6,
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := cb.GetOpenPositions(ctx); err == nil {
			t.Fatal("expected failure from inner broker")
		}
	}
	callsBefore := inner.calls

	_, err := cb.GetOpenPositions(ctx)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if inner.calls != callsBefore {
		t.Error("open circuit must not reach the inner broker")
	}
}

func TestCircuitBreakerIgnoresUnsupported(t *testing.T) {
	inner := &flakyBroker{}
	cb := NewCircuitBreakerBrokerWithSettings(inner, quietLogger(), CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.6,
	})

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if _, err := cb.GetClosedTrades(ctx); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("expected ErrUnsupported passthrough, got %v", err)
		}
	}
	// The breaker must still admit healthy calls.
	if _, err := cb.GetOHLCV(ctx, "EURUSD", models.TimeframeM5, time.Now().Add(-time.Hour), time.Now()); err != nil {
		t.Fatalf("breaker tripped on unsupported endpoints: %v", err)
	}
}

func TestCircuitBreakerPassesResults(t *testing.T) {
	inner := &flakyBroker{}
	cb := NewCircuitBreakerBroker(inner, quietLogger())

	res, err := cb.SendMarketOrder(context.Background(), models.OrderRequest{
		Symbol: "EURUSD", Volume: 0.1, Kind: models.OrderBuy,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.OrderID != 1 {
		t.Errorf("result = %+v", res)
	}
}
