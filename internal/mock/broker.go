// Package mock provides a deterministic in-process broker for paper trading
// and tests. It honors the full broker contract without touching a gateway.
package mock

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jbaeza/cyclebot/internal/broker"
	"github.com/jbaeza/cyclebot/internal/models"
)

// FakeBroker simulates a broker in memory. Prices are a deterministic
// function of symbol and bar time, so repeated runs over the same clock
// produce identical series. Orders are always accepted unless RejectOrders
// is set; accepted BUY/SELL orders appear in the open-position list until a
// matching CLOSE removes them.
type FakeBroker struct {
	mu           sync.Mutex
	nextOrderID  int64
	positions    []models.Position
	closedTrades []models.TradeRecord

	// RejectOrders makes every dispatch come back as a broker rejection.
	RejectOrders bool
	// ClosedTradesSupported switches GetClosedTrades between returning the
	// recorded trades and ErrUnsupported.
	ClosedTradesSupported bool
}

// NewFakeBroker returns an empty simulated broker.
func NewFakeBroker() *FakeBroker {
	return &FakeBroker{nextOrderID: 1}
}

var _ broker.Broker = (*FakeBroker)(nil)

func (f *FakeBroker) Connect(ctx context.Context) error { return nil }

// GetOHLCV synthesises bars on the timeframe grid covering [start, end].
// The close follows a slow sine walk seeded by the symbol name.
func (f *FakeBroker) GetOHLCV(ctx context.Context, symbol string, timeframe models.Timeframe, start, end time.Time) (*models.Series, error) {
	step := timeframe.Duration()
	if step <= 0 {
		return nil, &broker.DataError{Symbol: symbol, Err: broker.ErrNoData}
	}

	seed := float64(symbolSeed(symbol) % 1000)
	series := &models.Series{Symbol: symbol, Timeframe: timeframe}
	for t := start.Truncate(step); !t.After(end); t = t.Add(step) {
		if t.Before(start) {
			continue
		}
		phase := float64(t.Unix()/int64(step.Seconds())) / 50.0
		mid := 100 + seed/100 + 2*math.Sin(phase+seed)
		series.Bars = append(series.Bars, models.Bar{
			Time:   t,
			Open:   mid - 0.05,
			High:   mid + 0.1,
			Low:    mid - 0.1,
			Close:  mid + 0.05,
			Volume: 100 + math.Mod(seed+phase, 50),
		})
	}
	if len(series.Bars) == 0 {
		return nil, &broker.DataError{Symbol: symbol, Err: broker.ErrNoData}
	}
	return series, nil
}

func (f *FakeBroker) SendMarketOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RejectOrders {
		return &models.OrderResult{Success: false, ErrorMessage: "rejected by fake broker"}, nil
	}

	id := f.nextOrderID
	f.nextOrderID++

	switch req.Kind {
	case models.OrderBuy, models.OrderSell:
		f.positions = append(f.positions, models.Position{
			Symbol:       req.Symbol,
			Volume:       req.Volume,
			EntryPrice:   100,
			StopLoss:     req.StopLoss,
			TakeProfit:   req.TakeProfit,
			StrategyName: req.Comment,
			OpenTime:     time.Now().UTC(),
			MagicNumber:  req.MagicNumber,
		})
	case models.OrderClose:
		kept := f.positions[:0]
		for _, p := range f.positions {
			if p.Symbol == req.Symbol && (req.MagicNumber == 0 || p.MagicNumber == req.MagicNumber) {
				continue
			}
			kept = append(kept, p)
		}
		f.positions = kept
	default:
		return &models.OrderResult{Success: false, ErrorMessage: "unknown order kind"}, nil
	}

	return &models.OrderResult{Success: true, OrderID: id}, nil
}

func (f *FakeBroker) GetOpenPositions(ctx context.Context) ([]models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Position, len(f.positions))
	copy(out, f.positions)
	return out, nil
}

func (f *FakeBroker) GetClosedTrades(ctx context.Context) ([]models.TradeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ClosedTradesSupported {
		return nil, broker.ErrUnsupported
	}
	out := make([]models.TradeRecord, len(f.closedTrades))
	copy(out, f.closedTrades)
	return out, nil
}

// AddClosedTrade seeds the simulated deal history. Used by tests exercising
// the reconciliation path.
func (f *FakeBroker) AddClosedTrade(trade models.TradeRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closedTrades = append(f.closedTrades, trade)
}

func symbolSeed(symbol string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(symbol); i++ {
		h ^= uint32(symbol[i])
		h *= 16777619
	}
	return h
}
