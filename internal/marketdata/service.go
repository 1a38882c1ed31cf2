// Package marketdata fetches base-resolution OHLCV series from the broker
// and derives every coarser timeframe a cycle needs by resampling, so each
// symbol costs exactly one historical query per cycle.
package marketdata

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jbaeza/cyclebot/internal/broker"
	"github.com/jbaeza/cyclebot/internal/models"
)

// Service owns the fetch-and-resample path.
type Service struct {
	broker broker.Broker
	caps   BarCaps
	log    *logrus.Logger
}

// NewService creates a market data service. Nil caps fall back to the stock
// per-timeframe limits.
func NewService(b broker.Broker, caps BarCaps, log *logrus.Logger) *Service {
	if caps == nil {
		caps = DefaultBarCaps()
	}
	return &Service{broker: b, caps: caps, log: log}
}

// GetResampled fetches the symbol's base series once and returns a map with
// one entry per requested timeframe. Targets finer than the base are dropped
// with a warning; the base timeframe, when requested, is returned unmodified.
func (s *Service) GetResampled(
	ctx context.Context,
	symbol models.SymbolConfig,
	timeframes []models.Timeframe,
	now time.Time,
) (map[models.Timeframe]*models.Series, error) {
	base := symbol.MinTimeframe
	if !base.IsValid() {
		return nil, fmt.Errorf("symbol %s: invalid base timeframe %q", symbol.Name, base)
	}

	wanted := make([]models.Timeframe, 0, len(timeframes))
	for _, tf := range timeframes {
		if !tf.IsValid() {
			return nil, fmt.Errorf("symbol %s: invalid timeframe %q", symbol.Name, tf)
		}
		if tf.Finer(base) {
			s.log.WithFields(logrus.Fields{
				"symbol":    symbol.Name,
				"timeframe": tf,
				"base":      base,
			}).Warn("timeframe finer than base resolution, skipping")
			continue
		}
		wanted = append(wanted, tf)
	}
	if len(wanted) == 0 {
		return map[models.Timeframe]*models.Series{}, nil
	}
	sort.Slice(wanted, func(i, j int) bool { return wanted[i].Finer(wanted[j]) })

	window := s.caps.WindowFor(wanted)
	start := now.Add(-window)
	series, err := s.broker.GetOHLCV(ctx, symbol.Name, base, start, now)
	if err != nil {
		return nil, err
	}
	if !series.Aligned() {
		return nil, &broker.DataError{
			Symbol: symbol.Name,
			Err:    fmt.Errorf("base series not aligned to %s grid", base),
		}
	}

	out := make(map[models.Timeframe]*models.Series, len(wanted))
	for _, tf := range wanted {
		if tf == base {
			out[tf] = series
			continue
		}
		out[tf] = Resample(series, tf)
	}
	return out, nil
}

// Resample aggregates a series into coarser bars. Each target bucket covers
// the half-open interval [t, t+T) keyed by the source timestamp truncated to
// T: open is the first source open, high the max, low the min, close the last
// source close, volume the sum. Buckets with no source bars are dropped.
func Resample(src *models.Series, target models.Timeframe) *models.Series {
	step := target.Duration()
	out := &models.Series{Symbol: src.Symbol, Timeframe: target}

	var cur *models.Bar
	for _, b := range src.Bars {
		bucket := b.Time.Truncate(step)
		if cur == nil || !cur.Time.Equal(bucket) {
			if cur != nil {
				out.Bars = append(out.Bars, *cur)
			}
			cur = &models.Bar{
				Time:   bucket,
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: b.Volume,
			}
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	if cur != nil {
		out.Bars = append(out.Bars, *cur)
	}
	return out
}
