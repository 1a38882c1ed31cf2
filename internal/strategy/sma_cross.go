package strategy

import (
	"fmt"

	"github.com/jbaeza/cyclebot/internal/models"
)

// SMACross goes long when the fast simple moving average crosses above the
// slow one and flattens when it crosses back below. One timeframe, one
// position at a time; the engine's duplicate check keeps repeated BUY
// signals from stacking.
type SMACross struct {
	name           string
	timeframe      models.Timeframe
	size           float64
	fastPeriod     int
	slowPeriod     int
	allowedSymbols []string
}

// NewSMACross validates the crossover parameters.
func NewSMACross(p Params) (*SMACross, error) {
	if p.FastPeriod <= 0 || p.SlowPeriod <= 0 {
		return nil, fmt.Errorf("strategy %s: periods must be positive", p.Name)
	}
	if p.FastPeriod >= p.SlowPeriod {
		return nil, fmt.Errorf("strategy %s: fast period %d must be shorter than slow period %d",
			p.Name, p.FastPeriod, p.SlowPeriod)
	}
	if p.Size <= 0 {
		return nil, fmt.Errorf("strategy %s: size must be positive", p.Name)
	}
	if !p.Timeframe.IsValid() {
		return nil, fmt.Errorf("strategy %s: invalid timeframe %q", p.Name, p.Timeframe)
	}
	return &SMACross{
		name:           p.Name,
		timeframe:      p.Timeframe,
		size:           p.Size,
		fastPeriod:     p.FastPeriod,
		slowPeriod:     p.SlowPeriod,
		allowedSymbols: p.AllowedSymbols,
	}, nil
}

var _ Strategy = (*SMACross)(nil)

func (s *SMACross) Name() string                   { return s.name }
func (s *SMACross) Timeframes() []models.Timeframe { return []models.Timeframe{s.timeframe} }
func (s *SMACross) AllowedSymbols() []string       { return s.allowedSymbols }

func (s *SMACross) GenerateSignals(data map[models.Timeframe]*models.Series) []models.Signal {
	series, ok := data[s.timeframe]
	if !ok || series.Len() < s.slowPeriod+1 {
		return nil
	}

	closes := series.Closes()
	fastNow := sma(closes, s.fastPeriod, 0)
	slowNow := sma(closes, s.slowPeriod, 0)
	fastPrev := sma(closes, s.fastPeriod, 1)
	slowPrev := sma(closes, s.slowPeriod, 1)

	signal := models.Signal{
		Symbol:       series.Symbol,
		StrategyName: s.name,
		Timeframe:    s.timeframe,
		Size:         s.size,
	}
	switch {
	case fastPrev <= slowPrev && fastNow > slowNow:
		signal.Kind = models.SignalBuy
	case fastPrev >= slowPrev && fastNow < slowNow:
		signal.Kind = models.SignalClose
	default:
		return nil
	}
	return []models.Signal{signal}
}

// sma averages the last period closes, skipping the most recent `back` bars.
func sma(closes []float64, period, back int) float64 {
	end := len(closes) - back
	var sum float64
	for _, c := range closes[end-period : end] {
		sum += c
	}
	return sum / float64(period)
}
