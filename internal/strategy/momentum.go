package strategy

import (
	"fmt"

	"github.com/jbaeza/cyclebot/internal/models"
)

// Momentum emits a BUY whenever the latest close exceeds the previous one.
// It exists to exercise the full dispatch path with minimal market logic and
// is the stock strategy for paper-mode smoke runs.
type Momentum struct {
	name           string
	timeframe      models.Timeframe
	size           float64
	allowedSymbols []string
}

// NewMomentum validates the parameters.
func NewMomentum(p Params) (*Momentum, error) {
	if p.Size <= 0 {
		return nil, fmt.Errorf("strategy %s: size must be positive", p.Name)
	}
	if !p.Timeframe.IsValid() {
		return nil, fmt.Errorf("strategy %s: invalid timeframe %q", p.Name, p.Timeframe)
	}
	return &Momentum{
		name:           p.Name,
		timeframe:      p.Timeframe,
		size:           p.Size,
		allowedSymbols: p.AllowedSymbols,
	}, nil
}

var _ Strategy = (*Momentum)(nil)

func (m *Momentum) Name() string                   { return m.name }
func (m *Momentum) Timeframes() []models.Timeframe { return []models.Timeframe{m.timeframe} }
func (m *Momentum) AllowedSymbols() []string       { return m.allowedSymbols }

func (m *Momentum) GenerateSignals(data map[models.Timeframe]*models.Series) []models.Signal {
	series, ok := data[m.timeframe]
	if !ok || series.Len() < 2 {
		return nil
	}

	closes := series.Closes()
	if closes[len(closes)-1] <= closes[len(closes)-2] {
		return nil
	}
	return []models.Signal{{
		Symbol:       series.Symbol,
		StrategyName: m.name,
		Timeframe:    m.timeframe,
		Kind:         models.SignalBuy,
		Size:         m.size,
	}}
}
