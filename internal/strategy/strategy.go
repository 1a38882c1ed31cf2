// Package strategy defines the signal-generation contract the cycle engine
// consumes and the built-in strategies the bot ships with.
package strategy

import (
	"fmt"

	"github.com/jbaeza/cyclebot/internal/models"
)

// Strategy turns a cycle's timeframe→series map into trade intents.
// Implementations should behave as pure functions of their input; any state
// kept across calls is their own responsibility.
type Strategy interface {
	// Name is the stable identifier used for magic-number registration and
	// risk scoping. Renaming a deployed strategy orphans its open positions.
	Name() string

	// Timeframes lists the series the strategy needs each cycle.
	Timeframes() []models.Timeframe

	// AllowedSymbols restricts the strategy to specific instruments. Empty
	// means every configured symbol.
	AllowedSymbols() []string

	// GenerateSignals inspects the provided series and returns zero or more
	// signals. Missing or short series must yield no signals, not errors.
	GenerateSignals(data map[models.Timeframe]*models.Series) []models.Signal
}

// Params carries the config-file fields common to all built-in strategies.
type Params struct {
	Name           string
	Kind           string
	Timeframe      models.Timeframe
	Size           float64
	FastPeriod     int
	SlowPeriod     int
	AllowedSymbols []string
}

// Build instantiates a built-in strategy by kind.
func Build(p Params) (Strategy, error) {
	switch p.Kind {
	case "sma_cross":
		return NewSMACross(p)
	case "momentum":
		return NewMomentum(p)
	default:
		return nil, fmt.Errorf("unknown strategy kind %q", p.Kind)
	}
}
