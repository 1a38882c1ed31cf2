// Package risk gates trading on equity-curve drawdown at three scopes:
// the whole bot, a single symbol and a single strategy. All evaluations are
// pure functions over the configured limits and the supplied trade history;
// the manager never mutates state and never returns an error, only booleans
// the cycle engine uses to skip work.
package risk

import (
	"github.com/sirupsen/logrus"

	"github.com/jbaeza/cyclebot/internal/models"
)

// Manager evaluates the configured drawdown limits.
type Manager struct {
	limits models.RiskLimits
	log    *logrus.Logger
}

// NewManager builds a risk manager for the given limits.
func NewManager(limits models.RiskLimits, log *logrus.Logger) *Manager {
	return &Manager{limits: limits, log: log}
}

// Drawdown computes the maximum peak-to-trough decline of the equity curve
// implied by trades, as a percentage of the peak. Trades must be ordered by
// exit time ascending. The initial balance seeds the curve, so a history that
// starts with losses still measures against a positive peak and the division
// is always defined. An empty history yields 0.
func (m *Manager) Drawdown(trades []models.TradeRecord) float64 {
	equity := m.limits.InitialBalance
	peak := m.limits.InitialBalance
	maxDD := 0.0

	for _, trade := range trades {
		equity += trade.PnL
		if equity > peak {
			peak = equity
		}
		dd := (peak - equity) / peak * 100
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// BotAllowed reports whether the global drawdown limit permits trading.
func (m *Manager) BotAllowed(trades []models.TradeRecord) bool {
	if m.limits.DDGlobal == nil {
		return true
	}
	dd := m.Drawdown(trades)
	allowed := dd <= *m.limits.DDGlobal
	if !allowed {
		m.log.WithFields(logrus.Fields{
			"drawdown_pct": dd,
			"limit_pct":    *m.limits.DDGlobal,
		}).Warn("global drawdown limit exceeded")
	}
	return allowed
}

// SymbolAllowed reports whether the symbol-scoped drawdown limit permits
// trading the symbol. A symbol without a configured limit is always allowed.
func (m *Manager) SymbolAllowed(symbol string, trades []models.TradeRecord) bool {
	limit, ok := m.limits.DDPerSymbol[symbol]
	if !ok {
		return true
	}
	filtered := filter(trades, func(t models.TradeRecord) bool { return t.Symbol == symbol })
	dd := m.Drawdown(filtered)
	allowed := dd <= limit
	if !allowed {
		m.log.WithFields(logrus.Fields{
			"symbol":       symbol,
			"drawdown_pct": dd,
			"limit_pct":    limit,
		}).Warn("symbol drawdown limit exceeded")
	}
	return allowed
}

// StrategyAllowed reports whether the strategy-scoped drawdown limit permits
// the strategy to open new orders.
func (m *Manager) StrategyAllowed(strategy string, trades []models.TradeRecord) bool {
	limit, ok := m.limits.DDPerStrategy[strategy]
	if !ok {
		return true
	}
	filtered := filter(trades, func(t models.TradeRecord) bool { return t.StrategyName == strategy })
	dd := m.Drawdown(filtered)
	allowed := dd <= limit
	if !allowed {
		m.log.WithFields(logrus.Fields{
			"strategy":     strategy,
			"drawdown_pct": dd,
			"limit_pct":    limit,
		}).Warn("strategy drawdown limit exceeded")
	}
	return allowed
}

func filter(trades []models.TradeRecord, keep func(models.TradeRecord) bool) []models.TradeRecord {
	out := make([]models.TradeRecord, 0, len(trades))
	for _, t := range trades {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
