// Package engine orchestrates one trading cycle: reconcile broker state,
// apply the drawdown gates, fetch market data per symbol, collect strategy
// signals and dispatch deduplicated orders. The loop drivers in this package
// call RunOnce repeatedly.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jbaeza/cyclebot/internal/broker"
	"github.com/jbaeza/cyclebot/internal/executor"
	"github.com/jbaeza/cyclebot/internal/marketdata"
	"github.com/jbaeza/cyclebot/internal/models"
	"github.com/jbaeza/cyclebot/internal/registry"
	"github.com/jbaeza/cyclebot/internal/risk"
	"github.com/jbaeza/cyclebot/internal/storage"
	"github.com/jbaeza/cyclebot/internal/strategy"
)

// Engine wires the cycle's collaborators. All fields are owned by the cycle
// goroutine; nothing here is safe for concurrent use.
type Engine struct {
	broker     broker.Broker
	executor   *executor.Executor
	marketData *marketdata.Service
	registry   *registry.Registry
	risk       *risk.Manager
	storage    storage.Interface
	symbols    []models.SymbolConfig
	strategies []strategy.Strategy
	log        *logrus.Logger
}

// Config collects the engine's collaborators.
type Config struct {
	Broker     broker.Broker
	Executor   *executor.Executor
	MarketData *marketdata.Service
	Registry   *registry.Registry
	Risk       *risk.Manager
	Storage    storage.Interface
	Symbols    []models.SymbolConfig
	Strategies []strategy.Strategy
	Log        *logrus.Logger
}

// New builds an engine and registers every strategy up front so magic
// numbers are stable from the first cycle.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("engine: no symbols configured")
	}
	if len(cfg.Strategies) == 0 {
		return nil, errors.New("engine: no strategies configured")
	}

	for _, s := range cfg.Strategies {
		cfg.Registry.Register(s.Name())
	}

	return &Engine{
		broker:     cfg.Broker,
		executor:   cfg.Executor,
		marketData: cfg.MarketData,
		registry:   cfg.Registry,
		risk:       cfg.Risk,
		storage:    cfg.Storage,
		symbols:    cfg.Symbols,
		strategies: cfg.Strategies,
		log:        cfg.Log,
	}, nil
}

// RunOnce executes a single trading cycle at the given instant. Phase order
// is part of the contract: reconcile, global gate, then per-symbol work.
// Per-symbol failures are logged and skipped; only reconcile-level transport
// failures abort the cycle.
func (e *Engine) RunOnce(ctx context.Context, now time.Time) error {
	e.reconcile(ctx)

	history := e.storage.History()
	if !e.risk.BotAllowed(history) {
		e.log.Warn("global drawdown gate tripped, skipping cycle")
		return nil
	}

	for _, symbol := range e.symbols {
		e.runSymbol(ctx, symbol, history, now)
	}
	return nil
}

// reconcile refreshes the position mirror and folds newly closed trades into
// local history. Both halves tolerate failure: trading continues on the
// mirror and history we already have.
func (e *Engine) reconcile(ctx context.Context) {
	if err := e.executor.Sync(ctx); err != nil {
		e.log.WithError(err).Warn("position sync failed")
	}

	closed, err := e.broker.GetClosedTrades(ctx)
	if err != nil {
		if !errors.Is(err, broker.ErrUnsupported) {
			e.log.WithError(err).Warn("closed-trade fetch failed")
		}
		return
	}
	for _, trade := range closed {
		added, err := e.storage.AppendTrade(trade)
		if err != nil {
			e.log.WithError(err).Error("failed to persist closed trade")
			continue
		}
		if added {
			e.log.WithFields(logrus.Fields{
				"symbol": trade.Symbol, "strategy": trade.StrategyName, "pnl": trade.PnL,
			}).Info("reconciled closed trade")
		}
	}
}

func (e *Engine) runSymbol(ctx context.Context, symbol models.SymbolConfig, history []models.TradeRecord, now time.Time) {
	if !e.risk.SymbolAllowed(symbol.Name, history) {
		return
	}

	required := e.requiredTimeframes(symbol)
	if len(required) == 0 {
		e.log.WithField("symbol", symbol.Name).Debug("no usable timeframes, skipping symbol")
		return
	}

	data, err := e.marketData.GetResampled(ctx, symbol, required, now)
	if err != nil {
		e.log.WithError(err).WithField("symbol", symbol.Name).Warn("market data fetch failed, skipping symbol")
		return
	}

	for _, strat := range e.strategies {
		if !e.eligible(strat, symbol.Name) {
			continue
		}
		if !e.risk.StrategyAllowed(strat.Name(), history) {
			continue
		}
		e.runStrategy(ctx, strat, symbol, data)
	}
}

// requiredTimeframes unions the timeframes of every strategy eligible for
// the symbol, dropping those finer than the symbol's base resolution.
func (e *Engine) requiredTimeframes(symbol models.SymbolConfig) []models.Timeframe {
	seen := make(map[models.Timeframe]bool)
	var out []models.Timeframe
	for _, strat := range e.strategies {
		if !e.eligible(strat, symbol.Name) {
			continue
		}
		for _, tf := range strat.Timeframes() {
			if tf.Finer(symbol.MinTimeframe) {
				e.log.WithFields(logrus.Fields{
					"symbol": symbol.Name, "strategy": strat.Name(), "timeframe": tf,
				}).Warn("timeframe finer than symbol base resolution, dropped")
				continue
			}
			if !seen[tf] {
				seen[tf] = true
				out = append(out, tf)
			}
		}
	}
	return out
}

func (e *Engine) eligible(strat strategy.Strategy, symbol string) bool {
	allowed := strat.AllowedSymbols()
	if len(allowed) == 0 {
		return true
	}
	for _, s := range allowed {
		if s == symbol {
			return true
		}
	}
	return false
}

func (e *Engine) runStrategy(ctx context.Context, strat strategy.Strategy, symbol models.SymbolConfig, data map[models.Timeframe]*models.Series) {
	signals := strat.GenerateSignals(data)
	if len(signals) == 0 {
		return
	}

	magic, ok := e.registry.MagicOf(strat.Name())
	if !ok {
		magic = e.registry.Register(strat.Name())
	}

	for _, sig := range signals {
		e.dispatch(ctx, strat, symbol, sig, magic)
	}
}

func (e *Engine) dispatch(ctx context.Context, strat strategy.Strategy, symbol models.SymbolConfig, sig models.Signal, magic int64) {
	logger := e.log.WithFields(logrus.Fields{
		"symbol": sig.Symbol, "strategy": strat.Name(), "kind": sig.Kind,
	})

	switch sig.Kind {
	case models.SignalBuy, models.SignalSell:
		if e.executor.HasOpenPosition(sig.Symbol, strat.Name(), magic) {
			logger.Debug("position already open, signal skipped")
			return
		}
		volume := sig.Size
		if volume <= 0 {
			volume = symbol.LotSize
		}
		req := models.OrderRequest{
			Symbol:      sig.Symbol,
			Volume:      volume,
			Kind:        models.OrderKind(sig.Kind),
			StopLoss:    sig.StopLoss,
			TakeProfit:  sig.TakeProfit,
			Comment:     fmt.Sprintf("%s-%s", strat.Name(), sig.Timeframe),
			MagicNumber: magic,
			ClientTag:   uuid.NewString(),
		}
		if _, err := e.executor.Execute(ctx, req); err != nil {
			logger.WithError(err).Error("order dispatch failed")
		}
	case models.SignalClose:
		if !e.executor.HasOpenPosition(sig.Symbol, strat.Name(), magic) {
			logger.Debug("no open position to close, signal skipped")
			return
		}
		req := models.OrderRequest{
			Symbol:      sig.Symbol,
			Kind:        models.OrderClose,
			Comment:     fmt.Sprintf("%s-%s", strat.Name(), sig.Timeframe),
			MagicNumber: magic,
			ClientTag:   uuid.NewString(),
		}
		if _, err := e.executor.Execute(ctx, req); err != nil {
			logger.WithError(err).Error("close dispatch failed")
		}
	default:
		// HOLD and unknown kinds are ignored.
	}
}
