// Package executor owns the local mirror of open broker positions and the
// dispatch path for market orders. The mirror answers duplicate-position
// checks between syncs; the broker's position list stays authoritative.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jbaeza/cyclebot/internal/broker"
	"github.com/jbaeza/cyclebot/internal/models"
)

// Executor dispatches orders and mirrors open positions locally. It is owned
// by the cycle engine and mutated only on the cycle goroutine, so no locking
// is needed.
type Executor struct {
	broker        broker.Broker
	log           *logrus.Logger
	openPositions map[string]models.Position
}

// New creates an executor with an empty mirror.
func New(b broker.Broker, log *logrus.Logger) *Executor {
	return &Executor{
		broker:        b,
		log:           log,
		openPositions: make(map[string]models.Position),
	}
}

// positionKey builds the mirror key. Positions carrying a magic number key
// on (symbol, magic) so distinct strategies can hold the same symbol;
// magicless positions fall back to the bare symbol.
func positionKey(symbol string, magic int64) string {
	if magic != 0 {
		return fmt.Sprintf("%s#%d", symbol, magic)
	}
	return symbol
}

// Sync replaces the mirror with the broker's authoritative position list. On
// a broker error the existing mirror is kept as-is: a stale mirror yields
// conservative duplicate checks, an emptied one would double-open during an
// outage.
func (e *Executor) Sync(ctx context.Context) error {
	positions, err := e.broker.GetOpenPositions(ctx)
	if err != nil {
		e.log.WithError(err).Warn("position sync failed, keeping local mirror")
		return err
	}

	e.openPositions = make(map[string]models.Position, len(positions))
	for _, p := range positions {
		e.openPositions[positionKey(p.Symbol, p.MagicNumber)] = p
	}
	return nil
}

// Execute dispatches req and updates the mirror on acceptance. Rejections
// leave the mirror untouched; transport errors propagate to the caller.
func (e *Executor) Execute(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	result, err := e.broker.SendMarketOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		e.log.WithFields(logrus.Fields{
			"symbol": req.Symbol, "kind": req.Kind, "reason": result.ErrorMessage,
		}).Warn("order rejected by broker")
		return result, nil
	}

	switch req.Kind {
	case models.OrderBuy, models.OrderSell:
		// Entry price is unknown until the next sync restores it from the
		// broker. The comment ("{strategy}-{timeframe}") doubles as the
		// strategy attribution so the magicless prefix fallback can match
		// the position before that sync happens.
		e.openPositions[positionKey(req.Symbol, req.MagicNumber)] = models.Position{
			Symbol:       req.Symbol,
			Volume:       req.Volume,
			StopLoss:     req.StopLoss,
			TakeProfit:   req.TakeProfit,
			StrategyName: req.Comment,
			OpenTime:     time.Now().UTC(),
			MagicNumber:  req.MagicNumber,
		}
	case models.OrderClose:
		if req.MagicNumber != 0 {
			delete(e.openPositions, positionKey(req.Symbol, req.MagicNumber))
		} else {
			for key, p := range e.openPositions {
				if p.Symbol == req.Symbol {
					delete(e.openPositions, key)
				}
			}
		}
	}

	e.log.WithFields(logrus.Fields{
		"symbol": req.Symbol, "kind": req.Kind, "order_id": result.OrderID,
	}).Info("order accepted")
	return result, nil
}

// HasOpenPosition reports whether the mirror holds a position for the
// symbol. With a magic number this is a direct key probe; without one it
// scans by symbol, optionally narrowed to positions whose strategy name
// starts with strategyName.
func (e *Executor) HasOpenPosition(symbol, strategyName string, magic int64) bool {
	if magic != 0 {
		_, ok := e.openPositions[positionKey(symbol, magic)]
		return ok
	}
	for _, p := range e.openPositions {
		if p.Symbol != symbol {
			continue
		}
		if strategyName == "" || strings.HasPrefix(p.StrategyName, strategyName) {
			return true
		}
	}
	return false
}

// OpenPositions returns a copy of the mirror's positions.
func (e *Executor) OpenPositions() []models.Position {
	out := make([]models.Position, 0, len(e.openPositions))
	for _, p := range e.openPositions {
		out = append(out, p)
	}
	return out
}
