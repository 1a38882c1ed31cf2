// Package models holds the domain records shared across the engine: symbol
// configuration, signals, orders, positions, closed trades and risk limits.
//
// Optional price levels (stop loss, take profit) use 0 as "unset" and the
// magic number uses 0 as "no strategy attribution", matching the broker wire
// convention. The strategy registry never assigns magic number 0.
package models

import "time"

// SymbolConfig describes one tradable instrument. Immutable after
// construction.
type SymbolConfig struct {
	// Name is the broker-side instrument name, e.g. "EURUSD".
	Name string `yaml:"name" json:"name"`
	// MinTimeframe is the finest resolution the broker can deliver for
	// this instrument; any coarser timeframe is produced by resampling.
	MinTimeframe Timeframe `yaml:"min_timeframe" json:"min_timeframe"`
	// LotSize is the default order volume for the instrument.
	LotSize float64 `yaml:"lot_size" json:"lot_size"`
}

// SignalKind enumerates the intents a strategy can emit.
type SignalKind string

const (
	SignalBuy   SignalKind = "BUY"
	SignalSell  SignalKind = "SELL"
	SignalClose SignalKind = "CLOSE"
	SignalHold  SignalKind = "HOLD"
)

// Signal is a strategy's intent for one symbol on one timeframe. Signals are
// ephemeral: they live for the duration of a single cycle and are never
// persisted.
type Signal struct {
	Symbol       string
	StrategyName string
	Timeframe    Timeframe
	Kind         SignalKind
	Size         float64
	StopLoss     float64 // 0 = unset
	TakeProfit   float64 // 0 = unset
}

// OrderKind enumerates order kinds at the broker boundary.
type OrderKind string

const (
	OrderBuy   OrderKind = "BUY"
	OrderSell  OrderKind = "SELL"
	OrderClose OrderKind = "CLOSE"
)

// OrderRequest is a market order to be dispatched to the broker.
type OrderRequest struct {
	Symbol      string    `json:"symbol"`
	Volume      float64   `json:"volume"`
	Kind        OrderKind `json:"kind"`
	StopLoss    float64   `json:"stop_loss,omitempty"`
	TakeProfit  float64   `json:"take_profit,omitempty"`
	Comment     string    `json:"comment,omitempty"`
	MagicNumber int64     `json:"magic_number,omitempty"`
	// ClientTag is a client-generated identifier for traceability across
	// retries and broker logs.
	ClientTag string `json:"client_tag,omitempty"`
}

// OrderResult is the broker's answer to a dispatched order. A rejection is
// reported here, not raised: Success=false plus ErrorMessage.
type OrderResult struct {
	Success      bool   `json:"success"`
	OrderID      int64  `json:"order_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Position mirrors a currently-open broker position.
type Position struct {
	Symbol       string    `json:"symbol"`
	Volume       float64   `json:"volume"`
	EntryPrice   float64   `json:"entry_price"`
	StopLoss     float64   `json:"stop_loss,omitempty"`
	TakeProfit   float64   `json:"take_profit,omitempty"`
	StrategyName string    `json:"strategy_name"`
	OpenTime     time.Time `json:"open_time"`
	MagicNumber  int64     `json:"magic_number,omitempty"`
}

// TradeRecord is a completed round trip (open and close) with realised PnL.
// Trade records feed the risk evaluator and the exported statistics.
type TradeRecord struct {
	Symbol       string    `json:"symbol"`
	StrategyName string    `json:"strategy_name"`
	EntryTime    time.Time `json:"entry_time"`
	ExitTime     time.Time `json:"exit_time"`
	EntryPrice   float64   `json:"entry_price"`
	ExitPrice    float64   `json:"exit_price"`
	Size         float64   `json:"size"`
	PnL          float64   `json:"pnl"`
	StopLoss     float64   `json:"stop_loss,omitempty"`
	TakeProfit   float64   `json:"take_profit,omitempty"`
}

// DedupKey identifies a trade record for history deduplication. Brokers that
// return identical tuples for genuinely distinct trades will be incorrectly
// deduplicated; this is a known limitation of the 4-tuple contract.
func (t TradeRecord) DedupKey() string {
	return t.EntryTime.UTC().Format(time.RFC3339Nano) + "|" +
		t.ExitTime.UTC().Format(time.RFC3339Nano) + "|" +
		t.Symbol + "|" + t.StrategyName
}

// RiskLimits configures the drawdown gates. All drawdown fields are
// percentages in [0,100]. A nil DDGlobal means no global limit; a symbol or
// strategy absent from its map has no scoped limit.
type RiskLimits struct {
	DDGlobal       *float64           `yaml:"dd_global" json:"dd_global,omitempty"`
	DDPerSymbol    map[string]float64 `yaml:"dd_per_symbol" json:"dd_per_symbol,omitempty"`
	DDPerStrategy  map[string]float64 `yaml:"dd_per_strategy" json:"dd_per_strategy,omitempty"`
	InitialBalance float64            `yaml:"initial_balance" json:"initial_balance"`
}
