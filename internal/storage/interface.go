package storage

import "github.com/jbaeza/cyclebot/internal/models"

// Interface is the contract for trade-history persistence.
//
// Implementations must be safe for concurrent use: the cycle engine appends
// on the cycle goroutine while the status API reads from request goroutines.
type Interface interface {
	// AppendTrade records a closed trade. A record whose
	// (entry_time, exit_time, symbol, strategy_name) tuple is already
	// present is dropped; the return reports whether the record was added.
	AppendTrade(trade models.TradeRecord) (bool, error)

	// History returns all recorded trades ordered by exit time ascending.
	History() []models.TradeRecord

	// HasTrade reports whether a record with the same dedup tuple exists.
	HasTrade(trade models.TradeRecord) bool

	// Statistics returns aggregates derived from the recorded history.
	Statistics() Statistics

	// Save flushes to the backing store; Load replaces in-memory state
	// from it.
	Save() error
	Load() error
}

// Statistics aggregates the realised performance of the recorded history.
type Statistics struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
}

// NewStorage creates the default storage implementation (JSON file backed).
func NewStorage(path string) (Interface, error) {
	return NewJSONStorage(path)
}

// Ensure JSONStorage implements Interface.
var _ Interface = (*JSONStorage)(nil)
