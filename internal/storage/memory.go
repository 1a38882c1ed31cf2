package storage

import (
	"sort"
	"sync"

	"github.com/jbaeza/cyclebot/internal/models"
)

// MemoryStorage is an Interface implementation with no backing file, used in
// tests and by the paper-trading bootstrap when no history path is
// configured.
type MemoryStorage struct {
	mu      sync.RWMutex
	history []models.TradeRecord
	index   map[string]struct{}
}

// NewMemoryStorage returns an empty in-memory history.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{index: make(map[string]struct{})}
}

var _ Interface = (*MemoryStorage)(nil)

func (s *MemoryStorage) AppendTrade(trade models.TradeRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := trade.DedupKey()
	if _, dup := s.index[key]; dup {
		return false, nil
	}
	s.history = append(s.history, trade)
	sort.SliceStable(s.history, func(i, j int) bool {
		return s.history[i].ExitTime.Before(s.history[j].ExitTime)
	})
	s.index[key] = struct{}{}
	return true, nil
}

func (s *MemoryStorage) HasTrade(trade models.TradeRecord) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[trade.DedupKey()]
	return ok
}

func (s *MemoryStorage) History() []models.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TradeRecord, len(s.history))
	copy(out, s.history)
	return out
}

func (s *MemoryStorage) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Statistics
	for _, t := range s.history {
		stats.TotalTrades++
		stats.TotalPnL += t.PnL
		if t.PnL > 0 {
			stats.WinningTrades++
		} else {
			stats.LosingTrades++
		}
	}
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades)
	}
	return stats
}

func (s *MemoryStorage) Save() error { return nil }
func (s *MemoryStorage) Load() error { return nil }
