// Package storage persists the trade history the risk evaluator runs over,
// so drawdown gates survive process restarts.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/jbaeza/cyclebot/internal/models"
)

// JSONStorage keeps the trade history in memory and mirrors it to a JSON
// file with an atomic temp-file rename on every append.
type JSONStorage struct {
	mu       sync.RWMutex
	filepath string
	data     *storageData
	index    map[string]struct{}
}

type storageData struct {
	History     []models.TradeRecord `json:"history"`
	LastUpdated time.Time            `json:"last_updated"`
}

// NewJSONStorage opens (or creates) the history file at path.
func NewJSONStorage(path string) (*JSONStorage, error) {
	s := &JSONStorage{
		filepath: path,
		data:     &storageData{},
		index:    make(map[string]struct{}),
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}

	return s, nil
}

// Load replaces the in-memory state from the backing file.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filepath) // #nosec G304 -- operator-configured path
	if err != nil {
		return err
	}

	data := &storageData{}
	if err := json.Unmarshal(raw, data); err != nil {
		return err
	}

	s.data = data
	s.index = make(map[string]struct{}, len(data.History))
	for _, t := range data.History {
		s.index[t.DedupKey()] = struct{}{}
	}
	return nil
}

// Save writes the current state to the backing file. The write goes to a
// temp file first and is renamed into place so a crash mid-write cannot
// corrupt the history.
func (s *JSONStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.filepath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.filepath)
}

// AppendTrade records a closed trade unless its dedup tuple is already
// present. On a successful append the file is flushed.
func (s *JSONStorage) AppendTrade(trade models.TradeRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := trade.DedupKey()
	if _, dup := s.index[key]; dup {
		return false, nil
	}

	s.data.History = append(s.data.History, trade)
	sort.SliceStable(s.data.History, func(i, j int) bool {
		return s.data.History[i].ExitTime.Before(s.data.History[j].ExitTime)
	})
	s.index[key] = struct{}{}

	if err := s.saveLocked(); err != nil {
		return true, err
	}
	return true, nil
}

// HasTrade reports whether a record with the same dedup tuple exists.
func (s *JSONStorage) HasTrade(trade models.TradeRecord) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[trade.DedupKey()]
	return ok
}

// History returns a copy of the recorded trades, exit time ascending.
func (s *JSONStorage) History() []models.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TradeRecord, len(s.data.History))
	copy(out, s.data.History)
	return out
}

// Statistics derives aggregates from the recorded history.
func (s *JSONStorage) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Statistics
	for _, t := range s.data.History {
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
