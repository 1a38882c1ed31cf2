package models

import "time"

// Bar is one OHLCV candle. Time is the bar's opening instant in UTC.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series is an ordered sequence of bars for one symbol on one timeframe,
// indexed by strictly increasing UTC timestamps.
type Series struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Bars      []Bar     `json:"bars"`
}

// Len returns the number of bars in the series.
func (s *Series) Len() int { return len(s.Bars) }

// At returns the i-th bar counting from the oldest.
func (s *Series) At(i int) Bar { return s.Bars[i] }

// Last returns the most recent bar. The second return is false on an empty
// series.
func (s *Series) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Closes returns the close prices oldest-first.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Aligned reports whether every timestamp is a multiple of the series
// timeframe from the epoch and consecutive timestamps are strictly
// increasing. Gaps are permitted: a live market feed drops intervals with no
// ticks.
func (s *Series) Aligned() bool {
	step := s.Timeframe.Duration()
	if step <= 0 {
		return false
	}
	var prev time.Time
	for i, b := range s.Bars {
		if !b.Time.Equal(b.Time.Truncate(step)) {
			return false
		}
		if i > 0 && !b.Time.After(prev) {
			return false
		}
		prev = b.Time
	}
	return true
}
