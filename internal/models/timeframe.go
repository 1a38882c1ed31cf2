package models

import (
	"fmt"
	"time"
)

// Timeframe identifies the interval width of an OHLCV bar.
type Timeframe string

// Core timeframes the engine operates on, ordered by minute count.
const (
	TimeframeM1  Timeframe = "M1"
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeM30 Timeframe = "M30"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD1  Timeframe = "D1"
)

// Broker extensions. Accepted on the wire but never produced by resampling.
const (
	TimeframeW1  Timeframe = "W1"
	TimeframeMN1 Timeframe = "MN1"
)

var timeframeMinutes = map[Timeframe]int{
	TimeframeM1:  1,
	TimeframeM5:  5,
	TimeframeM15: 15,
	TimeframeM30: 30,
	TimeframeH1:  60,
	TimeframeH4:  240,
	TimeframeD1:  1440,
}

// Timeframes returns the closed set of core timeframes in ascending order.
func Timeframes() []Timeframe {
	return []Timeframe{
		TimeframeM1, TimeframeM5, TimeframeM15, TimeframeM30,
		TimeframeH1, TimeframeH4, TimeframeD1,
	}
}

// ParseTimeframe validates a timeframe string against the core set.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.IsValid() {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

// IsValid reports whether the timeframe belongs to the core closed set.
func (tf Timeframe) IsValid() bool {
	_, ok := timeframeMinutes[tf]
	return ok
}

// Minutes returns the bar width in minutes. Zero for unknown timeframes.
func (tf Timeframe) Minutes() int {
	return timeframeMinutes[tf]
}

// Duration returns the bar width as a time.Duration.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf.Minutes()) * time.Minute
}

// Coarser reports whether tf aggregates more minutes than other.
func (tf Timeframe) Coarser(other Timeframe) bool {
	return tf.Minutes() > other.Minutes()
}

// Finer reports whether tf aggregates fewer minutes than other.
func (tf Timeframe) Finer(other Timeframe) bool {
	return tf.Minutes() < other.Minutes()
}

func (tf Timeframe) String() string { return string(tf) }
