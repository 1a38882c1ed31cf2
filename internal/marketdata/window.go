package marketdata

import (
	"time"

	"github.com/jbaeza/cyclebot/internal/models"
)

// BarCaps maps each timeframe to the maximum number of bars fetched for it in
// one cycle. Caps bound both broker load and memory per symbol.
type BarCaps map[models.Timeframe]int

// DefaultBarCaps returns the stock per-timeframe fetch limits.
func DefaultBarCaps() BarCaps {
	return BarCaps{
		models.TimeframeM1:  1440,
		models.TimeframeM5:  1440,
		models.TimeframeM15: 1000,
		models.TimeframeM30: 720,
		models.TimeframeH1:  500,
		models.TimeframeH4:  500,
		models.TimeframeD1:  500,
	}
}

// Cap returns the configured limit for tf, falling back to the stock value
// when the map has no entry.
func (c BarCaps) Cap(tf models.Timeframe) int {
	if n, ok := c[tf]; ok && n > 0 {
		return n
	}
	return DefaultBarCaps()[tf]
}

// WindowFor computes the lookback duration the base fetch needs so that the
// coarsest requested timeframe still receives its full bar cap after
// resampling.
func (c BarCaps) WindowFor(timeframes []models.Timeframe) time.Duration {
	var coarsest models.Timeframe
	for _, tf := range timeframes {
		if coarsest == "" || tf.Coarser(coarsest) {
			coarsest = tf
		}
	}
	if coarsest == "" {
		return 0
	}
	return time.Duration(coarsest.Minutes()*c.Cap(coarsest)) * time.Minute
}
