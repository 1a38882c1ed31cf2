// Package util provides common utility functions for volume calculations.
package util

import "math"

// RoundToStep rounds volume to the nearest multiple of the lot step.
// For example, with step=0.01, 0.0349 becomes 0.03.
func RoundToStep(volume, step float64) float64 {
	if step <= 0 {
		return volume
	}
	return math.Round(volume/step) * step
}

// ClampVolume bounds volume to [min, max], then rounds to the lot step.
func ClampVolume(volume, min, max, step float64) float64 {
	if min > 0 && volume < min {
		volume = min
	}
	if max > 0 && volume > max {
		volume = max
	}
	return RoundToStep(volume, step)
}
