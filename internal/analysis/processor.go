// SPDX-License-Identifier: MIT
package analysis

import "math"

// Default baseline used before a song has cached statistics.
const (
	DefaultMean = 12.0
	DefaultStd  = 1.5
)

// BinaryThreshold is where a non-dimmable channel switches on.
const BinaryThreshold = 0.5

// Brightness maps a level to [0, 1] relative to the channel's baseline:
// (level - mean + 0.5*std) / (1.25*std), clamped. A non-positive std or a
// non-finite result yields 0.
func Brightness(level, mean, std float64) float64 {
	if std <= 0 {
		return 0
	}
	b := (level - mean + 0.5*std) / (1.25 * std)
	if math.IsNaN(b) {
		return 0
	}
	return min(max(b, 0), 1)
}

// Binarize converts a brightness to fully on or off.
func Binarize(b float64) float64 {
	if b >= BinaryThreshold {
		return 1
	}
	return 0
}

// BrightnessInto fills dst with the brightness of each level against the
// per-channel baseline. Channels without a baseline entry get 0.
func BrightnessInto(dst []float64, levels Levels, mean, std []float64) {
	for i := range dst {
		if i >= len(levels) || i >= len(mean) || i >= len(std) {
			dst[i] = 0
			continue
		}
		dst[i] = Brightness(levels[i], mean[i], std[i])
	}
}

// Finite reports whether every level is a finite number.
func (l Levels) Finite() bool {
	for _, v := range l {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Uniform returns a per-channel slice filled with v.
func Uniform(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}
