// SPDX-License-Identifier: MIT
package audio

import "math"

// Gate is a noise gate on chunk peak amplitude. Live input uses it to skip
// analysis of chunks that are only line noise.
type Gate struct {
	enabled   bool
	threshold int32 // Absolute amplitude threshold (0-32767)
}

// NewGate returns a gate at threshold (0.0-1.0 of full scale). Zero
// disables it.
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	g.enabled = threshold > 0
	return g
}

func (g *Gate) Enable() {
	g.enabled = true
}

func (g *Gate) Disable() {
	g.enabled = false
}

// Enabled reports whether the gate filters chunks.
func (g *Gate) Enabled() bool {
	return g.enabled
}

// SetThreshold adjusts the noise gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	threshold = min(max(threshold, 0.0), 1.0)
	g.threshold = int32(threshold * float64(math.MaxInt16))
}

// Threshold returns the current noise gate threshold as a float64.
func (g *Gate) Threshold() float64 {
	return float64(g.threshold) / float64(math.MaxInt16)
}

// Open reports whether the chunk's peak amplitude exceeds the threshold.
// A disabled gate is always open. Runs without allocating.
func (g *Gate) Open(samples []int16) bool {
	if !g.enabled {
		return true
	}
	var maxAmplitude int32
	for _, s := range samples {
		sample := int32(s)
		mask := sample >> 31
		amplitude := (sample ^ mask) - mask
		diff := amplitude - maxAmplitude
		maxAmplitude += diff &^ (diff >> 31)
	}
	return maxAmplitude > g.threshold
}
