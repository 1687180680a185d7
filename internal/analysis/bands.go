package analysis

import (
	"fmt"
	"math"
	"slices"
)

// Band is the frequency range, in Hz, assigned to one output channel.
type Band struct {
	Low  float64
	High float64
}

// ComputeBands returns one Band per output channel.
//
// By default the range [min, max] is split into log-spaced bands with
// boundary[i] = boundary[i-1] * 10^(3 / (10 / octavesPerChannel)).
// frequencies, when it has at least channelLength+1 entries, is used as the
// boundaries instead. mapping (1-based, one entry per channel) makes output
// channel i use the band of channel mapping[i], and the number of generated
// bands becomes max(mapping).
func ComputeBands(minFreq, maxFreq float64, channels int, mapping []int, frequencies []float64) ([]Band, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}
	if minFreq <= 0 {
		return nil, fmt.Errorf("min frequency must be positive, got %.2f", minFreq)
	}
	if maxFreq <= minFreq {
		return nil, fmt.Errorf("max frequency %.2f must exceed min frequency %.2f", maxFreq, minFreq)
	}

	remap := len(mapping) == channels
	channelLength := channels
	if remap {
		channelLength = slices.Max(mapping)
		if channelLength < 1 {
			return nil, fmt.Errorf("channel mapping %v has no positive entry", mapping)
		}
	}

	var boundaries []float64
	if len(frequencies) >= channelLength+1 {
		boundaries = frequencies[:channelLength+1]
	} else {
		octaves := math.Log2(maxFreq / minFreq)
		octavesPerChannel := octaves / float64(channelLength)
		step := math.Pow(10, 3/(10/octavesPerChannel))

		boundaries = make([]float64, channelLength+1)
		boundaries[0] = minFreq
		for i := 1; i <= channelLength; i++ {
			boundaries[i] = boundaries[i-1] * step
		}
	}

	generated := make([]Band, channelLength)
	for i := range generated {
		generated[i] = Band{Low: boundaries[i], High: boundaries[i+1]}
	}

	bands := make([]Band, channels)
	for i := range bands {
		src := i
		if remap {
			src = mapping[i] - 1
			if src < 0 || src >= channelLength {
				return nil, fmt.Errorf("channel mapping entry %d for channel %d out of range", mapping[i], i+1)
			}
		}
		bands[i] = generated[src]
		if bands[i].Low >= bands[i].High {
			return nil, fmt.Errorf("channel %d band %.2f-%.2f Hz is empty", i+1, bands[i].Low, bands[i].High)
		}
	}
	return bands, nil
}
