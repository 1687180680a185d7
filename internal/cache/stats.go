package cache

import "gonum.org/v1/gonum/stat"

// ComputeStats returns the per-channel mean and population standard
// deviation over the positive levels only; silent chunks are ignored.
// A channel with no positive level gets mean 0 and std 0.
func ComputeStats(levels [][]float64, channels int) (mean, std []float64) {
	mean = make([]float64, channels)
	std = make([]float64, channels)
	positives := make([]float64, 0, len(levels))

	for ch := range channels {
		positives = positives[:0]
		for _, row := range levels {
			if ch < len(row) && row[ch] > 0 {
				positives = append(positives, row[ch])
			}
		}
		if len(positives) == 0 {
			continue
		}
		mean[ch], std[ch] = stat.PopMeanStdDev(positives, nil)
	}
	return mean, std
}
