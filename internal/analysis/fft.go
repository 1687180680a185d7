// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// peakMax scales the raw peak amplitude to roughly [0, 1].
const peakMax = 16384.0

// ErrNonFinite is returned when a chunk produces NaN or infinite levels.
var ErrNonFinite = errors.New("non-finite level")

// Levels holds one intensity per output channel.
type Levels []float64

// Peaks holds the left and right peak amplitude of a chunk.
type Peaks [2]float64

// binRange is a half-open range of FFT power bins.
type binRange struct {
	lo, hi int
}

// Pre-allocated buffers for FFT calculations, resized only when the working
// chunk length changes (the final chunk of a song is usually short).
type fftWorkspace struct {
	fft    *fourier.FFT
	input  []float64    // Windowed mono signal.
	coeffs []complex128 // FFT output, N/2+1 values.
	window []float64    // Hann coefficients for len(input).
}

// Analyzer computes per-channel frequency response for PCM chunks. It owns
// its scratch buffers; use one Analyzer per goroutine.
type Analyzer struct {
	chunkSize  int
	sampleRate int
	bins       []binRange
	workspace  fftWorkspace
}

// NewAnalyzer builds an Analyzer for the given chunk size, sample rate and
// channel bands. Band edges are converted to bin indices once.
func NewAnalyzer(chunkSize, sampleRate int, bands []Band) (*Analyzer, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if len(bands) == 0 {
		return nil, errors.New("at least one band is required")
	}

	bins := make([]binRange, len(bands))
	for i, b := range bands {
		lo := int(b.Low * float64(chunkSize) / float64(sampleRate))
		hi := int(b.High * float64(chunkSize) / float64(sampleRate))
		if lo == hi {
			hi++
		}
		bins[i] = binRange{lo: lo, hi: hi}
	}

	a := &Analyzer{
		chunkSize:  chunkSize,
		sampleRate: sampleRate,
		bins:       bins,
	}
	a.resize(chunkSize)
	return a, nil
}

// Channels returns the number of output channels the Analyzer produces.
func (a *Analyzer) Channels() int {
	return len(a.bins)
}

// Analyze computes the levels and peaks for one chunk of interleaved PCM.
// channels is the audio channel count (1 or 2); only the left channel of a
// stereo chunk is analyzed.
func (a *Analyzer) Analyze(samples []int16, channels int) (Levels, Peaks, error) {
	levels := make(Levels, len(a.bins))
	peaks, err := a.AnalyzeInto(levels, samples, channels)
	return levels, peaks, err
}

// AnalyzeInto is Analyze writing into dst, which must have Channels() entries.
// It does not allocate unless the chunk length changed since the last call.
func (a *Analyzer) AnalyzeInto(dst Levels, samples []int16, channels int) (Peaks, error) {
	if len(dst) != len(a.bins) {
		return Peaks{}, fmt.Errorf("destination has %d channels, analyzer has %d", len(dst), len(a.bins))
	}
	if channels != 1 && channels != 2 {
		return Peaks{}, fmt.Errorf("unsupported audio channel count %d", channels)
	}
	for i := range dst {
		dst[i] = 0
	}

	n := len(samples) / channels
	if n == 0 {
		return Peaks{}, nil
	}

	var peaks Peaks
	if channels == 2 {
		peaks[0] = peak(samples, 0, 2)
		peaks[1] = peak(samples, 1, 2)
	} else {
		peaks[0] = peak(samples, 0, 1)
		peaks[1] = peaks[0]
	}

	// A single sample has no spectrum beyond DC, which is dropped with Nyquist.
	if n < 2 {
		return peaks, nil
	}

	if n != len(a.workspace.input) {
		a.resize(n)
	}
	ws := &a.workspace
	for i := range n {
		ws.input[i] = float64(samples[i*channels]) * ws.window[i]
	}

	ws.fft.Coefficients(ws.coeffs, ws.input)
	// The Nyquist bin is dropped.
	power := ws.coeffs[:len(ws.coeffs)-1]

	allZero := true
	for ch, r := range a.bins {
		lo, hi := clampRange(r, len(power))
		var sum float64
		for _, c := range power[lo:hi] {
			sum += real(c)*real(c) + imag(c)*imag(c)
		}
		dst[ch] = sum
		if sum != 0 {
			allZero = false
		}
	}
	if allZero {
		return peaks, nil
	}

	for ch, sum := range dst {
		if sum > 0 {
			dst[ch] = math.Log10(sum)
		} else {
			dst[ch] = 0
		}
		if math.IsNaN(dst[ch]) || math.IsInf(dst[ch], 0) {
			return peaks, fmt.Errorf("channel %d: %w", ch, ErrNonFinite)
		}
	}
	return peaks, nil
}

// resize reallocates the workspace for a chunk of n mono samples.
func (a *Analyzer) resize(n int) {
	ws := &a.workspace
	ws.fft = fourier.NewFFT(n)
	ws.input = make([]float64, n)
	ws.coeffs = make([]complex128, n/2+1)
	ws.window = hann(n)
}

// hann returns a symmetric Hann window of length n. gonum's window divides by
// n-1, so lengths below two are handled here.
func hann(n int) []float64 {
	w := make([]float64, n)
	// Initialize with 1.0, the window functions scale in place.
	for i := range w {
		w[i] = 1.0
	}
	if n < 2 {
		return w
	}
	return window.Hann(w)
}

// peak returns |max-1|/4 + |min+1|/4 over every stride-th sample starting
// at offset, each term truncated to an integer, scaled by peakMax.
func peak(samples []int16, offset, stride int) float64 {
	hi, lo := math.MinInt32, math.MaxInt32
	for i := offset; i < len(samples); i += stride {
		v := int(samples[i])
		hi = max(hi, v)
		lo = min(lo, v)
	}
	if hi == math.MinInt32 {
		return 0
	}
	p := absInt(hi-1)/4 + absInt(lo+1)/4
	return float64(p) / peakMax
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clampRange(r binRange, n int) (int, int) {
	lo := min(max(r.lo, 0), n)
	hi := min(max(r.hi, lo), n)
	return lo, hi
}
