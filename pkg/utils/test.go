package utils

import (
	"io"
	"math"
	"sync"
)

// GenerateSineWave returns frames of interleaved 16-bit PCM with the same
// sine on every channel. amplitude is relative to full scale.
func GenerateSineWave(frames int, sampleRate, frequency, amplitude float64, channels int) []int16 {
	buffer := make([]int16, frames*channels)
	for i := range frames {
		t := float64(i) / sampleRate
		v := int16(math.Sin(2*math.Pi*frequency*t) * math.MaxInt16 * amplitude)
		for c := range channels {
			buffer[i*channels+c] = v
		}
	}
	return buffer
}

// GenerateComplexWave returns mono PCM with a 440Hz fundamental and harmonics.
func GenerateComplexWave(frames int, sampleRate float64) []int16 {
	buffer := make([]int16, frames)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = int16(signal * math.MaxInt16 * 0.9)
	}
	return buffer
}

// FindPeakBin returns the index of the largest value in [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}

// MockStream serves PCM from memory. It satisfies the audio stream
// interface used by the show engine.
type MockStream struct {
	Rate     int
	Chans    int
	Samples  []int16
	FailAt   int   // Frame offset at which ReadFrames fails; 0 disables.
	Err      error // Error returned at FailAt.
	pos      int
	Closed   bool
	closeCnt int
}

// SampleRate returns the stream's sample rate.
func (m *MockStream) SampleRate() int { return m.Rate }

// Channels returns the interleaved channel count.
func (m *MockStream) Channels() int { return m.Chans }

// Len returns the total number of frames.
func (m *MockStream) Len() int64 { return int64(len(m.Samples) / m.Chans) }

// ReadFrames returns up to n frames, io.EOF once exhausted.
func (m *MockStream) ReadFrames(n int) ([]int16, error) {
	frame := m.pos / m.Chans
	if m.FailAt > 0 && frame >= m.FailAt {
		return nil, m.Err
	}
	if m.pos >= len(m.Samples) {
		return nil, io.EOF
	}
	end := min(m.pos+n*m.Chans, len(m.Samples))
	if m.FailAt > 0 {
		end = min(end, m.FailAt*m.Chans)
	}
	out := make([]int16, end-m.pos)
	copy(out, m.Samples[m.pos:end])
	m.pos = end
	return out, nil
}

// Close marks the stream closed.
func (m *MockStream) Close() error {
	m.Closed = true
	m.closeCnt++
	return nil
}

// CloseCount reports how often Close was called.
func (m *MockStream) CloseCount() int { return m.closeCnt }

// RecordingSink records every actuation for later inspection.
type RecordingSink struct {
	mu       sync.Mutex
	Values   []float64
	Sets     int // SetChannel calls
	AllCalls []float64
	OnOff    map[int]bool // Channels reported as non-dimmable.
}

// IsPWM reports false for channels listed in OnOff.
func (s *RecordingSink) IsPWM(i int) bool {
	return !s.OnOff[i]
}

// NewRecordingSink returns a sink with n channels, all at 0.
func NewRecordingSink(n int) *RecordingSink {
	return &RecordingSink{Values: make([]float64, n)}
}

func (s *RecordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Values)
}

func (s *RecordingSink) SetChannel(i int, b float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= 0 && i < len(s.Values) {
		s.Values[i] = b
	}
	s.Sets++
	return nil
}

func (s *RecordingSink) SetAll(b float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Values {
		s.Values[i] = b
	}
	s.AllCalls = append(s.AllCalls, b)
	return nil
}

// Snapshot returns a copy of the current channel values.
func (s *RecordingSink) Snapshot() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.Values))
	copy(out, s.Values)
	return out
}
