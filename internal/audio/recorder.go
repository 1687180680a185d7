// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const recordBitDepth = 16

// Recorder is an Output that writes a 16-bit WAV file.
type Recorder struct {
	mu         sync.Mutex
	outputFile *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *audio.IntBuffer // Reusable buffer for format conversion
}

// NewRecorder creates filename and starts a WAV stream in it.
func NewRecorder(filename string, sampleRate, channels int) (*Recorder, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	return &Recorder{
		outputFile: file,
		wavEncoder: wav.NewEncoder(file, sampleRate, recordBitDepth, channels, 1),
		sampleBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: recordBitDepth,
		},
	}, nil
}

func (r *Recorder) Write(samples []int16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wavEncoder == nil {
		return fmt.Errorf("recording is closed")
	}

	if cap(r.sampleBuf.Data) < len(samples) {
		r.sampleBuf.Data = make([]int, len(samples))
	}
	r.sampleBuf.Data = r.sampleBuf.Data[:len(samples)]
	for i, sample := range samples {
		r.sampleBuf.Data[i] = int(sample)
	}

	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		return fmt.Errorf("error writing to WAV file: %w", err)
	}
	return nil
}

// Close finalizes the WAV header and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.wavEncoder != nil {
		if err := r.wavEncoder.Close(); err != nil {
			return err
		}
		r.wavEncoder = nil
	}

	if r.outputFile != nil {
		if err := r.outputFile.Close(); err != nil {
			return err
		}
		r.outputFile = nil
	}

	return nil
}

var _ Output = (*Recorder)(nil)
