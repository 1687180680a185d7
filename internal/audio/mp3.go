// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"
	"os"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
)

type mp3Stream struct {
	stream   beep.StreamSeekCloser
	format   beep.Format
	channels int
	samples  [][2]float64
}

// OpenMP3 decodes an MP3 file.
func OpenMP3(path string) (Stream, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stream, format, err := mp3.Decode(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	channels := format.NumChannels
	if channels < 1 || channels > 2 {
		channels = 2
	}
	return &mp3Stream{stream: stream, format: format, channels: channels}, nil
}

func (s *mp3Stream) SampleRate() int { return int(s.format.SampleRate) }
func (s *mp3Stream) Channels() int   { return s.channels }
func (s *mp3Stream) Len() int64      { return int64(s.stream.Len()) }

func (s *mp3Stream) ReadFrames(n int) ([]int16, error) {
	if cap(s.samples) < n {
		s.samples = make([][2]float64, n)
	}
	s.samples = s.samples[:n]

	// beep may return fewer samples than asked before the end.
	read := 0
	for read < n {
		got, ok := s.stream.Stream(s.samples[read:])
		read += got
		if !ok || got == 0 {
			break
		}
	}
	if read == 0 {
		if err := s.stream.Err(); err != nil {
			return nil, fmt.Errorf("decode MP3: %w", err)
		}
		return nil, io.EOF
	}

	out := make([]int16, 0, read*s.channels)
	for _, frame := range s.samples[:read] {
		out = append(out, floatToInt16(frame[0]))
		if s.channels == 2 {
			out = append(out, floatToInt16(frame[1]))
		}
	}
	return out, nil
}

func (s *mp3Stream) Close() error {
	return s.stream.Close()
}
