// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

type wavStream struct {
	file     *os.File
	decoder  *wav.Decoder
	rate     int
	channels int
	depth    int
	frames   int64
	buf      *audio.IntBuffer
}

// OpenWAV opens an integer PCM WAV file.
func OpenWAV(path string) (Stream, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	d := wav.NewDecoder(file)
	if !d.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("%s: invalid WAV file", path)
	}
	if d.WavAudioFormat != wavFormatPCM {
		file.Close()
		return nil, fmt.Errorf("%w: %s is WAV format %d, want integer PCM", ErrUnsupported, path, d.WavAudioFormat)
	}
	if err := d.FwdToPCM(); err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	s := &wavStream{
		file:     file,
		decoder:  d,
		rate:     int(d.SampleRate),
		channels: int(d.NumChans),
		depth:    int(d.BitDepth),
		frames:   -1,
	}
	if bytesPerFrame := int64(s.depth/8) * int64(s.channels); bytesPerFrame > 0 {
		s.frames = d.PCMLen() / bytesPerFrame
	}
	s.buf = &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: s.channels, SampleRate: s.rate},
		SourceBitDepth: s.depth,
	}
	return s, nil
}

func (s *wavStream) SampleRate() int { return s.rate }
func (s *wavStream) Channels() int   { return s.channels }
func (s *wavStream) Len() int64      { return s.frames }

func (s *wavStream) ReadFrames(n int) ([]int16, error) {
	want := n * s.channels
	if cap(s.buf.Data) < want {
		s.buf.Data = make([]int, want)
	}
	s.buf.Data = s.buf.Data[:want]

	read, err := s.decoder.PCMBuffer(s.buf)
	if read == 0 {
		if err == nil || err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return nil, err
	}
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("decode WAV: %w", err)
	}

	// Whole frames only.
	read -= read % s.channels
	out := make([]int16, read)
	for i, v := range s.buf.Data[:read] {
		out[i] = s.toInt16(v)
	}
	return out, nil
}

func (s *wavStream) toInt16(v int) int16 {
	switch s.depth {
	case 8:
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}

func (s *wavStream) Close() error {
	return s.file.Close()
}
