// SPDX-License-Identifier: MIT
/*
Package audio provides the decoders and sinks around the light show:
- Streams of interleaved 16-bit PCM decoded from WAV and MP3 files
- Blocking PortAudio playback and capture
- An external FM transmitter fed over a pipe
- A WAV recorder of everything played

Every Stream yields frames in chunks; the show engine paces itself on
the blocking Output it writes them to.
*/
package audio

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for files no decoder accepts.
var ErrUnsupported = errors.New("unsupported audio format")

// Stream is a source of interleaved int16 frames.
type Stream interface {
	SampleRate() int
	Channels() int
	// Len is the total number of frames, or -1 when unknown.
	Len() int64
	// ReadFrames returns up to n frames. The final chunk may be short;
	// io.EOF is returned once nothing remains.
	ReadFrames(n int) ([]int16, error)
	Close() error
}

// Opener opens a Stream for a file path.
type Opener interface {
	Open(path string) (Stream, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (Stream, error)

func (f OpenerFunc) Open(path string) (Stream, error) { return f(path) }

// FileOpener picks a decoder from the file extension.
type FileOpener struct{}

var _ Opener = FileOpener{}

// Open decodes .wav with go-audio and .mp3 with beep.
func (FileOpener) Open(path string) (Stream, error) {
	return Open(path)
}

// Open decodes path by extension.
func Open(path string) (Stream, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		return OpenWAV(path)
	case ".mp3":
		return OpenMP3(path)
	default:
		return nil, fmt.Errorf("%w %q (use mp3 or wav)", ErrUnsupported, ext)
	}
}

// floatToInt16 converts a [-1, 1] sample to 16-bit PCM.
func floatToInt16(v float64) int16 {
	v = math.Round(v * math.MaxInt16)
	return int16(min(max(v, math.MinInt16), math.MaxInt16))
}
