// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"

	applog "lightshow/internal/log"

	"github.com/gordonklaus/portaudio"
)

// PortAudioOutput plays through a blocking PortAudio stream. Write returns
// once the device has accepted the chunk, which paces the show.
type PortAudioOutput struct {
	stream *portaudio.Stream
	buffer []int16 // Bound to the stream; one chunk of interleaved frames.
}

// NewPortAudioOutput opens device deviceID (-1 for the default) for
// framesPerBuffer-sized chunks.
func NewPortAudioOutput(deviceID, sampleRate, channels, framesPerBuffer int) (*PortAudioOutput, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	device, err := OutputDevice(deviceID)
	if err != nil {
		Terminate()
		return nil, err
	}

	params := portaudio.HighLatencyParameters(nil, device)
	params.Output.Channels = channels
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = framesPerBuffer

	o := &PortAudioOutput{buffer: make([]int16, framesPerBuffer*channels)}
	stream, err := portaudio.OpenStream(params, &o.buffer)
	if err != nil {
		Terminate()
		return nil, fmt.Errorf("failed to open output stream on %q: %w", device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		Terminate()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}
	o.stream = stream
	applog.Infof("PortAudio: playing on %q (%d Hz x%d)", device.Name, sampleRate, channels)
	return o, nil
}

// Write plays samples, splitting or zero-padding to the stream's chunk size.
func (o *PortAudioOutput) Write(samples []int16) error {
	for len(samples) > 0 {
		n := copy(o.buffer, samples)
		clear(o.buffer[n:])
		samples = samples[n:]
		if err := o.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("audio output: %w", err)
		}
	}
	return nil
}

func (o *PortAudioOutput) Close() error {
	defer Terminate()
	if err := o.stream.Stop(); err != nil {
		o.stream.Close()
		return err
	}
	return o.stream.Close()
}

var _ Output = (*PortAudioOutput)(nil)

// Capture is a Stream over a live PortAudio input.
type Capture struct {
	stream   *portaudio.Stream
	buffer   []int16
	rate     int
	channels int
}

// NewCapture opens input device deviceID for framesPerBuffer-sized reads.
func NewCapture(deviceID int, sampleRate float64, channels, framesPerBuffer int) (*Capture, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	device, err := InputDevice(deviceID)
	if err != nil {
		Terminate()
		return nil, err
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: channels,
			Device:   device,
			Latency:  device.DefaultLowInputLatency,
		},
		FramesPerBuffer: framesPerBuffer,
		SampleRate:      sampleRate,
	}

	c := &Capture{
		buffer:   make([]int16, framesPerBuffer*channels),
		rate:     int(sampleRate),
		channels: channels,
	}
	stream, err := portaudio.OpenStream(params, &c.buffer)
	if err != nil {
		Terminate()
		return nil, fmt.Errorf("failed to open input stream on %q: %w", device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		Terminate()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}
	c.stream = stream
	applog.Infof("PortAudio: capturing from %q (%.0f Hz x%d)", device.Name, sampleRate, channels)
	return c, nil
}

func (c *Capture) SampleRate() int { return c.rate }
func (c *Capture) Channels() int   { return c.channels }
func (c *Capture) Len() int64      { return -1 }

// ReadFrames blocks for one buffer of input; n is fixed at open time.
func (c *Capture) ReadFrames(int) ([]int16, error) {
	if err := c.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return nil, fmt.Errorf("audio input: %w", err)
		}
		applog.Debugf("PortAudio: input overflowed")
	}
	out := make([]int16, len(c.buffer))
	copy(out, c.buffer)
	return out, nil
}

func (c *Capture) Close() error {
	defer Terminate()
	if err := c.stream.Stop(); err != nil {
		c.stream.Close()
		return err
	}
	return c.stream.Close()
}

var _ Stream = (*Capture)(nil)
