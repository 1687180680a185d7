// SPDX-License-Identifier: MIT
package show

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gonum.org/v1/gonum/stat"

	"lightshow/internal/analysis"
	"lightshow/internal/audio"
	"lightshow/internal/config"
	"lightshow/internal/hardware"
	applog "lightshow/internal/log"
)

var liveLog = applog.New("LiveInput")

// Live input baseline.
const (
	LiveInitialStd = 0.5
	// LiveWindow is the number of chunks between baseline updates.
	LiveWindow = 250
	// NoInputMean marks a channel as unconnected when its mean falls below it.
	NoInputMean = 10.0
	// quietMean darkens every channel while no input is detected.
	quietMean = 20.0
)

// LiveOptions configures live input mode.
type LiveOptions struct {
	Audio     config.AudioConfig
	Sink      hardware.Sink
	Publisher Publisher  // nil unless running as the network server.
	Gate      *audio.Gate // nil analyzes every chunk.
}

// Live drives the lights from a capture stream with a rolling baseline
// instead of a cached one.
type Live struct {
	opts     LiveOptions
	analyzer *analysis.Analyzer
	channels int

	mean   []float64
	std    []float64
	window [][]float64 // Per channel, the levels since the last update.
	count  int
	bright []float64
	levels analysis.Levels
}

// NewLive builds the analyzer for the capture stream's format.
func NewLive(opts LiveOptions, sampleRate int) (*Live, error) {
	if opts.Sink == nil {
		return nil, errors.New("LiveInput: light sink cannot be nil")
	}
	n := opts.Sink.Len()
	a := opts.Audio
	bands, err := analysis.ComputeBands(a.MinFrequency, a.MaxFrequency, n, a.CustomChannelMapping, a.CustomChannelFrequencies)
	if err != nil {
		return nil, err
	}
	analyzer, err := analysis.NewAnalyzer(a.ChunkSize, sampleRate, bands)
	if err != nil {
		return nil, err
	}
	l := &Live{
		opts:     opts,
		analyzer: analyzer,
		channels: n,
		mean:     analysis.Uniform(n, analysis.DefaultMean),
		std:      analysis.Uniform(n, LiveInitialStd),
		window:   make([][]float64, n),
		bright:   make([]float64, n),
		levels:   make(analysis.Levels, n),
	}
	for i := range l.window {
		l.window[i] = make([]float64, 0, LiveWindow)
	}
	return l, nil
}

// Run reads stream until ctx is cancelled or the stream ends. Lights are
// turned off on return.
func (l *Live) Run(ctx context.Context, stream audio.Stream) error {
	defer func() {
		if err := l.opts.Sink.SetAll(0); err != nil {
			liveLog.Warnf("turning lights off: %v", err)
		}
	}()
	liveLog.Infof("running until interrupted (%d Hz x%d)", stream.SampleRate(), stream.Channels())

	for ctx.Err() == nil {
		samples, err := stream.ReadFrames(l.opts.Audio.ChunkSize)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		l.Process(samples, stream.Channels())
	}
	return nil
}

// Process handles one captured chunk.
func (l *Live) Process(samples []int16, channels int) {
	if l.opts.Gate != nil && !l.opts.Gate.Open(samples) {
		clear(l.levels)
	} else if _, err := l.analyzer.AnalyzeInto(l.levels, samples, channels); err != nil {
		liveLog.Debugf("skipping chunk: %v", err)
		return
	}

	l.update()

	if l.count >= LiveWindow {
		l.rebase()
		return
	}
	for i, v := range l.levels {
		l.window[i] = append(l.window[i], v)
	}
	l.count++
}

func (l *Live) update() {
	if l.opts.Publisher != nil {
		l.opts.Publisher.SendLevels(l.levels, l.mean, l.std)
	}
	analysis.BrightnessInto(l.bright, l.levels, l.mean, l.std)
	for i, b := range l.bright {
		if !hardware.IsPWM(l.opts.Sink, i) {
			b = analysis.Binarize(b)
		}
		if err := l.opts.Sink.SetChannel(i, b); err != nil {
			liveLog.Debugf("channel %d: %v", i, err)
		}
	}
}

// rebase recomputes the baseline from the positive levels in the window.
func (l *Live) rebase() {
	quiet := 0
	for i, w := range l.window {
		positive := w[:0:0]
		for _, v := range w {
			if v > 0 {
				positive = append(positive, v)
			}
		}
		if len(positive) > 0 {
			l.mean[i], l.std[i] = stat.PopMeanStdDev(positive, nil)
		} else {
			l.mean[i], l.std[i] = 0, 0
		}
		if l.mean[i] < NoInputMean {
			quiet++
		}
		l.window[i] = w[:0]
	}
	l.count = 0

	if quiet > l.channels/2 {
		liveLog.Debugf("no input detected, turning all lights off")
		for i := range l.mean {
			l.mean[i] = quietMean
		}
		return
	}
	liveLog.Debugf("std: %v, mean: %v", l.std, l.mean)
}

// Baseline returns copies of the current mean and std.
func (l *Live) Baseline() (mean, std []float64) {
	return append([]float64(nil), l.mean...), append([]float64(nil), l.std...)
}
