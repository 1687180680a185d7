// SPDX-License-Identifier: MIT
/*
Package show drives the lights from audio: the playback engine that
analyzes or replays a song chunk by chunk, the timed pre/post show
sequences, live input mode and the song loop that ties them to the
playlist.

Thread Safety:
- One playback runs per Engine at a time
- Playing() may be read from any goroutine
- The streaming loop owns its buffers; nothing is shared with observers
*/
package show

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"lightshow/internal/analysis"
	"lightshow/internal/audio"
	"lightshow/internal/cache"
	"lightshow/internal/config"
	"lightshow/internal/hardware"
	applog "lightshow/internal/log"
)

var logger = applog.New("Engine")

// Outcome is how a playback ended.
type Outcome int

const (
	CompletedNormally Outcome = iota
	InterruptedByPlayNow
	AbortedOnDecodeError
)

func (o Outcome) String() string {
	switch o {
	case CompletedNormally:
		return "completed"
	case InterruptedByPlayNow:
		return "interrupted"
	case AbortedOnDecodeError:
		return "aborted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result summarizes one playback.
type Result struct {
	Song       string // Absolute path.
	Outcome    Outcome
	Chunks     int  // Chunks streamed.
	Replayed   bool // Levels came from the cache.
	FallbackAt int  // Chunk where a replay ran out of cached rows, -1 if never.
	Saved      bool // A cache file was written.
}

// Interrupter reports a pending play-now request; non-zero stops playback.
type Interrupter interface {
	PlayNow() int
}

// Publisher is the server side of the broadcast channel.
type Publisher interface {
	SendFilename(name string)
	SendPin(pin int, brightness float64)
	SendLevels(levels, mean, std []float64)
}

// CacheStore loads and saves per-song level caches.
type CacheStore interface {
	Load(song string, fp cache.Fingerprint) (*cache.Entry, error)
	Save(song string, fp cache.Fingerprint, levels [][]float64) (*cache.Entry, error)
}

// LevelAnalyzer turns one chunk into per-channel levels.
type LevelAnalyzer interface {
	AnalyzeInto(dst analysis.Levels, samples []int16, channels int) (analysis.Peaks, error)
}

// AnalyzerFactory builds the analyzer for a song's sample rate and bands.
type AnalyzerFactory func(chunkSize, sampleRate int, bands []analysis.Band) (LevelAnalyzer, error)

// OutputFactory opens the audio output for a song's format.
type OutputFactory func(sampleRate, channels int) (audio.Output, error)

// Options configures an Engine. Sink may be nil only in cache-only mode.
type Options struct {
	Audio     config.AudioConfig
	Channels  int // Output channels; defaults to Sink.Len().
	Opener    audio.Opener
	Output    OutputFactory // nil discards audio.
	Sink      hardware.Sink
	Cache     CacheStore
	Interrupt Interrupter     // nil never interrupts.
	Publisher Publisher       // nil unless running as the network server.
	Analyzer  AnalyzerFactory // nil uses analysis.NewAnalyzer.

	// ReadCache replays a matching cache instead of analyzing.
	ReadCache bool
	// CacheOnly analyzes without audio output, lights or broadcast.
	CacheOnly bool
	// Progress, if set, is called after every chunk with the chunk count
	// and the expected total (-1 when the stream length is unknown).
	Progress func(done int, total int)
}

// Engine plays songs. Play calls are serialized.
type Engine struct {
	opts    Options
	mu      sync.Mutex
	playing atomic.Bool
}

// NewEngine validates opts and returns an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Opener == nil {
		return nil, errors.New("Engine: audio opener cannot be nil")
	}
	if opts.Cache == nil {
		return nil, errors.New("Engine: cache store cannot be nil")
	}
	if opts.Sink == nil && !opts.CacheOnly {
		return nil, errors.New("Engine: light sink cannot be nil")
	}
	if opts.Channels <= 0 {
		if opts.Sink == nil {
			return nil, errors.New("Engine: channel count required without a sink")
		}
		opts.Channels = opts.Sink.Len()
	}
	if opts.Audio.ChunkSize <= 0 {
		opts.Audio.ChunkSize = config.DefaultChunkSize
	}
	if opts.Analyzer == nil {
		opts.Analyzer = func(chunkSize, sampleRate int, bands []analysis.Band) (LevelAnalyzer, error) {
			return analysis.NewAnalyzer(chunkSize, sampleRate, bands)
		}
	}
	return &Engine{opts: opts}, nil
}

// Playing reports whether a song is streaming.
func (e *Engine) Playing() bool {
	return e.playing.Load()
}

// playback is the state of one Play call.
type playback struct {
	song     string
	stream   audio.Stream
	analyzer LevelAnalyzer
	fp       cache.Fingerprint

	entry    *cache.Entry // Non-nil while replaying.
	mean     []float64
	std      []float64
	rows     [][]float64
	live     bool // At least one row was analyzed.
	bright   []float64
	scratch  analysis.Levels
	result   Result
	finished bool
}

// Play streams the song at path: audio to the output, levels from the cache
// or the analyzer, brightness to the sink and, in server mode, levels to the
// clients. It returns when the song ends, a play-now request arrives, ctx is
// cancelled or the stream fails. Lights are left at their off baseline.
func (e *Engine) Play(ctx context.Context, path string) (res Result, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	abs, err := filepath.Abs(path)
	if err != nil {
		return Result{Song: path, Outcome: AbortedOnDecodeError, FallbackAt: -1}, err
	}

	e.playing.Store(true)
	p := &playback{song: abs, result: Result{Song: abs, FallbackAt: -1}}
	defer func() {
		e.finalize(p)
		res = p.result
	}()

	if err := e.setup(p); err != nil {
		p.result.Outcome = AbortedOnDecodeError
		return p.result, err
	}
	defer p.stream.Close()

	out := audio.Output(audio.NullOutput{})
	if e.opts.Output != nil && !e.opts.CacheOnly {
		if out, err = e.opts.Output(p.stream.SampleRate(), p.stream.Channels()); err != nil {
			p.result.Outcome = AbortedOnDecodeError
			return p.result, fmt.Errorf("open audio output: %w", err)
		}
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.Warnf("closing audio output: %v", err)
		}
	}()

	if e.opts.Publisher != nil && !e.opts.CacheOnly {
		e.opts.Publisher.SendFilename(abs)
	}

	err = e.stream(ctx, p, out)
	return p.result, err
}

// setup opens the stream, applies the per-song override and checks the
// cache.
func (e *Engine) setup(p *playback) error {
	stream, err := e.opts.Opener.Open(p.song)
	if err != nil {
		return fmt.Errorf("open %s: %w", p.song, err)
	}
	p.stream = stream

	ac := e.opts.Audio
	n := e.opts.Channels
	override, err := config.LoadSongOverride(p.song)
	if err != nil {
		logger.Warnf("ignoring song override: %v", err)
	} else if override != nil {
		merged := ac.Merge(override)
		if err := merged.ValidateAnalysis(n); err != nil {
			logger.Warnf("ignoring song override %s: %v", config.OverridePath(p.song), err)
		} else {
			logger.Infof("using song override %s", config.OverridePath(p.song))
			ac = merged
		}
	}

	bands, err := analysis.ComputeBands(ac.MinFrequency, ac.MaxFrequency, n,
		ac.CustomChannelMapping, ac.CustomChannelFrequencies)
	if err != nil {
		stream.Close()
		return err
	}
	p.analyzer, err = e.opts.Analyzer(ac.ChunkSize, stream.SampleRate(), bands)
	if err != nil {
		stream.Close()
		return err
	}

	p.fp = cache.Fingerprint{
		Channels:                 n,
		SampleRate:               stream.SampleRate(),
		MinFrequency:             ac.MinFrequency,
		MaxFrequency:             ac.MaxFrequency,
		CustomChannelMapping:     ac.CustomChannelMapping,
		CustomChannelFrequencies: ac.CustomChannelFrequencies,
		ChunkSize:                ac.ChunkSize,
		AudioChannels:            stream.Channels(),
	}

	p.mean = analysis.Uniform(n, analysis.DefaultMean)
	p.std = analysis.Uniform(n, analysis.DefaultStd)
	if e.opts.ReadCache {
		entry, err := e.opts.Cache.Load(p.song, p.fp)
		switch {
		case err == nil:
			logger.Infof("replaying %d cached chunks for %s", len(entry.Levels), filepath.Base(p.song))
			p.entry = entry
			p.mean, p.std = entry.Mean, entry.Std
			p.result.Replayed = true
		case errors.Is(err, cache.ErrNotFound):
			logger.Debugf("no cache for %s", filepath.Base(p.song))
		default:
			logger.Infof("cache unusable, analyzing live: %v", err)
		}
	}

	capacity := 0
	if frames := stream.Len(); frames > 0 {
		capacity = int((frames + int64(ac.ChunkSize) - 1) / int64(ac.ChunkSize))
	}
	p.rows = make([][]float64, 0, capacity)
	p.bright = make([]float64, n)
	p.scratch = make(analysis.Levels, n)
	return nil
}

func (e *Engine) stream(ctx context.Context, p *playback, out audio.Output) error {
	chunkSize := p.fp.ChunkSize
	total := -1
	if frames := p.stream.Len(); frames >= 0 {
		total = int((frames + int64(chunkSize) - 1) / int64(chunkSize))
	}

	for {
		if ctx.Err() != nil {
			logger.Infof("stopping %s: %v", filepath.Base(p.song), ctx.Err())
			p.result.Outcome = InterruptedByPlayNow
			return nil
		}

		samples, err := p.stream.ReadFrames(chunkSize)
		if err == io.EOF {
			p.result.Outcome = CompletedNormally
			return nil
		}
		if err != nil {
			p.result.Outcome = AbortedOnDecodeError
			return fmt.Errorf("decode %s at chunk %d: %w", filepath.Base(p.song), len(p.rows), err)
		}

		if err := out.Write(samples); err != nil {
			p.result.Outcome = AbortedOnDecodeError
			return fmt.Errorf("audio output: %w", err)
		}

		row, ok := e.levels(p, samples)
		p.rows = append(p.rows, row)
		if ok && !e.opts.CacheOnly {
			e.actuate(p, row)
		}

		p.result.Chunks++
		if e.opts.Progress != nil {
			e.opts.Progress(p.result.Chunks, total)
		}

		if e.opts.Interrupt != nil && e.opts.Interrupt.PlayNow() != 0 {
			logger.Infof("play now requested, stopping %s", filepath.Base(p.song))
			p.result.Outcome = InterruptedByPlayNow
			return nil
		}
	}
}

// levels returns the row for the current chunk. ok is false when the chunk
// produced no usable levels and the lights should hold their state.
func (e *Engine) levels(p *playback, samples []int16) (row []float64, ok bool) {
	idx := len(p.rows)
	if p.entry != nil {
		if idx < len(p.entry.Levels) {
			return p.entry.Levels[idx], true
		}
		logger.Warnf("cache for %s ended at chunk %d, analyzing the rest live", filepath.Base(p.song), idx)
		p.entry = nil
		p.result.FallbackAt = idx
	}

	p.live = true
	_, err := p.analyzer.AnalyzeInto(p.scratch, samples, p.stream.Channels())
	if err != nil {
		if !errors.Is(err, analysis.ErrNonFinite) {
			logger.Debugf("chunk %d: %v", idx, err)
		}
		return make([]float64, len(p.scratch)), false
	}
	return slices.Clone(p.scratch), true
}

func (e *Engine) actuate(p *playback, row []float64) {
	if e.opts.Publisher != nil {
		e.opts.Publisher.SendLevels(row, p.mean, p.std)
	}
	analysis.BrightnessInto(p.bright, row, p.mean, p.std)
	sink := e.opts.Sink
	for i, b := range p.bright {
		if i >= sink.Len() {
			break
		}
		if !hardware.IsPWM(sink, i) {
			b = analysis.Binarize(b)
		}
		if err := sink.SetChannel(i, b); err != nil {
			logger.Debugf("channel %d: %v", i, err)
		}
	}
}

// finalize runs once per Play: save newly analyzed levels, return the
// lights to their off baseline and clear the playing flag.
func (e *Engine) finalize(p *playback) {
	if p.finished {
		return
	}
	p.finished = true

	if p.live && len(p.rows) > 0 {
		if _, err := e.opts.Cache.Save(p.song, p.fp, p.rows); err != nil {
			logger.Warnf("failed to save cache for %s: %v", filepath.Base(p.song), err)
		} else {
			p.result.Saved = true
			logger.Debugf("saved %d chunks for %s", len(p.rows), filepath.Base(p.song))
		}
	}

	if e.opts.Sink != nil && !e.opts.CacheOnly {
		if err := e.opts.Sink.SetAll(0); err != nil {
			logger.Warnf("turning lights off: %v", err)
		}
	}
	e.playing.Store(false)
}
