// SPDX-License-Identifier: MIT
package show

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"lightshow/internal/analysis"
	"lightshow/internal/audio"
	"lightshow/internal/cache"
	"lightshow/internal/config"
	"lightshow/pkg/utils"
)

const (
	testSampleRate = 44100
	testChunk      = 512
	testChannels   = 4
)

type recordingPublisher struct {
	mu        sync.Mutex
	filenames []string
	levels    [][]float64
	pins      [][2]float64
}

func (p *recordingPublisher) SendFilename(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filenames = append(p.filenames, name)
}

func (p *recordingPublisher) SendPin(pin int, b float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pins = append(p.pins, [2]float64{float64(pin), b})
}

func (p *recordingPublisher) SendLevels(levels, mean, std []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, slices.Clone(levels))
}

// historySink records the full brightness vector each time the last
// channel is written.
type historySink struct {
	*utils.RecordingSink
	history [][]float64
}

func newHistorySink(n int) *historySink {
	return &historySink{RecordingSink: utils.NewRecordingSink(n)}
}

func (s *historySink) SetChannel(i int, b float64) error {
	s.RecordingSink.SetChannel(i, b)
	if i == s.Len()-1 {
		s.history = append(s.history, s.Snapshot())
	}
	return nil
}

// interruptAfter requests play-now on its n-th poll.
type interruptAfter struct {
	n     int32
	polls atomic.Int32
}

func (i *interruptAfter) PlayNow() int {
	if i.polls.Add(1) >= i.n {
		return 1
	}
	return 0
}

// scriptedAnalyzer reports level 12+k for every channel of chunk k and a
// non-finite result for the chunks in bad.
type scriptedAnalyzer struct {
	chunk int
	bad   map[int]bool
}

func (a *scriptedAnalyzer) AnalyzeInto(dst analysis.Levels, _ []int16, _ int) (analysis.Peaks, error) {
	k := a.chunk
	a.chunk++
	if a.bad[k] {
		return analysis.Peaks{}, analysis.ErrNonFinite
	}
	for i := range dst {
		dst[i] = 12 + float64(k)
	}
	return analysis.Peaks{}, nil
}

// memCache never hits and keeps the last saved rows.
type memCache struct {
	saved [][]float64
}

func (c *memCache) Load(string, cache.Fingerprint) (*cache.Entry, error) {
	return nil, cache.ErrNotFound
}

func (c *memCache) Save(_ string, fp cache.Fingerprint, levels [][]float64) (*cache.Entry, error) {
	c.saved = levels
	return &cache.Entry{Fingerprint: fp, Levels: levels}, nil
}

func testAudio() config.AudioConfig {
	a := config.Default().Audio
	a.ChunkSize = testChunk
	return a
}

func sineOpener(chunks int) audio.Opener {
	samples := utils.GenerateComplexWave(chunks*testChunk, testSampleRate)
	return audio.OpenerFunc(func(string) (audio.Stream, error) {
		return &utils.MockStream{Rate: testSampleRate, Chans: 1, Samples: samples}, nil
	})
}

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.NewStore()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Audio.ChunkSize == 0 {
		opts.Audio = testAudio()
	}
	e, err := NewEngine(opts)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func songPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "carol.wav")
}

func TestPlayAnalyzesAndSaves(t *testing.T) {
	song := songPath(t)
	sink := utils.NewRecordingSink(testChannels)
	store := newTestStore(t)
	e := newTestEngine(t, Options{Opener: sineOpener(10), Sink: sink, Cache: store, ReadCache: true})

	res, err := e.Play(context.Background(), song)
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if res.Outcome != CompletedNormally || res.Chunks != 10 || res.Replayed || !res.Saved || res.FallbackAt != -1 {
		t.Errorf("Result = %+v", res)
	}
	if e.Playing() {
		t.Error("Playing() after Play returned")
	}
	if got := sink.AllCalls; len(got) != 1 || got[0] != 0 {
		t.Errorf("SetAll calls = %v, want one final off", got)
	}
	if sink.Sets != 10*testChannels {
		t.Errorf("SetChannel calls = %d, want %d", sink.Sets, 10*testChannels)
	}

	entry, err := store.Load(song, cache.Fingerprint{
		Channels:      testChannels,
		SampleRate:    testSampleRate,
		MinFrequency:  config.DefaultMinFrequency,
		MaxFrequency:  config.DefaultMaxFrequency,
		ChunkSize:     testChunk,
		AudioChannels: 1,
	})
	if err != nil {
		t.Fatalf("cache not saved under the expected fingerprint: %v", err)
	}
	if len(entry.Levels) != 10 {
		t.Errorf("cached %d rows, want 10", len(entry.Levels))
	}
}

func TestPlayReplayIsIdentical(t *testing.T) {
	song := songPath(t)
	store := newTestStore(t)

	run := func() (Result, *historySink, *recordingPublisher) {
		sink := newHistorySink(testChannels)
		pub := &recordingPublisher{}
		e := newTestEngine(t, Options{Opener: sineOpener(8), Sink: sink, Cache: store, Publisher: pub, ReadCache: true})
		res, err := e.Play(context.Background(), song)
		if err != nil {
			t.Fatalf("Play: %v", err)
		}
		return res, sink, pub
	}

	first, _, livePub := run()
	second, sinkA, pubA := run()
	third, sinkB, _ := run()

	if first.Replayed || !second.Replayed || !third.Replayed {
		t.Fatalf("Replayed = %v/%v/%v, want false/true/true", first.Replayed, second.Replayed, third.Replayed)
	}
	if second.Saved || third.Saved {
		t.Error("a full replay should not rewrite the cache")
	}
	if !slices.EqualFunc(livePub.levels, pubA.levels, slices.Equal[[]float64]) {
		t.Error("replayed levels differ from the analyzed ones")
	}
	if len(sinkA.history) != 8 || !slices.EqualFunc(sinkA.history, sinkB.history, slices.Equal[[]float64]) {
		t.Error("two replays drove the lights differently")
	}
}

func TestPlayCacheExhaustionFallback(t *testing.T) {
	song := songPath(t)
	store := newTestStore(t)

	// Cache only the first 4 chunks.
	short := newTestEngine(t, Options{Opener: sineOpener(4), Sink: utils.NewRecordingSink(testChannels), Cache: store})
	if _, err := short.Play(context.Background(), song); err != nil {
		t.Fatal(err)
	}

	livePub := &recordingPublisher{}
	live := newTestEngine(t, Options{Opener: sineOpener(10), Sink: utils.NewRecordingSink(testChannels),
		Cache: newTestStore(t), Publisher: livePub})
	if _, err := live.Play(context.Background(), songPath(t)); err != nil {
		t.Fatal(err)
	}

	pub := &recordingPublisher{}
	e := newTestEngine(t, Options{Opener: sineOpener(10), Sink: utils.NewRecordingSink(testChannels),
		Cache: store, Publisher: pub, ReadCache: true})
	res, err := e.Play(context.Background(), song)
	if err != nil {
		t.Fatal(err)
	}

	if !res.Replayed || res.FallbackAt != 4 || res.Chunks != 10 || !res.Saved {
		t.Errorf("Result = %+v, want replay falling back at 4 and saving", res)
	}
	if len(pub.levels) != 10 {
		t.Fatalf("published %d level frames, want 10 with no gap or duplicate", len(pub.levels))
	}
	for i := range pub.levels {
		if !slices.Equal(pub.levels[i], livePub.levels[i]) {
			t.Errorf("chunk %d levels differ from a live run", i)
		}
	}
}

func TestPlayInterruptedByPlayNow(t *testing.T) {
	sink := utils.NewRecordingSink(testChannels)
	e := newTestEngine(t, Options{Opener: sineOpener(20), Sink: sink, Cache: newTestStore(t),
		Interrupt: &interruptAfter{n: 3}})

	res, err := e.Play(context.Background(), songPath(t))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != InterruptedByPlayNow || res.Chunks != 3 {
		t.Errorf("Result = %+v, want interrupted after 3 chunks", res)
	}
	if !res.Saved {
		t.Error("partial analysis should still be cached")
	}
	if slices.ContainsFunc(sink.Snapshot(), func(v float64) bool { return v != 0 }) {
		t.Errorf("lights left on: %v", sink.Snapshot())
	}
}

func TestPlayContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := utils.NewRecordingSink(testChannels)
	e := newTestEngine(t, Options{Opener: sineOpener(5), Sink: sink, Cache: newTestStore(t)})

	res, err := e.Play(ctx, songPath(t))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != InterruptedByPlayNow || res.Chunks != 0 || res.Saved {
		t.Errorf("Result = %+v", res)
	}
	if len(sink.AllCalls) != 1 {
		t.Error("lights should still be switched off")
	}
}

func TestPlayDecodeError(t *testing.T) {
	boom := errors.New("bad frame header")
	samples := utils.GenerateComplexWave(6*testChunk, testSampleRate)
	opener := audio.OpenerFunc(func(string) (audio.Stream, error) {
		return &utils.MockStream{Rate: testSampleRate, Chans: 1, Samples: samples, FailAt: 2 * testChunk, Err: boom}, nil
	})
	sink := utils.NewRecordingSink(testChannels)
	e := newTestEngine(t, Options{Opener: opener, Sink: sink, Cache: newTestStore(t)})

	res, err := e.Play(context.Background(), songPath(t))
	if !errors.Is(err, boom) {
		t.Fatalf("Play error = %v, want bad frame header", err)
	}
	if res.Outcome != AbortedOnDecodeError || res.Chunks != 2 {
		t.Errorf("Result = %+v", res)
	}
	if len(sink.AllCalls) != 1 || e.Playing() {
		t.Error("finalize did not run")
	}
}

func TestPlayOpenError(t *testing.T) {
	opener := audio.OpenerFunc(func(string) (audio.Stream, error) {
		return nil, audio.ErrUnsupported
	})
	sink := utils.NewRecordingSink(testChannels)
	e := newTestEngine(t, Options{Opener: opener, Sink: sink, Cache: newTestStore(t)})

	res, err := e.Play(context.Background(), "song.ogg")
	if !errors.Is(err, audio.ErrUnsupported) || res.Outcome != AbortedOnDecodeError {
		t.Errorf("Play = %+v, %v", res, err)
	}
	if res.Saved || len(sink.AllCalls) != 1 {
		t.Errorf("Result = %+v, SetAll calls %v", res, sink.AllCalls)
	}
}

func TestPlayBroadcastOrder(t *testing.T) {
	pub := &recordingPublisher{}
	song := songPath(t)
	e := newTestEngine(t, Options{Opener: sineOpener(3), Sink: utils.NewRecordingSink(testChannels),
		Cache: newTestStore(t), Publisher: pub})

	if _, err := e.Play(context.Background(), song); err != nil {
		t.Fatal(err)
	}
	if len(pub.filenames) != 1 || pub.filenames[0] != song {
		t.Errorf("filenames = %v", pub.filenames)
	}
	if len(pub.levels) != 3 {
		t.Errorf("level frames = %d, want one per chunk", len(pub.levels))
	}
	if len(pub.pins) != 0 {
		t.Error("pin frames are only for sequences")
	}
}

func TestPlayCacheOnly(t *testing.T) {
	pub := &recordingPublisher{}
	var progress [][2]int
	outputs := 0
	e := newTestEngine(t, Options{
		Opener:    sineOpener(5),
		Channels:  testChannels,
		Cache:     newTestStore(t),
		Publisher: pub,
		CacheOnly: true,
		Output: func(int, int) (audio.Output, error) {
			outputs++
			return audio.NullOutput{}, nil
		},
		Progress: func(done, total int) { progress = append(progress, [2]int{done, total}) },
	})

	res, err := e.Play(context.Background(), songPath(t))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Saved || res.Chunks != 5 {
		t.Errorf("Result = %+v", res)
	}
	if outputs != 0 || len(pub.filenames)+len(pub.levels) != 0 {
		t.Error("cache-only mode must not open audio or broadcast")
	}
	if len(progress) != 5 || progress[4] != [2]int{5, 5} {
		t.Errorf("progress = %v", progress)
	}
}

func TestPlayBinarizesOnOffChannels(t *testing.T) {
	sink := newHistorySink(testChannels)
	sink.OnOff = map[int]bool{0: true, 2: true}
	e := newTestEngine(t, Options{Opener: sineOpener(6), Sink: sink, Cache: newTestStore(t)})
	if _, err := e.Play(context.Background(), songPath(t)); err != nil {
		t.Fatal(err)
	}
	for _, row := range sink.history {
		for _, ch := range []int{0, 2} {
			if row[ch] != 0 && row[ch] != 1 {
				t.Fatalf("on/off channel %d got %v", ch, row[ch])
			}
		}
	}
}

func TestNewEngineValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"No opener", Options{Cache: newTestStore(t), Sink: utils.NewRecordingSink(1)}},
		{"No cache", Options{Opener: sineOpener(1), Sink: utils.NewRecordingSink(1)}},
		{"No sink", Options{Opener: sineOpener(1), Cache: newTestStore(t)}},
		{"Cache only without channels", Options{Opener: sineOpener(1), Cache: newTestStore(t), CacheOnly: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine(tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPlayNonFiniteChunkHoldsLights(t *testing.T) {
	sink := newHistorySink(testChannels)
	pub := &recordingPublisher{}
	store := &memCache{}
	e := newTestEngine(t, Options{
		Opener:    sineOpener(5),
		Sink:      sink,
		Cache:     store,
		Publisher: pub,
		Analyzer: func(int, int, []analysis.Band) (LevelAnalyzer, error) {
			return &scriptedAnalyzer{bad: map[int]bool{2: true}}, nil
		},
	})

	res, err := e.Play(context.Background(), songPath(t))
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if res.Outcome != CompletedNormally || res.Chunks != 5 || !res.Saved {
		t.Errorf("Result = %+v", res)
	}

	// The bad chunk neither moves the lights nor goes out on the wire.
	if len(sink.history) != 4 || sink.Sets != 4*testChannels {
		t.Errorf("sink updated %d times (%d sets), want 4 updates", len(sink.history), sink.Sets)
	}
	if len(pub.levels) != 4 || pub.levels[2][0] != 15 {
		t.Errorf("broadcast levels = %v, want chunks 0, 1, 3, 4", pub.levels)
	}

	if len(store.saved) != 5 {
		t.Fatalf("saved %d rows, want one per chunk", len(store.saved))
	}
	for k, row := range store.saved {
		want := 12 + float64(k)
		if k == 2 {
			want = 0
		}
		for ch, v := range row {
			if v != want {
				t.Errorf("row %d channel %d = %v, want %v", k, ch, v, want)
			}
		}
	}
}

func TestPlayIgnoresInvalidSongOverride(t *testing.T) {
	song := songPath(t)
	sidecar := "custom_channel_frequencies: [500, 400, 300, 200, 100]\n"
	if err := os.WriteFile(config.OverridePath(song), []byte(sidecar), 0644); err != nil {
		t.Fatal(err)
	}

	var used []analysis.Band
	e := newTestEngine(t, Options{
		Opener: sineOpener(2),
		Sink:   utils.NewRecordingSink(testChannels),
		Cache:  newTestStore(t),
		Analyzer: func(chunkSize, sampleRate int, bands []analysis.Band) (LevelAnalyzer, error) {
			used = bands
			return analysis.NewAnalyzer(chunkSize, sampleRate, bands)
		},
	})

	res, err := e.Play(context.Background(), song)
	if err != nil || res.Outcome != CompletedNormally {
		t.Fatalf("Play = %+v, %v; want the song played with the base bands", res, err)
	}
	a := testAudio()
	want, err := analysis.ComputeBands(a.MinFrequency, a.MaxFrequency, testChannels, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(used, want) {
		t.Errorf("bands = %v, want base bands %v", used, want)
	}
}
