// SPDX-License-Identifier: MIT
package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"lightshow/internal/fsutil"
)

// formatVersion is bumped whenever the on-disk layout changes.
const formatVersion = 1

// Sentinel errors. The playback engine treats all three as a cache miss.
var (
	ErrNotFound = errors.New("cache file not found")
	ErrInvalid  = errors.New("cache fingerprint mismatch")
	ErrCorrupt  = errors.New("cache file corrupt")
)

// Fingerprint is every setting that affects the computed levels. A cache is
// only replayed when its fingerprint equals the current one field for field.
type Fingerprint struct {
	Channels                 int       `msgpack:"channels"`
	SampleRate               int       `msgpack:"sampleRate"`
	MinFrequency             float64   `msgpack:"minFrequency"`
	MaxFrequency             float64   `msgpack:"maxFrequency"`
	CustomChannelMapping     []int     `msgpack:"customChannelMapping"`
	CustomChannelFrequencies []float64 `msgpack:"customChannelFrequencies"`
	ChunkSize                int       `msgpack:"chunkSize"`
	AudioChannels            int       `msgpack:"audioChannels"`
}

// Equal reports field-exact equality. Nil and empty slices are equal.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.Channels == o.Channels &&
		f.SampleRate == o.SampleRate &&
		f.MinFrequency == o.MinFrequency &&
		f.MaxFrequency == o.MaxFrequency &&
		slices.Equal(f.CustomChannelMapping, o.CustomChannelMapping) &&
		slices.Equal(f.CustomChannelFrequencies, o.CustomChannelFrequencies) &&
		f.ChunkSize == o.ChunkSize &&
		f.AudioChannels == o.AudioChannels
}

// Entry is one song's cached show: the fingerprint it was computed under,
// the per-channel baseline and one level row per chunk.
type Entry struct {
	Version     int         `msgpack:"version"`
	Fingerprint Fingerprint `msgpack:"fingerprint"`
	Mean        []float64   `msgpack:"mean"`
	Std         []float64   `msgpack:"std"`
	Levels      [][]float64 `msgpack:"levels"`
}

// Store reads and writes cache files beside the songs they describe.
type Store struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a Store. Close releases the compression state.
func NewStore() (*Store, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Store{
		encoder: encoder,
		decoder: decoder,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Close releases the encoder and decoder.
func (s *Store) Close() error {
	s.decoder.Close()
	return s.encoder.Close()
}

// Path returns the cache file for song: a hidden file in the song's
// directory, derived from its absolute path.
func Path(song string) (string, error) {
	abs, err := filepath.Abs(song)
	if err != nil {
		return "", fmt.Errorf("resolve song path: %w", err)
	}
	dir, base := filepath.Split(abs)
	return filepath.Join(dir, "."+base+".sync"), nil
}

// Load returns the cached entry for song if it was computed under fp.
func (s *Store) Load(song string, fp Fingerprint) (*Entry, error) {
	path, err := Path(song)
	if err != nil {
		return nil, err
	}

	compressed, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	decompressed, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd decode: %v", ErrCorrupt, err)
	}

	var entry Entry
	dec := msgpack.NewDecoder(bytes.NewReader(decompressed))
	dec.SetCustomStructTag("msgpack")
	if err := dec.Decode(&entry); err != nil {
		return nil, fmt.Errorf("%w: msgpack decode: %v", ErrCorrupt, err)
	}
	if err := entry.check(); err != nil {
		return nil, err
	}

	if !entry.Fingerprint.Equal(fp) {
		return nil, ErrInvalid
	}
	return &entry, nil
}

// Save computes the baseline for levels and atomically writes the entry for
// song. Concurrent saves of the same song are serialized.
func (s *Store) Save(song string, fp Fingerprint, levels [][]float64) (*Entry, error) {
	path, err := Path(song)
	if err != nil {
		return nil, err
	}

	mean, std := ComputeStats(levels, fp.Channels)
	entry := &Entry{
		Version:     formatVersion,
		Fingerprint: fp,
		Mean:        mean,
		Std:         std,
		Levels:      levels,
	}
	if err := entry.check(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("msgpack")
	if err := enc.Encode(entry); err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}
	compressed := s.encoder.EncodeAll(buf.Bytes(), nil)

	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if err := fsutil.WriteFileAtomic(path, compressed, 0644); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) lockFor(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

// check validates the entry's shape against its own fingerprint.
func (e *Entry) check() error {
	if e.Version != formatVersion {
		return fmt.Errorf("%w: version %d", ErrCorrupt, e.Version)
	}
	n := e.Fingerprint.Channels
	if n <= 0 || len(e.Mean) != n || len(e.Std) != n {
		return fmt.Errorf("%w: baseline does not match %d channels", ErrCorrupt, n)
	}
	for i, row := range e.Levels {
		if len(row) != n {
			return fmt.Errorf("%w: row %d has %d channels, want %d", ErrCorrupt, i, len(row), n)
		}
	}
	return nil
}
