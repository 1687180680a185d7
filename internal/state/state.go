// Package state persists the small key/value set shared between the command
// layer and the playback engine: play_now, song_to_play and current_song.
package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"lightshow/internal/fsutil"
	"lightshow/internal/log"
)

// Well-known keys.
const (
	KeyPlayNow     = "play_now"     // 1-based playlist index requested by a user, 0 when unset.
	KeySongToPlay  = "song_to_play" // Round-robin cursor.
	KeyCurrentSong = "current_song" // 0-based index of the song playing, for observers.
)

var logger = log.New("State")

// Store is a YAML-backed integer map. While Watch runs, reads are answered
// from memory and refreshed on file change; otherwise every read goes to disk
// so that values written by another process are seen.
type Store struct {
	path string

	mu       sync.RWMutex
	values   map[string]int
	writeMu  sync.Mutex
	watching atomic.Bool
}

// Open loads the state file at path, creating its directory if needed.
// A missing file is an empty state.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	s := &Store{path: path, values: map[string]int{}}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Get returns the value for key, 0 when unset.
func (s *Store) Get(key string) int {
	if !s.watching.Load() {
		if err := s.reload(); err != nil {
			logger.Warnf("reload failed, using last known values: %v", err)
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Set stores value under key and persists the whole map atomically.
func (s *Store) Set(key string, value int) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Pick up writes from other processes before rewriting the file.
	if err := s.reload(); err != nil {
		logger.Warnf("reload before write failed: %v", err)
	}

	s.mu.Lock()
	s.values[key] = value
	data, err := yaml.Marshal(s.values)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return fsutil.WriteFileAtomic(s.path, data, 0644)
}

// PlayNow returns the pending play-now request, 0 when none.
func (s *Store) PlayNow() int {
	return s.Get(KeyPlayNow)
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	values := map[string]int{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse state %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

// Watch keeps the in-memory copy current until ctx is cancelled. The
// directory is watched because atomic writes replace the file.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	// Values may have changed between Open and now.
	if err := s.reload(); err != nil {
		logger.Warnf("%v", err)
	}
	s.watching.Store(true)
	defer s.watching.Store(false)
	logger.Debugf("watching %s", s.path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if err := s.reload(); err != nil {
					logger.Warnf("%v", err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("watcher error: %v", err)
		case <-ctx.Done():
			return nil
		}
	}
}

// Watching reports whether Watch is currently keeping values in memory.
func (s *Store) Watching() bool {
	return s.watching.Load()
}
