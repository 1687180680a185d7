package playlist

import (
	"fmt"
	"math/rand/v2"

	"lightshow/internal/state"
)

// StateStore is the persisted key/value state the selector reads and updates.
type StateStore interface {
	Get(key string) int
	Set(key string, value int) error
}

// Reason explains why a song was chosen.
type Reason string

const (
	ReasonPlayNow    Reason = "play now"
	ReasonVotes      Reason = "most votes"
	ReasonRandom     Reason = "random"
	ReasonRoundRobin Reason = "next in line"
)

// Selection is the resolved next song.
type Selection struct {
	Song   Song
	Index  int    // 0-based position in the playlist.
	File   string // Song path with the home directory expanded.
	Reason Reason
}

// Selector picks the next song by priority: a play-now request, then the
// song with the most votes, then a random song when enabled, then the
// persisted round-robin cursor.
type Selector struct {
	path      string
	state     StateStore
	randomize bool
	expand    func(string) string
	intN      func(int) int
}

// NewSelector creates a Selector for the playlist at path. expand resolves
// home-directory variables in song paths; nil leaves them as written.
func NewSelector(path string, st StateStore, randomize bool, expand func(string) string) *Selector {
	if expand == nil {
		expand = func(s string) string { return s }
	}
	return &Selector{
		path:      path,
		state:     st,
		randomize: randomize,
		expand:    expand,
		intN:      rand.IntN,
	}
}

// Next re-reads the playlist and resolves the next song. A used play-now
// request is reset to 0 and current_song is persisted.
func (s *Selector) Next() (Selection, error) {
	p, err := Load(s.path)
	if err != nil {
		return Selection{}, err
	}

	idx, reason, err := s.pick(p)
	if err != nil {
		return Selection{}, err
	}

	if err := s.state.Set(state.KeyCurrentSong, idx); err != nil {
		logger.Warnf("failed to persist current song: %v", err)
	}

	song := p.Songs[idx]
	logger.Infof("next song %q (%s)", song.Name, reason)
	return Selection{
		Song:   song,
		Index:  idx,
		File:   s.expand(song.Path),
		Reason: reason,
	}, nil
}

func (s *Selector) pick(p *Playlist) (int, Reason, error) {
	n := len(p.Songs)

	if playNow := s.state.Get(state.KeyPlayNow); playNow > 0 && playNow <= n {
		if err := s.state.Set(state.KeyPlayNow, 0); err != nil {
			return 0, "", fmt.Errorf("reset play_now: %w", err)
		}
		return playNow - 1, ReasonPlayNow, nil
	}

	best, bestVotes := -1, 0
	for i, song := range p.Songs {
		// Ties go to the later entry.
		if len(song.Votes) > 0 && len(song.Votes) >= bestVotes {
			best, bestVotes = i, len(song.Votes)
		}
	}
	if best >= 0 {
		p.Songs[best].Votes = nil
		if err := p.Save(); err != nil {
			logger.Warnf("failed to clear votes: %v", err)
		}
		return best, ReasonVotes, nil
	}

	if s.randomize {
		return s.intN(n), ReasonRandom, nil
	}

	cursor := s.state.Get(state.KeySongToPlay)
	if cursor < 0 || cursor >= n {
		cursor = 0
	}
	if err := s.state.Set(state.KeySongToPlay, (cursor+1)%n); err != nil {
		logger.Warnf("failed to persist round-robin cursor: %v", err)
	}
	return cursor, ReasonRoundRobin, nil
}
