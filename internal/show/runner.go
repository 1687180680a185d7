// SPDX-License-Identifier: MIT
package show

import (
	"context"
	"errors"

	"lightshow/internal/config"
	"lightshow/internal/state"
)

// StateStore is the persisted play-now flag.
type StateStore interface {
	PlayNow() int
	Set(key string, value int) error
}

// NextFunc resolves the song to play next.
type NextFunc func() (string, error)

// Show plays songs with their pre and post show sequences around them.
type Show struct {
	Engine    *Engine
	Sequencer *Sequencer
	State     StateStore
	Next      NextFunc
	Preshow   *config.ShowScript
	Postshow  *config.ShowScript
}

// PlaySong runs one cycle: the preshow unless a song was requested, the next
// song, then the postshow.
func (s *Show) PlaySong(ctx context.Context) (Result, error) {
	if s.Engine == nil || s.Next == nil {
		return Result{FallbackAt: -1}, errors.New("Show: engine and song source are required")
	}

	playNow := 0
	if s.State != nil {
		playNow = s.State.PlayNow()
	}
	if playNow == 0 && s.Sequencer != nil {
		if s.Sequencer.Run(ctx, "preshow", s.Preshow) && ctx.Err() != nil {
			return Result{FallbackAt: -1}, ctx.Err()
		}
	}

	song, err := s.Next()
	if err != nil {
		return Result{FallbackAt: -1}, err
	}

	// The selector consumes play_now for playlists; a fixed file does not,
	// so clear it here before streaming or the song would stop at once.
	if s.State != nil && s.State.PlayNow() != 0 {
		if err := s.State.Set(state.KeyPlayNow, 0); err != nil {
			logger.Warnf("failed to reset play_now: %v", err)
		}
	}

	res, err := s.Engine.Play(ctx, song)
	if err != nil {
		return res, err
	}

	if s.Sequencer != nil && ctx.Err() == nil {
		s.Sequencer.Run(ctx, "postshow", s.Postshow)
	}
	return res, nil
}
