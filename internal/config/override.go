package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// SongOverride is the optional sidecar beside a song that replaces
// fingerprint-affecting settings for that song only. Nil fields keep the
// base configuration.
type SongOverride struct {
	MinFrequency             *float64  `yaml:"min_frequency"`
	MaxFrequency             *float64  `yaml:"max_frequency"`
	CustomChannelMapping     []int     `yaml:"custom_channel_mapping"`
	CustomChannelFrequencies []float64 `yaml:"custom_channel_frequencies"`
}

// OverridePath returns the sidecar path for a song: the full song file name
// with ".yaml" appended, so song.mp3 and song.wav keep separate overrides.
func OverridePath(song string) string {
	return song + ".yaml"
}

// LoadSongOverride reads the sidecar for song. A missing sidecar returns
// (nil, nil).
func LoadSongOverride(song string) (*SongOverride, error) {
	data, err := os.ReadFile(OverridePath(song))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read song override: %w", err)
	}
	var o SongOverride
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse song override %s: %w", OverridePath(song), err)
	}
	return &o, nil
}

// Merge returns a copy of a with the override applied.
func (a AudioConfig) Merge(o *SongOverride) AudioConfig {
	if o == nil {
		return a
	}
	if o.MinFrequency != nil {
		a.MinFrequency = *o.MinFrequency
	}
	if o.MaxFrequency != nil {
		a.MaxFrequency = *o.MaxFrequency
	}
	if o.CustomChannelMapping != nil {
		a.CustomChannelMapping = o.CustomChannelMapping
	}
	if o.CustomChannelFrequencies != nil {
		a.CustomChannelFrequencies = o.CustomChannelFrequencies
	}
	return a
}
