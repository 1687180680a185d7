package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOverridePath(t *testing.T) {
	if got := OverridePath("/music/song.mp3"); got != "/music/song.mp3.yaml" {
		t.Errorf("OverridePath = %q", got)
	}
	if OverridePath("/music/song.mp3") == OverridePath("/music/song.wav") {
		t.Error("songs differing only by extension share an override")
	}
}

func TestLoadSongOverride_Missing(t *testing.T) {
	o, err := LoadSongOverride(filepath.Join(t.TempDir(), "song.wav"))
	if err != nil || o != nil {
		t.Errorf("LoadSongOverride = %v, %v; want nil, nil", o, err)
	}
}

func TestLoadSongOverride_Merge(t *testing.T) {
	dir := t.TempDir()
	song := filepath.Join(dir, "song.wav")
	data := "max_frequency: 5000\ncustom_channel_mapping: [2, 1]\n"
	if err := os.WriteFile(filepath.Join(dir, "song.wav.yaml"), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	o, err := LoadSongOverride(song)
	if err != nil {
		t.Fatalf("LoadSongOverride: %v", err)
	}

	base := AudioConfig{ChunkSize: 2048, MinFrequency: 20, MaxFrequency: 15000}
	merged := base.Merge(o)
	if merged.MinFrequency != 20 {
		t.Errorf("MinFrequency = %v, want base value 20", merged.MinFrequency)
	}
	if merged.MaxFrequency != 5000 {
		t.Errorf("MaxFrequency = %v, want 5000", merged.MaxFrequency)
	}
	if len(merged.CustomChannelMapping) != 2 || merged.CustomChannelMapping[0] != 2 {
		t.Errorf("CustomChannelMapping = %v", merged.CustomChannelMapping)
	}
	if base.MaxFrequency != 15000 {
		t.Error("Merge modified the base configuration")
	}
}

func TestLoadSongOverride_Malformed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "song.mp3.yaml"), []byte("max_frequency: [x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSongOverride(filepath.Join(dir, "song.mp3")); err == nil {
		t.Error("expected parse error")
	}
}
