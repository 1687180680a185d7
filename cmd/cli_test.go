package cmd

import (
	"errors"
	"testing"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    Options
		wantErr bool
	}{
		{
			name: "Play defaults",
			args: []string{"play"},
			want: Options{Command: CommandPlay, ReadCache: true},
		},
		{
			name: "Play file without cache",
			args: []string{"play", "--file", "song.mp3", "--readcache=false", "--continuous"},
			want: Options{Command: CommandPlay, File: "song.mp3", Continuous: true},
		},
		{
			name: "Persistent flags",
			args: []string{"-c", "show.yaml", "--log", "DEBUG", "play", "-p", "list"},
			want: Options{Command: CommandPlay, ConfigPath: "show.yaml", LogLevel: "DEBUG", Playlist: "list", ReadCache: true},
		},
		{
			name:    "File and playlist exclusive",
			args:    []string{"play", "-f", "a.wav", "-p", "list"},
			wantErr: true,
		},
		{
			name: "Cache never reads the cache",
			args: []string{"cache", "-f", "a.wav"},
			want: Options{Command: CommandCache, File: "a.wav"},
		},
		{
			name: "Client",
			args: []string{"client"},
			want: Options{Command: CommandClient, ReadCache: true},
		},
		{
			name: "Audio in",
			args: []string{"audio-in"},
			want: Options{Command: CommandAudioIn, ReadCache: true},
		},
		{
			name: "Lights on",
			args: []string{"lights", "on"},
			want: Options{Command: CommandLights, LightsOn: true, ReadCache: true},
		},
		{
			name: "Lights off",
			args: []string{"lights", "off"},
			want: Options{Command: CommandLights, ReadCache: true},
		},
		{
			name:    "Lights needs a state",
			args:    []string{"lights"},
			wantErr: true,
		},
		{
			name:    "Lights rejects unknown state",
			args:    []string{"lights", "dim"},
			wantErr: true,
		},
		{
			name: "Devices",
			args: []string{"devices"},
			want: Options{Command: CommandDevices, ReadCache: true},
		},
		{
			name:    "Unknown flag",
			args:    []string{"play", "--loud"},
			wantErr: true,
		},
		{
			name:    "Arguments to play",
			args:    []string{"play", "extra"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseArgs(%v) = %+v, want error", tt.args, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseArgs(%v): %v", tt.args, err)
			}
			if *got != tt.want {
				t.Errorf("parseArgs(%v) = %+v, want %+v", tt.args, *got, tt.want)
			}
		})
	}
}

func TestParseArgsNoCommand(t *testing.T) {
	if _, err := parseArgs([]string{}); !errors.Is(err, ErrNoCommand) {
		t.Errorf("parseArgs() = %v, want ErrNoCommand", err)
	}
}
