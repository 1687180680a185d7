package playlist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lightshow/internal/state"
)

type memState map[string]int

func (m memState) Get(key string) int { return m[key] }

func (m memState) Set(key string, v int) error {
	m[key] = v
	return nil
}

func writePlaylist(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "playlist")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writePlaylist(t,
		"Carol\t$LIGHTSHOW_HOME/music/carol.mp3",
		"",
		"Bells\t/music/bells.wav\talice,bob,alice",
		"broken line",
		"Sleigh\t/music/sleigh.wav\t\tqueued",
		"Too\tmany\tfields\there\tnow",
	)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(p.Songs) != 3 {
		t.Fatalf("got %d songs, want 3: %+v", len(p.Songs), p.Songs)
	}
	if p.Songs[0].Path != "$LIGHTSHOW_HOME/music/carol.mp3" {
		t.Errorf("path = %q", p.Songs[0].Path)
	}
	if got := p.Songs[1].Votes; len(got) != 2 {
		t.Errorf("votes = %v, want two unique voters", got)
	}
	if p.Songs[2].Note != "queued" || len(p.Songs[2].Votes) != 0 {
		t.Errorf("song 2 = %+v", p.Songs[2])
	}
}

func TestLoadEmpty(t *testing.T) {
	path := writePlaylist(t, "only-one-field")
	if _, err := Load(path); !errors.Is(err, ErrEmpty) {
		t.Errorf("Load = %v, want ErrEmpty", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := writePlaylist(t,
		"A\t/a.wav",
		"B\t/b.wav\tx,y",
		"C\t/c.wav\t\tnote",
	)
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, _ := os.ReadFile(path)
	want := "A\t/a.wav\nB\t/b.wav\tx,y\nC\t/c.wav\t\tnote\n"
	if string(data) != want {
		t.Errorf("saved playlist = %q, want %q", data, want)
	}
}

func TestSelectorPriority(t *testing.T) {
	tests := []struct {
		name      string
		lines     []string
		state     memState
		randomize bool
		wantIndex int
		wantWhy   Reason
	}{
		{
			name:      "Play now wins over votes",
			lines:     []string{"A\t/a", "B\t/b\tv1,v2", "C\t/c"},
			state:     memState{state.KeyPlayNow: 3},
			wantIndex: 2,
			wantWhy:   ReasonPlayNow,
		},
		{
			name:      "Out of range play now is ignored",
			lines:     []string{"A\t/a", "B\t/b"},
			state:     memState{state.KeyPlayNow: 9, state.KeySongToPlay: 1},
			wantIndex: 1,
			wantWhy:   ReasonRoundRobin,
		},
		{
			name:      "Most votes",
			lines:     []string{"A\t/a\tv1", "B\t/b\tv1,v2", "C\t/c"},
			state:     memState{},
			randomize: true,
			wantIndex: 1,
			wantWhy:   ReasonVotes,
		},
		{
			name:      "Vote tie goes to later entry",
			lines:     []string{"A\t/a\tv1,v2", "B\t/b", "C\t/c\tv3,v4"},
			state:     memState{},
			wantIndex: 2,
			wantWhy:   ReasonVotes,
		},
		{
			name:      "Random",
			lines:     []string{"A\t/a", "B\t/b", "C\t/c"},
			state:     memState{},
			randomize: true,
			wantIndex: 1,
			wantWhy:   ReasonRandom,
		},
		{
			name:      "Round robin",
			lines:     []string{"A\t/a", "B\t/b", "C\t/c"},
			state:     memState{state.KeySongToPlay: 2},
			wantIndex: 2,
			wantWhy:   ReasonRoundRobin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writePlaylist(t, tt.lines...)
			sel := NewSelector(path, tt.state, tt.randomize, nil)
			sel.intN = func(int) int { return 1 }

			got, err := sel.Next()
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if got.Index != tt.wantIndex || got.Reason != tt.wantWhy {
				t.Errorf("Next = %d (%s), want %d (%s)", got.Index, got.Reason, tt.wantIndex, tt.wantWhy)
			}
			if tt.state[state.KeyCurrentSong] != tt.wantIndex {
				t.Errorf("current_song = %d, want %d", tt.state[state.KeyCurrentSong], tt.wantIndex)
			}
		})
	}
}

func TestSelectorResetsPlayNow(t *testing.T) {
	path := writePlaylist(t, "A\t/a", "B\t/b")
	st := memState{state.KeyPlayNow: 2}
	sel := NewSelector(path, st, false, nil)

	if _, err := sel.Next(); err != nil {
		t.Fatal(err)
	}
	if st[state.KeyPlayNow] != 0 {
		t.Errorf("play_now = %d, want reset to 0", st[state.KeyPlayNow])
	}
}

func TestSelectorClearsWinningVotes(t *testing.T) {
	path := writePlaylist(t, "A\t/a\tv1", "B\t/b\tv1,v2")
	sel := NewSelector(path, memState{}, false, nil)

	first, err := sel.Next()
	if err != nil || first.Index != 1 {
		t.Fatalf("first Next = %d, %v", first.Index, err)
	}
	second, err := sel.Next()
	if err != nil || second.Index != 0 || second.Reason != ReasonVotes {
		t.Fatalf("second Next = %d (%s), %v; want A by votes", second.Index, second.Reason, err)
	}
}

func TestSelectorRoundRobinWrapsAndPersists(t *testing.T) {
	dir := t.TempDir()
	path := writePlaylist(t, "A\t/a", "B\t/b", "C\t/c")
	st, err := state.Open(filepath.Join(dir, "state.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	var order []int
	for range 4 {
		// A fresh selector each time, as after a restart.
		got, err := NewSelector(path, st, false, nil).Next()
		if err != nil {
			t.Fatal(err)
		}
		order = append(order, got.Index)
	}
	want := []int{0, 1, 2, 0}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSelectorExpandsPath(t *testing.T) {
	path := writePlaylist(t, "A\t$LIGHTSHOW_HOME/a.wav")
	sel := NewSelector(path, memState{}, false, func(s string) string {
		return strings.ReplaceAll(s, "$LIGHTSHOW_HOME", "/opt/show")
	})
	got, err := sel.Next()
	if err != nil {
		t.Fatal(err)
	}
	if got.File != "/opt/show/a.wav" {
		t.Errorf("File = %q", got.File)
	}
}
