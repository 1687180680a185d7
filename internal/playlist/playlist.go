// Package playlist reads and writes tab-separated playlists and picks the
// next song to play.
package playlist

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"lightshow/internal/fsutil"
	"lightshow/internal/log"
)

var logger = log.New("Playlist")

// ErrEmpty is returned when a playlist has no playable lines.
var ErrEmpty = errors.New("playlist is empty")

// Song is one playlist line: name<TAB>path[<TAB>votes[<TAB>note]].
type Song struct {
	Name  string
	Path  string   // As written; may contain $LIGHTSHOW_HOME.
	Votes []string // Voter identifiers.
	Note  string
}

// Playlist is an ordered list of songs backed by a file.
type Playlist struct {
	Path  string
	Songs []Song
}

// Load parses the playlist at path. Lines with fewer than two or more than
// four fields are skipped with a warning.
func Load(path string) (*Playlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playlist: %w", err)
	}

	p := &Playlist{Path: path}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 || len(fields) > 4 {
			logger.Warnf("%s:%d: expected 2 to 4 tab-separated fields, got %d", path, lineNo, len(fields))
			continue
		}
		song := Song{Name: fields[0], Path: fields[1]}
		if len(fields) >= 3 {
			song.Votes = parseVotes(fields[2])
		}
		if len(fields) == 4 {
			song.Note = fields[3]
		}
		p.Songs = append(p.Songs, song)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan playlist: %w", err)
	}
	if len(p.Songs) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return p, nil
}

// Save rewrites the playlist atomically.
func (p *Playlist) Save() error {
	var buf bytes.Buffer
	for _, s := range p.Songs {
		buf.WriteString(s.Name)
		buf.WriteByte('\t')
		buf.WriteString(s.Path)
		if len(s.Votes) > 0 || s.Note != "" {
			buf.WriteByte('\t')
			buf.WriteString(strings.Join(s.Votes, ","))
		}
		if s.Note != "" {
			buf.WriteByte('\t')
			buf.WriteString(s.Note)
		}
		buf.WriteByte('\n')
	}
	return fsutil.WriteFileAtomic(p.Path, buf.Bytes(), 0644)
}

func parseVotes(field string) []string {
	var votes []string
	seen := map[string]bool{}
	for _, v := range strings.Split(field, ",") {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		votes = append(votes, v)
	}
	return votes
}
