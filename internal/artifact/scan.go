package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Entry is one completed file matching a name prefix.
type Entry struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// yt-dlp per-stream intermediates look like name.f137.mp4
var streamPartRe = regexp.MustCompile(`\.f\d+\.`)

// partial reports in-progress or intermediate yt-dlp files.
func partial(base string) bool {
	lower := strings.ToLower(base)
	if strings.Contains(lower, ".part") || streamPartRe.MatchString(lower) {
		return true
	}
	for _, suffix := range []string{".ytdl", ".temp", ".tmp"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// matches reports whether base belongs to name ("name" or "name.*").
func matches(base, name string) bool {
	return base == name || strings.HasPrefix(base, name+".")
}

// Scan lists files for name. Completed files come back as entries sorted by preference
// (mp4 first, then larger first); partial files are returned separately.
func (w *Workspace) Scan(name string) (complete []Entry, partials []string, err error) {
	dirEntries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("artifact: scan %s: %w", w.dir, err)
	}

	for _, de := range dirEntries {
		if de.IsDir() || !matches(de.Name(), name) {
			continue
		}
		path := filepath.Join(w.dir, de.Name())
		if partial(de.Name()) {
			partials = append(partials, path)
			continue
		}
		fi, err := de.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		complete = append(complete, Entry{Path: path, Size: fi.Size(), ModTime: fi.ModTime()})
	}

	sort.SliceStable(complete, func(i, j int) bool {
		pi, pj := extPriority(complete[i].Path), extPriority(complete[j].Path)
		if pi != pj {
			return pi < pj
		}
		return complete[i].Size > complete[j].Size
	})
	return complete, partials, nil
}

func extPriority(path string) int {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return 0
	case ".webm":
		return 1
	case ".mkv":
		return 2
	case ".mov":
		return 3
	default:
		return 4
	}
}

// Claim returns the preferred completed file for name and deletes every other file with
// that name (leftover containers and partials). ok is false when nothing completed exists.
func (w *Workspace) Claim(name string) (entry Entry, ok bool, err error) {
	complete, partials, err := w.Scan(name)
	if err != nil {
		return Entry{}, false, err
	}
	for _, p := range partials {
		_ = Remove(p)
	}
	if len(complete) == 0 {
		return Entry{}, false, nil
	}
	for _, extra := range complete[1:] {
		_ = Remove(extra.Path)
	}
	return complete[0], true, nil
}

// Collect returns every completed file for name, deleting partials.
func (w *Workspace) Collect(name string) ([]Entry, error) {
	complete, partials, err := w.Scan(name)
	if err != nil {
		return nil, err
	}
	for _, p := range partials {
		_ = Remove(p)
	}
	sort.Slice(complete, func(i, j int) bool { return complete[i].Path < complete[j].Path })
	return complete, nil
}

// RemoveName deletes every file for name and returns how many were removed.
func (w *Workspace) RemoveName(name string) int {
	complete, partials, err := w.Scan(name)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range complete {
		if Remove(e.Path) == nil {
			n++
		}
	}
	for _, p := range partials {
		if Remove(p) == nil {
			n++
		}
	}
	return n
}
