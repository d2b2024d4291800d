// Package artifact manages the transient directory where fetched and processed media live.
package artifact

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"
)

// Kind is the filename prefix describing what a file holds.
type Kind string

const (
	KindVideo      Kind = "video"
	KindAudio      Kind = "audio"
	KindThumb      Kind = "thumb"
	KindSubtitle   Kind = "subtitle"
	KindCompressed Kind = "compressed"
	KindTrimmed    Kind = "trimmed"
	KindConverted  Kind = "converted"
	KindSpeed      Kind = "speed"
)

// Workspace is one transient directory shared by all requests.
type Workspace struct {
	dir string
}

// NewWorkspace creates dir if needed.
func NewWorkspace(dir string) (*Workspace, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact: directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("artifact: resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create %s: %w", abs, err)
	}
	return &Workspace{dir: abs}, nil
}

func (w *Workspace) Dir() string { return w.dir }

var lastStamp atomic.Int64

// nextStamp returns the current unix time in milliseconds, bumped so that every call in
// this process returns a strictly larger value.
func nextStamp() int64 {
	for {
		now := time.Now().UnixMilli()
		prev := lastStamp.Load()
		if now <= prev {
			now = prev + 1
		}
		if lastStamp.CompareAndSwap(prev, now) {
			return now
		}
	}
}

// NewName returns a fresh "{kind}_{timestamp}" base name.
func (w *Workspace) NewName(kind Kind) string {
	return string(kind) + "_" + strconv.FormatInt(nextStamp(), 10)
}

// Path returns the path for base name plus extension (without dot).
func (w *Workspace) Path(name, ext string) string {
	if ext == "" {
		return filepath.Join(w.dir, name)
	}
	return filepath.Join(w.dir, name+"."+ext)
}

// Template returns a yt-dlp output template that keeps name and lets the tool pick the extension.
func (w *Workspace) Template(name string) string {
	return filepath.Join(w.dir, name+".%(ext)s")
}

// Clear removes everything inside the workspace, keeping the directory itself.
func (w *Workspace) Clear() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("artifact: read %s: %w", w.dir, err)
	}
	removed := 0
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(w.dir, e.Name())); err != nil {
			slog.Warn("artifact: failed to clear entry", "path", filepath.Join(w.dir, e.Name()), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("artifact: cleared workspace", "dir", w.dir, "removed", removed)
	}
	return nil
}

// Remove deletes path, ignoring files that are already gone.
func Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Size returns the size of path in bytes.
func Size(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// CopyFile copies src to dst, preserving permissions.
func CopyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		destFile.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := destFile.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.Chmod(dst, srcInfo.Mode())
}

// MB converts bytes to (binary) megabytes.
func MB(bytes int64) float64 {
	return float64(bytes) / (1024 * 1024)
}
