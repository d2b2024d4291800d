package artifact

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

// Sweep deletes files in the workspace last modified before now-maxAge.
func (w *Workspace) Sweep(now time.Time, maxAge time.Duration) (removed int, freed int64) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		slog.Warn("artifact: sweep failed", "dir", w.dir, "error", err)
		return 0, 0
	}

	cutoff := now.Add(-maxAge)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil || !fi.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if err := Remove(path); err != nil {
			slog.Warn("artifact: sweep remove failed", "path", path, "error", err)
			continue
		}
		removed++
		freed += fi.Size()
	}

	if removed > 0 {
		slog.Info("artifact: swept stale files", "dir", w.dir, "removed", removed, "freed", humanize.Bytes(uint64(freed)))
	}
	return removed, freed
}

// RunSweeper sweeps every interval until ctx is done.
func (w *Workspace) RunSweeper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.Sweep(now, maxAge)
		}
	}
}
