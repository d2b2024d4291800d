package artifact

import (
	"errors"
	"log/slog"
	"sync"
)

// Tracker records every path a request created so they can be removed together.
type Tracker struct {
	mu    sync.Mutex
	paths []string
}

func (t *Tracker) Track(paths ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range paths {
		if p != "" {
			t.paths = append(t.paths, p)
		}
	}
}

// Release stops tracking paths; the caller owns them from now on.
func (t *Tracker) Release(paths ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	drop := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		drop[p] = struct{}{}
	}
	kept := t.paths[:0]
	for _, p := range t.paths {
		if _, ok := drop[p]; !ok {
			kept = append(kept, p)
		}
	}
	t.paths = kept
}

// Paths returns a copy of the tracked paths.
func (t *Tracker) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.paths...)
}

// RemoveAll deletes every tracked path and stops tracking them.
func (t *Tracker) RemoveAll() error {
	t.mu.Lock()
	paths := t.paths
	t.paths = nil
	t.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := Remove(p); err != nil {
			slog.Warn("artifact: cleanup failed", "path", p, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
