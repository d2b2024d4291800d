// Package delivery hands finished artifacts to HTTP clients. Each artifact is served once
// and deleted afterwards; unclaimed artifacts are deleted when their token expires.
package delivery

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"thirdcoast.systems/clipfit/internal/artifact"
	"thirdcoast.systems/clipfit/internal/orchestrator"
	"thirdcoast.systems/clipfit/pkg/utils/filename"
)

type entry struct {
	artifact orchestrator.Artifact
	name     string
	expires  time.Time
}

// Registry maps one-shot download tokens to artifact files.
type Registry struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// Add takes ownership of a and returns its download token. title names the attachment.
func (r *Registry) Add(a orchestrator.Artifact, title string) string {
	token := uuid.NewString()
	name := filename.Attachment(title, string(a.Kind), filepath.Ext(a.Path))
	r.mu.Lock()
	r.entries[token] = entry{artifact: a, name: name, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()
	return token
}

// Take removes token from the registry. ok is false for unknown or expired tokens;
// an expired artifact is deleted.
func (r *Registry) Take(token string) (orchestrator.Artifact, string, bool) {
	r.mu.Lock()
	e, ok := r.entries[token]
	delete(r.entries, token)
	r.mu.Unlock()

	if !ok {
		return orchestrator.Artifact{}, "", false
	}
	if r.now().After(e.expires) {
		_ = artifact.Remove(e.artifact.Path)
		return orchestrator.Artifact{}, "", false
	}
	return e.artifact, e.name, true
}

// Len returns the number of pending artifacts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Expire deletes every artifact whose token expired before now.
func (r *Registry) Expire(now time.Time) int {
	r.mu.Lock()
	var expired []entry
	for token, e := range r.entries {
		if now.After(e.expires) {
			expired = append(expired, e)
			delete(r.entries, token)
		}
	}
	r.mu.Unlock()

	for _, e := range expired {
		if err := artifact.Remove(e.artifact.Path); err != nil {
			slog.Warn("delivery: failed to remove expired artifact", "path", e.artifact.Path, "error", err)
		}
	}
	if len(expired) > 0 {
		slog.Info("delivery: expired unclaimed artifacts", "count", len(expired))
	}
	return len(expired)
}

// Run expires tokens every interval until ctx is done, then deletes whatever is left.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Expire(time.Now().Add(r.ttl + time.Second))
			return
		case now := <-ticker.C:
			r.Expire(now)
		}
	}
}

// Serve streams the artifact behind token as an attachment and deletes it afterwards.
func (r *Registry) Serve(c echo.Context, token string) error {
	a, name, ok := r.Take(token)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "artifact not found or already delivered")
	}
	defer func() {
		if err := artifact.Remove(a.Path); err != nil {
			slog.Warn("delivery: failed to remove delivered artifact", "path", a.Path, "error", err)
		}
	}()

	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Attachment(a.Path, name)
}
