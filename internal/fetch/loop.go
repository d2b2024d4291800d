// Package fetch downloads a source at the highest quality that fits a size budget.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"thirdcoast.systems/clipfit/internal/artifact"
	"thirdcoast.systems/clipfit/internal/mediaerr"
	"thirdcoast.systems/clipfit/internal/platform"
	"thirdcoast.systems/clipfit/internal/probe"
	"thirdcoast.systems/clipfit/internal/quality"
)

var (
	errNoOutput = errors.New("fetch: tool reported success but produced no file")
	errOversize = errors.New("fetch: file exceeds size budget")
)

// Prober returns metadata for a URL; it never fails.
type Prober interface {
	Probe(ctx context.Context, url string) probe.VideoMetadata
}

// Downloader runs one fetch-tool invocation.
type Downloader interface {
	Download(ctx context.Context, url, outputTemplate, format string, extraArgs ...string) error
}

type Config struct {
	Selector SelectorOptions
	// MaxDocumentMB bounds what the simple fallback may accept.
	MaxDocumentMB float64
	// AttemptSpacing is the minimum time between attempts against the same host. 0 disables it.
	AttemptSpacing time.Duration
}

type Loop struct {
	prober     Prober
	downloader Downloader
	workspace  *artifact.Workspace
	cfg        Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewLoop(prober Prober, downloader Downloader, workspace *artifact.Workspace, cfg Config) *Loop {
	return &Loop{
		prober:     prober,
		downloader: downloader,
		workspace:  workspace,
		cfg:        cfg,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// Attempt describes one fetch-tool invocation, reported before it starts.
type Attempt struct {
	N      int
	Tier   quality.Tier
	Simple bool
}

type Request struct {
	URL           string
	RequestedTier quality.Tier
	MaxSizeMB     float64
	// Kind names the produced file; defaults to artifact.KindVideo.
	Kind artifact.Kind

	// OnProbed, if set, receives metadata before the first attempt.
	OnProbed func(probe.VideoMetadata)
	// OnAttempt, if set, is called before each attempt.
	OnAttempt func(Attempt)
}

type Result struct {
	Path      string
	SizeBytes int64
	SizeMB    float64

	// Tier is the tier that was accepted; TargetTier is the duration-capped tier the
	// ladder started from.
	Tier          quality.Tier
	TargetTier    quality.Tier
	RequestedTier quality.Tier

	Platform          platform.Tag
	DeliverAsDocument bool
	Metadata          probe.VideoMetadata
	Attempts          int
}

// QualityOptimized reports whether the accepted tier differs from the target tier.
func (r *Result) QualityOptimized() bool {
	return r.Tier != r.TargetTier
}

// Fetch probes url, then walks the quality ladder until one attempt produces a file within
// MaxSizeMB. Rejected and partial files are deleted as soon as they are seen, so at most
// one file for the request exists when Fetch returns, and none on error.
func (l *Loop) Fetch(ctx context.Context, req Request) (*Result, error) {
	if req.Kind == "" {
		req.Kind = artifact.KindVideo
	}

	md := l.prober.Probe(ctx, req.URL)
	if req.OnProbed != nil {
		req.OnProbed(md)
	}

	p := platform.Classify(req.URL)
	target := quality.CapByDuration(md.DurationSeconds, req.RequestedTier)
	ladder := quality.BuildLadder(p, target)
	name := l.workspace.NewName(req.Kind)

	log := slog.With("url", req.URL, "platform", p, "name", name)
	log.Info("fetch: starting",
		"requested", req.RequestedTier,
		"target", target,
		"ladder", ladder.Strings(),
		"duration", md.DurationSeconds,
		"max_mb", req.MaxSizeMB,
	)

	res := &Result{
		TargetTier:    target,
		RequestedTier: req.RequestedTier,
		Platform:      p,
		Metadata:      md,
	}

	var lastErr error
	for _, tier := range ladder {
		res.Attempts++
		entry, err := l.attempt(ctx, req, name, Attempt{N: res.Attempts, Tier: tier}, BuildSelector(p, tier, l.cfg.Selector))
		if err == nil && artifact.MB(entry.Size) > req.MaxSizeMB {
			_ = artifact.Remove(entry.Path)
			err = fmt.Errorf("%w: %.1f MB > %.1f MB at %s", errOversize, artifact.MB(entry.Size), req.MaxSizeMB, tier)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, l.fail(name, p, ctx.Err(), mediaerr.KindTimeout)
			}
			log.Warn("fetch: attempt failed", "attempt", res.Attempts, "tier", tier, "error", err)
			lastErr = err
			continue
		}

		res.accept(entry, tier)
		log.Info("fetch: accepted", "tier", tier, "size", humanize.IBytes(uint64(entry.Size)), "attempts", res.Attempts)
		return res, nil
	}

	if p.SimpleFallback() {
		res.Attempts++
		entry, err := l.attempt(ctx, req, name, Attempt{N: res.Attempts, Tier: quality.Best, Simple: true}, SimpleSelector(p, l.cfg.Selector))
		if err == nil && artifact.MB(entry.Size) > l.cfg.MaxDocumentMB {
			_ = artifact.Remove(entry.Path)
			err = fmt.Errorf("%w: %.1f MB > document ceiling %.1f MB", errOversize, artifact.MB(entry.Size), l.cfg.MaxDocumentMB)
		}
		if err == nil {
			res.accept(entry, quality.Best)
			res.DeliverAsDocument = true
			log.Info("fetch: accepted simple fetch", "size", humanize.IBytes(uint64(entry.Size)), "attempts", res.Attempts)
			return res, nil
		}
		log.Warn("fetch: simple fetch failed", "error", err)
		lastErr = err
	}

	kind := mediaerr.ClassifyTool(lastErr, mediaerr.KindAllTiersExhausted)
	if errors.Is(lastErr, errOversize) {
		kind = mediaerr.KindSizeExceeded
	}
	log.Warn("fetch: all attempts failed", "kind", kind, "attempts", res.Attempts)
	return nil, l.fail(name, p, lastErr, kind)
}

func (r *Result) accept(entry artifact.Entry, tier quality.Tier) {
	r.Path = entry.Path
	r.SizeBytes = entry.Size
	r.SizeMB = artifact.MB(entry.Size)
	r.Tier = tier
}

// attempt runs one download and claims its output.
func (l *Loop) attempt(ctx context.Context, req Request, name string, a Attempt, sel Selector) (artifact.Entry, error) {
	if err := l.wait(ctx, req.URL); err != nil {
		return artifact.Entry{}, err
	}
	if req.OnAttempt != nil {
		req.OnAttempt(a)
	}

	slog.Debug("fetch: attempt", "name", name, "attempt", a.N, "tier", a.Tier, "simple", a.Simple, "format", sel.Format)
	if err := l.downloader.Download(ctx, req.URL, l.workspace.Template(name), sel.Format, sel.Args...); err != nil {
		l.workspace.RemoveName(name)
		return artifact.Entry{}, err
	}

	entry, ok, err := l.workspace.Claim(name)
	if err != nil {
		return artifact.Entry{}, err
	}
	if !ok {
		return artifact.Entry{}, errNoOutput
	}
	return entry, nil
}

// wait enforces AttemptSpacing per host.
func (l *Loop) wait(ctx context.Context, url string) error {
	if l.cfg.AttemptSpacing <= 0 {
		return nil
	}
	host := platform.Host(url)

	l.mu.Lock()
	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.cfg.AttemptSpacing), 1)
		l.limiters[host] = lim
	}
	l.mu.Unlock()

	return lim.Wait(ctx)
}

func (l *Loop) fail(name string, p platform.Tag, err error, kind mediaerr.Kind) error {
	l.workspace.RemoveName(name)
	return &mediaerr.Error{Kind: kind, Op: "fetch", Platform: string(p), Err: err}
}
