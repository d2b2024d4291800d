// Package orchestrator composes probing, fetching and post-processing into request-shaped
// operations. Every operation either returns its final artifacts, which the caller then
// owns, or deletes every file it created and returns a classified *mediaerr.Error.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"thirdcoast.systems/clipfit/internal/artifact"
	"thirdcoast.systems/clipfit/internal/fetch"
	"thirdcoast.systems/clipfit/internal/mediaerr"
	"thirdcoast.systems/clipfit/internal/platform"
	"thirdcoast.systems/clipfit/internal/probe"
	"thirdcoast.systems/clipfit/internal/quality"
	"thirdcoast.systems/clipfit/pkg/ffmpeg"
)

const (
	defaultFetchBudgetMB    = 45
	defaultMaxInlineMB      = 50
	defaultMaxDocumentMB    = 2000
	defaultHighCeilingMB    = 100
	defaultCompressTargetMB = 45
)

// DefaultTier is used when a video request names no quality.
const DefaultTier = quality.Tier720

// Fetcher runs the quality ladder for one URL.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (*fetch.Result, error)
}

// Prober returns metadata for a URL; it never fails.
type Prober interface {
	Probe(ctx context.Context, url string) probe.VideoMetadata
}

// PostProcessor transforms fetched files and pulls side assets.
type PostProcessor interface {
	ExtractAudio(ctx context.Context, video string) (artifact.Entry, error)
	Compress(ctx context.Context, video string, targetMB float64) (artifact.Entry, error)
	Trim(ctx context.Context, video string, start, end float64) (artifact.Entry, error)
	ChangeSpeed(ctx context.Context, video string, factor float64) (artifact.Entry, error)
	Convert(ctx context.Context, video, format string) (artifact.Entry, error)
	ExtractSubtitles(ctx context.Context, url string) ([]artifact.Entry, error)
	ExtractThumbnail(ctx context.Context, url string) (artifact.Entry, error)
}

type Config struct {
	// FetchBudgetMB bounds plain video fetches.
	FetchBudgetMB float64
	// MaxInlineMB is the largest artifact delivered inline; larger ones are flagged
	// DeliverAsDocument.
	MaxInlineMB float64
	// MaxDocumentMB is the largest artifact delivered at all.
	MaxDocumentMB float64
	// HighCeilingMB bounds fetches that are post-processed afterwards.
	HighCeilingMB float64
	// CompressTargetMB is used when FetchAndCompress is called with targetMB 0.
	CompressTargetMB float64
	// MaxConcurrent bounds in-flight requests. 0 means unbounded.
	MaxConcurrent int
	// Observer, if set, receives every state transition.
	Observer Observer
}

type Orchestrator struct {
	fetcher  Fetcher
	prober   Prober
	post     PostProcessor
	cfg      Config
	validate *validator.Validate
	sem      *semaphore.Weighted
}

func New(fetcher Fetcher, prober Prober, post PostProcessor, cfg Config) *Orchestrator {
	if cfg.FetchBudgetMB <= 0 {
		cfg.FetchBudgetMB = defaultFetchBudgetMB
	}
	if cfg.MaxInlineMB <= 0 {
		cfg.MaxInlineMB = defaultMaxInlineMB
	}
	if cfg.MaxDocumentMB <= 0 {
		cfg.MaxDocumentMB = defaultMaxDocumentMB
	}
	if cfg.HighCeilingMB <= 0 {
		cfg.HighCeilingMB = defaultHighCeilingMB
	}
	if cfg.CompressTargetMB <= 0 {
		cfg.CompressTargetMB = defaultCompressTargetMB
	}

	o := &Orchestrator{
		fetcher:  fetcher,
		prober:   prober,
		post:     post,
		cfg:      cfg,
		validate: validator.New(),
	}
	if cfg.MaxConcurrent > 0 {
		o.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return o
}

// Artifact is one file handed to the caller.
type Artifact struct {
	Kind      artifact.Kind `json:"kind"`
	Path      string        `json:"-"`
	SizeBytes int64         `json:"size_bytes"`
}

type Result struct {
	RequestID string
	Op        string
	Platform  platform.Tag
	Metadata  probe.VideoMetadata

	RequestedTier    quality.Tier
	TargetTier       quality.Tier
	Tier             quality.Tier
	QualityOptimized bool
	Attempts         int

	DeliverAsDocument bool
	Artifacts         []Artifact
}

// Cleanup deletes every artifact of r. Callers invoke it once delivery is done.
func (r *Result) Cleanup() error {
	var errs []error
	for _, a := range r.Artifacts {
		errs = append(errs, artifact.Remove(a.Path))
	}
	return errors.Join(errs...)
}

// Paths lists the artifact paths in order.
func (r *Result) Paths() []string {
	out := make([]string, 0, len(r.Artifacts))
	for _, a := range r.Artifacts {
		out = append(out, a.Path)
	}
	return out
}

type urlParams struct {
	URL string `validate:"required,http_url"`
}

type compressParams struct {
	URL      string  `validate:"required,http_url"`
	TargetMB float64 `validate:"gte=0"`
}

type trimParams struct {
	URL   string  `validate:"required,http_url"`
	Start float64 `validate:"gte=0"`
	End   float64 `validate:"gtfield=Start"`
}

type speedParams struct {
	URL    string  `validate:"required,http_url"`
	Factor float64 `validate:"gte=0.5,lte=2"`
}

// FetchVideo fetches url at the best tier up to tier that fits the fetch budget.
func (o *Orchestrator) FetchVideo(ctx context.Context, url, tier string) (*Result, error) {
	const op = "video"
	url, t, err := o.videoParams(op, url, tier)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, op, url, t, o.cfg.FetchBudgetMB, nil)
}

// FetchVideoAndAudio fetches url like FetchVideo and also extracts its audio as mp3.
func (o *Orchestrator) FetchVideoAndAudio(ctx context.Context, url, tier string) (*Result, error) {
	const op = "video_audio"
	url, t, err := o.videoParams(op, url, tier)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, op, url, t, o.cfg.FetchBudgetMB, func(ctx context.Context, fetched Artifact) ([]Artifact, error) {
		audio, err := o.post.ExtractAudio(ctx, fetched.Path)
		if err != nil {
			return nil, err
		}
		return []Artifact{fetched, toArtifact(artifact.KindAudio, audio)}, nil
	})
}

// FetchAudioOnly fetches url and returns only its audio track as mp3.
func (o *Orchestrator) FetchAudioOnly(ctx context.Context, url string) (*Result, error) {
	const op = "audio"
	url, err := o.checkURL(op, url)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, op, url, DefaultTier, o.cfg.HighCeilingMB, func(ctx context.Context, fetched Artifact) ([]Artifact, error) {
		audio, err := o.post.ExtractAudio(ctx, fetched.Path)
		if err != nil {
			return nil, err
		}
		return []Artifact{toArtifact(artifact.KindAudio, audio)}, nil
	})
}

// FetchAndCompress fetches url under the high ceiling and re-encodes it to fit targetMB.
// targetMB 0 selects the configured default.
func (o *Orchestrator) FetchAndCompress(ctx context.Context, url string, targetMB float64) (*Result, error) {
	const op = "compress"
	p := compressParams{URL: strings.TrimSpace(url), TargetMB: targetMB}
	if err := o.check(op, p); err != nil {
		return nil, err
	}
	if p.TargetMB == 0 {
		p.TargetMB = o.cfg.CompressTargetMB
	}
	return o.execute(ctx, op, p.URL, DefaultTier, o.cfg.HighCeilingMB, func(ctx context.Context, fetched Artifact) ([]Artifact, error) {
		out, err := o.post.Compress(ctx, fetched.Path, p.TargetMB)
		if err != nil {
			return nil, err
		}
		return []Artifact{toArtifact(artifact.KindCompressed, out)}, nil
	})
}

// FetchAndTrim fetches url and cuts it to [start, end) seconds.
func (o *Orchestrator) FetchAndTrim(ctx context.Context, url string, start, end float64) (*Result, error) {
	const op = "trim"
	p := trimParams{URL: strings.TrimSpace(url), Start: start, End: end}
	if err := o.check(op, p); err != nil {
		return nil, err
	}
	return o.execute(ctx, op, p.URL, DefaultTier, o.cfg.HighCeilingMB, func(ctx context.Context, fetched Artifact) ([]Artifact, error) {
		out, err := o.post.Trim(ctx, fetched.Path, p.Start, p.End)
		if err != nil {
			return nil, err
		}
		return []Artifact{toArtifact(artifact.KindTrimmed, out)}, nil
	})
}

// FetchAndConvert fetches url and converts it into format. Unknown formats fail before
// anything runs.
func (o *Orchestrator) FetchAndConvert(ctx context.Context, url, format string) (*Result, error) {
	const op = "convert"
	url, err := o.checkURL(op, url)
	if err != nil {
		return nil, err
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if _, ok := ffmpeg.PresetForFormat(format); !ok {
		return nil, o.reject(op, url, &mediaerr.Error{
			Kind: mediaerr.KindUnsupportedTarget,
			Op:   op,
			Err:  fmt.Errorf("unknown format %q, supported formats: %s", format, strings.Join(ffmpeg.ConvertFormats, ", ")),
		})
	}
	return o.execute(ctx, op, url, DefaultTier, o.cfg.HighCeilingMB, func(ctx context.Context, fetched Artifact) ([]Artifact, error) {
		out, err := o.post.Convert(ctx, fetched.Path, format)
		if err != nil {
			return nil, err
		}
		return []Artifact{toArtifact(artifact.KindConverted, out)}, nil
	})
}

// FetchAndChangeSpeed fetches url and plays it back at factor (0.5 to 2.0) × speed.
func (o *Orchestrator) FetchAndChangeSpeed(ctx context.Context, url string, factor float64) (*Result, error) {
	const op = "speed"
	p := speedParams{URL: strings.TrimSpace(url), Factor: factor}
	if err := o.check(op, p); err != nil {
		return nil, err
	}
	return o.execute(ctx, op, p.URL, DefaultTier, o.cfg.HighCeilingMB, func(ctx context.Context, fetched Artifact) ([]Artifact, error) {
		out, err := o.post.ChangeSpeed(ctx, fetched.Path, p.Factor)
		if err != nil {
			return nil, err
		}
		return []Artifact{toArtifact(artifact.KindSpeed, out)}, nil
	})
}

// FetchSubtitles downloads the subtitles of url. A source without subtitles yields a
// Ready result with no artifacts.
func (o *Orchestrator) FetchSubtitles(ctx context.Context, url string) (*Result, error) {
	const op = "subtitles"
	url, err := o.checkURL(op, url)
	if err != nil {
		return nil, err
	}
	return o.side(ctx, op, url, func(ctx context.Context) ([]Artifact, error) {
		entries, err := o.post.ExtractSubtitles(ctx, url)
		if err != nil {
			return nil, err
		}
		out := make([]Artifact, 0, len(entries))
		for _, e := range entries {
			out = append(out, toArtifact(artifact.KindSubtitle, e))
		}
		return out, nil
	})
}

// FetchThumbnail downloads the thumbnail of url as jpg.
func (o *Orchestrator) FetchThumbnail(ctx context.Context, url string) (*Result, error) {
	const op = "thumbnail"
	url, err := o.checkURL(op, url)
	if err != nil {
		return nil, err
	}
	return o.side(ctx, op, url, func(ctx context.Context) ([]Artifact, error) {
		thumb, err := o.post.ExtractThumbnail(ctx, url)
		if err != nil {
			return nil, err
		}
		return []Artifact{toArtifact(artifact.KindThumb, thumb)}, nil
	})
}

// Describe probes url without downloading anything.
func (o *Orchestrator) Describe(ctx context.Context, url string) (*Result, error) {
	const op = "describe"
	url, err := o.checkURL(op, url)
	if err != nil {
		return nil, err
	}

	req := o.begin(op, url)
	req.emit(Event{State: StateProbing})
	md := o.prober.Probe(ctx, url)
	res := req.result()
	res.Metadata = md
	req.emit(Event{State: StateReady})
	return res, nil
}

// postFunc turns the fetched video into the final artifacts.
type postFunc func(ctx context.Context, fetched Artifact) ([]Artifact, error)

// execute runs one fetch and an optional post-processing step.
func (o *Orchestrator) execute(ctx context.Context, op, url string, tier quality.Tier, maxMB float64, post postFunc) (*Result, error) {
	req := o.begin(op, url)

	release, err := o.admit(ctx)
	if err != nil {
		return nil, req.fail(err)
	}
	defer release()

	req.emit(Event{State: StateProbing})
	fr, err := o.fetcher.Fetch(ctx, fetch.Request{
		URL:           url,
		RequestedTier: tier,
		MaxSizeMB:     maxMB,
		Kind:          artifact.KindVideo,
		OnAttempt: func(a fetch.Attempt) {
			req.emit(Event{State: StateFetching, Attempt: a.N, Tier: a.Tier})
		},
	})
	if err != nil {
		return nil, req.fail(err)
	}
	req.tracker.Track(fr.Path)
	req.emit(Event{State: StateFetched, Tier: fr.Tier, Attempt: fr.Attempts})

	res := req.result()
	res.Metadata = fr.Metadata
	res.Platform = fr.Platform
	res.RequestedTier = fr.RequestedTier
	res.TargetTier = fr.TargetTier
	res.Tier = fr.Tier
	res.QualityOptimized = fr.QualityOptimized()
	res.Attempts = fr.Attempts
	res.DeliverAsDocument = fr.DeliverAsDocument

	fetched := Artifact{Kind: artifact.KindVideo, Path: fr.Path, SizeBytes: fr.SizeBytes}
	if post == nil {
		res.Artifacts = []Artifact{fetched}
		return req.finish(res)
	}

	req.emit(Event{State: StatePostProcessing})
	arts, err := post(ctx, fetched)
	if err != nil {
		return nil, req.fail(err)
	}
	res.Artifacts = arts
	// finish derives the hint from the final sizes unless the fetched file is handed over as-is.
	if !slices.ContainsFunc(arts, func(a Artifact) bool { return a.Path == fr.Path }) {
		res.DeliverAsDocument = false
	}
	return req.finish(res)
}

// side runs an operation that produces assets straight from the URL, without a fetch.
func (o *Orchestrator) side(ctx context.Context, op, url string, run func(ctx context.Context) ([]Artifact, error)) (*Result, error) {
	req := o.begin(op, url)

	release, err := o.admit(ctx)
	if err != nil {
		return nil, req.fail(err)
	}
	defer release()

	req.emit(Event{State: StatePostProcessing})
	arts, err := run(ctx)
	if err != nil {
		return nil, req.fail(err)
	}
	res := req.result()
	res.Artifacts = arts
	return req.finish(res)
}

// admit blocks until the request may run.
func (o *Orchestrator) admit(ctx context.Context) (func(), error) {
	if o.sem == nil {
		return func() {}, nil
	}
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, mediaerr.E(mediaerr.KindTimeout, "admit", err)
	}
	return func() { o.sem.Release(1) }, nil
}

func (o *Orchestrator) videoParams(op, url, tier string) (string, quality.Tier, error) {
	url, err := o.checkURL(op, url)
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(tier) == "" {
		return url, DefaultTier, nil
	}
	t, err := quality.ParseTier(tier)
	if err != nil {
		return "", "", o.reject(op, url, err)
	}
	return url, t, nil
}

func (o *Orchestrator) checkURL(op, url string) (string, error) {
	p := urlParams{URL: strings.TrimSpace(url)}
	if err := o.check(op, p); err != nil {
		return "", err
	}
	return p.URL, nil
}

// check validates params with their struct tags and the URL with platform.ValidateURL.
func (o *Orchestrator) check(op string, params any) error {
	var url string
	switch p := params.(type) {
	case urlParams:
		url = p.URL
	case compressParams:
		url = p.URL
	case trimParams:
		url = p.URL
	case speedParams:
		url = p.URL
	}

	if err := o.validate.Struct(params); err != nil {
		return o.reject(op, url, &mediaerr.Error{Kind: mediaerr.KindInvalidParameters, Op: op, Err: describeValidation(err)})
	}
	if _, err := platform.ValidateURL(url); err != nil {
		return o.reject(op, url, &mediaerr.Error{Kind: mediaerr.KindInvalidParameters, Op: op, Err: err})
	}
	return nil
}

// reject reports a request that failed before anything ran.
func (o *Orchestrator) reject(op, url string, err error) error {
	req := o.begin(op, url)
	return req.fail(err)
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "http_url":
			parts = append(parts, field+" must be an http(s) link")
		case "gtfield":
			parts = append(parts, fmt.Sprintf("%s must be greater than %s", field, strings.ToLower(fe.Param())))
		default:
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
		}
	}
	return errors.New(strings.Join(parts, "; "))
}

func toArtifact(kind artifact.Kind, e artifact.Entry) Artifact {
	return Artifact{Kind: kind, Path: e.Path, SizeBytes: e.Size}
}

// request is the per-call state: identity, tracked files and the observer.
type request struct {
	id       string
	op       string
	url      string
	platform platform.Tag
	tracker  artifact.Tracker
	o        *Orchestrator
	log      *slog.Logger
}

func (o *Orchestrator) begin(op, url string) *request {
	id := uuid.NewString()
	r := &request{
		id:       id,
		op:       op,
		url:      url,
		platform: platform.Classify(url),
		o:        o,
		log:      slog.With("request_id", id, "op", op, "url", url),
	}
	r.emit(Event{State: StatePending})
	return r
}

func (r *request) emit(ev Event) {
	ev.RequestID = r.id
	ev.Op = r.op
	if obs := r.o.cfg.Observer; obs != nil {
		obs(ev)
	}
}

func (r *request) result() *Result {
	return &Result{RequestID: r.id, Op: r.op, Platform: r.platform}
}

// finish tracks the final artifacts, enforces the delivery ceilings, then hands the
// final artifacts to the caller and deletes every intermediate.
func (r *request) finish(res *Result) (*Result, error) {
	for _, a := range res.Artifacts {
		r.tracker.Track(a.Path)
	}

	for _, a := range res.Artifacts {
		mb := artifact.MB(a.SizeBytes)
		if mb > r.o.cfg.MaxDocumentMB {
			return nil, r.fail(&mediaerr.Error{
				Kind:     mediaerr.KindSizeExceeded,
				Op:       r.op,
				Platform: string(res.Platform),
				Err:      fmt.Errorf("%s is %s, above the %.0f MB delivery ceiling", a.Kind, humanize.IBytes(uint64(a.SizeBytes)), r.o.cfg.MaxDocumentMB),
			})
		}
		if mb > r.o.cfg.MaxInlineMB {
			res.DeliverAsDocument = true
		}
	}

	r.tracker.Release(res.Paths()...)
	if err := r.tracker.RemoveAll(); err != nil {
		r.log.Warn("orchestrator: intermediate cleanup failed", "error", err)
	}

	total := int64(0)
	for _, a := range res.Artifacts {
		total += a.SizeBytes
	}
	r.log.Info("orchestrator: ready",
		"platform", res.Platform,
		"artifacts", len(res.Artifacts),
		"size", humanize.IBytes(uint64(total)),
		"tier", res.Tier,
		"document", res.DeliverAsDocument,
	)
	r.emit(Event{State: StateReady, Tier: res.Tier, Attempt: res.Attempts})
	return res, nil
}

// fail deletes every tracked file and returns err as a classified error.
func (r *request) fail(err error) error {
	if cerr := r.tracker.RemoveAll(); cerr != nil {
		r.log.Warn("orchestrator: cleanup after failure incomplete", "error", cerr)
	}

	var me *mediaerr.Error
	if !errors.As(err, &me) {
		me = &mediaerr.Error{Kind: mediaerr.KindInternal, Op: r.op, Err: err}
	}
	if me.Platform == "" && r.platform != platform.Other {
		me.Platform = string(r.platform)
	}

	r.log.Warn("orchestrator: failed", "kind", me.Kind, "error", err)
	r.emit(Event{State: StateFailed, Err: me})
	return me
}
