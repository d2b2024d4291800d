// Package media_api exposes the fetch and post-processing operations as JSON endpoints.
package media_api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"

	"thirdcoast.systems/clipfit/cmd/server/handlers/common"
	"thirdcoast.systems/clipfit/cmd/server/handlers/delivery"
	"thirdcoast.systems/clipfit/internal/orchestrator"
)

// Service is the set of operations the API exposes.
type Service interface {
	FetchVideo(ctx context.Context, url, tier string) (*orchestrator.Result, error)
	FetchVideoAndAudio(ctx context.Context, url, tier string) (*orchestrator.Result, error)
	FetchAudioOnly(ctx context.Context, url string) (*orchestrator.Result, error)
	FetchAndCompress(ctx context.Context, url string, targetMB float64) (*orchestrator.Result, error)
	FetchAndTrim(ctx context.Context, url string, start, end float64) (*orchestrator.Result, error)
	FetchAndConvert(ctx context.Context, url, format string) (*orchestrator.Result, error)
	FetchAndChangeSpeed(ctx context.Context, url string, factor float64) (*orchestrator.Result, error)
	FetchSubtitles(ctx context.Context, url string) (*orchestrator.Result, error)
	FetchThumbnail(ctx context.Context, url string) (*orchestrator.Result, error)
	Describe(ctx context.Context, url string) (*orchestrator.Result, error)
}

type Handler struct {
	svc      Service
	registry *delivery.Registry
}

func NewHandler(svc Service, registry *delivery.Registry) *Handler {
	return &Handler{svc: svc, registry: registry}
}

type ArtifactView struct {
	Kind        string `json:"kind"`
	Size        int64  `json:"size"`
	SizeHuman   string `json:"size_human"`
	DownloadURL string `json:"download_url"`
}

type ResultView struct {
	RequestID         string         `json:"request_id"`
	Platform          string         `json:"platform"`
	Title             string         `json:"title,omitempty"`
	Uploader          string         `json:"uploader,omitempty"`
	DurationSeconds   float64        `json:"duration_seconds,omitempty"`
	RequestedQuality  string         `json:"requested_quality,omitempty"`
	TargetQuality     string         `json:"target_quality,omitempty"`
	Quality           string         `json:"quality,omitempty"`
	QualityOptimized  bool           `json:"quality_optimized"`
	DeliverAsDocument bool           `json:"deliver_as_document"`
	Artifacts         []ArtifactView `json:"artifacts"`
}

// respond registers every artifact for one-shot download and renders the result.
func (h *Handler) respond(c echo.Context, res *orchestrator.Result, err error) error {
	if err != nil {
		slog.Error("media request failed", "path", c.Path(), "error", err)
		return common.ErrMedia(err)
	}

	view := ResultView{
		RequestID:         res.RequestID,
		Platform:          string(res.Platform),
		Title:             res.Metadata.Title,
		Uploader:          res.Metadata.Uploader,
		DurationSeconds:   res.Metadata.DurationSeconds,
		RequestedQuality:  string(res.RequestedTier),
		TargetQuality:     string(res.TargetTier),
		Quality:           string(res.Tier),
		QualityOptimized:  res.QualityOptimized,
		DeliverAsDocument: res.DeliverAsDocument,
		Artifacts:         make([]ArtifactView, 0, len(res.Artifacts)),
	}
	for _, a := range res.Artifacts {
		token := h.registry.Add(a, res.Metadata.Title)
		view.Artifacts = append(view.Artifacts, ArtifactView{
			Kind:        string(a.Kind),
			Size:        a.SizeBytes,
			SizeHuman:   humanize.IBytes(uint64(a.SizeBytes)),
			DownloadURL: "/api/artifacts/" + token,
		})
	}
	return c.JSON(http.StatusOK, view)
}

// HandleArtifact serves GET /api/artifacts/:token.
func (h *Handler) HandleArtifact(c echo.Context) error {
	return h.registry.Serve(c, c.Param("token"))
}

// HandleHealth serves GET / and GET /healthz.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
