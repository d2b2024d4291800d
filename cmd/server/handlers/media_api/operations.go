package media_api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/clipfit/cmd/server/handlers/common"
)

// jobContext detaches a job from client disconnects; tool timeouts still bound it.
func jobContext(c echo.Context) context.Context {
	return context.WithoutCancel(c.Request().Context())
}

type urlRequest struct {
	URL string `json:"url"`
}

type videoRequest struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
}

type compressRequest struct {
	URL      string  `json:"url"`
	TargetMB float64 `json:"target_mb"`
}

type trimRequest struct {
	URL   string  `json:"url"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type convertRequest struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

type speedRequest struct {
	URL    string  `json:"url"`
	Factor float64 `json:"factor"`
}

func bind[T any](c echo.Context) (T, error) {
	var req T
	if err := c.Bind(&req); err != nil {
		return req, common.ErrBadRequest("malformed request body")
	}
	return req, nil
}

// HandleInfo serves GET /api/info?url=.
func (h *Handler) HandleInfo(c echo.Context) error {
	res, err := h.svc.Describe(jobContext(c), c.QueryParam("url"))
	if err != nil {
		return common.ErrMedia(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"request_id": res.RequestID,
		"platform":   res.Platform,
		"metadata":   res.Metadata,
	})
}

// HandleVideo serves POST /api/video.
func (h *Handler) HandleVideo(c echo.Context) error {
	req, err := bind[videoRequest](c)
	if err != nil {
		return err
	}
	res, err := h.svc.FetchVideo(jobContext(c), req.URL, req.Quality)
	return h.respond(c, res, err)
}

// HandleVideoAudio serves POST /api/video-audio.
func (h *Handler) HandleVideoAudio(c echo.Context) error {
	req, err := bind[videoRequest](c)
	if err != nil {
		return err
	}
	res, err := h.svc.FetchVideoAndAudio(jobContext(c), req.URL, req.Quality)
	return h.respond(c, res, err)
}

// HandleAudio serves POST /api/audio.
func (h *Handler) HandleAudio(c echo.Context) error {
	req, err := bind[urlRequest](c)
	if err != nil {
		return err
	}
	res, err := h.svc.FetchAudioOnly(jobContext(c), req.URL)
	return h.respond(c, res, err)
}

// HandleCompress serves POST /api/compress.
func (h *Handler) HandleCompress(c echo.Context) error {
	req, err := bind[compressRequest](c)
	if err != nil {
		return err
	}
	res, err := h.svc.FetchAndCompress(jobContext(c), req.URL, req.TargetMB)
	return h.respond(c, res, err)
}

// HandleTrim serves POST /api/trim.
func (h *Handler) HandleTrim(c echo.Context) error {
	req, err := bind[trimRequest](c)
	if err != nil {
		return err
	}
	res, err := h.svc.FetchAndTrim(jobContext(c), req.URL, req.Start, req.End)
	return h.respond(c, res, err)
}

// HandleConvert serves POST /api/convert.
func (h *Handler) HandleConvert(c echo.Context) error {
	req, err := bind[convertRequest](c)
	if err != nil {
		return err
	}
	res, err := h.svc.FetchAndConvert(jobContext(c), req.URL, req.Format)
	return h.respond(c, res, err)
}

// HandleSpeed serves POST /api/speed.
func (h *Handler) HandleSpeed(c echo.Context) error {
	req, err := bind[speedRequest](c)
	if err != nil {
		return err
	}
	res, err := h.svc.FetchAndChangeSpeed(jobContext(c), req.URL, req.Factor)
	return h.respond(c, res, err)
}

// HandleSubtitles serves POST /api/subtitles.
func (h *Handler) HandleSubtitles(c echo.Context) error {
	req, err := bind[urlRequest](c)
	if err != nil {
		return err
	}
	res, err := h.svc.FetchSubtitles(jobContext(c), req.URL)
	return h.respond(c, res, err)
}

// HandleThumbnail serves POST /api/thumbnail.
func (h *Handler) HandleThumbnail(c echo.Context) error {
	req, err := bind[urlRequest](c)
	if err != nil {
		return err
	}
	res, err := h.svc.FetchThumbnail(jobContext(c), req.URL)
	return h.respond(c, res, err)
}
