package web

import (
	"context"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"thirdcoast.systems/clipfit/cmd/server/handlers/delivery"
	"thirdcoast.systems/clipfit/cmd/server/handlers/media_api"
)

type Webserver struct {
	*echo.Echo
	media *media_api.Handler
}

func NewWebserver(ctx context.Context, svc media_api.Service, registry *delivery.Registry) (*Webserver, error) {
	e := echo.New()

	webserver := &Webserver{
		Echo:  e,
		media: media_api.NewHandler(svc, registry),
	}

	if err := webserver.setupMiddleware(); err != nil {
		return nil, err
	}

	if err := webserver.registerRoutes(); err != nil {
		return nil, err
	}

	return webserver, nil
}

func (s *Webserver) setupMiddleware() error {
	s.HideBanner = true
	s.HidePort = true
	s.Use(middleware.BodyLimit("64K"))
	s.Use(middleware.Recover())
	s.Use(middleware.RequestID())
	s.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		// artifacts are already compressed media
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, "/api/artifacts/")
		},
	}))
	s.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/healthz"
		},
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
			}
			slog.Info("request", fields...)
			return nil
		},
	}))

	return nil
}

func (s *Webserver) registerRoutes() error {
	s.GET("/", s.media.HandleHealth)
	s.GET("/healthz", s.media.HandleHealth)

	api := s.Group("/api")
	api.GET("/info", s.media.HandleInfo)
	api.POST("/video", s.media.HandleVideo)
	api.POST("/video-audio", s.media.HandleVideoAudio)
	api.POST("/audio", s.media.HandleAudio)
	api.POST("/compress", s.media.HandleCompress)
	api.POST("/trim", s.media.HandleTrim)
	api.POST("/convert", s.media.HandleConvert)
	api.POST("/speed", s.media.HandleSpeed)
	api.POST("/subtitles", s.media.HandleSubtitles)
	api.POST("/thumbnail", s.media.HandleThumbnail)
	api.GET("/artifacts/:token", s.media.HandleArtifact)

	return nil
}
