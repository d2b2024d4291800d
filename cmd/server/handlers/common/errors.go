package common

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/clipfit/internal/mediaerr"
)

// ErrBadRequest returns a 400 Bad Request error.
func ErrBadRequest(msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, ErrorBody{Error: msg, Kind: string(mediaerr.KindInvalidParameters)})
}

// ErrorBody is the JSON shape of every API error.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StatusFor maps a failure kind to an HTTP status.
func StatusFor(kind mediaerr.Kind) int {
	switch kind {
	case mediaerr.KindInvalidParameters, mediaerr.KindUnsupportedTarget, mediaerr.KindUnsupportedSource:
		return http.StatusBadRequest
	case mediaerr.KindAccessForbidden:
		return http.StatusForbidden
	case mediaerr.KindVideoUnavailable:
		return http.StatusNotFound
	case mediaerr.KindSizeExceeded:
		return http.StatusRequestEntityTooLarge
	case mediaerr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// ErrMedia converts a pipeline failure into an HTTP error carrying only the short
// classified message. The original error is kept as Internal for the request log.
func ErrMedia(err error) *echo.HTTPError {
	kind := mediaerr.KindOf(err)
	he := echo.NewHTTPError(StatusFor(kind), ErrorBody{Error: mediaerr.UserMessage(err), Kind: string(kind)})
	return he.SetInternal(err)
}
