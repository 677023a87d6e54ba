package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/routedata/internal/adapters/content/remote"
	service "github.com/okian/routedata/internal/app"
	"github.com/okian/routedata/internal/domain/contentapi"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
)

// statusFor maps a fetch error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	var apiErr *contentapi.APIError
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, contentapi.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrUnknownRoute):
		return http.StatusBadRequest, "unknown_route"
	case errors.Is(err, contentapi.ErrUnknownVersion):
		return http.StatusBadRequest, "unknown_version"
	case errors.Is(err, contentapi.ErrUnsupportedQuery):
		return http.StatusBadRequest, "unsupported_query"
	case errors.Is(err, contentapi.ErrInvalidOption), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded), remote.IsTimeout(err):
		return http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
