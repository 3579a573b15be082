package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/vovakirdan/tgsessions/internal/core"
)

// statusFor maps manager errors to an HTTP status and a client-facing message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrNoSuchSession):
		return http.StatusNotFound, "no such session"
	case errors.Is(err, core.ErrNotRunning), errors.Is(err, core.ErrStopped):
		return http.StatusServiceUnavailable, "session manager is not running"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
