package web

// errors.go turns handler errors into JSON responses.
//
// Every error is logged with its technical text and the request id, then
// mapped through core.MapError to a coded Spanish message. The status code
// is derived from the error chain.

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alysalud/visitas/internal/core"
)

// Request errors raised by the handlers. Their texts are matched by
// core.MapError.
var (
	errFileTooLarge    = errors.New("file too large")
	errNoFile          = errors.New("no file provided")
	errUnsupportedFile = errors.New("unsupported file type")
	errEmptyFile       = errors.New("empty file")
	errRateLimited     = errors.New("rate limit exceeded")
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errUnsupportedFile):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, errNoFile),
		errors.Is(err, errEmptyFile),
		errors.Is(err, core.ErrInvalidRequest),
		errors.Is(err, core.ErrInvalidPeriod),
		errors.Is(err, core.ErrUnreadableWorkbook):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrEmptyReport):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTenantBusy):
		return http.StatusConflict
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrTooManyIngestions):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its coded message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	requestLogger(r).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}
