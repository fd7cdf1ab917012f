package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"oshirase/internal/logging"
	"oshirase/internal/services"
)

// NotFoundError reports a missing or malformed media id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return "could not find " + e.Kind + " " + e.ID
}

func (e NotFoundError) Unwrap() error { return services.ErrNotFound }

// statusFor maps an error marker to the HTTP status returned to clients.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrPersistence), errors.Is(err, services.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleErrors renders the last handler error as an envelope.
func handleErrors(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}
		err := last.Err
		status := statusFor(err)
		message := err.Error()
		if status >= http.StatusInternalServerError {
			logging.ErrorWithContext(logger, "request failed", "api_request_failed",
				logging.String("method", c.Request.Method),
				logging.String("path", c.FullPath()),
				logging.Int("status", status),
				logging.String("error_kind", services.Kind(err)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "client received an error response"),
			)
			message = http.StatusText(status)
		}
		if c.Writer.Written() {
			return
		}
		c.JSON(status, envelope{Status: status, Data: gin.H{"message": message}})
	}
}
