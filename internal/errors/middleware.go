package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPErrorsTotal tracks HTTP errors by type
	HTTPErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total HTTP errors by error type",
		},
		[]string{"type"},
	)
)

// MiddlewareConfig controls error rendering.
type MiddlewareConfig struct {
	// RetryAfterSeconds is the retry hint attached to retryable errors.
	RetryAfterSeconds int
	// IncludeDetail exposes cause detail in responses (non-production only).
	IncludeDetail bool
}

// Middleware returns an Echo middleware that handles structured errors.
// It catches errors returned by handlers and converts them to appropriate
// HTTP responses.
func Middleware(cfg MiddlewareConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			// Echo's own HTTPErrors (from routing or built-in middleware)
			// pass through unchanged to preserve their status code.
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				HTTPErrorsTotal.WithLabelValues(string(TypeInternal)).Inc()
				return err
			}

			structuredErr := AsStructuredError(err)
			HTTPErrorsTotal.WithLabelValues(string(structuredErr.Type)).Inc()
			logError(c, structuredErr)

			if structuredErr.Retryable() && cfg.RetryAfterSeconds > 0 {
				c.Response().Header().Set("Retry-After", strconv.Itoa(cfg.RetryAfterSeconds))
			}

			resp := structuredErr.ToResponse(cfg.RetryAfterSeconds, cfg.IncludeDetail)
			if err := c.JSON(structuredErr.HTTPStatus(), resp); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

// logError logs an error with request context.
func logError(c echo.Context, err *Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	if err.Cause != nil {
		attrs = append(attrs, "cause", err.Cause.Error())
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	ctx := c.Request().Context()
	switch err.HTTPStatus() {
	case http.StatusBadRequest, http.StatusNotFound:
		slog.InfoContext(ctx, "Client error", attrs...)
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		slog.WarnContext(ctx, "Dependency error", attrs...)
	default:
		slog.ErrorContext(ctx, "Internal error", attrs...)
	}
}
