package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/formpulse/formpulse/internal/audit"
	"github.com/formpulse/formpulse/internal/platform/correlation"
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := correlation.WithID(c.Request().Context(), correlation.NewID())
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}

// auditMiddleware records mutating and high-risk requests in the audit
// trail. Plain reads stay out of the trail unless their risk is elevated
// (server error or excessive latency).
func (s *Server) auditMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			latency := time.Since(start)

			method := c.Request().Method
			path := c.Path()
			status := c.Response().Status

			risk := audit.RiskFor(method, path, status, latency)
			mutating := method != http.MethodGet && method != http.MethodHead
			if !mutating && !risk.AtLeast(audit.RiskHigh) {
				return err
			}

			outcome := "success"
			if err != nil || status >= http.StatusBadRequest {
				outcome = "failure"
			}

			s.trail.LogEvent(audit.Entry{
				Category:      "http",
				Action:        method + " " + path,
				Resource:      c.Request().URL.Path,
				Actor:         "client",
				NetworkOrigin: c.RealIP(),
				Outcome:       outcome,
				Risk:          risk,
				Details: map[string]any{
					"status":     status,
					"latency_ms": latency.Milliseconds(),
				},
			})
			return err
		}
	}
}
