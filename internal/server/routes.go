package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/formpulse/formpulse/internal/errors"
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	// audit wraps Recover and the error middleware so it observes the final
	// status code even when the handler panicked
	s.echo.Use(s.auditMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(apperrors.Middleware(apperrors.MiddlewareConfig{
		RetryAfterSeconds: s.config.RetryAfterSeconds,
		IncludeDetail:     !s.config.IsProduction(),
	}))

	limiter := newRateLimiter(s.config.RatePerSecond, s.config.RateBurst)

	s.registerSessionRoutes(limiter)
	s.registerHealthRoutes()
	s.registerInternalRoutes()

	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)
}
