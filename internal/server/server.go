// Package server exposes the session lifecycle, health and operational
// surfaces over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/formpulse/formpulse/internal/audit"
	"github.com/formpulse/formpulse/internal/config"
	"github.com/formpulse/formpulse/internal/domain"
	"github.com/formpulse/formpulse/internal/health"
)

type sessionService interface {
	CreateSession(ctx context.Context, totalPages int, meta domain.ClientMeta) (*domain.Session, error)
	SaveProgress(ctx context.Context, id uuid.UUID, page int, partial domain.Answers) (*domain.Session, error)
	GetStatus(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	Submit(ctx context.Context, id uuid.UUID) (*domain.FinalizedSubmission, error)
	Abandon(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context) (*domain.SessionStats, error)
}

type auditTrail interface {
	LogEvent(audit.Entry)
	Recent() []audit.Entry
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app       sessionService
	health    *health.Aggregator
	trail     auditTrail
	startTime time.Time
}

func NewServer(cfg *config.Config, app sessionService, healthAgg *health.Aggregator, trail auditTrail) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:      e,
		config:    cfg,
		app:       app,
		health:    healthAgg,
		trail:     trail,
		startTime: time.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
