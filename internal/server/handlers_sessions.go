package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/formpulse/formpulse/internal/domain"
	apperrors "github.com/formpulse/formpulse/internal/errors"
)

func (s *Server) registerSessionRoutes(limiter echo.MiddlewareFunc) {
	g := s.echo.Group("/api/sessions", limiter)
	g.POST("", s.handleCreateSession)
	g.GET("/stats", s.handleStats)
	g.GET("/:id", s.handleGetStatus)
	g.PUT("/:id/progress", s.handleSaveProgress)
	g.POST("/:id/submit", s.handleSubmit)
	g.DELETE("/:id", s.handleAbandon)
}

type createSessionRequest struct {
	TotalPages int `json:"total_pages"`
}

type createSessionResponse struct {
	SessionID   string `json:"session_id"`
	Status      string `json:"status"`
	CurrentPage int    `json:"current_page"`
	TotalPages  int    `json:"total_pages"`
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.InvalidInput("malformed request body")
	}
	if req.TotalPages == 0 {
		req.TotalPages = s.config.SurveyTotalPages
	}

	session, err := s.app.CreateSession(c.Request().Context(), req.TotalPages, extractClientMeta(c))
	if err != nil {
		return err
	}

	resp := createSessionResponse{
		SessionID:   session.ID.String(),
		Status:      string(session.Status),
		CurrentPage: session.CurrentPage,
		TotalPages:  session.TotalPages,
	}
	if err := c.JSON(http.StatusCreated, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type saveProgressRequest struct {
	Page int            `json:"page"`
	Data domain.Answers `json:"data"`
}

type saveProgressResponse struct {
	SessionID   string `json:"session_id"`
	CurrentPage int    `json:"current_page"`
}

func (s *Server) handleSaveProgress(c echo.Context) error {
	id, err := parseSessionID(c)
	if err != nil {
		return err
	}

	var req saveProgressRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.InvalidInput("malformed request body")
	}

	session, err := s.app.SaveProgress(c.Request().Context(), id, req.Page, req.Data)
	if err != nil {
		return err
	}

	resp := saveProgressResponse{
		SessionID:   session.ID.String(),
		CurrentPage: session.CurrentPage,
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetStatus(c echo.Context) error {
	id, err := parseSessionID(c)
	if err != nil {
		return err
	}

	session, err := s.app.GetStatus(c.Request().Context(), id)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, session); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type submitResponse struct {
	FinalizedID string `json:"finalized_id"`
	SessionID   string `json:"session_id"`
	FinalizedAt string `json:"finalized_at"`
}

func (s *Server) handleSubmit(c echo.Context) error {
	id, err := parseSessionID(c)
	if err != nil {
		return err
	}

	submission, err := s.app.Submit(c.Request().Context(), id)
	if err != nil {
		return err
	}

	resp := submitResponse{
		FinalizedID: submission.ID.String(),
		SessionID:   submission.SessionID.String(),
		FinalizedAt: submission.FinalizedAt.Format(time.RFC3339),
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleAbandon(c echo.Context) error {
	id, err := parseSessionID(c)
	if err != nil {
		return err
	}

	if err := s.app.Abandon(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.app.Stats(c.Request().Context())
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, stats); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func parseSessionID(c echo.Context) (uuid.UUID, error) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.InvalidInput("invalid session ID format").WithContext("session_id", raw)
	}
	return id, nil
}
